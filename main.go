package main

import "github.com/kibitzbot/kibitz/cmd"

func main() {
	cmd.Execute()
}
