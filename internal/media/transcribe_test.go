package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWhisperProxyTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/asr" {
			t.Errorf("path = %s, want /asr", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("task") != "transcribe" || q.Get("output") != "txt" || q.Get("language") != "en" {
			t.Errorf("unexpected query params: %v", q)
		}

		file, header, err := r.FormFile("audio_file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer file.Close()
		if header.Filename != "note.ogg" {
			t.Errorf("filename = %s, want note.ogg", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "fake-ogg-bytes" {
			t.Errorf("audio body = %q", data)
		}

		io.WriteString(w, "hello from the voice note\n")
	}))
	defer server.Close()

	proxy := NewWhisperProxy(server.URL, "en")
	text, err := proxy.Transcribe(context.Background(), []byte("fake-ogg-bytes"), "note.ogg")
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello from the voice note" {
		t.Errorf("transcript = %q", text)
	}
}

func TestWhisperProxyTranscribeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	proxy := NewWhisperProxy(server.URL, "")
	if _, err := proxy.Transcribe(context.Background(), []byte("x"), "a.ogg"); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}
