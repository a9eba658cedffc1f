// Package config defines the bot configuration, loaded from a JSON5 file
// with environment variable overlays. Secrets only come from the
// environment, never from the file.
package config

import (
	"github.com/kibitzbot/kibitz/internal/store"
)

type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Store     store.Config    `json:"store"`
	Providers ProvidersConfig `json:"providers"`
	Channels  ChannelsConfig  `json:"channels"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Tools     ToolsConfig     `json:"tools"`
	Logging   LoggingConfig   `json:"logging"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ProvidersConfig struct {
	OpenAI  OpenAIConfig  `json:"openai"`
	Voyage  VoyageConfig  `json:"voyage"`
	Whisper WhisperConfig `json:"whisper"`
}

type OpenAIConfig struct {
	APIKey      string `json:"-"` // env only
	APIBase     string `json:"api_base"`
	RouterModel string `json:"router_model"`
	AnswerModel string `json:"answer_model"`
	DigestModel string `json:"digest_model"`
}

type VoyageConfig struct {
	APIKey  string `json:"-"` // env only
	APIBase string `json:"api_base"`
	Model   string `json:"model"`
}

type WhisperConfig struct {
	Host     string `json:"host"`
	Language string `json:"language"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
}

type WhatsAppConfig struct {
	Enabled     bool   `json:"enabled"`
	BridgeURL   string `json:"bridge_url"`
	BridgeToken string `json:"-"` // env only
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"-"` // env only
}

type PipelineConfig struct {
	AdminJIDs         []string `json:"admin_jids"`
	Workers           int      `json:"workers"`
	TokenBudget       int      `json:"token_budget"`
	MaxMessages       int      `json:"max_messages"`
	DigestTTLMinutes  int      `json:"digest_ttl_minutes"`
	DigestRefreshCron string   `json:"digest_refresh_cron"`
}

type ToolsConfig struct {
	BraveAPIKey string `json:"-"` // env only
	TimeZone    string `json:"time_zone"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8087,
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				RouterModel: "gpt-4o-mini",
				AnswerModel: "gpt-4o",
				DigestModel: "gpt-4o-mini",
			},
			Voyage: VoyageConfig{
				Model: "voyage-3",
			},
			Whisper: WhisperConfig{
				Language: "en",
			},
		},
		Pipeline: PipelineConfig{
			Workers:           4,
			DigestTTLMinutes:  15,
			DigestRefreshCron: "*/15 8-23 * * *",
		},
		Tools: ToolsConfig{
			TimeZone: "UTC",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
