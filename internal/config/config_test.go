package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 8087 {
		t.Errorf("default port = %d", cfg.Gateway.Port)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("default workers = %d", cfg.Pipeline.Workers)
	}
}

func TestLoadParsesJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	content := `{
		// comments are allowed
		gateway: { port: 9001 },
		pipeline: {
			admin_jids: ["admin@s.whatsapp.net"],
			token_budget: 1500,
		},
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 9001 {
		t.Errorf("port = %d, want 9001", cfg.Gateway.Port)
	}
	if len(cfg.Pipeline.AdminJIDs) != 1 || cfg.Pipeline.AdminJIDs[0] != "admin@s.whatsapp.net" {
		t.Errorf("admin_jids = %v", cfg.Pipeline.AdminJIDs)
	}
	if cfg.Pipeline.TokenBudget != 1500 {
		t.Errorf("token_budget = %d", cfg.Pipeline.TokenBudget)
	}
	// Unset fields keep their defaults.
	if cfg.Providers.OpenAI.RouterModel == "" {
		t.Error("router model default lost")
	}
}

func TestEnvOverridesBeatFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte(`{gateway: {port: 9001}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("KIBITZ_GATEWAY_PORT", "9999")
	t.Setenv("KIBITZ_OPENAI_API_KEY", "test-key")
	t.Setenv("KIBITZ_ADMIN_JIDS", "a@s.whatsapp.net, b@s.whatsapp.net")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("port = %d, want env override 9999", cfg.Gateway.Port)
	}
	if cfg.Providers.OpenAI.APIKey != "test-key" {
		t.Errorf("api key not taken from env")
	}
	if len(cfg.Pipeline.AdminJIDs) != 2 {
		t.Errorf("admin_jids = %v", cfg.Pipeline.AdminJIDs)
	}
}
