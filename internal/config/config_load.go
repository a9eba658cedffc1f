package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; the defaults plus environment must be enough to run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values; secrets are env-only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets
	envStr("KIBITZ_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("KIBITZ_VOYAGE_API_KEY", &c.Providers.Voyage.APIKey)
	envStr("KIBITZ_BRAVE_API_KEY", &c.Tools.BraveAPIKey)
	envStr("KIBITZ_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("KIBITZ_WHATSAPP_BRIDGE_TOKEN", &c.Channels.WhatsApp.BridgeToken)
	envStr("KIBITZ_POSTGRES_DSN", &c.Store.PostgresDSN)

	// Overridable settings
	envStr("KIBITZ_GATEWAY_HOST", &c.Gateway.Host)
	envStr("KIBITZ_WHATSAPP_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)
	envStr("KIBITZ_WHISPER_HOST", &c.Providers.Whisper.Host)
	envStr("KIBITZ_SQLITE_PATH", &c.Store.SQLitePath)
	envStr("KIBITZ_LOG_LEVEL", &c.Logging.Level)

	if v := os.Getenv("KIBITZ_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("KIBITZ_ADMIN_JIDS"); v != "" {
		c.Pipeline.AdminJIDs = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Watch reloads the config file on change and invokes onChange with the new
// config. Parse failures keep the previous config.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	// Watch the directory: editors replace files rather than writing in
	// place, which drops a file-level watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					slog.Warn("config reload failed, keeping previous", "error", err)
					continue
				}
				slog.Info("config reloaded", "path", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
