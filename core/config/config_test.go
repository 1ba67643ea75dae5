package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLWithEnvOverlay(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: from-file
  admin_ids: [1, 2]
  manager_chat_id: -100
rate_limit:
  interval_ms: 300
  exclude_updates: [" Callback ", ""]
`)
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, env should win", cfg.Telegram.Token)
	}
	if !cfg.Telegram.IsAdmin(2) || cfg.Telegram.IsAdmin(3) {
		t.Fatalf("admin ids = %v", cfg.Telegram.AdminIDs)
	}
	if cfg.Telegram.ManagerChatID != -100 {
		t.Fatalf("manager chat = %d", cfg.Telegram.ManagerChatID)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode default = %q", cfg.Telegram.RunMode)
	}
	if len(cfg.RateLimit.ExcludeUpdates) != 1 || cfg.RateLimit.ExcludeUpdates[0] != UpdateCallback {
		t.Fatalf("exclude = %v", cfg.RateLimit.ExcludeUpdates)
	}
}

func TestLoadWithoutFileUsesEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-only")
	t.Setenv("TELEGRAM_ADMIN_IDS", "10,20")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "env-only" || len(cfg.Telegram.AdminIDs) != 2 {
		t.Fatalf("cfg = %+v", cfg.Telegram)
	}
}

func TestNormalizeRejectsBadValues(t *testing.T) {
	cases := map[string]Config{
		"no token":      {},
		"bad run mode":  {Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon"}},
		"webhook url":   {Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}},
		"bad admin id":  {Telegram: TelegramConfig{Token: "t", AdminIDs: []int64{0}}},
		"bad exclusion": {Telegram: TelegramConfig{Token: "t"}, RateLimit: RateLimitConfig{ExcludeUpdates: []string{"photo"}}},
	}
	for name, cfg := range cases {
		cfg := cfg
		if err := Normalize(&cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNormalizeAcceptsPollingAlias(t *testing.T) {
	cfg := Config{Telegram: TelegramConfig{Token: "t", RunMode: "Polling"}}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
}
