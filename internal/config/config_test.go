package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CARESCRIBE_TEST_TOKEN", "secret123")
	os.Unsetenv("CARESCRIBE_TEST_MISSING")

	cases := []struct {
		in, want string
	}{
		{"${CARESCRIBE_TEST_TOKEN}", "secret123"},
		{"prefix-${CARESCRIBE_TEST_TOKEN}-suffix", "prefix-secret123-suffix"},
		{"${CARESCRIBE_TEST_MISSING:-fallback}", "fallback"},
		{"${CARESCRIBE_TEST_TOKEN:-fallback}", "secret123"},
		{"${CARESCRIBE_TEST_MISSING}", "${CARESCRIBE_TEST_MISSING}"},
		{"no vars here", "no vars here"},
	}
	for _, c := range cases {
		if got := ExpandEnvVars(c.in); got != c.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.General.LogLevel = "verbose" }, "logLevel"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"empty api version", func(c *Config) { c.WhatsApp.APIVersion = "" }, "apiVersion"},
		{"bad webhook path", func(c *Config) { c.WhatsApp.WebhookPath = "webhook" }, "webhookPath"},
		{"bad temperature", func(c *Config) { c.OpenAI.Temperature = 3 }, "temperature"},
		{"bad max tokens", func(c *Config) { c.OpenAI.MaxTokens = 0 }, "maxTokens"},
		{"bad engine", func(c *Config) { c.Transcriber.Engine = "cloud" }, "engine"},
		{"local without model", func(c *Config) { c.Transcriber.ModelPath = "" }, "modelPath"},
		{"api without key", func(c *Config) {
			c.Transcriber.Engine = "api"
			c.Transcriber.APIKey = ""
		}, "apiKey"},
		{"store without path", func(c *Config) {
			c.Store.Enabled = true
			c.Store.DBPath = ""
		}, "dbPath"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Defaults()
			c.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Errorf("error %q should mention %q", err, c.want)
			}
		})
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	t.Setenv("WA_TOKEN", "EAAtoken")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{
	  "whatsapp": {
	    "accessToken": "${WA_TOKEN}",
	    "phoneNumberId": "12345",
	    "verifyToken": "verify-me"
	  },
	  "server": {"port": 9000},
	  "transcriber": {"engine": "api", "apiKey": "sk-test"}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WhatsApp.AccessToken != "EAAtoken" {
		t.Errorf("env expansion failed: %q", cfg.WhatsApp.AccessToken)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("override not applied: %d", cfg.Server.Port)
	}
	// Unset fields keep their defaults.
	if cfg.WhatsApp.APIVersion != "v21.0" {
		t.Errorf("default apiVersion lost: %q", cfg.WhatsApp.APIVersion)
	}
	if cfg.WhatsApp.WebhookPath != "/webhook" {
		t.Errorf("default webhookPath lost: %q", cfg.WhatsApp.WebhookPath)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSave_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Defaults()
	cfg.Server.Port = 8123
	cfg.WhatsApp.AccessToken = "tok"

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 8123 || loaded.WhatsApp.AccessToken != "tok" {
		t.Errorf("round trip lost values: %+v", loaded.Server)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Defaults()
	cfg.WhatsApp.AccessToken = "EAAlongtoken"
	cfg.OpenAI.APIKey = "sk-abcdef"
	cfg.Transcriber.APIKey = "x"

	out := Sanitize(cfg)
	if out.WhatsApp.AccessToken != "EAAl****" {
		t.Errorf("token not masked: %q", out.WhatsApp.AccessToken)
	}
	if out.OpenAI.APIKey != "sk-a****" {
		t.Errorf("api key not masked: %q", out.OpenAI.APIKey)
	}
	if out.Transcriber.APIKey != "****" {
		t.Errorf("short key not masked: %q", out.Transcriber.APIKey)
	}
	if cfg.WhatsApp.AccessToken != "EAAlongtoken" {
		t.Error("Sanitize must not mutate the original")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandPath("~/x/y"); got != filepath.Join(home, "x/y") {
		t.Errorf("ExpandPath(~/x/y) = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path must pass through, got %q", got)
	}
}
