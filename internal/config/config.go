package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for carescribe.
type Config struct {
	General     GeneralConfig     `json:"general"`
	Server      ServerConfig      `json:"server"`
	WhatsApp    WhatsAppConfig    `json:"whatsapp"`
	OpenAI      OpenAIConfig      `json:"openai"`
	Transcriber TranscriberConfig `json:"transcriber"`
	Report      ReportConfig      `json:"report"`
	Store       StoreConfig       `json:"store"`
	Metrics     MetricsConfig     `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel"`
	LogFile   string `json:"logFile,omitempty"`
	Workspace string `json:"workspace"` // scratch dir for temp audio files
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// WhatsAppConfig configures the Cloud API client and webhook.
type WhatsAppConfig struct {
	AccessToken   string `json:"accessToken"`
	PhoneNumberID string `json:"phoneNumberId"`
	VerifyToken   string `json:"verifyToken"`
	AppSecret     string `json:"appSecret,omitempty"` // enables X-Hub-Signature-256 checks
	APIVersion    string `json:"apiVersion"`
	APIBase       string `json:"apiBase,omitempty"` // override for tests
	WebhookPath   string `json:"webhookPath"`
}

// OpenAIConfig configures the report-generation model.
type OpenAIConfig struct {
	APIKey      string  `json:"apiKey"`
	APIBase     string  `json:"apiBase,omitempty"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// TranscriberConfig configures speech-to-text. Engine "local" runs a
// resident whisper.cpp binary; "api" posts to an OpenAI-compatible
// transcription endpoint.
type TranscriberConfig struct {
	Engine     string `json:"engine"` // "local" | "api"
	BinPath    string `json:"binPath,omitempty"`
	ModelPath  string `json:"modelPath,omitempty"`
	FFmpegPath string `json:"ffmpegPath,omitempty"`
	Language   string `json:"language,omitempty"`
	APIBase    string `json:"apiBase,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
	Model      string `json:"model,omitempty"`

	MaxAudioDuration  int      `json:"maxAudioDurationSeconds"`
	AcceptedMimeTypes []string `json:"acceptedMimeTypes,omitempty"`
}

type ReportConfig struct {
	TemplatePath string `json:"templatePath,omitempty"` // optional YAML prompt override
}

type StoreConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.carescribe).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".carescribe"
	}
	return filepath.Join(home, ".carescribe")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Transcriber.ModelPath = ExpandPath(cfg.Transcriber.ModelPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	if cfg.WhatsApp.APIVersion == "" {
		errs = append(errs, "whatsapp.apiVersion must not be empty")
	}
	if !strings.HasPrefix(cfg.WhatsApp.WebhookPath, "/") {
		errs = append(errs, "whatsapp.webhookPath must start with /")
	}

	if cfg.OpenAI.Temperature < 0 || cfg.OpenAI.Temperature > 2 {
		errs = append(errs, "openai.temperature must be between 0 and 2")
	}
	if cfg.OpenAI.MaxTokens < 1 {
		errs = append(errs, "openai.maxTokens must be >= 1")
	}

	switch cfg.Transcriber.Engine {
	case "local", "api":
		// valid
	default:
		errs = append(errs, "transcriber.engine must be one of: local, api")
	}
	if cfg.Transcriber.Engine == "local" && cfg.Transcriber.ModelPath == "" {
		errs = append(errs, "transcriber.modelPath is required for the local engine")
	}
	if cfg.Transcriber.Engine == "api" && cfg.Transcriber.APIKey == "" {
		errs = append(errs, "transcriber.apiKey is required for the api engine")
	}
	if cfg.Transcriber.MaxAudioDuration < 1 {
		errs = append(errs, "transcriber.maxAudioDurationSeconds must be >= 1")
	}

	if cfg.Store.Enabled && cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required when the store is enabled")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Sanitize returns a copy of cfg with secrets masked, for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.WhatsApp.AccessToken = mask(cfg.WhatsApp.AccessToken)
	out.WhatsApp.AppSecret = mask(cfg.WhatsApp.AppSecret)
	out.WhatsApp.VerifyToken = mask(cfg.WhatsApp.VerifyToken)
	out.OpenAI.APIKey = mask(cfg.OpenAI.APIKey)
	out.Transcriber.APIKey = mask(cfg.Transcriber.APIKey)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
