package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			Workspace: "~/.carescribe/workspace",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   "${WHATSAPP_API_TOKEN}",
			PhoneNumberID: "${WHATSAPP_PHONE_NUMBER_ID}",
			VerifyToken:   "${VERIFY_TOKEN}",
			APIVersion:    "v21.0",
			WebhookPath:   "/webhook",
		},
		OpenAI: OpenAIConfig{
			APIKey: "${OPENAI_API_KEY}",
			Model:  "gpt-4",
			// Low temperature keeps reports consistent between runs.
			Temperature: 0.3,
			MaxTokens:   2000,
		},
		Transcriber: TranscriberConfig{
			Engine:           "local",
			BinPath:          "whisper-cli",
			ModelPath:        "~/.carescribe/models/ggml-base.bin",
			FFmpegPath:       "ffmpeg",
			MaxAudioDuration: 3000, // 50 minutes
			AcceptedMimeTypes: []string{
				"audio/mpeg", "audio/wav", "audio/ogg", "audio/x-wav", "audio/x-mp3",
			},
		},
		Store: StoreConfig{
			Enabled: true,
			DBPath:  "~/.carescribe/records.db",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
