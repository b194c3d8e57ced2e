package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"carescribe/internal/config"
	"carescribe/internal/domain"
	"carescribe/internal/metrics"
	"carescribe/internal/report"
	"carescribe/internal/store"
	"carescribe/internal/transcriber"
	"carescribe/internal/webhook"
	"carescribe/internal/whatsapp"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "carescribe",
		Short: "carescribe: WhatsApp audio-to-report service for mental health caregivers",
		Long: "carescribe receives audio recordings over a WhatsApp webhook, transcribes them,\n" +
			"and replies with a structured mental health report.",
		// .env first so ${VAR} references in the config file resolve, for
		// every subcommand that loads config.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err == nil {
				logger.Debug("loaded .env file")
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.carescribe/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err = buildLogger(cfg.General)
	if err != nil {
		return err
	}

	if cfg.General.Workspace != "" {
		if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recordStore domain.RecordStore
	if cfg.Store.Enabled {
		s, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
		if err != nil {
			return fmt.Errorf("record store: %w", err)
		}
		defer s.Close()
		recordStore = s
	}

	// The transcriber is the resident shared resource: built once here,
	// reused by every in-flight request.
	stt, err := transcriber.New(cfg.Transcriber, cfg.General.Workspace, logger)
	if err != nil {
		return fmt.Errorf("transcriber: %w", err)
	}

	tmpl, err := report.LoadTemplate(cfg.Report.TemplatePath)
	if err != nil {
		return fmt.Errorf("report template: %w", err)
	}
	generator := report.NewGenerator(report.GeneratorConfig{
		Config:   cfg.OpenAI,
		Template: tmpl,
		Logger:   logger,
	})

	waClient := whatsapp.NewClient(whatsapp.ClientConfig{
		Config: cfg.WhatsApp,
		Logger: logger,
	})

	registry := metrics.NewRegistry()

	pipeline := webhook.NewPipeline(webhook.PipelineConfig{
		Fetcher:    waClient,
		Transcribe: stt,
		Generator:  generator,
		Dispatcher: waClient,
		Store:      recordStore,
		Metrics:    registry,
		Logger:     logger,
	})

	server := webhook.NewServer(webhook.ServerConfig{
		Config:   *cfg,
		Pipeline: pipeline,
		Store:    recordStore,
		Metrics:  registry,
		Logger:   logger,
	})

	logger.Info("carescribe starting", "version", version, "engine", cfg.Transcriber.Engine, "model", cfg.OpenAI.Model)
	return server.Run(ctx)
}

// buildLogger creates the process logger from config: level from
// general.logLevel, duplicated to general.logFile when set.
func buildLogger(cfg config.GeneralConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
