package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"carescribe/internal/config"
	"carescribe/internal/store"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your carescribe installation",
		Long: `Verifies that carescribe's configuration, audio tooling, record store, and
API credentials are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("carescribe doctor v%s\n\n", version)

			passed, failed, warned := 0, 0, 0

			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'carescribe init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", passed, failed+1)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			// Audio tooling
			ffmpeg := cfg.Transcriber.FFmpegPath
			if ffmpeg == "" {
				ffmpeg = "ffmpeg"
			}
			if path, err := exec.LookPath(ffmpeg); err != nil {
				printFail("ffmpeg", "not found on PATH")
				failed++
			} else {
				printPass("ffmpeg", path)
				passed++
			}

			if cfg.Transcriber.Engine == "local" {
				bin := cfg.Transcriber.BinPath
				if bin == "" {
					bin = "whisper-cli"
				}
				if path, err := exec.LookPath(bin); err != nil {
					printFail("whisper binary", "not found on PATH")
					failed++
				} else {
					printPass("whisper binary", path)
					passed++
				}
				if _, err := os.Stat(cfg.Transcriber.ModelPath); err != nil {
					printFail("whisper model", fmt.Sprintf("not found at %s", cfg.Transcriber.ModelPath))
					failed++
				} else {
					printPass("whisper model", cfg.Transcriber.ModelPath)
					passed++
				}
			} else {
				if cfg.Transcriber.APIKey == "" {
					printFail("transcription API key", "not configured")
					failed++
				} else {
					printPass("transcription API key", "configured")
					passed++
				}
			}

			// Credentials
			if cfg.WhatsApp.AccessToken == "" || cfg.WhatsApp.PhoneNumberID == "" {
				printFail("WhatsApp credentials", "accessToken and phoneNumberId are required")
				failed++
			} else {
				printPass("WhatsApp credentials", "configured")
				passed++
			}
			if cfg.WhatsApp.VerifyToken == "" {
				printWarn("Webhook verify token", "not set; webhook verification will fail")
				warned++
			} else {
				printPass("Webhook verify token", "configured")
				passed++
			}
			if cfg.OpenAI.APIKey == "" {
				printFail("OpenAI API key", "not configured")
				failed++
			} else {
				printPass("OpenAI API key", "configured")
				passed++
			}

			// Record store
			if cfg.Store.Enabled {
				if err := checkStore(cfg.Store.DBPath); err != nil {
					printFail("Record store", err.Error())
					failed++
				} else {
					printPass("Record store", cfg.Store.DBPath)
					passed++
				}
			} else {
				printWarn("Record store", "disabled")
				warned++
			}

			fmt.Printf("\n%d passed, %d failed, %d warnings\n", passed, failed, warned)
			return nil
		},
	}
}

func checkStore(dbPath string) error {
	s, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = s.Recent(ctx, 1)
	return err
}

func printPass(name, detail string) { fmt.Printf("  [ok]   %-24s %s\n", name, detail) }
func printFail(name, detail string) { fmt.Printf("  [fail] %-24s %s\n", name, detail) }
func printWarn(name, detail string) { fmt.Printf("  [warn] %-24s %s\n", name, detail) }
