// Package transcriber converts platform audio attachments into text.
//
// Two engines are supported:
//   - local: invokes a resident whisper.cpp binary against a model file that
//     is verified once at startup.
//   - api: posts the audio to an OpenAI-compatible /audio/transcriptions
//     endpoint.
//
// Both engines first normalize the input with ffmpeg to the format the
// speech models require: mono, 16 kHz, 16-bit signed little-endian PCM.
package transcriber

import (
	"fmt"
	"log/slog"
	"os"

	"carescribe/internal/config"
	"carescribe/internal/domain"
)

// New creates a Transcriber from config. The local engine checks its binary
// and model file here so a misconfiguration fails at startup, not on the
// first message.
func New(cfg config.TranscriberConfig, workdir string, logger *slog.Logger) (domain.Transcriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if workdir == "" {
		workdir = os.TempDir()
	}

	switch cfg.Engine {
	case "local":
		return newLocalEngine(cfg, workdir, logger)
	case "api":
		return newAPIEngine(cfg, workdir, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcriber engine: %s", cfg.Engine)
	}
}

// writeTempAudio materializes audio bytes to a temp file with the
// container's native extension so the decoder picks the right demuxer.
// The caller removes the file.
func writeTempAudio(dir string, audio []byte, fileType string) (string, error) {
	f, err := os.CreateTemp(dir, "carescribe-*."+fileType)
	if err != nil {
		return "", fmt.Errorf("create temp audio file: %w", err)
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp audio file: %w", err)
	}
	return f.Name(), nil
}
