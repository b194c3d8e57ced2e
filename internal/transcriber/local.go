package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"carescribe/internal/config"
)

// localEngine runs a whisper.cpp binary against a model file on disk. The
// model path is validated once at construction and reused for the process
// lifetime. Inference runs are serialized: each call spawns a decoder
// process that loads the whole model, and running several at once would
// exhaust memory on small hosts.
type localEngine struct {
	binPath    string
	modelPath  string
	ffmpegPath string
	language   string
	workdir    string
	logger     *slog.Logger
	mu         sync.Mutex
}

func newLocalEngine(cfg config.TranscriberConfig, workdir string, logger *slog.Logger) (*localEngine, error) {
	binPath := cfg.BinPath
	if binPath == "" {
		binPath = "whisper-cli"
	}
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	if _, err := exec.LookPath(binPath); err != nil {
		return nil, fmt.Errorf("whisper binary not found: %w", err)
	}
	if _, err := exec.LookPath(ffmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found: %w", err)
	}
	if info, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("whisper model not found at %s: %w", cfg.ModelPath, err)
	} else if info.IsDir() {
		return nil, fmt.Errorf("whisper model path %s is a directory", cfg.ModelPath)
	}

	logger.Info("whisper engine ready", "bin", binPath, "model", cfg.ModelPath)

	return &localEngine{
		binPath:    binPath,
		modelPath:  cfg.ModelPath,
		ffmpegPath: ffmpegPath,
		language:   cfg.Language,
		workdir:    workdir,
		logger:     logger,
	}, nil
}

func (e *localEngine) Transcribe(ctx context.Context, audio []byte, fileType string) (string, error) {
	inputPath, err := writeTempAudio(e.workdir, audio, fileType)
	if err != nil {
		return "", err
	}
	defer os.Remove(inputPath)

	wavPath, err := transcodeToWAV(ctx, e.ffmpegPath, inputPath, fileType)
	if err != nil {
		return "", err
	}
	defer os.Remove(wavPath)

	e.mu.Lock()
	defer e.mu.Unlock()

	args := []string{
		"-m", e.modelPath,
		"-f", wavPath,
		"--no-timestamps",
		"--no-prints",
	}
	if e.language != "" {
		args = append(args, "--language", e.language)
	}

	cmd := exec.CommandContext(ctx, e.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper run: %w: %s", err, tail(stderr.String(), 300))
	}

	transcript := strings.TrimSpace(stdout.String())
	e.logger.Info("transcription complete", "engine", "local", "text_len", len(transcript))
	return transcript, nil
}
