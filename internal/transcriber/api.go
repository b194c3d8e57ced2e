package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carescribe/internal/config"
)

// apiEngine posts normalized audio to an OpenAI-compatible transcription
// endpoint. The audio still goes through ffmpeg first so both engines feed
// their model the same canonical format.
type apiEngine struct {
	apiBase    string
	apiKey     string
	model      string
	language   string
	ffmpegPath string
	workdir    string
	client     *http.Client
	logger     *slog.Logger
}

func newAPIEngine(cfg config.TranscriberConfig, workdir string, logger *slog.Logger) *apiEngine {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &apiEngine{
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		language:   cfg.Language,
		ffmpegPath: ffmpegPath,
		workdir:    workdir,
		client:     &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

func (e *apiEngine) Transcribe(ctx context.Context, audio []byte, fileType string) (string, error) {
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

	wav, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("open normalized audio: %w", err)
	}
	defer wav.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, wav); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	writer.WriteField("model", e.model)
	writer.WriteField("response_format", "json")
	if e.language != "" {
		writer.WriteField("language", e.language)
	}
	writer.Close()

	url := e.apiBase + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	transcript := strings.TrimSpace(result.Text)
	e.logger.Info("transcription complete", "engine", "api", "text_len", len(transcript))
	return transcript, nil
}
