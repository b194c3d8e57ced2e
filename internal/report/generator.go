// Package report turns conversation transcripts into structured mental
// health reports via a chat-completions model.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"carescribe/internal/config"
)

// Generator implements domain.ReportGenerator. One request per transcript,
// no streaming, no retry.
type Generator struct {
	apiKey      string
	apiBase     string
	model       string
	temperature float64
	maxTokens   int
	template    *Template
	client      *http.Client
	logger      *slog.Logger
}

type GeneratorConfig struct {
	Config   config.OpenAIConfig
	Template *Template // nil uses the built-in prompt
	Logger   *slog.Logger
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	apiBase := cfg.Config.APIBase
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	model := cfg.Config.Model
	if model == "" {
		model = "gpt-4"
	}
	tmpl := cfg.Template
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	return &Generator{
		apiKey:      cfg.Config.APIKey,
		apiBase:     strings.TrimSuffix(apiBase, "/"),
		model:       model,
		temperature: cfg.Config.Temperature,
		maxTokens:   cfg.Config.MaxTokens,
		template:    tmpl,
		client:      &http.Client{Timeout: 120 * time.Second},
		logger:      cfg.Logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Generate sends the transcript to the model and returns the report prose
// verbatim. The report has no machine-readable structure; it is forwarded
// to the caregiver as-is.
func (g *Generator) Generate(ctx context.Context, transcript string) (string, error) {
	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: g.template.SystemPrompt},
			{Role: "user", Content: g.template.UserPrompt(transcript)},
		},
		Temperature: &g.temperature,
		MaxTokens:   g.maxTokens,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := g.apiBase + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	reportText := strings.TrimSpace(result.Choices[0].Message.Content)

	g.logger.Info("report generated",
		"model", g.model,
		"report_len", len(reportText),
		"tokens_in", result.Usage.PromptTokens,
		"tokens_out", result.Usage.CompletionTokens,
	)

	return reportText, nil
}
