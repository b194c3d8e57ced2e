package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"carescribe/internal/config"
)

func testGenerator(base string) *Generator {
	return NewGenerator(GeneratorConfig{
		Config: config.OpenAIConfig{
			APIKey:      "sk-test",
			APIBase:     base,
			Model:       "gpt-4",
			Temperature: 0.3,
			MaxTokens:   2000,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestGenerate(t *testing.T) {
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, `{
		  "choices": [{"message": {"role": "assistant", "content": "  Overview: calm session.  "}}],
		  "usage": {"prompt_tokens": 120, "completion_tokens": 80, "total_tokens": 200}
		}`)
	}))
	defer srv.Close()

	report, err := testGenerator(srv.URL).Generate(context.Background(), "patient slept well")
	if err != nil {
		t.Fatal(err)
	}
	if report != "Overview: calm session." {
		t.Errorf("report must be trimmed model output, got %q", report)
	}

	if gotReq.Model != "gpt-4" {
		t.Errorf("unexpected model %q", gotReq.Model)
	}
	if gotReq.Temperature == nil || *gotReq.Temperature != 0.3 {
		t.Errorf("temperature not forwarded: %v", gotReq.Temperature)
	}
	if gotReq.MaxTokens != 2000 {
		t.Errorf("max_tokens not forwarded: %d", gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Fatalf("expected system+user messages, got %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "patient slept well") {
		t.Error("user prompt must embed the transcript")
	}
	if !strings.Contains(gotReq.Messages[1].Content, "Urgent Concerns") {
		t.Error("user prompt must list the report sections")
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices": []}`)
	}))
	defer srv.Close()

	if _, err := testGenerator(srv.URL).Generate(context.Background(), "t"); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestGenerate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"rate limit"}}`)
	}))
	defer srv.Close()

	_, err := testGenerator(srv.URL).Generate(context.Background(), "t")
	if err == nil {
		t.Fatal("expected error on 429")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status: %v", err)
	}
}

func TestUserPrompt_NumbersSections(t *testing.T) {
	prompt := DefaultTemplate().UserPrompt("hello transcript")

	for i, section := range defaultSections() {
		if !strings.Contains(prompt, fmt.Sprintf("%d. %s", i+1, section)) {
			t.Errorf("prompt missing numbered section %d. %s", i+1, section)
		}
	}
	if !strings.Contains(prompt, "hello transcript") {
		t.Error("prompt must embed the transcript")
	}
}

func TestLoadTemplate_Default(t *testing.T) {
	tmpl, err := LoadTemplate("")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.SystemPrompt != defaultSystemPrompt {
		t.Errorf("unexpected system prompt %q", tmpl.SystemPrompt)
	}
	if len(tmpl.Sections) != 6 {
		t.Errorf("expected 6 default sections, got %d", len(tmpl.Sections))
	}
}

func TestLoadTemplate_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yaml")
	raw := "systemPrompt: You summarize pediatric sessions.\nsections:\n  - Summary\n  - Next Steps\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.SystemPrompt != "You summarize pediatric sessions." {
		t.Errorf("system prompt override lost: %q", tmpl.SystemPrompt)
	}
	if len(tmpl.Sections) != 2 || tmpl.Sections[1] != "Next Steps" {
		t.Errorf("sections override lost: %v", tmpl.Sections)
	}
}

func TestLoadTemplate_PartialOverrideKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yaml")
	if err := os.WriteFile(path, []byte("systemPrompt: Custom.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.SystemPrompt != "Custom." {
		t.Errorf("override lost: %q", tmpl.SystemPrompt)
	}
	if len(tmpl.Sections) != 6 {
		t.Errorf("defaults must survive a partial override, got %v", tmpl.Sections)
	}
}
