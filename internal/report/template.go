package report

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template holds the prompt assets for report generation. Deployments can
// override the built-in prompt with a YAML file; missing fields keep their
// defaults.
type Template struct {
	SystemPrompt string   `yaml:"systemPrompt"`
	Sections     []string `yaml:"sections"`
}

const defaultSystemPrompt = "You are a professional mental health analyst. " +
	"Generate clear, structured reports from conversation transcripts."

// defaultSections are the report sections, in the order they must appear.
func defaultSections() []string {
	return []string{
		"Overview",
		"Key Points",
		"Mental Health Observations",
		"Concerning Patterns",
		"Urgent Concerns",
		"Recommendations",
	}
}

func DefaultTemplate() *Template {
	return &Template{
		SystemPrompt: defaultSystemPrompt,
		Sections:     defaultSections(),
	}
}

// LoadTemplate reads a YAML template override. An empty path returns the
// default template.
func LoadTemplate(path string) (*Template, error) {
	tmpl := DefaultTemplate()
	if path == "" {
		return tmpl, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report template %s: %w", path, err)
	}

	var override Template
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse report template %s: %w", path, err)
	}

	if override.SystemPrompt != "" {
		tmpl.SystemPrompt = override.SystemPrompt
	}
	if len(override.Sections) > 0 {
		tmpl.Sections = override.Sections
	}
	return tmpl, nil
}

// UserPrompt embeds the transcript into the analysis instruction.
func (t *Template) UserPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("Please analyze this mental health conversation transcript and generate a structured report.\n")
	b.WriteString("The report must contain the following sections, in order:\n")
	for i, section := range t.Sections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, section)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nFormat the report in a clear, professional manner suitable for healthcare providers.")
	return b.String()
}
