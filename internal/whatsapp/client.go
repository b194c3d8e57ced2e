// Package whatsapp talks to the WhatsApp Business Cloud API: sending text
// replies and resolving/downloading media attachments.
package whatsapp

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

const defaultAPIBase = "https://graph.facebook.com"

// Client implements domain.Dispatcher and domain.MediaFetcher against the
// Cloud API. One instance is shared by all in-flight requests.
type Client struct {
	apiBase       string
	apiVersion    string
	accessToken   string
	phoneNumberID string
	client        *http.Client
	logger        *slog.Logger
}

type ClientConfig struct {
	Config config.WhatsAppConfig
	Logger *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	base := cfg.Config.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	return &Client{
		apiBase:       strings.TrimSuffix(base, "/"),
		apiVersion:    cfg.Config.APIVersion,
		accessToken:   cfg.Config.AccessToken,
		phoneNumberID: cfg.Config.PhoneNumberID,
		client:        &http.Client{Timeout: 30 * time.Second},
		logger:        cfg.Logger,
	}
}

// FormatPhoneNumber normalizes a recipient identifier for the Cloud API:
// strips the "whatsapp:" prefix some gateways add and ensures a leading "+".
func FormatPhoneNumber(phone string) string {
	phone = strings.TrimSpace(strings.ReplaceAll(phone, "whatsapp:", ""))
	if phone != "" && !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return phone
}

// Send delivers a text message. A failure here propagates to the caller:
// there is no further channel to notify the user on.
func (c *Client) Send(ctx context.Context, to, body string) error {
	url := fmt.Sprintf("%s/%s/%s/messages", c.apiBase, c.apiVersion, c.phoneNumberID)
	to = FormatPhoneNumber(to)

	payload := sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             sendText{Body: body},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("whatsapp message sent", "to", to, "body_len", len(body))
	return nil
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}
