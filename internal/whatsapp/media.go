package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxMediaBytes caps a media download. WhatsApp voice notes and audio
// attachments stay well under this.
const maxMediaBytes = 64 << 20

// ResolveURL looks up the download URL for a media id. Single attempt, no
// caching: media URLs expire quickly on the platform side.
func (c *Client) ResolveURL(ctx context.Context, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s", c.apiBase, c.apiVersion, mediaID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("resolve media %s: API %d: %s", mediaID, resp.StatusCode, string(respBody))
	}

	var meta struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("decode media metadata: %w", err)
	}
	if meta.URL == "" {
		return "", fmt.Errorf("resolve media %s: no url in response", mediaID)
	}

	c.logger.Debug("media url resolved", "media_id", mediaID)
	return meta.URL, nil
}

// Download fetches the media bytes from a resolved URL. The URL belongs to
// the platform CDN and still requires the bearer token.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download media: API %d: %s", resp.StatusCode, string(respBody))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download media: empty body")
	}

	c.logger.Info("media downloaded", "bytes", len(data))
	return data, nil
}
