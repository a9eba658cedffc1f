package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the WhatsApp bridge's REST API. The bridge owns the actual
// WhatsApp session; this process only sends messages and pulls media through
// it.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// MyJID returns the bridge session's own JID.
func (c *Client) MyJID(ctx context.Context) (string, error) {
	var out struct {
		JID string `json:"jid"`
	}
	if err := c.getJSON(ctx, "/api/me", &out); err != nil {
		return "", fmt.Errorf("whatsapp bridge: query self jid: %w", err)
	}
	return out.JID, nil
}

type sendRequest struct {
	ChatJID   string `json:"chat_jid"`
	Text      string `json:"text"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

// SendMessage delivers text to a chat, optionally quoting a message.
func (c *Client) SendMessage(ctx context.Context, chatJID, text, replyToID string) error {
	body, err := json.Marshal(sendRequest{ChatJID: chatJID, Text: text, ReplyToID: replyToID})
	if err != nil {
		return fmt.Errorf("whatsapp bridge: marshal send: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp bridge: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp bridge: send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp bridge: send HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// DownloadMedia fetches the media payload referenced by a message.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	url := mediaURL
	if strings.HasPrefix(mediaURL, "/") {
		url = c.baseURL + mediaURL
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp bridge: create media request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp bridge: media download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whatsapp bridge: media HTTP %d", resp.StatusCode)
	}

	// Voice notes and photos only; refuse to buffer arbitrary large files.
	const maxMediaSize = 32 << 20
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize))
	if err != nil {
		return nil, fmt.Errorf("whatsapp bridge: read media: %w", err)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
