package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transcriber converts voice audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// WhisperProxy talks to a whisper-asr-webservice instance.
type WhisperProxy struct {
	host     string
	language string
	client   *http.Client
}

func NewWhisperProxy(host, language string) *WhisperProxy {
	return &WhisperProxy{
		host:     strings.TrimRight(host, "/"),
		language: language,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (w *WhisperProxy) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		return "", fmt.Errorf("whisper: build form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("whisper: write audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("whisper: close form: %w", err)
	}

	params := url.Values{
		"encode": {"true"},
		"task":   {"transcribe"},
		"output": {"txt"},
	}
	if w.language != "" {
		params.Set("language", w.language)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.host+"/asr?"+params.Encode(), &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whisper: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}
