package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/kibitzbot/kibitz/internal/providers"
)

const (
	// Vision APIs bill by resolution; anything beyond this adds cost
	// without adding signal for chat photos.
	maxImageDimension = 1024
	jpegQuality       = 85
)

// NormalizeImage decodes, downsizes, and re-encodes an image as JPEG so it
// can be sent inline regardless of the source format.
func NormalizeImage(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxImageDimension || bounds.Dy() > maxImageDimension {
		img = imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return out.Bytes(), nil
}

// AnalyzeImage describes an image using the provider's vision capability.
// The caption, when present, steers what to look for. An empty model falls
// back to the provider default.
func AnalyzeImage(ctx context.Context, provider providers.Provider, model string, data []byte, caption string) (string, error) {
	normalized, err := NormalizeImage(data)
	if err != nil {
		return "", err
	}

	prompt := "Describe this image briefly, focusing on what matters in a group chat conversation."
	if caption != "" {
		prompt = fmt.Sprintf("%s The sender wrote: %q", prompt, caption)
	}

	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{
				Role:    "user",
				Content: prompt,
				Images: []providers.ImageContent{
					{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(normalized)},
				},
			},
		},
		MaxTokens: 400,
	})
	if err != nil {
		return "", fmt.Errorf("analyze image: %w", err)
	}
	return resp.Content, nil
}
