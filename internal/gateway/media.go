package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	imageFetchTimeout  = 10 * time.Second
	imageFetchAttempts = 3
	maxImageBytes      = 10 * 1024 * 1024
)

// normalizeImages resolves remote image references on each message into
// inline base64 payloads. A reference that cannot be fetched drops only that
// image part; the message text and remaining images survive.
func (c *Client) normalizeImages(ctx context.Context, messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)

	for i := range out {
		if len(out[i].ImageURLs) == 0 {
			continue
		}
		var parts []ImagePart
		parts = append(parts, out[i].Images...)
		for _, url := range out[i].ImageURLs {
			data, err := c.fetchImage(ctx, url)
			if err != nil {
				slog.Warn("gateway: dropping unfetchable image", "url", url, "error", err)
				continue
			}
			parts = append(parts, ImagePart{
				MimeType: sniffImageMime(data),
				Data:     base64.StdEncoding.EncodeToString(data),
			})
		}
		out[i].Images = parts
		out[i].ImageURLs = nil
	}
	return out
}

// fetchImage downloads a remote image with a bounded timeout and up to three
// attempts with exponential backoff.
func (c *Client) fetchImage(ctx context.Context, url string) ([]byte, error) {
	cfg := RetryConfig{
		MaxAttempts:  imageFetchAttempts,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}

	return retryDo(ctx, cfg, func() ([]byte, error) {
		fctx, cancel := context.WithTimeout(ctx, imageFetchTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(fctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build image request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &TransportError{Op: "fetch image", Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, &HTTPError{Provider: "image-fetch", Status: resp.StatusCode, Body: url}
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
		if err != nil {
			return nil, &TransportError{Op: "read image body", Err: err}
		}
		if len(data) > maxImageBytes {
			return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
		}
		return data, nil
	})
}

// sniffImageMime detects an image MIME type from leading bytes. Unknown
// signatures fall back to application/octet-stream.
func sniffImageMime(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
