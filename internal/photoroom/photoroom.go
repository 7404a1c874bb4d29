package photoroom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"imageCutout/internal/config"
	"imageCutout/internal/lib/logger/sl"
)

// UpstreamError describes a failed call to the background removal service.
// Status is zero for transport errors and timeouts. Body is logged, never
// shown to clients.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("background removal request failed: %s", e.Body)
	}

	return fmt.Sprintf("background removal service returned %d", e.Status)
}

type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	timeout    time.Duration
	log        *slog.Logger
}

func NewClient(cfg *config.PhotoRoom, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		log:        log,
	}
}

// Remove sends the image to the segmentation endpoint as multipart form data
// and returns the background-stripped bytes. The call is bounded by the
// configured timeout, which cancels the in-flight request. No retry is
// attempted; the caller treats any failure as terminal.
func (c *Client) Remove(ctx context.Context, data []byte, filename string) ([]byte, error) {
	const op = "photoroom.Remove"

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image_file"; filename="%s"`, filename))
	header.Set("Content-Type", "image/png")

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err = part.Write(data); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("background removal request failed", slog.String("op", op), sl.Err(err))
		return nil, &UpstreamError{Body: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Error("background removal service error",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(errText)),
		)
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(errText)}
	}

	processed, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Error("failed to read response body", slog.String("op", op), sl.Err(err))
		return nil, &UpstreamError{Body: err.Error()}
	}

	return processed, nil
}
