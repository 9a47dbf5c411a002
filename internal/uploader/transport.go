package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"snapsync/internal/config"
)

const userAgent = "snapsync/0.1.0"

// Transport sends one artifact payload to the remote endpoint.
type Transport interface {
	Upload(ctx context.Context, id string, payload []byte) error
}

// StatusError reports a non-200 response from the endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload returned status %d", e.Code)
}

// Client uploads payloads as multipart/form-data over HTTP.
//
// The artifact id travels as the part filename; the server is expected to use
// it for de-duplication on retransmission.
type Client struct {
	endpoint  string
	candidate string
	client    *http.Client
}

// NewClient builds an upload client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Upload.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:  cfg.Upload.EndpointURL,
		candidate: cfg.Upload.CandidateName,
		client:    &http.Client{Timeout: timeout},
	}
}

// Upload posts the payload. Success is exactly HTTP 200; any transport error
// or other status is a delivery failure for this attempt.
func (c *Client) Upload(ctx context.Context, id string, payload []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, id))
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return fmt.Errorf("write multipart payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	target, err := c.buildURL()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) buildURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	query := u.Query()
	if strings.TrimSpace(c.candidate) != "" {
		query.Set("candidateName", c.candidate)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
