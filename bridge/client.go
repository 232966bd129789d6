package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

const (
	// clientTimeout bounds a single request; caption inference on the
	// server side can take a while for large frames.
	clientTimeout = 5 * time.Minute
	// maxResponseSize is the maximum response body size (10MB).
	maxResponseSize = 10 * 1024 * 1024
)

// UploadResult is the inference server's answer to a frame upload.
// Absent fields stay empty; only a body that is not JSON at all is an
// error.
type UploadResult struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

// Client talks to the inference server: one multipart frame upload per
// cycle, then plain GETs against the render URL the server hands back.
type Client struct {
	uploadEndpoint string
	httpClient     *http.Client
}

// NewClient creates a client for the given upload endpoint.
func NewClient(uploadEndpoint string) *Client {
	return &Client{
		uploadEndpoint: uploadEndpoint,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// setCommonHeaders adds the headers every request to the inference
// side carries. The ngrok header skips the interstitial warning page
// when the endpoint is tunneled.
func setCommonHeaders(req *http.Request) {
	req.Header.Set("ngrok-skip-browser-warning", "true")
	req.Header.Set("Accept", "application/json")
}

// Upload posts a PNG frame as the multipart field "file" and parses
// the JSON answer.
func (c *Client) Upload(ctx context.Context, payload []byte) (*UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="frame.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to write frame payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.uploadEndpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	setCommonHeaders(req)

	respBody, err := c.do(req, "upload")
	if err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &TransportError{Kind: KindParse, Op: "upload", Err: err}
	}
	return &result, nil
}

// Poll issues a GET against the render URL. The body is returned raw;
// the relay serves HTML and the caller only cares that it is fresh.
func (c *Client) Poll(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	setCommonHeaders(req)

	return c.do(req, "poll")
}

// do executes a request and maps failures onto the error taxonomy.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Kind:       KindStatus,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server said: %s", truncate(body, 200)),
		}
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
