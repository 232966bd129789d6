package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// PromptRequest is the body sent to the text completion endpoint.
type PromptRequest struct {
	Message string `json:"message"`
}

// PromptResponse is the completion endpoint's answer.
type PromptResponse struct {
	Response string `json:"response"`
}

// PromptClient talks to the text completion endpoint (a code model
// behind a plain JSON POST route).
type PromptClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewPromptClient creates a client for the given completion endpoint.
func NewPromptClient(endpoint string) *PromptClient {
	return &PromptClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Complete sends a message and returns the model's response text.
func (p *PromptClient) Complete(ctx context.Context, message string) (string, error) {
	jsonBody, err := json.Marshal(PromptRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setCommonHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Kind: KindNetwork, Op: "prompt", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", &TransportError{Kind: KindNetwork, Op: "prompt", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &TransportError{
			Kind:       KindStatus,
			Op:         "prompt",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server said: %s", truncate(body, 200)),
		}
	}

	var result PromptResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &TransportError{Kind: KindParse, Op: "prompt", Err: err}
	}
	return result.Response, nil
}
