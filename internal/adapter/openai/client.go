// Package openai mints short-lived client secrets for browser realtime
// voice sessions.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	requestTimeout = 30 * time.Second
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("Missing OPENAI_API_KEY. Create a .env file or set it in the environment")

type ExpiresAfter struct {
	Anchor  string `json:"anchor"`
	Seconds int    `json:"seconds"`
}

type AudioOutput struct {
	Voice string `json:"voice"`
}

type SessionAudio struct {
	Output AudioOutput `json:"output"`
}

type SessionConfig struct {
	Type  string       `json:"type"`
	Model string       `json:"model"`
	Audio SessionAudio `json:"audio"`
}

// ClientSecretRequest is the body of POST /realtime/client_secrets.
type ClientSecretRequest struct {
	ExpiresAfter ExpiresAfter  `json:"expires_after"`
	Session      SessionConfig `json:"session"`
}

// APIError is a non-2xx answer from the upstream API. Detail holds the
// decoded JSON body, or {"message": body} when it was not JSON.
type APIError struct {
	StatusCode int
	Detail     any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai returned status %d", e.StatusCode)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// CreateClientSecret requests an ephemeral key and returns the decoded
// response object as is.
func (c *Client) CreateClientSecret(ctx context.Context, req ClientSecretRequest) (map[string]any, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/realtime/client_secrets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call openai: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var detail any
		if err := json.Unmarshal(raw, &detail); err != nil {
			detail = map[string]any{"message": string(raw)}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return data, nil
}
