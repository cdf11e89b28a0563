// Package filing wraps the government e-filing portal used to lodge PP-PDV
// declarations. The portal is outside this system's control; the client only
// delivers the already-rendered XML and reports success or failure.
package filing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client submits declarations to the configured portal endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks whether the portal is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("filing portal returned status %d", resp.StatusCode)
	}
	return nil
}

// SubmitDeclaration lodges one PP-PDV XML document for the given PIB and
// period. The call is single-shot; the caller decides any retry policy.
func (c *Client) SubmitDeclaration(ctx context.Context, pib string, year, month int, declaration []byte) error {
	url := fmt.Sprintf("%s/api/pppdv/%s/%04d-%02d", c.baseURL, pib, year, month)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(declaration))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/xml")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("filing rejected with status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
