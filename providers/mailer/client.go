// Package mailer is the REST client for the upstream sending provider. It
// covers the subaccount lifecycle, key minting, send limits, usage reporting
// and message submission.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-sendgate/core"
)

const (
	providerName          = "mailer"
	defaultRequestTimeout = 30 * time.Second
	maxResponseBodyBytes  = 1 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	HTTPClient     HTTPDoer
}

// Client talks to the mail provider API. Every non-2xx response becomes a
// provider error carrying the upstream status and a truncated body.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient HTTPDoer
}

func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("mailer: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("mailer: invalid base url: %w", err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		timeout:    timeout,
		httpClient: httpClient,
	}, nil
}

func (c *Client) CreateSubaccount(ctx context.Context, ownerID string, handle string) error {
	body := map[string]any{"owner_id": strings.TrimSpace(ownerID), "handle": strings.TrimSpace(handle)}
	return c.do(ctx, http.MethodPost, "/subaccounts", body, nil)
}

func (c *Client) SuspendSubaccount(ctx context.Context, handle string) error {
	return c.do(ctx, http.MethodPost, "/subaccounts/"+url.PathEscape(handle)+"/suspend", nil, nil)
}

func (c *Client) ActivateSubaccount(ctx context.Context, handle string) error {
	return c.do(ctx, http.MethodPost, "/subaccounts/"+url.PathEscape(handle)+"/activate", nil, nil)
}

func (c *Client) SetSendLimit(ctx context.Context, handle string, limit int) error {
	if limit <= 0 {
		return core.NewBadInput("send limit must be positive")
	}
	body := map[string]any{"limit": limit}
	return c.do(ctx, http.MethodPut, "/subaccounts/"+url.PathEscape(handle)+"/send-limit", body, nil)
}

func (c *Client) DeleteSendLimit(ctx context.Context, handle string) error {
	return c.do(ctx, http.MethodDelete, "/subaccounts/"+url.PathEscape(handle)+"/send-limit", nil, nil)
}

func (c *Client) MintKey(ctx context.Context, handle string) (core.ProviderKey, error) {
	var out struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	}
	err := c.do(ctx, http.MethodPost, "/subaccounts/"+url.PathEscape(handle)+"/keys", nil, &out)
	if err != nil {
		return core.ProviderKey{}, err
	}
	if strings.TrimSpace(out.ID) == "" || strings.TrimSpace(out.Value) == "" {
		return core.ProviderKey{}, core.NewProviderError(providerName, http.StatusOK, []byte("mint response missing key fields"))
	}
	return core.ProviderKey{ID: out.ID, Value: out.Value}, nil
}

func (c *Client) DeleteKey(ctx context.Context, handle string, keyID string) error {
	path := "/subaccounts/" + url.PathEscape(handle) + "/keys/" + url.PathEscape(keyID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) GetUsage(ctx context.Context, handle string) (core.ProviderUsage, error) {
	var out struct {
		SentToday int `json:"sent_today"`
		SentMonth int `json:"sent_month"`
	}
	err := c.do(ctx, http.MethodGet, "/subaccounts/"+url.PathEscape(handle)+"/usage", nil, &out)
	if err != nil {
		return core.ProviderUsage{}, err
	}
	return core.ProviderUsage{SentToday: out.SentToday, SentMonth: out.SentMonth}, nil
}

func (c *Client) Send(ctx context.Context, handle string, message core.Message) (string, error) {
	body := map[string]any{
		"from":    message.From,
		"to":      message.To,
		"subject": message.Subject,
		"body":    message.Body,
	}
	if len(message.Headers) > 0 {
		body["headers"] = message.Headers
	}
	var out struct {
		MessageID string `json:"message_id"`
	}
	err := c.do(ctx, http.MethodPost, "/subaccounts/"+url.PathEscape(handle)+"/messages", body, &out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.MessageID), nil
}

func (c *Client) ValidateWebhook(ctx context.Context, handle string) error {
	return c.do(ctx, http.MethodPost, "/subaccounts/"+url.PathEscape(handle)+"/webhook/validate", nil, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("mailer: http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("mailer: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(requestCtx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("mailer: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: request failed: %w", err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyBytes))
	if err != nil {
		return fmt.Errorf("mailer: read response: %w", err)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return core.NewProviderError(providerName, res.StatusCode, payload)
	}
	if out != nil && len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("mailer: decode response: %w", err)
		}
	}
	return nil
}

var _ core.MailProviderAPI = (*Client)(nil)
