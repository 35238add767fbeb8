// Package inbox is the REST client for the inbox provider: pods, domains,
// inboxes, threads and message replies.
package inbox

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
	providerName          = "inbox"
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

type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient HTTPDoer
}

func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("inbox: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("inbox: invalid base url: %w", err)
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

type podPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type domainPayload struct {
	ID    string `json:"id"`
	PodID string `json:"pod_id"`
	Name  string `json:"name"`
}

type inboxPayload struct {
	ID       string `json:"id"`
	DomainID string `json:"domain_id"`
	Address  string `json:"address"`
}

type threadPayload struct {
	ID      string `json:"id"`
	InboxID string `json:"inbox_id"`
	Subject string `json:"subject"`
}

type messagePayload struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	From     string `json:"from"`
	Body     string `json:"body"`
}

func (c *Client) ListPods(ctx context.Context) ([]core.Pod, error) {
	var out []podPayload
	if err := c.do(ctx, http.MethodGet, "/pods", nil, &out); err != nil {
		return nil, err
	}
	pods := make([]core.Pod, 0, len(out))
	for _, pod := range out {
		pods = append(pods, core.Pod{ID: pod.ID, Name: pod.Name})
	}
	return pods, nil
}

func (c *Client) CreatePod(ctx context.Context, name string) (core.Pod, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Pod{}, core.NewBadInput("pod name is required")
	}
	var out podPayload
	if err := c.do(ctx, http.MethodPost, "/pods", map[string]any{"name": name}, &out); err != nil {
		return core.Pod{}, err
	}
	return core.Pod{ID: out.ID, Name: out.Name}, nil
}

func (c *Client) ListDomains(ctx context.Context, podID string) ([]core.InboxDomain, error) {
	var out []domainPayload
	if err := c.do(ctx, http.MethodGet, "/pods/"+url.PathEscape(podID)+"/domains", nil, &out); err != nil {
		return nil, err
	}
	domains := make([]core.InboxDomain, 0, len(out))
	for _, domain := range out {
		domains = append(domains, core.InboxDomain{ID: domain.ID, PodID: domain.PodID, Name: domain.Name})
	}
	return domains, nil
}

func (c *Client) CreateDomain(ctx context.Context, podID string, name string) (core.InboxDomain, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.InboxDomain{}, core.NewBadInput("domain name is required")
	}
	var out domainPayload
	path := "/pods/" + url.PathEscape(podID) + "/domains"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"name": name}, &out); err != nil {
		return core.InboxDomain{}, err
	}
	return core.InboxDomain{ID: out.ID, PodID: out.PodID, Name: out.Name}, nil
}

func (c *Client) ListInboxes(ctx context.Context, domainID string) ([]core.Inbox, error) {
	var out []inboxPayload
	if err := c.do(ctx, http.MethodGet, "/domains/"+url.PathEscape(domainID)+"/inboxes", nil, &out); err != nil {
		return nil, err
	}
	inboxes := make([]core.Inbox, 0, len(out))
	for _, item := range out {
		inboxes = append(inboxes, core.Inbox{ID: item.ID, DomainID: item.DomainID, Address: item.Address})
	}
	return inboxes, nil
}

func (c *Client) CreateInbox(ctx context.Context, domainID string, address string) (core.Inbox, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return core.Inbox{}, core.NewBadInput("inbox address is required")
	}
	var out inboxPayload
	path := "/domains/" + url.PathEscape(domainID) + "/inboxes"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"address": address}, &out); err != nil {
		return core.Inbox{}, err
	}
	return core.Inbox{ID: out.ID, DomainID: out.DomainID, Address: out.Address}, nil
}

func (c *Client) ListThreads(ctx context.Context, inboxID string) ([]core.Thread, error) {
	var out []threadPayload
	if err := c.do(ctx, http.MethodGet, "/inboxes/"+url.PathEscape(inboxID)+"/threads", nil, &out); err != nil {
		return nil, err
	}
	threads := make([]core.Thread, 0, len(out))
	for _, thread := range out {
		threads = append(threads, core.Thread{ID: thread.ID, InboxID: thread.InboxID, Subject: thread.Subject})
	}
	return threads, nil
}

func (c *Client) GetMessage(ctx context.Context, messageID string) (core.InboxMessage, error) {
	var out messagePayload
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(messageID), nil, &out); err != nil {
		return core.InboxMessage{}, err
	}
	return core.InboxMessage{ID: out.ID, ThreadID: out.ThreadID, From: out.From, Body: out.Body}, nil
}

func (c *Client) Reply(ctx context.Context, messageID string, body string) (core.InboxMessage, error) {
	if strings.TrimSpace(body) == "" {
		return core.InboxMessage{}, core.NewBadInput("reply body is required")
	}
	var out messagePayload
	path := "/messages/" + url.PathEscape(messageID) + "/replies"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"body": body}, &out); err != nil {
		return core.InboxMessage{}, err
	}
	return core.InboxMessage{ID: out.ID, ThreadID: out.ThreadID, From: out.From, Body: out.Body}, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("inbox: http client is not configured")
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
			return fmt.Errorf("inbox: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(requestCtx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("inbox: build request: %w", err)
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
		return fmt.Errorf("inbox: request failed: %w", err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyBytes))
	if err != nil {
		return fmt.Errorf("inbox: read response: %w", err)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return core.NewProviderError(providerName, res.StatusCode, payload)
	}
	if out != nil && len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("inbox: decode response: %w", err)
		}
	}
	return nil
}

var _ core.InboxProviderAPI = (*Client)(nil)
