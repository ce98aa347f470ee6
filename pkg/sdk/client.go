package sdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Option configures the Client.
type Option interface {
	apply(*Client)
}

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *Client) { c.apiKey = key })
}

// WithHTTPClient replaces the underlying HTTP client. The provided client
// should have no Timeout when chat streaming is used; per-call deadlines
// come from the context.
func WithHTTPClient(h *http.Client) Option {
	return optionFunc(func(c *Client) { c.http = h })
}

// WithTimeout sets the request timeout for non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *Client) { c.timeout = d })
}

// Client talks to a findex API server.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

// New creates a client for the API server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		http:    &http.Client{},
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// StartIndexing triggers a background indexing run for the ticker.
// Returns an APIError with CodeIndexingConflict when a run is already active.
func (c *Client) StartIndexing(ctx context.Context, ticker string) (IndexAck, error) {
	var ack IndexAck
	err := c.doJSON(ctx, http.MethodPost, c.companyPath(ticker, "index"), nil, &ack)
	return ack, err
}

// Status returns the indexing state of the ticker.
func (c *Client) Status(ctx context.Context, ticker string) (IndexStatus, error) {
	var status IndexStatus
	err := c.doJSON(ctx, http.MethodGet, c.companyPath(ticker, "status"), nil, &status)
	return status, err
}

// DeleteIndex removes all indexed passages and state for the ticker.
// Returns the number of deleted passages.
func (c *Client) DeleteIndex(ctx context.Context, ticker string) (int, error) {
	var resp struct {
		PassagesDeleted int `json:"passages_deleted"`
	}
	err := c.doJSON(ctx, http.MethodDelete, c.companyPath(ticker, "index"), nil, &resp)
	return resp.PassagesDeleted, err
}

// Search runs a semantic search over the ticker's indexed filings.
func (c *Client) Search(ctx context.Context, ticker string, req SearchRequest) ([]SearchResult, error) {
	var resp struct {
		Results []SearchResult `json:"results"`
	}
	err := c.doJSON(ctx, http.MethodPost, c.companyPath(ticker, "search"), req, &resp)
	return resp.Results, err
}

// Chat streams one chat turn, invoking onEvent per SSE event until the
// stream ends. A non-nil error from onEvent aborts the stream and is
// returned as-is.
func (c *Client) Chat(ctx context.Context, ticker string,
	messages []ChatMessage, onEvent func(ChatEvent) error,
) error {
	body, err := json.Marshal(map[string]any{"messages": messages})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.companyPath(ticker, "chat"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var e ChatEvent
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return fmt.Errorf("decode event %q: %w", payload, err)
		}
		if err := onEvent(e); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// Health reports the server's component health checks.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var resp struct {
		Checks map[string]string `json:"checks"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp)
	return resp.Checks, err
}

func (c *Client) companyPath(ticker, op string) string {
	return "/api/v1/companies/" + url.PathEscape(strings.ToUpper(ticker)) + "/" + op
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
