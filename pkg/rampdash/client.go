package rampdash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultUpstreamBaseURL = "https://demo-api.ramp.com"
	upstreamAPIPrefix      = "/developer/v1"
	upstreamTokenScopes    = "transactions:read users:read cards:read business:read"

	defaultUpstreamTimeout = 30 * time.Second
	defaultUpstreamRetries = 3
	upstreamRetryBaseDelay = time.Second

	// tokenExpiryBuffer refreshes access tokens five minutes before they
	// actually expire, so in-flight requests never race token expiry.
	tokenExpiryBuffer = 5 * time.Minute

	// maxUpstreamResponseSize bounds response reads. A full 100-item page is
	// well under this.
	maxUpstreamResponseSize = 8 << 20
)

// ClientOptions controls upstream API client initialization.
type ClientOptions struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	Logger       *slog.Logger
}

// Client talks to the upstream expense API. Authentication uses the OAuth2
// client-credentials flow; the token source caches tokens and refreshes them
// early. Both token and API requests go through a retrying transport, so
// rate limits and transient upstream failures are handled uniformly.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	logger     *slog.Logger
}

// NewClient builds an upstream API client.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.ClientID) == "" || strings.TrimSpace(opts.ClientSecret) == "" {
		return nil, NewError(ErrCodeInvalidInput, "upstream client id and secret are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultUpstreamBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, WrapError(ErrCodeInvalidInput, "invalid upstream base url", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: durationOrDefault(opts.Timeout, defaultUpstreamTimeout),
		Transport: &retryTransport{
			base:       http.DefaultTransport,
			maxRetries: intOrDefault(opts.MaxRetries, defaultUpstreamRetries),
			baseDelay:  durationOrDefault(opts.RetryDelay, upstreamRetryBaseDelay),
			logger:     logger,
		},
	}

	credentials := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     baseURL + upstreamAPIPrefix + "/token",
		Scopes:       []string{upstreamTokenScopes},
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// Token exchanges use the same retrying client as API calls.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	tokens := oauth2.ReuseTokenSourceWithExpiry(nil, credentials.TokenSource(tokenCtx), tokenExpiryBuffer)

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// ListTransactions fetches one page of transactions matching the filters.
func (c *Client) ListTransactions(ctx context.Context, filters TransactionFilters) (*TransactionPage, error) {
	var page struct {
		Data []Transaction `json:"data"`
		Page struct {
			Next string `json:"next"`
		} `json:"page"`
	}
	if err := c.get(ctx, "/transactions", filters.queryValues(), &page); err != nil {
		return nil, err
	}
	result := &TransactionPage{Data: page.Data}
	if result.Data == nil {
		result.Data = []Transaction{}
	}
	result.Page.Next = cursorFromNext(page.Page.Next)
	return result, nil
}

// GetTransaction fetches a single transaction by id.
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewError(ErrCodeInvalidInput, "transaction id is required")
	}
	var envelope struct {
		Data Transaction `json:"data"`
	}
	if err := c.get(ctx, "/transactions/"+url.PathEscape(id), nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// GetBusiness fetches the business profile of the authenticated account.
func (c *Client) GetBusiness(ctx context.Context) (*Business, error) {
	var envelope struct {
		Data Business `json:"data"`
	}
	if err := c.get(ctx, "/business", nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// HealthCheck probes upstream connectivity via the business endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.GetBusiness(ctx)
	return err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dst any) error {
	endpoint := c.baseURL + upstreamAPIPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	token, err := c.tokens.Token()
	if err != nil {
		return mapTokenError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return WrapError(ErrCodeInternal, "build upstream request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "rampdash/1.0")
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return WrapError(ErrCodeUpstream, "upstream request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponseSize))
	if err != nil {
		return WrapError(ErrCodeUpstream, "read upstream response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstreamStatusError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return WrapError(ErrCodeUpstream, "decode upstream response", err)
	}
	return nil
}

// cursorFromNext normalizes the upstream "next" value into an opaque cursor.
// Some deployments return the raw token, others a fully qualified page URL
// carrying the token in its "start" parameter.
func cursorFromNext(next string) Cursor {
	trimmed := strings.TrimSpace(next)
	if trimmed == "" {
		return ""
	}
	if strings.Contains(trimmed, "://") {
		if parsed, err := url.Parse(trimmed); err == nil {
			if start := parsed.Query().Get("start"); start != "" {
				return Cursor(start)
			}
		}
	}
	return Cursor(trimmed)
}

func mapTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		switch {
		case status == http.StatusTooManyRequests:
			return WrapError(ErrCodeRateLimited, "token endpoint rate limited", err)
		case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
			return WrapError(ErrCodeAuthFailed, "authentication failed", err)
		case status >= 500:
			return WrapError(ErrCodeUpstream, "token endpoint error", err)
		}
	}
	return WrapError(ErrCodeAuthFailed, "authentication failed", err)
}

func upstreamStatusError(status int, body []byte) error {
	message := parseUpstreamErrorMessage(body)
	if message == "" {
		message = fmt.Sprintf("HTTP %d", status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(ErrCodeAuthFailed, message)
	case status == http.StatusNotFound:
		return NewError(ErrCodeNotFound, message)
	case status == http.StatusTooManyRequests:
		return NewError(ErrCodeRateLimited, message)
	case status >= 500:
		return NewError(ErrCodeUpstream, message)
	case status >= 400:
		return NewError(ErrCodeInvalidInput, message)
	}
	return NewError(ErrCodeUpstream, message)
}

func parseUpstreamErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		ErrorV2 struct {
			Message string `json:"message"`
		} `json:"error_v2"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return envelope.ErrorV2.Message
}

// retryTransport retries idempotent requests on 429 and transient 5xx
// statuses with exponential backoff, honoring Retry-After when present.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	delay := t.baseDelay
	for attempt := 0; ; attempt++ {
		attemptReq := req
		if attempt > 0 {
			attemptReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				attemptReq.Body = body
			}
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			return nil, err
		}
		if !retryableStatus(resp.StatusCode) || attempt >= t.maxRetries {
			return resp, nil
		}
		// Request body is required for the retry; without GetBody we cannot
		// replay it.
		if req.Body != nil && req.GetBody == nil {
			return resp, nil
		}

		wait := delay
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
			wait = retryAfter
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()

		if t.logger != nil {
			t.logger.Warn("retrying upstream request",
				"url", req.URL.Path, "status", resp.StatusCode,
				"attempt", attempt+1, "wait", wait.String())
		}

		timer := time.NewTimer(wait)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
