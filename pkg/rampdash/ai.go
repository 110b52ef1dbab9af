package rampdash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	defaultClassifierBaseURL = "https://api.openai.com/v1"
	classifierTimeout        = 30 * time.Second
	classifierMaxTokens      = 200

	// maxClassifierResponseSize bounds response reads; classifier replies are
	// a single small JSON object.
	maxClassifierResponseSize = 1 << 20
)

// RemoteClassifier produces a raw model response for a categorization prompt.
// Implementations wrap a specific model provider.
type RemoteClassifier interface {
	Classify(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// HTTPDoer abstracts the HTTP client for testability.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// rateLimitError indicates the provider returned 429. retryAfter is zero when
// the provider did not say how long to wait.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	if e.retryAfter > 0 {
		return fmt.Sprintf("classifier rate limited, retry after %s", e.retryAfter)
	}
	return "classifier rate limited"
}

// remoteStatusError carries a non-2xx provider status for retry decisions.
type remoteStatusError struct {
	status int
	body   string
}

func (e *remoteStatusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("classifier upstream error: status %d: %s", e.status, e.body)
	}
	return fmt.Sprintf("classifier upstream error: status %d", e.status)
}

// isGeminiModel selects the Gemini native path by model name.
func isGeminiModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gemini")
}

// newRemoteClassifier builds the provider client for the configured model.
// Returns nil when no API key is configured.
func newRemoteClassifier(apiKey, model, baseURL string) (RemoteClassifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, nil
	}
	if isGeminiModel(model) {
		return &geminiClassifier{apiKey: apiKey, model: model, baseURL: baseURL}, nil
	}
	endpoint, err := buildCompletionsEndpoint(baseURL)
	if err != nil {
		return nil, err
	}
	return &openAIClassifier{
		httpClient: &http.Client{Timeout: classifierTimeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
	}, nil
}

// buildCompletionsEndpoint normalizes a base URL into a chat-completions
// endpoint. Accepts bare hosts, hosts with "/v1", or full endpoint paths.
func buildCompletionsEndpoint(baseURL string) (string, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultClassifierBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	lower := strings.ToLower(trimmed)

	endpoint := ""
	switch {
	case strings.HasSuffix(lower, "/chat/completions"):
		endpoint = trimmed
	case strings.HasSuffix(lower, "/v1"):
		endpoint = trimmed + "/chat/completions"
	default:
		endpoint = trimmed + "/v1/chat/completions"
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid classifier base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid classifier base url scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid classifier base url host")
	}
	return endpoint, nil
}

// openAIClassifier calls an OpenAI-compatible chat-completions endpoint.
type openAIClassifier struct {
	httpClient HTTPDoer
	endpoint   string
	apiKey     string
	model      string
}

func (c *openAIClassifier) Classify(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0.3,
		"stream":      false,
		"max_tokens":  classifierMaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal classifier request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build classifier request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxClassifierResponseSize))
	if err != nil {
		return "", fmt.Errorf("read classifier response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &remoteStatusError{status: resp.StatusCode, body: truncateForError(respBody)}
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode classifier response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("classifier response has no choices")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("classifier response content is empty")
	}
	return content, nil
}

// geminiClassifier calls the Gemini API natively.
type geminiClassifier struct {
	apiKey  string
	model   string
	baseURL string
}

func (g *geminiClassifier) Classify(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(g.baseURL) != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(strings.TrimSpace(g.baseURL), "/")}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return "", fmt.Errorf("create gemini client failed: %w", err)
	}

	requestConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		Temperature:      genai.Ptr(float32(0.3)),
		MaxOutputTokens:  classifierMaxTokens,
		ResponseMIMEType: "application/json",
	}
	response, err := client.Models.GenerateContent(ctx, g.model, genai.Text(userPrompt), requestConfig)
	if err != nil {
		return "", mapGeminiError(err)
	}
	content := strings.TrimSpace(response.Text())
	if content == "" {
		return "", fmt.Errorf("classifier response content is empty")
	}
	return content, nil
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return &rateLimitError{}
		}
		if apiErr.Code >= 500 {
			return &remoteStatusError{status: apiErr.Code, body: apiErr.Message}
		}
	}
	return fmt.Errorf("gemini generate content failed: %w", err)
}

// isRetryableRemoteError reports whether a classifier error is transient:
// provider 5xx, timeouts, or connection resets.
func isRetryableRemoteError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *remoteStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "connection reset") || strings.Contains(message, "timeout")
}

func parseRetryAfter(header string) time.Duration {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(trimmed); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(trimmed); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait
		}
	}
	return 0
}

func truncateForError(body []byte) string {
	text := strings.TrimSpace(string(body))
	const limit = 300
	if len(text) > limit {
		return text[:limit]
	}
	return text
}

// cleanupModelJSON strips code fences and surrounding prose, keeping the
// first balanced-looking JSON object in the response.
func cleanupModelJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
			if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[:len(lines)-1]
			}
			trimmed = strings.Join(lines, "\n")
		}
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		trimmed = trimmed[start : end+1]
	}
	return strings.TrimSpace(trimmed)
}
