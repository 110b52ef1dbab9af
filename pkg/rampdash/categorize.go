package rampdash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CategorizationMethod records which cascade stage produced a result.
type CategorizationMethod string

const (
	MethodAI       CategorizationMethod = "ai"
	MethodKeyword  CategorizationMethod = "keyword"
	MethodMCC      CategorizationMethod = "mcc"
	MethodFallback CategorizationMethod = "fallback"
)

// CategorizationResult is the outcome of categorizing a single transaction.
type CategorizationResult struct {
	Category   Category             `json:"category"`
	Confidence float64              `json:"confidence"`
	Reasoning  string               `json:"reasoning"`
	Method     CategorizationMethod `json:"method"`
}

// EngineStatus reports the classifier state for the status endpoint.
type EngineStatus struct {
	Initialized      bool       `json:"initialized"`
	RateLimited      bool       `json:"rateLimited"`
	RateLimitedUntil *time.Time `json:"rateLimitedUntil,omitempty"`
	HasAPIKey        bool       `json:"hasApiKey"`
}

// EngineOptions controls Engine initialization.
type EngineOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
	BatchPause time.Duration
	Logger     *slog.Logger

	// Classifier overrides the provider client built from APIKey/Model/BaseURL.
	Classifier RemoteClassifier
}

const (
	defaultClassifierModel = "gpt-3.5-turbo"
	defaultMaxRetries      = 3
	defaultRetryDelay      = time.Second
	defaultBatchPause      = 100 * time.Millisecond
)

// Engine categorizes transactions with a cascading strategy: remote model
// first when configured and not cooling down, then merchant keywords, then
// MCC mappings. Rule stages never fail, so Categorize always returns a
// usable result.
type Engine struct {
	classifier RemoteClassifier
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
	batchPause time.Duration
	hasAPIKey  bool

	mu               sync.Mutex
	rateLimitedUntil time.Time

	// Test seams.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine builds a categorization engine. A classifier construction failure
// is logged and the engine falls back to rule-based categorization only.
func NewEngine(opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultClassifierModel
	}

	classifier := opts.Classifier
	if classifier == nil {
		built, err := newRemoteClassifier(opts.APIKey, model, opts.BaseURL)
		if err != nil {
			logger.Warn("classifier initialization failed, using rule-based categorization only", "err", err)
		} else {
			classifier = built
		}
	}

	return &Engine{
		classifier: classifier,
		logger:     logger,
		maxRetries: intOrDefault(opts.MaxRetries, defaultMaxRetries),
		retryDelay: durationOrDefault(opts.RetryDelay, defaultRetryDelay),
		batchPause: durationOrDefault(opts.BatchPause, defaultBatchPause),
		hasAPIKey:  strings.TrimSpace(opts.APIKey) != "",
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// Status reports classifier availability and rate-limit state.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	until := e.rateLimitedUntil
	e.mu.Unlock()

	status := EngineStatus{
		Initialized: e.classifier != nil,
		HasAPIKey:   e.hasAPIKey,
	}
	if !until.IsZero() {
		status.RateLimited = e.now().Before(until)
		if status.RateLimited {
			u := until
			status.RateLimitedUntil = &u
		}
	}
	return status
}

// Categorize runs the cascade for a single transaction. It never fails: when
// the remote stage is unavailable or errors, rule-based stages decide.
func (e *Engine) Categorize(ctx context.Context, txn Transaction) CategorizationResult {
	if e.remoteReady() {
		result, err := e.categorizeRemote(ctx, txn)
		if err == nil {
			return result
		}
		e.logger.Warn("remote categorization failed, falling back to rules",
			"transaction_id", txn.ID, "err", err)
	}

	keyword := categorizeByKeywords(txn)
	if keyword.Confidence > 0.7 {
		return keyword
	}

	mcc := categorizeByMCC(txn)
	if mcc.Confidence > 0.6 {
		return mcc
	}

	if keyword.Confidence > mcc.Confidence {
		return keyword
	}
	return mcc
}

// CategorizeBatch categorizes transactions sequentially, reporting progress
// after each item. The result map holds exactly one entry per input id. A
// short pause between items avoids hammering the remote provider; rule-only
// batches run unpaced.
func (e *Engine) CategorizeBatch(ctx context.Context, txns []Transaction, onProgress func(completed, total int)) map[string]CategorizationResult {
	results := make(map[string]CategorizationResult, len(txns))
	total := len(txns)
	for i, txn := range txns {
		results[txn.ID] = e.Categorize(ctx, txn)
		if onProgress != nil {
			onProgress(i+1, total)
		}
		if e.classifier != nil && i < total-1 {
			_ = e.sleep(ctx, e.batchPause)
		}
	}
	return results
}

func (e *Engine) remoteReady() bool {
	if e.classifier == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rateLimitedUntil.IsZero() || !e.now().Before(e.rateLimitedUntil)
}

func (e *Engine) setCooldown(wait time.Duration) {
	e.mu.Lock()
	e.rateLimitedUntil = e.now().Add(wait)
	e.mu.Unlock()
}

// categorizeRemote asks the classifier with retries. Rate limits set the
// engine-wide cooldown from Retry-After when present, otherwise from the
// current backoff delay. Transient errors back off exponentially.
func (e *Engine) categorizeRemote(ctx context.Context, txn Transaction) (CategorizationResult, error) {
	prompt := buildClassifierPrompt(txn)
	delay := e.retryDelay

	for attempt := 0; ; attempt++ {
		raw, err := e.classifier.Classify(ctx, classifierSystemPrompt, prompt)
		if err == nil {
			return parseClassifierResponse(raw, MethodAI), nil
		}

		var rateLimited *rateLimitError
		if errors.As(err, &rateLimited) {
			wait := rateLimited.retryAfter
			if wait <= 0 {
				wait = delay
			}
			e.setCooldown(wait)
			if attempt >= e.maxRetries {
				return CategorizationResult{}, fmt.Errorf("rate limited and max retries exceeded: %w", err)
			}
			if sleepErr := e.sleep(ctx, wait); sleepErr != nil {
				return CategorizationResult{}, sleepErr
			}
			delay *= 2
			continue
		}

		if attempt >= e.maxRetries || !isRetryableRemoteError(err) {
			return CategorizationResult{}, err
		}
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return CategorizationResult{}, sleepErr
		}
		delay *= 2
	}
}

const classifierSystemPrompt = `You are an expert at categorizing business expenses. You must respond with a valid JSON object containing:
{
  "category": "one of the provided categories",
  "confidence": "number between 0 and 1",
  "reasoning": "brief explanation"
}`

func buildClassifierPrompt(txn Transaction) string {
	var b strings.Builder
	b.WriteString("Categorize this business transaction:\n\n")
	fmt.Fprintf(&b, "Merchant: %s\n", txn.MerchantName)
	fmt.Fprintf(&b, "Amount: $%s\n", txn.Amount.String())
	descriptor := txn.MerchantDescriptor
	if descriptor == "" {
		descriptor = "N/A"
	}
	fmt.Fprintf(&b, "Description: %s\n", descriptor)
	fmt.Fprintf(&b, "MCC: %s (%s)\n", txn.MerchantCategoryCode, txn.MerchantCategoryCodeDescription)
	if txn.Memo != "" {
		fmt.Fprintf(&b, "Memo: %s\n", txn.Memo)
	}
	b.WriteString("\nAvailable categories: ")
	for i, category := range Categories() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(category))
	}
	b.WriteString("\n\nRespond with a JSON object containing the category, confidence (0-1), and reasoning.")
	return b.String()
}

// parseClassifierResponse validates the model output. Invalid JSON or an
// unknown category degrades to a lenient scan for a category name in the
// response text, then to the Other fallback.
func parseClassifierResponse(raw string, method CategorizationMethod) CategorizationResult {
	cleaned := cleanupModelJSON(raw)

	var parsed struct {
		Category   string          `json:"category"`
		Confidence json.RawMessage `json:"confidence"`
		Reasoning  string          `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		category, known := ParseCategory(parsed.Category)
		confidence, confOK := parseConfidence(parsed.Confidence)
		if known && confOK && strings.TrimSpace(parsed.Reasoning) != "" {
			return CategorizationResult{
				Category:   category,
				Confidence: confidence,
				Reasoning:  parsed.Reasoning,
				Method:     method,
			}
		}
	}

	lowered := strings.ToLower(raw)
	for _, category := range Categories() {
		if strings.Contains(lowered, strings.ToLower(string(category))) {
			return CategorizationResult{
				Category:   category,
				Confidence: 0.6,
				Reasoning:  fmt.Sprintf("Response parsing fallback - detected %q", category),
				Method:     method,
			}
		}
	}

	return CategorizationResult{
		Category:   CategoryOther,
		Confidence: 0.3,
		Reasoning:  "Response parsing failed, using fallback",
		Method:     MethodFallback,
	}
}

func parseConfidence(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	text := strings.TrimSpace(string(raw))
	text = strings.Trim(text, `"`)
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || value < 0 || value > 1 {
		return 0, false
	}
	return value, true
}

// categorizeByKeywords scores each category by the fraction of its keywords
// found in the transaction text. Confidence is the best normalized score,
// capped at 0.9.
func categorizeByKeywords(txn Transaction) CategorizationResult {
	parts := make([]string, 0, 4)
	for _, part := range []string{txn.MerchantName, txn.MerchantDescriptor, txn.Memo, txn.MerchantCategoryCodeDescription} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	text := strings.ToLower(strings.Join(parts, " "))

	bestMatch := CategoryOther
	bestScore := 0.0
	var matchedKeywords []string

	for _, rule := range categoryRules {
		if len(rule.Keywords) == 0 {
			continue
		}
		var matched []string
		for _, keyword := range rule.Keywords {
			if strings.Contains(text, keyword) {
				matched = append(matched, keyword)
			}
		}
		score := float64(len(matched)) / float64(len(rule.Keywords))
		if score > bestScore {
			bestScore = score
			bestMatch = rule.Category
			matchedKeywords = matched
		}
	}

	reasoning := "No keyword matches found"
	if len(matchedKeywords) > 0 {
		reasoning = "Keyword match: " + strings.Join(matchedKeywords, ", ")
	}
	return CategorizationResult{
		Category:   bestMatch,
		Confidence: min(bestScore, 0.9),
		Reasoning:  reasoning,
		Method:     MethodKeyword,
	}
}

func categorizeByMCC(txn Transaction) CategorizationResult {
	category, confidence := categoryForMCC(txn.MerchantCategoryCode, txn.MerchantCategoryCodeDescription)

	var reasoning string
	switch confidence {
	case 0.8:
		reasoning = fmt.Sprintf("MCC code mapping: %s (%s)", txn.MerchantCategoryCode, txn.MerchantCategoryCodeDescription)
	case 0.7:
		reasoning = fmt.Sprintf("MCC description match in %q", txn.MerchantCategoryCodeDescription)
	default:
		reasoning = fmt.Sprintf("No MCC mapping found for code: %s", txn.MerchantCategoryCode)
	}
	return CategorizationResult{
		Category:   category,
		Confidence: confidence,
		Reasoning:  reasoning,
		Method:     MethodMCC,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func durationOrDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
