package rampdash

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedClassifier replays canned responses or errors in order.
type scriptedClassifier struct {
	mu      sync.Mutex
	outputs []string
	errs    []error
	calls   int
}

func (s *scriptedClassifier) Classify(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.outputs) {
		return s.outputs[i], nil
	}
	return "", errors.New("no scripted response")
}

func (s *scriptedClassifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// newRuleEngine builds an engine without a remote classifier.
func newRuleEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(EngineOptions{})
}

// newScriptedEngine builds an engine around a scripted classifier with
// instant sleeps.
func newScriptedEngine(t *testing.T, classifier *scriptedClassifier) (*Engine, *[]time.Duration) {
	t.Helper()
	engine := NewEngine(EngineOptions{Classifier: classifier, APIKey: "test-key"})
	slept := &[]time.Duration{}
	engine.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return engine, slept
}

func TestCategorizeDirectMCCMapping(t *testing.T) {
	engine := newRuleEngine(t)
	result := engine.Categorize(context.Background(), Transaction{
		ID:                   "txn-1",
		MerchantName:         "Some Vendor",
		MerchantCategoryCode: "5734",
	})
	if result.Category != CategorySoftwareSaaS {
		t.Fatalf("category = %q, want %q", result.Category, CategorySoftwareSaaS)
	}
	if result.Confidence != 0.8 || result.Method != MethodMCC {
		t.Fatalf("got confidence %v method %s, want 0.8 mcc", result.Confidence, result.Method)
	}
}

func TestCategorizeMCCDescriptionKeyword(t *testing.T) {
	engine := newRuleEngine(t)
	result := engine.Categorize(context.Background(), Transaction{
		ID:                              "txn-2",
		MerchantName:                    "Some Vendor",
		MerchantCategoryCode:            "9999",
		MerchantCategoryCodeDescription: "Telecommunication Services",
	})
	if result.Category != CategoryUtilities {
		t.Fatalf("category = %q, want %q", result.Category, CategoryUtilities)
	}
	if result.Confidence != 0.7 || result.Method != MethodMCC {
		t.Fatalf("got confidence %v method %s, want 0.7 mcc", result.Confidence, result.Method)
	}
}

func TestCategorizeKeywordStageWins(t *testing.T) {
	engine := newRuleEngine(t)
	// All four insurance keywords hit: score 1.0, capped to 0.9, above the
	// keyword acceptance threshold.
	result := engine.Categorize(context.Background(), Transaction{
		ID:           "txn-3",
		MerchantName: "Acme Insurance",
		Memo:         "premium coverage policy renewal",
	})
	if result.Category != CategoryInsurance {
		t.Fatalf("category = %q, want %q", result.Category, CategoryInsurance)
	}
	if result.Confidence != 0.9 || result.Method != MethodKeyword {
		t.Fatalf("got confidence %v method %s, want 0.9 keyword", result.Confidence, result.Method)
	}
}

func TestCategorizeBestOfFallback(t *testing.T) {
	engine := newRuleEngine(t)
	// Nothing matches: keyword score 0, MCC fallback 0.3 wins.
	result := engine.Categorize(context.Background(), Transaction{
		ID:           "txn-4",
		MerchantName: "Mystery Vendor",
	})
	if result.Category != CategoryOther || result.Confidence != 0.3 || result.Method != MethodMCC {
		t.Fatalf("got %+v, want Other 0.3 mcc", result)
	}
}

func TestCategorizePartialKeywordBelowThreshold(t *testing.T) {
	engine := newRuleEngine(t)
	// "aws" and "cloud" match 2 of 9 software keywords: score too low to
	// accept, and the MCC fallback at 0.3 outranks it.
	result := engine.Categorize(context.Background(), Transaction{
		ID:           "txn-5",
		MerchantName: "AWS",
		Memo:         "cloud hosting",
	})
	if result.Method != MethodMCC || result.Category != CategoryOther {
		t.Fatalf("got %+v, want MCC Other fallback", result)
	}
}

func TestCategorizeRemoteWins(t *testing.T) {
	classifier := &scriptedClassifier{
		outputs: []string{`{"category": "Software & SaaS", "confidence": 0.95, "reasoning": "Known SaaS vendor"}`},
	}
	engine, _ := newScriptedEngine(t, classifier)

	result := engine.Categorize(context.Background(), Transaction{ID: "txn-6", MerchantName: "Figma"})
	if result.Category != CategorySoftwareSaaS || result.Confidence != 0.95 || result.Method != MethodAI {
		t.Fatalf("got %+v, want remote result", result)
	}
}

func TestCategorizeRemoteLenientParse(t *testing.T) {
	classifier := &scriptedClassifier{
		outputs: []string{"This looks like Software & SaaS to me."},
	}
	engine, _ := newScriptedEngine(t, classifier)

	result := engine.Categorize(context.Background(), Transaction{ID: "txn-7", MerchantName: "Figma"})
	if result.Category != CategorySoftwareSaaS || result.Confidence != 0.6 || result.Method != MethodAI {
		t.Fatalf("got %+v, want lenient ai result", result)
	}
}

func TestCategorizeRemoteUnparseable(t *testing.T) {
	classifier := &scriptedClassifier{outputs: []string{"no idea"}}
	engine, _ := newScriptedEngine(t, classifier)

	result := engine.Categorize(context.Background(), Transaction{ID: "txn-8", MerchantName: "Figma"})
	if result.Category != CategoryOther || result.Confidence != 0.3 || result.Method != MethodFallback {
		t.Fatalf("got %+v, want parsing fallback", result)
	}
}

func TestCategorizeRemoteRetriesServerError(t *testing.T) {
	classifier := &scriptedClassifier{
		errs:    []error{&remoteStatusError{status: 502}, nil},
		outputs: []string{"", `{"category": "Insurance", "confidence": 0.8, "reasoning": "policy"}`},
	}
	engine, slept := newScriptedEngine(t, classifier)

	result := engine.Categorize(context.Background(), Transaction{ID: "txn-9"})
	if result.Category != CategoryInsurance || result.Method != MethodAI {
		t.Fatalf("got %+v, want retried remote result", result)
	}
	if classifier.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", classifier.callCount())
	}
	if len(*slept) != 1 || (*slept)[0] != time.Second {
		t.Fatalf("slept = %v, want one 1s backoff", *slept)
	}
}

func TestCategorizeRemoteNonRetryableError(t *testing.T) {
	classifier := &scriptedClassifier{errs: []error{errors.New("invalid api key")}}
	engine, slept := newScriptedEngine(t, classifier)

	result := engine.Categorize(context.Background(), Transaction{
		ID:                   "txn-10",
		MerchantCategoryCode: "5812",
	})
	// Falls through to rules immediately.
	if result.Category != CategoryMeals || result.Method != MethodMCC {
		t.Fatalf("got %+v, want MCC result after remote failure", result)
	}
	if classifier.callCount() != 1 || len(*slept) != 0 {
		t.Fatalf("calls=%d slept=%v, want single attempt no backoff", classifier.callCount(), *slept)
	}
}

func TestCategorizeRateLimitSetsCooldown(t *testing.T) {
	classifier := &scriptedClassifier{
		errs: []error{
			&rateLimitError{retryAfter: 30 * time.Second},
			&rateLimitError{retryAfter: 30 * time.Second},
			&rateLimitError{retryAfter: 30 * time.Second},
			&rateLimitError{retryAfter: 30 * time.Second},
		},
	}
	engine, _ := newScriptedEngine(t, classifier)

	base := time.Now()
	engine.now = func() time.Time { return base }

	result := engine.Categorize(context.Background(), Transaction{ID: "txn-11", MerchantCategoryCode: "7011"})
	if result.Category != CategoryTravel || result.Method != MethodMCC {
		t.Fatalf("got %+v, want rule fallback during rate limit", result)
	}

	status := engine.Status()
	if !status.RateLimited {
		t.Fatalf("expected rate limited status")
	}
	if status.RateLimitedUntil == nil || !status.RateLimitedUntil.Equal(base.Add(30*time.Second)) {
		t.Fatalf("rateLimitedUntil = %v, want base+30s", status.RateLimitedUntil)
	}

	// While cooling down the classifier is not consulted again.
	before := classifier.callCount()
	_ = engine.Categorize(context.Background(), Transaction{ID: "txn-12", MerchantCategoryCode: "7011"})
	if classifier.callCount() != before {
		t.Fatalf("classifier consulted during cooldown")
	}

	// After the cooldown the remote stage is eligible again.
	engine.now = func() time.Time { return base.Add(time.Minute) }
	if engine.Status().RateLimited {
		t.Fatalf("expected cooldown to expire")
	}
}

func TestCategorizeBatchResultsAndProgress(t *testing.T) {
	engine := newRuleEngine(t)
	txns := []Transaction{
		{ID: "a", MerchantCategoryCode: "5734"},
		{ID: "b", MerchantCategoryCode: "5812"},
		{ID: "c"},
	}

	var progress [][2]int
	results := engine.CategorizeBatch(context.Background(), txns, func(completed, total int) {
		progress = append(progress, [2]int{completed, total})
	})

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, txn := range txns {
		if _, ok := results[txn.ID]; !ok {
			t.Fatalf("missing result for %s", txn.ID)
		}
	}
	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}
}

func TestCategorizeBatchPacesOnlyWithRemote(t *testing.T) {
	classifier := &scriptedClassifier{
		outputs: []string{
			`{"category": "Other", "confidence": 0.5, "reasoning": "x"}`,
			`{"category": "Other", "confidence": 0.5, "reasoning": "x"}`,
		},
	}
	engine, slept := newScriptedEngine(t, classifier)

	engine.CategorizeBatch(context.Background(), []Transaction{{ID: "a"}, {ID: "b"}}, nil)
	if len(*slept) != 1 || (*slept)[0] != defaultBatchPause {
		t.Fatalf("slept = %v, want one batch pause", *slept)
	}

	rules := newRuleEngine(t)
	var ruleSlept []time.Duration
	rules.sleep = func(ctx context.Context, d time.Duration) error {
		ruleSlept = append(ruleSlept, d)
		return nil
	}
	rules.CategorizeBatch(context.Background(), []Transaction{{ID: "a"}, {ID: "b"}}, nil)
	if len(ruleSlept) != 0 {
		t.Fatalf("rule-only batch paced: %v", ruleSlept)
	}
}

func TestEngineStatusWithoutKey(t *testing.T) {
	engine := newRuleEngine(t)
	status := engine.Status()
	if status.Initialized || status.HasAPIKey || status.RateLimited {
		t.Fatalf("status = %+v, want uninitialized", status)
	}
}

func TestParseClassifierResponse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		category   Category
		confidence float64
		method     CategorizationMethod
	}{
		{
			name:       "plain json",
			raw:        `{"category": "Insurance", "confidence": 0.85, "reasoning": "policy premium"}`,
			category:   CategoryInsurance,
			confidence: 0.85,
			method:     MethodAI,
		},
		{
			name:       "fenced json",
			raw:        "```json\n{\"category\": \"Travel & Transportation\", \"confidence\": 0.7, \"reasoning\": \"airline\"}\n```",
			category:   CategoryTravel,
			confidence: 0.7,
			method:     MethodAI,
		},
		{
			name:       "quoted confidence",
			raw:        `{"category": "Other", "confidence": "0.4", "reasoning": "unclear"}`,
			category:   CategoryOther,
			confidence: 0.4,
			method:     MethodAI,
		},
		{
			name:       "confidence out of range falls back to scan",
			raw:        `{"category": "Insurance", "confidence": 4, "reasoning": "x"}`,
			category:   CategoryInsurance,
			confidence: 0.6,
			method:     MethodAI,
		},
		{
			name:       "unknown category with known name in text",
			raw:        `{"category": "Gadgets", "confidence": 0.9, "reasoning": "office supplies maybe"}`,
			category:   CategoryOfficeSupplies,
			confidence: 0.6,
			method:     MethodAI,
		},
		{
			name:       "garbage",
			raw:        "cannot say",
			category:   CategoryOther,
			confidence: 0.3,
			method:     MethodFallback,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := parseClassifierResponse(tc.raw, MethodAI)
			if got.Category != tc.category || got.Confidence != tc.confidence || got.Method != tc.method {
				t.Fatalf("got %+v, want %s %v %s", got, tc.category, tc.confidence, tc.method)
			}
		})
	}
}

func TestBuildClassifierPrompt(t *testing.T) {
	prompt := buildClassifierPrompt(Transaction{
		ID:                              "txn-1",
		MerchantName:                    "Staples",
		Amount:                          NewAmount(42.5),
		MerchantCategoryCode:            "5943",
		MerchantCategoryCodeDescription: "Office Supplies",
		Memo:                            "printer paper",
	})
	for _, want := range []string{"Staples", "42.5", "5943", "printer paper", string(CategoryOther)} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
