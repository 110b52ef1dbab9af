package rampdash

import (
	"context"
	"log/slog"
)

// Options controls Core initialization.
type Options struct {
	Upstream   ClientOptions
	Classifier EngineOptions

	PageSize   int
	ChunkSize  int
	CountLimit int

	Logger *slog.Logger
}

// Core wires the upstream client, the categorization engine, the pagination
// coordinator and the override store into the dashboard backend service.
type Core struct {
	client    *Client
	engine    *Engine
	pager     *Pager
	overrides *OverrideStore
	logger    *slog.Logger
}

// New initializes a Core using the provided options.
func New(opts Options) (*Core, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	upstream := opts.Upstream
	if upstream.Logger == nil {
		upstream.Logger = logger
	}
	client, err := NewClient(upstream)
	if err != nil {
		return nil, err
	}

	classifier := opts.Classifier
	if classifier.Logger == nil {
		classifier.Logger = logger
	}
	engine := NewEngine(classifier)

	pager := NewPager(client, PagerOptions{
		PageSize:   opts.PageSize,
		ChunkSize:  opts.ChunkSize,
		CountLimit: opts.CountLimit,
		Logger:     logger,
	})

	return &Core{
		client:    client,
		engine:    engine,
		pager:     pager,
		overrides: NewOverrideStore(),
		logger:    logger,
	}, nil
}

// PageSize returns the UI page size served by the paged endpoint.
func (c *Core) PageSize() int {
	return c.pager.PageSize()
}

// ListTransactions lists transactions with the merchant search overlay and
// annotates manual category overrides.
func (c *Core) ListTransactions(ctx context.Context, filters TransactionFilters) (*SearchResult, error) {
	result, err := listWithSearch(ctx, c.client, filters)
	if err != nil {
		return nil, err
	}
	c.overrides.annotate(result.Transactions)
	return result, nil
}

// GetTransactionPage serves one UI page through the chunk-cached pagination
// coordinator.
func (c *Core) GetTransactionPage(ctx context.Context, filters TransactionFilters, page int) (*PageResult, error) {
	result, err := c.pager.GetPage(ctx, filters, page)
	if err != nil {
		return nil, err
	}
	c.overrides.annotate(result.Transactions)
	return result, nil
}

// GetTransaction fetches a single transaction by id.
func (c *Core) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	txn, err := c.client.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if category, ok := c.overrides.Get(txn.ID); ok {
		txn.CategoryOverride = category
	}
	return txn, nil
}

// GetBusiness fetches the business profile.
func (c *Core) GetBusiness(ctx context.Context) (*Business, error) {
	return c.client.GetBusiness(ctx)
}

// CheckUpstream probes upstream connectivity.
func (c *Core) CheckUpstream(ctx context.Context) error {
	return c.client.HealthCheck(ctx)
}

// Categorize runs the categorization cascade for one transaction.
func (c *Core) Categorize(ctx context.Context, txn Transaction) CategorizationResult {
	return c.engine.Categorize(ctx, txn)
}

// CategorizeBatch categorizes transactions sequentially with progress
// reporting.
func (c *Core) CategorizeBatch(ctx context.Context, txns []Transaction, onProgress func(completed, total int)) map[string]CategorizationResult {
	return c.engine.CategorizeBatch(ctx, txns, onProgress)
}

// EngineStatus reports classifier availability.
func (c *Core) EngineStatus() EngineStatus {
	return c.engine.Status()
}

// SetOverride records a manual category for a transaction.
func (c *Core) SetOverride(transactionID, categoryName string) (Category, error) {
	if transactionID == "" {
		return "", NewError(ErrCodeInvalidInput, "transaction id is required")
	}
	category, ok := ParseCategory(categoryName)
	if !ok {
		return "", NewError(ErrCodeValidation, "unknown category: "+categoryName)
	}
	c.overrides.Set(transactionID, category)
	return category, nil
}

// ClearOverride removes a manual category, reporting whether one existed.
func (c *Core) ClearOverride(transactionID string) bool {
	return c.overrides.Clear(transactionID)
}

// Overrides lists every manual category override.
func (c *Core) Overrides() map[string]Category {
	return c.overrides.All()
}
