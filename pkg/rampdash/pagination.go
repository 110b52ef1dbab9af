package rampdash

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// transactionLister is the slice of Client the pager needs.
type transactionLister interface {
	ListTransactions(ctx context.Context, filters TransactionFilters) (*TransactionPage, error)
}

const (
	defaultPageSize   = 20
	defaultChunkSize  = 100
	defaultCountLimit = 20

	countWalkTimeout = 2 * time.Minute
)

// PagerOptions controls Pager initialization.
type PagerOptions struct {
	// PageSize is the UI page size; ChunkSize is the upstream fetch size and
	// must be a multiple of PageSize. Invalid values fall back to defaults.
	PageSize  int
	ChunkSize int
	// CountLimit caps how many upstream calls the background total counter
	// may spend walking the cursor chain.
	CountLimit int
	Logger     *slog.Logger
}

// PageResult is one UI page plus the current size knowledge.
type PageResult struct {
	Page         int           `json:"page"`
	PageSize     int           `json:"pageSize"`
	Transactions []Transaction `json:"transactions"`
	HasMore      bool          `json:"hasMore"`

	// TotalItems is exact when TotalExact is set, otherwise a lower bound.
	// TotalKnown is false before any chunk has been fetched.
	TotalItems int  `json:"totalItems"`
	TotalExact bool `json:"totalExact"`
	TotalKnown bool `json:"totalKnown"`
}

// paginationChunk caches one upstream fetch of chunkSize transactions.
type paginationChunk struct {
	transactions []Transaction
	startCursor  Cursor
	nextCursor   Cursor
	// complete marks the final chunk of the collection.
	complete bool
}

// Pager maps arbitrary UI page numbers onto the upstream cursor stream. It
// fetches fixed-size chunks, caches them with the cursor chain that led
// there, and slices pages out of cached chunks. Totals come either from
// hitting the end of the collection or from a background cursor walk.
type Pager struct {
	client     transactionLister
	logger     *slog.Logger
	pageSize   int
	chunkSize  int
	countLimit int

	// fetchMu serializes chunk-chain fetches so concurrent page requests do
	// not duplicate upstream reads.
	fetchMu sync.Mutex

	mu          sync.Mutex
	haveFilters bool
	filters     TransactionFilters
	filterKey   string
	chunks      map[int]*paginationChunk
	generation  int
	countingGen int

	total      int
	totalExact bool
	totalKnown bool
}

// NewPager builds a pagination coordinator over the given lister.
func NewPager(client transactionLister, opts PagerOptions) *Pager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := intOrDefault(opts.PageSize, defaultPageSize)
	chunkSize := intOrDefault(opts.ChunkSize, defaultChunkSize)
	if chunkSize%pageSize != 0 {
		rounded := ((chunkSize / pageSize) + 1) * pageSize
		logger.Warn("chunk size is not a multiple of page size, rounding up",
			"chunk_size", chunkSize, "page_size", pageSize, "rounded", rounded)
		chunkSize = rounded
	}
	return &Pager{
		client:      client,
		logger:      logger,
		pageSize:    pageSize,
		chunkSize:   chunkSize,
		countLimit:  intOrDefault(opts.CountLimit, defaultCountLimit),
		chunks:      map[int]*paginationChunk{},
		countingGen: -1,
	}
}

// PageSize returns the configured UI page size.
func (p *Pager) PageSize() int {
	return p.pageSize
}

// GetPage returns UI page `page` (1-based) of the collection addressed by
// the filters. A filter change invalidates all cached chunks and totals.
// Fetch failures leave the cache untouched, so a retry resumes where the
// failed request left off.
func (p *Pager) GetPage(ctx context.Context, filters TransactionFilters, page int) (*PageResult, error) {
	if page < 1 {
		return nil, NewError(ErrCodeInvalidInput, "page must be >= 1")
	}
	generation := p.applyFilters(filters)
	chunkIndex := (page - 1) * p.pageSize / p.chunkSize

	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	chunk, err := p.ensureChunk(ctx, generation, chunkIndex)
	if err != nil {
		return nil, err
	}

	result := &PageResult{Page: page, PageSize: p.pageSize, Transactions: []Transaction{}}
	p.mu.Lock()
	result.TotalItems = p.total
	result.TotalExact = p.totalExact
	result.TotalKnown = p.totalKnown
	p.mu.Unlock()

	if chunk == nil {
		// The collection ended before this chunk.
		return result, nil
	}

	offset := (page-1)*p.pageSize - chunkIndex*p.chunkSize
	if offset < len(chunk.transactions) {
		end := offset + p.pageSize
		if end > len(chunk.transactions) {
			end = len(chunk.transactions)
		}
		result.Transactions = append(result.Transactions, chunk.transactions[offset:end]...)
		result.HasMore = end < len(chunk.transactions) || !chunk.nextCursor.IsZero()
	}
	return result, nil
}

// Totals returns the current size knowledge without fetching anything.
func (p *Pager) Totals() (total int, exact, known bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, p.totalExact, p.totalKnown
}

// applyFilters resets all cached state when the filter identity changes and
// returns the current cache generation.
func (p *Pager) applyFilters(filters TransactionFilters) int {
	key := filters.key()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.haveFilters && key == p.filterKey {
		return p.generation
	}
	p.haveFilters = true
	p.filters = filters
	p.filterKey = key
	p.chunks = map[int]*paginationChunk{}
	p.generation++
	p.total = 0
	p.totalExact = false
	p.totalKnown = false
	return p.generation
}

// ensureChunk fetches chunks 0..index in order, reusing cached ones. It
// returns nil when the collection ends before the requested chunk. Caller
// holds fetchMu.
func (p *Pager) ensureChunk(ctx context.Context, generation, index int) (*paginationChunk, error) {
	cursor := Cursor("")
	for i := 0; i <= index; i++ {
		p.mu.Lock()
		if generation != p.generation {
			p.mu.Unlock()
			return nil, NewError(ErrCodeInvalidInput, "filters changed during fetch")
		}
		cached := p.chunks[i]
		p.mu.Unlock()

		if cached != nil {
			if i == index {
				return cached, nil
			}
			if cached.nextCursor.IsZero() {
				return nil, nil
			}
			cursor = cached.nextCursor
			continue
		}

		fetched, err := p.fetchChunk(ctx, generation, i, cursor)
		if err != nil {
			return nil, err
		}
		if i == index {
			return fetched, nil
		}
		if fetched.nextCursor.IsZero() {
			return nil, nil
		}
		cursor = fetched.nextCursor
	}
	return nil, nil
}

func (p *Pager) fetchChunk(ctx context.Context, generation, index int, cursor Cursor) (*paginationChunk, error) {
	p.mu.Lock()
	filters := p.filters
	p.mu.Unlock()
	filters.Start = cursor
	filters.Limit = p.chunkSize

	page, err := p.client.ListTransactions(ctx, filters)
	if err != nil {
		return nil, err
	}

	chunk := &paginationChunk{
		transactions: page.Data,
		startCursor:  cursor,
		nextCursor:   page.Page.Next,
		complete:     len(page.Data) < p.chunkSize || page.Page.Next.IsZero(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if generation != p.generation {
		// Filters changed mid-flight; do not pollute the new cache.
		return chunk, nil
	}
	p.chunks[index] = chunk
	if chunk.complete {
		p.total = index*p.chunkSize + len(chunk.transactions)
		p.totalExact = true
		p.totalKnown = true
	} else if !p.totalKnown {
		// Lower bound: everything seen so far plus at least one more item.
		p.total = index*p.chunkSize + len(chunk.transactions) + 1
		p.totalKnown = true
	}
	if !p.totalExact && p.countingGen != p.generation {
		p.countingGen = p.generation
		baseFilters := p.filters
		go p.countTotals(p.generation, baseFilters)
	}
	return chunk, nil
}

// countTotals walks the cursor chain from the start with its own state,
// independent of the chunk cache. The walk is bounded by countLimit calls;
// an exhausted walk yields an exact total, a truncated one a lower bound.
func (p *Pager) countTotals(generation int, filters TransactionFilters) {
	ctx, cancel := context.WithTimeout(context.Background(), countWalkTimeout)
	defer cancel()

	filters.Start = ""
	filters.Limit = p.chunkSize

	total := 0
	exact := false
	cursor := Cursor("")
	for call := 0; call < p.countLimit; call++ {
		step := filters
		step.Start = cursor
		page, err := p.client.ListTransactions(ctx, step)
		if err != nil {
			p.logger.Warn("total count walk failed", "call", call, "err", err)
			p.finishCount(generation, 0, false, false)
			return
		}
		total += len(page.Data)
		if page.Page.Next.IsZero() || len(page.Data) == 0 {
			exact = true
			break
		}
		cursor = page.Page.Next
	}
	p.finishCount(generation, total, exact, true)
}

func (p *Pager) finishCount(generation, total int, exact, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.countingGen == generation {
		p.countingGen = -1
	}
	if !ok || generation != p.generation {
		return
	}
	// An exact total derived from a short final chunk is never downgraded
	// to an estimate.
	if p.totalExact && !exact {
		return
	}
	p.total = total
	p.totalExact = exact
	p.totalKnown = true
}
