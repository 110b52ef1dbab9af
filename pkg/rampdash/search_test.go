package rampdash

import (
	"context"
	"sync"
	"testing"
	"time"
)

// staticLister returns a fixed page and records the filters it was given.
type staticLister struct {
	mu       sync.Mutex
	page     *TransactionPage
	err      error
	received []TransactionFilters
}

func (s *staticLister) ListTransactions(ctx context.Context, filters TransactionFilters) (*TransactionPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, filters)
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func searchFixture() []Transaction {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Transaction{
		{ID: "t1", MerchantName: "Starbucks Reserve", UserTransactionTime: base.Add(4 * time.Hour)},
		{ID: "t2", MerchantName: "Corner Deli", MerchantDescriptor: "STARBUCKS 1234", UserTransactionTime: base.Add(3 * time.Hour)},
		{ID: "t3", MerchantName: "Starbucks", UserTransactionTime: base},
		{ID: "t4", MerchantName: "Blue Bottle Coffee", UserTransactionTime: base.Add(2 * time.Hour)},
		{ID: "t5", MerchantName: "starbucks", UserTransactionTime: base.Add(time.Hour)},
	}
}

func TestListWithSearchPassthrough(t *testing.T) {
	lister := &staticLister{page: &TransactionPage{
		Data: searchFixture(),
		Page: PageInfo{Next: Cursor("abc")},
	}}

	result, err := listWithSearch(context.Background(), lister, TransactionFilters{Limit: 5})
	if err != nil {
		t.Fatalf("listWithSearch: %v", err)
	}
	if result.SearchApplied {
		t.Fatalf("search applied without a query")
	}
	if len(result.Transactions) != 5 || result.OriginalCount != 5 || result.FilteredCount != 5 {
		t.Fatalf("passthrough counts = %d/%d/%d", len(result.Transactions), result.OriginalCount, result.FilteredCount)
	}
	if result.Page.Next != Cursor("abc") {
		t.Fatalf("page info not forwarded")
	}
	if got := lister.received[0].Limit; got != 5 {
		t.Fatalf("passthrough limit = %d, want 5", got)
	}
}

func TestListWithSearchOverFetchesAndStripsMerchant(t *testing.T) {
	lister := &staticLister{page: &TransactionPage{Data: searchFixture()}}

	_, err := listWithSearch(context.Background(), lister, TransactionFilters{MerchantName: "Starbucks", Limit: 20})
	if err != nil {
		t.Fatalf("listWithSearch: %v", err)
	}
	upstream := lister.received[0]
	if upstream.MerchantName != "" {
		t.Fatalf("merchant filter sent upstream: %q", upstream.MerchantName)
	}
	if upstream.Limit != minSearchFetch {
		t.Fatalf("upstream limit = %d, want %d", upstream.Limit, minSearchFetch)
	}

	// A request larger than the floor keeps its own size.
	lister.received = nil
	_, err = listWithSearch(context.Background(), lister, TransactionFilters{MerchantName: "Starbucks", Limit: 150})
	if err != nil {
		t.Fatalf("listWithSearch: %v", err)
	}
	if got := lister.received[0].Limit; got != 150 {
		t.Fatalf("upstream limit = %d, want 150", got)
	}
}

func TestListWithSearchRanking(t *testing.T) {
	lister := &staticLister{page: &TransactionPage{Data: searchFixture()}}

	result, err := listWithSearch(context.Background(), lister, TransactionFilters{MerchantName: "starbucks", Limit: 20})
	if err != nil {
		t.Fatalf("listWithSearch: %v", err)
	}
	if !result.SearchApplied {
		t.Fatalf("expected search to apply")
	}
	if result.OriginalCount != 5 || result.FilteredCount != 4 {
		t.Fatalf("counts = %d/%d, want 5/4", result.OriginalCount, result.FilteredCount)
	}

	// Exact merchant names first, newest of them leading, then the name
	// prefix match, then the descriptor contains-match.
	wantOrder := []string{"t5", "t3", "t1", "t2"}
	for i, want := range wantOrder {
		if result.Transactions[i].ID != want {
			t.Fatalf("rank[%d] = %s, want %s (full order %v)", i, result.Transactions[i].ID, want, ids(result.Transactions))
		}
	}
}

func TestListWithSearchTruncatesToRequested(t *testing.T) {
	lister := &staticLister{page: &TransactionPage{Data: searchFixture()}}

	result, err := listWithSearch(context.Background(), lister, TransactionFilters{MerchantName: "starbucks", Limit: 2})
	if err != nil {
		t.Fatalf("listWithSearch: %v", err)
	}
	if len(result.Transactions) != 2 || result.FilteredCount != 2 {
		t.Fatalf("truncation: %d txns, filtered %d, want 2", len(result.Transactions), result.FilteredCount)
	}
	if result.OriginalCount != 5 {
		t.Fatalf("originalCount = %d, want 5", result.OriginalCount)
	}
}

func TestListWithSearchNoMatches(t *testing.T) {
	lister := &staticLister{page: &TransactionPage{Data: searchFixture()}}

	result, err := listWithSearch(context.Background(), lister, TransactionFilters{MerchantName: "acme"})
	if err != nil {
		t.Fatalf("listWithSearch: %v", err)
	}
	if len(result.Transactions) != 0 || result.FilteredCount != 0 || result.OriginalCount != 5 {
		t.Fatalf("no-match counts = %d/%d/%d", len(result.Transactions), result.OriginalCount, result.FilteredCount)
	}
}

func ids(txns []Transaction) []string {
	out := make([]string, len(txns))
	for i, txn := range txns {
		out[i] = txn.ID
	}
	return out
}
