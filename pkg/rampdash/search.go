package rampdash

import (
	"context"
	"sort"
	"strings"
)

// minSearchFetch is the smallest upstream batch fetched when a merchant
// search is active. The upstream API cannot match partial merchant names, so
// the service over-fetches and filters locally.
const minSearchFetch = 100

// SearchResult is the listing response envelope: the (possibly filtered)
// transactions plus counters describing what the search overlay did.
type SearchResult struct {
	Transactions  []Transaction `json:"transactions"`
	Page          PageInfo      `json:"page"`
	SearchApplied bool          `json:"searchApplied"`
	// OriginalCount is the size of the upstream batch; FilteredCount the
	// size after matching, ranking and truncation.
	OriginalCount int `json:"originalCount"`
	FilteredCount int `json:"filteredCount"`
}

// listWithSearch lists transactions, overlaying a local merchant search when
// the merchant name filter is present. The search strips the merchant filter
// from the upstream query, over-fetches a single batch, then matches on
// merchant name and descriptor, ranks by relevance and truncates to the
// requested page size.
func listWithSearch(ctx context.Context, client transactionLister, filters TransactionFilters) (*SearchResult, error) {
	query := strings.TrimSpace(strings.ToLower(filters.MerchantName))
	if query == "" {
		page, err := client.ListTransactions(ctx, filters)
		if err != nil {
			return nil, err
		}
		return &SearchResult{
			Transactions:  page.Data,
			Page:          page.Page,
			OriginalCount: len(page.Data),
			FilteredCount: len(page.Data),
		}, nil
	}

	requested := filters.Limit
	if requested <= 0 {
		requested = defaultPageSize
	}
	upstream := filters
	upstream.MerchantName = ""
	upstream.Limit = requested
	if upstream.Limit < minSearchFetch {
		upstream.Limit = minSearchFetch
	}

	page, err := client.ListTransactions(ctx, upstream)
	if err != nil {
		return nil, err
	}

	matches := make([]Transaction, 0, len(page.Data))
	for _, txn := range page.Data {
		name := strings.ToLower(txn.MerchantName)
		descriptor := strings.ToLower(txn.MerchantDescriptor)
		if strings.Contains(name, query) || strings.Contains(descriptor, query) {
			matches = append(matches, txn)
		}
	}
	rankMatches(matches, query)

	if len(matches) > requested {
		matches = matches[:requested]
	}
	return &SearchResult{
		Transactions:  matches,
		Page:          page.Page,
		SearchApplied: true,
		OriginalCount: len(page.Data),
		FilteredCount: len(matches),
	}, nil
}

// rankMatches orders search hits by relevance: exact merchant name, exact
// descriptor, merchant name prefix, then most recent first.
func rankMatches(matches []Transaction, query string) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		aName := strings.ToLower(a.MerchantName)
		bName := strings.ToLower(b.MerchantName)
		aDesc := strings.ToLower(a.MerchantDescriptor)
		bDesc := strings.ToLower(b.MerchantDescriptor)

		if aName == query && bName != query {
			return true
		}
		if bName == query && aName != query {
			return false
		}
		if aDesc == query && bDesc != query {
			return true
		}
		if bDesc == query && aDesc != query {
			return false
		}
		aPrefix := strings.HasPrefix(aName, query)
		bPrefix := strings.HasPrefix(bName, query)
		if aPrefix != bPrefix {
			return aPrefix
		}
		return a.UserTransactionTime.After(b.UserTransactionTime)
	})
}
