package api

import "rampdash/pkg/rampdash"

type categorizePayload struct {
	Transaction  *rampdash.Transaction  `json:"transaction"`
	Transactions []rampdash.Transaction `json:"transactions"`
}

type transactionRef struct {
	ID       string `json:"id"`
	Merchant string `json:"merchant"`
}

type categorizeSingleResponse struct {
	Success     bool                          `json:"success"`
	Result      rampdash.CategorizationResult `json:"result"`
	Transaction transactionRef                `json:"transaction"`
}

type batchSummary struct {
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	ByMethod   map[string]int `json:"byMethod"`
	ByCategory map[string]int `json:"byCategory"`
}

type categorizeBatchResponse struct {
	Success bool                                     `json:"success"`
	Results map[string]rampdash.CategorizationResult `json:"results"`
	Summary batchSummary                             `json:"summary"`
}

type categorizeStatusResponse struct {
	Success    bool                         `json:"success"`
	Status     rampdash.EngineStatus        `json:"status"`
	Categories map[rampdash.Category]string `json:"categories"`
}

type listPagination struct {
	// CurrentPage is 1 for a cursor-less request and 0 when the position in
	// the collection is unknown.
	CurrentPage int  `json:"currentPage"`
	PageSize    int  `json:"pageSize"`
	TotalItems  *int `json:"totalItems,omitempty"`
	HasMore     bool `json:"hasMore"`
}

type listTransactionsResponse struct {
	Success       bool                   `json:"success"`
	Data          []rampdash.Transaction `json:"data"`
	Page          rampdash.PageInfo      `json:"page"`
	SearchApplied bool                   `json:"searchApplied"`
	OriginalCount int                    `json:"originalCount"`
	FilteredCount int                    `json:"filteredCount"`
	Pagination    listPagination         `json:"pagination"`
}

type pageResponse struct {
	Success bool                   `json:"success"`
	Data    []rampdash.Transaction `json:"data"`
	Page    int                    `json:"page"`
	// Totals mirror the coordinator's size knowledge: exact after the end of
	// the collection has been seen, otherwise a lower bound.
	PageSize   int  `json:"pageSize"`
	HasMore    bool `json:"hasMore"`
	TotalItems int  `json:"totalItems"`
	TotalExact bool `json:"totalExact"`
	TotalKnown bool `json:"totalKnown"`
}

type overridePayload struct {
	Category string `json:"category"`
}

type overrideResponse struct {
	Success       bool              `json:"success"`
	TransactionID string            `json:"transaction_id"`
	Category      rampdash.Category `json:"category,omitempty"`
}

type overridesListResponse struct {
	Success   bool                         `json:"success"`
	Overrides map[string]rampdash.Category `json:"overrides"`
}

type businessResponse struct {
	Success bool               `json:"success"`
	Data    *rampdash.Business `json:"data"`
}

type transactionResponse struct {
	Success bool                  `json:"success"`
	Data    *rampdash.Transaction `json:"data"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream,omitempty"`
}
