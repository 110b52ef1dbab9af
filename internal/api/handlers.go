package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rampdash/pkg/rampdash"
)

// maxBatchSize caps a single categorization batch request.
const maxBatchSize = 100

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	response := healthResponse{Status: "ok"}
	if r.URL.Query().Get("upstream") == "1" {
		response.Upstream = "ok"
		if err := h.core.CheckUpstream(r.Context()); err != nil {
			h.logger.Warn("upstream health probe failed", "err", err)
			response.Upstream = "error"
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *handler) getBusiness(w http.ResponseWriter, r *http.Request) {
	business, err := h.core.GetBusiness(r.Context())
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, businessResponse{Success: true, Data: business})
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	filters := parseTransactionFilters(r)
	result, err := h.core.ListTransactions(r.Context(), filters)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	pageSize := filters.Limit
	if pageSize <= 0 {
		pageSize = h.core.PageSize()
	}
	currentPage := 0
	if filters.Start.IsZero() {
		currentPage = 1
	}
	pagination := listPagination{
		CurrentPage: currentPage,
		PageSize:    pageSize,
		HasMore:     !result.Page.Next.IsZero(),
	}
	if result.SearchApplied {
		total := result.FilteredCount
		pagination.TotalItems = &total
	}

	writeJSON(w, http.StatusOK, listTransactionsResponse{
		Success:       true,
		Data:          result.Transactions,
		Page:          result.Page,
		SearchApplied: result.SearchApplied,
		OriginalCount: result.OriginalCount,
		FilteredCount: result.FilteredCount,
		Pagination:    pagination,
	})
}

func (h *handler) getTransactionPage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page number")
		return
	}

	filters := parseTransactionFilters(r)
	// The coordinator owns cursors and fetch sizes.
	filters.Start = ""
	filters.Limit = 0

	result, err := h.core.GetTransactionPage(r.Context(), filters, page)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Success:    true,
		Data:       result.Transactions,
		Page:       result.Page,
		PageSize:   result.PageSize,
		HasMore:    result.HasMore,
		TotalItems: result.TotalItems,
		TotalExact: result.TotalExact,
		TotalKnown: result.TotalKnown,
	})
}

func (h *handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.core.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionResponse{Success: true, Data: txn})
}

func (h *handler) setCategoryOverride(w http.ResponseWriter, r *http.Request) {
	var payload overridePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	category, err := h.core.SetOverride(id, payload.Category)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overrideResponse{Success: true, TransactionID: id, Category: category})
}

func (h *handler) clearCategoryOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.core.ClearOverride(id) {
		writeError(w, http.StatusNotFound, "no category override for transaction")
		return
	}
	writeJSON(w, http.StatusOK, overrideResponse{Success: true, TransactionID: id})
}

func (h *handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, overridesListResponse{Success: true, Overrides: h.core.Overrides()})
}

func (h *handler) categorize(w http.ResponseWriter, r *http.Request) {
	var payload categorizePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Transaction == nil && payload.Transactions == nil {
		writeError(w, http.StatusBadRequest, "Either transaction or transactions array is required")
		return
	}

	if payload.Transaction != nil {
		result := h.core.Categorize(r.Context(), *payload.Transaction)
		writeJSON(w, http.StatusOK, categorizeSingleResponse{
			Success: true,
			Result:  result,
			Transaction: transactionRef{
				ID:       payload.Transaction.ID,
				Merchant: payload.Transaction.MerchantName,
			},
		})
		return
	}

	if len(payload.Transactions) == 0 {
		writeJSON(w, http.StatusOK, categorizeBatchResponse{
			Success: true,
			Results: map[string]rampdash.CategorizationResult{},
			Summary: batchSummary{ByMethod: map[string]int{}, ByCategory: map[string]int{}},
		})
		return
	}
	if len(payload.Transactions) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "Maximum batch size is 100 transactions")
		return
	}

	results := h.core.CategorizeBatch(r.Context(), payload.Transactions, nil)
	summary := batchSummary{
		Total:      len(payload.Transactions),
		ByMethod:   map[string]int{},
		ByCategory: map[string]int{},
	}
	for _, result := range results {
		if result.Confidence > 0.1 {
			summary.Successful++
		} else {
			summary.Failed++
		}
		summary.ByMethod[string(result.Method)]++
		summary.ByCategory[string(result.Category)]++
	}
	writeJSON(w, http.StatusOK, categorizeBatchResponse{
		Success: true,
		Results: results,
		Summary: summary,
	})
}

func (h *handler) categorizeStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, categorizeStatusResponse{
		Success:    true,
		Status:     h.core.EngineStatus(),
		Categories: rampdash.CategoryDescriptions(),
	})
}

// Helpers.

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func parseTransactionFilters(r *http.Request) rampdash.TransactionFilters {
	query := r.URL.Query()
	filters := rampdash.TransactionFilters{
		FromDate:     query.Get("from_date"),
		ToDate:       query.Get("to_date"),
		MerchantName: query.Get("merchant_name"),
		CategoryName: query.Get("sk_category_name"),
		State:        query.Get("state"),
		CardID:       query.Get("card_id"),
		UserID:       query.Get("user_id"),
		Start:        rampdash.Cursor(query.Get("start")),
		Limit:        parseIntDefault(query.Get("limit"), 0),
	}
	filters.AmountGreaterThan = parseFloatPtr(query.Get("amount_greater_than"))
	filters.AmountLessThan = parseFloatPtr(query.Get("amount_less_than"))
	filters.HasReceipts = parseBoolPtr(query.Get("has_receipts"))
	return filters
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func parseFloatPtr(value string) *float64 {
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseBoolPtr(value string) *bool {
	if value == "" {
		return nil
	}
	b := value == "true"
	return &b
}
