package rampdash

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TransactionState enumerates upstream transaction lifecycle states.
type TransactionState string

const (
	StatePending   TransactionState = "PENDING"
	StateCleared   TransactionState = "CLEARED"
	StateDeclined  TransactionState = "DECLINED"
	StateCancelled TransactionState = "CANCELLED"
)

// Cursor is an opaque pagination token issued by the upstream API. It is
// stored and forwarded verbatim; callers never inspect its contents.
type Cursor string

// IsZero reports whether the cursor is empty (start of the collection).
func (c Cursor) IsZero() bool {
	return c == ""
}

// Transaction represents a card transaction as returned by the upstream API.
type Transaction struct {
	ID                              string           `json:"id"`
	Amount                          Amount           `json:"amount"`
	CurrencyCode                    string           `json:"currency_code,omitempty"`
	MerchantName                    string           `json:"merchant_name"`
	MerchantDescriptor              string           `json:"merchant_descriptor,omitempty"`
	MerchantCategoryCode            string           `json:"merchant_category_code"`
	MerchantCategoryCodeDescription string           `json:"merchant_category_code_description,omitempty"`
	State                           TransactionState `json:"state"`
	UserTransactionTime             time.Time        `json:"user_transaction_time"`
	CardID                          string           `json:"card_id"`
	UserID                          string           `json:"user_id"`
	Memo                            string           `json:"memo,omitempty"`
	SKCategoryID                    string           `json:"sk_category_id,omitempty"`
	SKCategoryName                  string           `json:"sk_category_name,omitempty"`

	// CategoryOverride carries a manual category set through the dashboard.
	// It is filled in locally and never sent upstream.
	CategoryOverride Category `json:"category_override,omitempty"`
}

// Business represents the business profile of the authenticated account.
type Business struct {
	ID           string `json:"id"`
	BusinessName string `json:"business_name"`
	Phone        string `json:"phone,omitempty"`
}

// PageInfo carries the cursor to the next page, if any.
type PageInfo struct {
	Next Cursor `json:"next,omitempty"`
}

// TransactionPage is one page of the upstream transaction listing.
type TransactionPage struct {
	Data []Transaction `json:"data"`
	Page PageInfo      `json:"page"`
}

// TransactionFilters describes the server-side filters accepted by the
// upstream listing endpoint, plus the cursor and page size.
type TransactionFilters struct {
	FromDate          string
	ToDate            string
	MerchantName      string
	CategoryName      string
	State             string
	CardID            string
	UserID            string
	AmountGreaterThan *float64
	AmountLessThan    *float64
	HasReceipts       *bool
	Start             Cursor
	Limit             int
}

// queryValues encodes the filters as upstream query parameters. Zero values
// are omitted.
func (f TransactionFilters) queryValues() url.Values {
	values := url.Values{}
	setIfPresent := func(key, value string) {
		if value != "" {
			values.Set(key, value)
		}
	}
	setIfPresent("from_date", f.FromDate)
	setIfPresent("to_date", f.ToDate)
	setIfPresent("merchant_name", f.MerchantName)
	setIfPresent("sk_category_name", f.CategoryName)
	setIfPresent("state", f.State)
	setIfPresent("card_id", f.CardID)
	setIfPresent("user_id", f.UserID)
	if f.AmountGreaterThan != nil {
		values.Set("amount_greater_than", formatAmountParam(*f.AmountGreaterThan))
	}
	if f.AmountLessThan != nil {
		values.Set("amount_less_than", formatAmountParam(*f.AmountLessThan))
	}
	if f.HasReceipts != nil {
		values.Set("has_receipts", strconv.FormatBool(*f.HasReceipts))
	}
	if !f.Start.IsZero() {
		values.Set("start", string(f.Start))
	}
	if f.Limit > 0 {
		values.Set("limit", strconv.Itoa(f.Limit))
	}
	return values
}

// key returns a canonical identity for the filter set, ignoring the cursor
// and page size. Two filter sets with the same key address the same upstream
// collection, so cached pages remain valid across requests.
func (f TransactionFilters) key() string {
	var b strings.Builder
	write := func(name, value string) {
		if value == "" {
			return
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte('&')
	}
	write("from_date", f.FromDate)
	write("to_date", f.ToDate)
	write("merchant_name", f.MerchantName)
	write("sk_category_name", f.CategoryName)
	write("state", f.State)
	write("card_id", f.CardID)
	write("user_id", f.UserID)
	if f.AmountGreaterThan != nil {
		write("amount_greater_than", formatAmountParam(*f.AmountGreaterThan))
	}
	if f.AmountLessThan != nil {
		write("amount_less_than", formatAmountParam(*f.AmountLessThan))
	}
	if f.HasReceipts != nil {
		write("has_receipts", strconv.FormatBool(*f.HasReceipts))
	}
	return b.String()
}

func formatAmountParam(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
