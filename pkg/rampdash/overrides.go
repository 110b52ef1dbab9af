package rampdash

import "sync"

// OverrideStore keeps manual category assignments made through the
// dashboard. Overrides live in memory only and are never sent upstream; a
// restart clears them.
type OverrideStore struct {
	mu            sync.RWMutex
	byTransaction map[string]Category
}

// NewOverrideStore creates an empty override store.
func NewOverrideStore() *OverrideStore {
	return &OverrideStore{byTransaction: map[string]Category{}}
}

// Set assigns a category override for a transaction.
func (s *OverrideStore) Set(transactionID string, category Category) {
	s.mu.Lock()
	s.byTransaction[transactionID] = category
	s.mu.Unlock()
}

// Get returns the override for a transaction, if any.
func (s *OverrideStore) Get(transactionID string) (Category, bool) {
	s.mu.RLock()
	category, ok := s.byTransaction[transactionID]
	s.mu.RUnlock()
	return category, ok
}

// Clear removes the override for a transaction, reporting whether one
// existed.
func (s *OverrideStore) Clear(transactionID string) bool {
	s.mu.Lock()
	_, ok := s.byTransaction[transactionID]
	delete(s.byTransaction, transactionID)
	s.mu.Unlock()
	return ok
}

// All returns a copy of every override keyed by transaction id.
func (s *OverrideStore) All() map[string]Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Category, len(s.byTransaction))
	for id, category := range s.byTransaction {
		out[id] = category
	}
	return out
}

// annotate fills CategoryOverride on each transaction that has one.
func (s *OverrideStore) annotate(txns []Transaction) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.byTransaction) == 0 {
		return
	}
	for i := range txns {
		if category, ok := s.byTransaction[txns[i].ID]; ok {
			txns[i].CategoryOverride = category
		}
	}
}
