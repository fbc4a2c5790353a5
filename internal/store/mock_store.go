// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	accounts  map[int64]*Account // keyed by account ID
	names     map[string]int64   // name -> account ID
	ibans     map[string]int64   // IBAN -> account ID
	nextID    int64
	documents []*Document
	docIDs    map[string]struct{}

	// UpdateErr, when set, is returned by UpdateBalances without applying anything.
	UpdateErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		accounts: make(map[int64]*Account),
		names:    make(map[string]int64),
		ibans:    make(map[string]int64),
		docIDs:   make(map[string]struct{}),
	}
}

// SetUpdateErr makes subsequent UpdateBalances calls fail with err (nil clears it).
func (m *MockStore) SetUpdateErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateErr = err
}

// CreateAccount stores a new account and assigns its ID.
func (m *MockStore) CreateAccount(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.names[account.Name]; ok {
		return ErrDuplicate
	}
	if _, ok := m.ibans[account.IBAN]; ok {
		return ErrDuplicate
	}

	m.nextID++
	account.ID = m.nextID

	// Make a copy to avoid external modification
	a := *account
	m.accounts[a.ID] = &a
	m.names[a.Name] = a.ID
	m.ibans[a.IBAN] = a.ID
	return nil
}

// UpdateBalances applies all updates or none.
func (m *MockStore) UpdateBalances(ctx context.Context, updatedAt time.Time, updates ...BalanceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	for _, u := range updates {
		if _, ok := m.accounts[u.AccountID]; !ok {
			return ErrNotFound
		}
	}
	for _, u := range updates {
		a := m.accounts[u.AccountID]
		a.Balance = u.Balance
		a.UpdatedAt = updatedAt
	}
	return nil
}

// ListAccounts returns copies of all accounts ordered by ID.
func (m *MockStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Account, 0, len(m.accounts))
	for id := int64(1); id <= m.nextID; id++ {
		if a, ok := m.accounts[id]; ok {
			c := *a
			result = append(result, &c)
		}
	}
	return result, nil
}

// GetAccount returns a copy of the stored account with the given name.
func (m *MockStore) GetAccount(name string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.names[name]
	if !ok {
		return nil, ErrNotFound
	}
	c := *m.accounts[id]
	return &c, nil
}

// SaveDocument appends a document and assigns its Seq.
func (m *MockStore) SaveDocument(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docIDs[doc.ID]; ok {
		return ErrDuplicate
	}
	doc.Seq = int64(len(m.documents) + 1)

	d := *doc
	d.Embedding = append([]float32(nil), doc.Embedding...)
	m.documents = append(m.documents, &d)
	m.docIDs[d.ID] = struct{}{}
	return nil
}

// ListDocuments returns copies of all documents in insertion order.
func (m *MockStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Document, 0, len(m.documents))
	for _, d := range m.documents {
		c := *d
		result = append(result, &c)
	}
	return result, nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks.
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
