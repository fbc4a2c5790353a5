// ABOUTME: Store interface and data types for teller persistence
// ABOUTME: Defines Account, Document structs and the interfaces the ledger and retriever persist through

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique column (account name, IBAN, document ID) already holds the value
var ErrDuplicate = errors.New("already exists")

// Account is the persisted form of a ledger account.
// ID is assigned by the store on creation and never changes.
type Account struct {
	ID        int64
	Name      string
	IBAN      string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BalanceUpdate sets the balance of one account.
type BalanceUpdate struct {
	AccountID int64
	Balance   int64
}

// Document is a corpus entry used for similarity search.
// Embedding is nil when no vector was computed for the content.
type Document struct {
	ID        string
	Seq       int64 // insertion order, assigned by the store
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// AccountStore persists ledger accounts.
type AccountStore interface {
	// CreateAccount inserts the account and sets its ID.
	// Returns ErrDuplicate if the name or IBAN is taken.
	CreateAccount(ctx context.Context, account *Account) error

	// UpdateBalances applies every update in a single transaction.
	// Either all balances change or none do.
	UpdateBalances(ctx context.Context, updatedAt time.Time, updates ...BalanceUpdate) error

	// ListAccounts returns all accounts ordered by ID.
	ListAccounts(ctx context.Context) ([]*Account, error)
}

// DocumentStore persists corpus documents.
type DocumentStore interface {
	// SaveDocument inserts the document and sets its Seq.
	SaveDocument(ctx context.Context, doc *Document) error

	// ListDocuments returns all documents in insertion order.
	ListDocuments(ctx context.Context) ([]*Document, error)
}

// Store combines every persistence concern behind one handle.
type Store interface {
	AccountStore
	DocumentStore

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	Close() error
}
