// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists accounts and corpus documents with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: SQLite has a single writer, and :memory: databases are per-connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			iban       TEXT NOT NULL UNIQUE,
			balance    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (balance >= 0)
		);

		CREATE TABLE IF NOT EXISTS documents (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			content    TEXT NOT NULL,
			embedding  TEXT,
			created_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateAccount inserts a new account and assigns its ID.
// Returns ErrDuplicate if the name or IBAN already exists.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (name, iban, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		account.Name,
		account.IBAN,
		account.Balance,
		account.CreatedAt.UTC().Format(time.RFC3339Nano),
		account.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading account id: %w", err)
	}
	account.ID = id

	s.logger.Debug("created account", "id", id, "name", account.Name)
	return nil
}

// UpdateBalances writes all balance updates in one transaction.
// Returns ErrNotFound (and changes nothing) if any account ID is unknown.
func (s *SQLiteStore) UpdateBalances(ctx context.Context, updatedAt time.Time, updates ...BalanceUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := updatedAt.UTC().Format(time.RFC3339Nano)
	for _, u := range updates {
		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`,
			u.Balance, ts, u.AccountID,
		)
		if err != nil {
			return fmt.Errorf("updating balance of account %d: %w", u.AccountID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking update of account %d: %w", u.AccountID, err)
		}
		if n == 0 {
			return ErrNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing balances: %w", err)
	}
	return nil
}

// ListAccounts returns every account ordered by ID.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, iban, balance, created_at, updated_at
		FROM accounts
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var a Account
		var createdAtStr, updatedAtStr string
		if err := rows.Scan(&a.ID, &a.Name, &a.IBAN, &a.Balance, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}

	return accounts, nil
}

// SaveDocument inserts a corpus document and assigns its Seq.
// A nil embedding is stored as NULL.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	var embedding sql.NullString
	if doc.Embedding != nil {
		data, err := json.Marshal(doc.Embedding)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		embedding = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, content, embedding, created_at)
		VALUES (?, ?, ?, ?)
	`,
		doc.ID,
		doc.Content,
		embedding,
		doc.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting document: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading document seq: %w", err)
	}
	doc.Seq = seq

	s.logger.Debug("saved document", "id", doc.ID, "seq", seq)
	return nil
}

// ListDocuments returns every document in insertion order.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, content, embedding, created_at
		FROM documents
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var d Document
		var embedding sql.NullString
		var createdAtStr string
		if err := rows.Scan(&d.Seq, &d.ID, &d.Content, &embedding, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if embedding.Valid {
			if err := json.Unmarshal([]byte(embedding.String), &d.Embedding); err != nil {
				return nil, fmt.Errorf("decoding embedding of document %s: %w", d.ID, err)
			}
		}
		if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}
