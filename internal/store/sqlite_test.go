// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers account uniqueness, transactional balance updates, and document ordering

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateAccount(ctx, newAccount("Ada", "GR0000")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("expected 1 account, got %d", len(accounts))
	}
}

func TestCreateAccount_AssignsIDs(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	a := newAccount("Ada", "GR01")
	b := newAccount("Grace", "GR02")

	if err := store.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount(a) failed: %v", err)
	}
	if err := store.CreateAccount(ctx, b); err != nil {
		t.Fatalf("CreateAccount(b) failed: %v", err)
	}

	if a.ID == 0 || b.ID == 0 {
		t.Fatalf("expected non-zero IDs, got %d and %d", a.ID, b.ID)
	}
	if b.ID <= a.ID {
		t.Errorf("expected increasing IDs, got %d then %d", a.ID, b.ID)
	}
}

func TestCreateAccount_Duplicates(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateAccount(ctx, newAccount("Ada", "GR01")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	err := store.CreateAccount(ctx, newAccount("Ada", "GR02"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate name: expected ErrDuplicate, got %v", err)
	}

	err = store.CreateAccount(ctx, newAccount("Grace", "GR01"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate IBAN: expected ErrDuplicate, got %v", err)
	}
}

func TestUpdateBalances(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	a := newAccount("Ada", "GR01")
	a.Balance = 100
	b := newAccount("Grace", "GR02")
	if err := store.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := store.CreateAccount(ctx, b); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	now := time.Now().UTC()
	err := store.UpdateBalances(ctx, now,
		BalanceUpdate{AccountID: a.ID, Balance: 70},
		BalanceUpdate{AccountID: b.ID, Balance: 30},
	)
	if err != nil {
		t.Fatalf("UpdateBalances failed: %v", err)
	}

	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if accounts[0].Balance != 70 || accounts[1].Balance != 30 {
		t.Errorf("balances = %d/%d, want 70/30", accounts[0].Balance, accounts[1].Balance)
	}
	if !accounts[0].UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", accounts[0].UpdatedAt, now)
	}
}

func TestUpdateBalances_AllOrNothing(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	a := newAccount("Ada", "GR01")
	a.Balance = 100
	if err := store.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	// Second update targets a missing account, so the first must roll back.
	err := store.UpdateBalances(ctx, time.Now(),
		BalanceUpdate{AccountID: a.ID, Balance: 0},
		BalanceUpdate{AccountID: 999, Balance: 100},
	)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	accounts, _ := store.ListAccounts(ctx)
	if accounts[0].Balance != 100 {
		t.Errorf("balance = %d, want 100 after rollback", accounts[0].Balance)
	}
}

func TestUpdateBalances_RejectsNegative(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	a := newAccount("Ada", "GR01")
	if err := store.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	err := store.UpdateBalances(ctx, time.Now(), BalanceUpdate{AccountID: a.ID, Balance: -1})
	if err == nil {
		t.Fatal("expected CHECK constraint to reject a negative balance")
	}
}

func TestAccounts_SurviveReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	a := newAccount("Ada", "GR01")
	a.Balance = 42
	if err := s1.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	accounts, err := s2.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Name != "Ada" || accounts[0].Balance != 42 {
		t.Errorf("unexpected accounts after reopen: %+v", accounts)
	}
}

func TestDocuments_InsertionOrder(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	docs := []*Document{
		{ID: "d1", Content: "first", Embedding: []float32{1, 0}, CreatedAt: time.Now()},
		{ID: "d2", Content: "second", CreatedAt: time.Now()},
		{ID: "d3", Content: "third", Embedding: []float32{0.5, 0.25}, CreatedAt: time.Now()},
	}
	for _, d := range docs {
		if err := store.SaveDocument(ctx, d); err != nil {
			t.Fatalf("SaveDocument(%s) failed: %v", d.ID, err)
		}
	}

	if !(docs[0].Seq < docs[1].Seq && docs[1].Seq < docs[2].Seq) {
		t.Errorf("expected increasing Seq, got %d %d %d", docs[0].Seq, docs[1].Seq, docs[2].Seq)
	}

	got, err := store.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Content != want {
			t.Errorf("document %d content = %q, want %q", i, got[i].Content, want)
		}
	}
	if got[1].Embedding != nil {
		t.Errorf("expected nil embedding to round-trip as nil, got %v", got[1].Embedding)
	}
	if len(got[2].Embedding) != 2 || got[2].Embedding[1] != 0.25 {
		t.Errorf("embedding = %v, want [0.5 0.25]", got[2].Embedding)
	}
}

func TestSaveDocument_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.SaveDocument(ctx, &Document{ID: "d1", Content: "a", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	err := store.SaveDocument(ctx, &Document{ID: "d1", Content: "b", CreatedAt: time.Now()})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func newAccount(name, iban string) *Account {
	now := time.Now().UTC()
	return &Account{Name: name, IBAN: iban, CreatedAt: now, UpdatedAt: now}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
