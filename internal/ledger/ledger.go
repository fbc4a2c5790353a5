// ABOUTME: Account ledger with per-account locking and write-through persistence
// ABOUTME: The only code path allowed to create accounts or change balances

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/2389/teller/internal/store"
)

// Account is a point-in-time snapshot of a ledger account.
type Account struct {
	Name      string
	IBAN      string
	Balance   int64
	CreatedAt time.Time
}

// TransferResult reports both sides of a completed transfer.
type TransferResult struct {
	From   Account
	To     Account
	Amount int64
}

// account is the live record. id fixes the lock order for multi-account operations.
type account struct {
	mu        sync.Mutex
	id        int64
	name      string
	iban      string
	createdAt time.Time
	balance   int64 // guarded by mu
}

func (a *account) snapshotLocked() Account {
	return Account{
		Name:      a.name,
		IBAN:      a.iban,
		Balance:   a.balance,
		CreatedAt: a.createdAt,
	}
}

// Ledger owns all accounts. Balance mutations hold the affected accounts'
// locks across check, persist, and apply, so no other operation can observe
// or act on an intermediate balance.
type Ledger struct {
	mu     sync.RWMutex // guards byName and byIBAN
	byName map[string]*account
	byIBAN map[string]*account

	repo         store.AccountStore
	generateIBAN IBANGenerator
	ibanAttempts int
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithIBANGenerator replaces the crypto/rand IBAN source.
func WithIBANGenerator(gen IBANGenerator) Option {
	return func(l *Ledger) { l.generateIBAN = gen }
}

// WithIBANAttempts bounds how many candidates registration draws before failing.
func WithIBANAttempts(n int) Option {
	return func(l *Ledger) { l.ibanAttempts = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open creates a ledger backed by repo and loads every persisted account.
func Open(ctx context.Context, repo store.AccountStore, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		byName:       make(map[string]*account),
		byIBAN:       make(map[string]*account),
		repo:         repo,
		generateIBAN: RandomIBAN,
		ibanAttempts: DefaultIBANAttempts,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "ledger")

	records, err := repo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}
	for _, r := range records {
		a := &account{
			id:        r.ID,
			name:      r.Name,
			iban:      r.IBAN,
			createdAt: r.CreatedAt,
			balance:   r.Balance,
		}
		l.byName[a.name] = a
		l.byIBAN[a.iban] = a
	}

	l.logger.Info("ledger loaded", "accounts", len(records))
	return l, nil
}

// Count returns the number of registered accounts.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byName)
}

// Register creates an account with a freshly issued IBAN.
func (l *Ledger) Register(ctx context.Context, name string, initialBalance int64) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, ErrInvalidName
	}
	if initialBalance < 0 {
		return Account{}, ErrInvalidAmount
	}

	// Registration holds the index lock across the uniqueness checks and the insert.
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byName[name]; exists {
		return Account{}, ErrDuplicateIdentity
	}

	iban, err := GenerateIBAN(l.generateIBAN, func(candidate string) bool {
		_, taken := l.byIBAN[candidate]
		return taken
	}, l.ibanAttempts)
	if err != nil {
		return Account{}, fmt.Errorf("issuing IBAN: %w", err)
	}

	now := l.now().UTC()
	rec := &store.Account{
		Name:      name,
		IBAN:      iban,
		Balance:   initialBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.repo.CreateAccount(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return Account{}, ErrDuplicateIdentity
		}
		return Account{}, fmt.Errorf("persisting account: %w", err)
	}

	a := &account{
		id:        rec.ID,
		name:      name,
		iban:      iban,
		createdAt: now,
		balance:   initialBalance,
	}
	l.byName[name] = a
	l.byIBAN[iban] = a

	l.logger.Info("account registered", "name", name, "iban", iban, "balance", initialBalance)
	return a.snapshotLocked(), nil
}

// Get returns a snapshot of the named account.
func (l *Ledger) Get(ctx context.Context, name string) (Account, error) {
	a, ok := l.byNameLookup(name)
	if !ok {
		return Account{}, ErrNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(), nil
}

// Deposit adds amount to the named account.
func (l *Ledger) Deposit(ctx context.Context, name string, amount int64) (Account, error) {
	if amount <= 0 {
		return Account{}, ErrInvalidAmount
	}
	a, ok := l.byNameLookup(name)
	if !ok {
		return Account{}, ErrNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.balance > math.MaxInt64-amount {
		return Account{}, ErrInvalidAmount
	}
	if err := l.commit(ctx, change{a, a.balance + amount}); err != nil {
		return Account{}, err
	}

	l.logger.Debug("deposit", "name", a.name, "amount", amount, "balance", a.balance)
	return a.snapshotLocked(), nil
}

// Withdraw removes amount from the named account if the balance covers it.
func (l *Ledger) Withdraw(ctx context.Context, name string, amount int64) (Account, error) {
	if amount <= 0 {
		return Account{}, ErrInvalidAmount
	}
	a, ok := l.byNameLookup(name)
	if !ok {
		return Account{}, ErrNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.balance < amount {
		return Account{}, ErrInsufficientBalance
	}
	if err := l.commit(ctx, change{a, a.balance - amount}); err != nil {
		return Account{}, err
	}

	l.logger.Debug("withdrawal", "name", a.name, "amount", amount, "balance", a.balance)
	return a.snapshotLocked(), nil
}

// Transfer moves amount from the named sender to the account holding toIBAN.
// Both balances change together or not at all.
func (l *Ledger) Transfer(ctx context.Context, fromName string, amount int64, toIBAN string) (TransferResult, error) {
	if amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	from, ok := l.byNameLookup(fromName)
	if !ok {
		return TransferResult{}, ErrNotFound
	}
	to, ok := l.byIBANLookup(NormalizeIBAN(toIBAN))
	if !ok {
		return TransferResult{}, ErrRecipientNotFound
	}
	if from == to {
		return TransferResult{}, ErrSelfTransfer
	}

	// Lower ID first, so opposing transfers between the same pair cannot deadlock.
	first, second := from, to
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if from.balance < amount {
		return TransferResult{}, ErrInsufficientBalance
	}
	if to.balance > math.MaxInt64-amount {
		return TransferResult{}, ErrInvalidAmount
	}
	if err := l.commit(ctx,
		change{from, from.balance - amount},
		change{to, to.balance + amount},
	); err != nil {
		return TransferResult{}, err
	}

	l.logger.Info("transfer",
		"from", from.name,
		"to_iban", to.iban,
		"amount", amount,
	)
	return TransferResult{
		From:   from.snapshotLocked(),
		To:     to.snapshotLocked(),
		Amount: amount,
	}, nil
}

type change struct {
	acct    *account
	balance int64
}

// commit persists the new balances in one transaction and only then applies
// them in memory. Callers must hold every affected account's lock.
func (l *Ledger) commit(ctx context.Context, changes ...change) error {
	updates := make([]store.BalanceUpdate, len(changes))
	for i, c := range changes {
		if c.balance < 0 {
			return ErrInsufficientBalance
		}
		updates[i] = store.BalanceUpdate{AccountID: c.acct.id, Balance: c.balance}
	}

	if err := l.repo.UpdateBalances(ctx, l.now().UTC(), updates...); err != nil {
		l.logger.Error("failed to persist balances", "error", err)
		return fmt.Errorf("persisting balances: %w", err)
	}

	for _, c := range changes {
		c.acct.balance = c.balance
	}
	return nil
}

func (l *Ledger) byNameLookup(name string) (*account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.byName[strings.TrimSpace(name)]
	return a, ok
}

func (l *Ledger) byIBANLookup(iban string) (*account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.byIBAN[iban]
	return a, ok
}
