// Package ledger keeps bank accounts and is the only place balances change.
//
// # Invariants
//
//   - Every balance is >= 0 at all times.
//   - Names and IBANs are each unique across the ledger.
//   - A transfer debits and credits together or not at all.
//
// # Locking
//
// Each account has its own mutex. Deposit and Withdraw lock one account;
// Transfer locks both, always lower account ID first. The check (for
// example "balance >= amount"), the persistent write, and the in-memory
// update all happen while the locks are held.
//
// The name and IBAN indexes sit behind a separate RWMutex. Register takes it
// exclusively while it checks the name, draws an IBAN, and inserts, so two
// concurrent registrations can never claim the same name or IBAN.
//
// # Persistence
//
// Mutations write through a store.AccountStore before touching memory.
// UpdateBalances is transactional, so a failed write leaves both the
// database and the ledger unchanged. Open reloads accounts at startup.
//
// # IBANs
//
// New accounts get "GR" followed by 25 digits from crypto/rand. Generation
// retries on collision, up to WithIBANAttempts candidates.
package ledger
