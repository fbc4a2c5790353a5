// ABOUTME: Sentinel errors returned by ledger operations
// ABOUTME: Every error here is recoverable and maps to a user-facing reply

package ledger

import "errors"

var (
	// ErrInvalidAmount is returned for non-positive amounts, negative opening
	// balances, and amounts that would overflow a balance.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidName is returned when registering an empty name.
	ErrInvalidName = errors.New("invalid name")

	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound is returned when no account has the given name.
	ErrNotFound = errors.New("account not found")

	// ErrRecipientNotFound is returned when no account has the transfer IBAN.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrDuplicateIdentity is returned when the name is already registered.
	ErrDuplicateIdentity = errors.New("account already exists")

	// ErrSelfTransfer is returned when the recipient IBAN is the sender's own.
	ErrSelfTransfer = errors.New("cannot transfer to own account")

	// ErrIBANExhausted is returned when no free IBAN was found within the attempt bound.
	ErrIBANExhausted = errors.New("could not allocate a unique IBAN")
)
