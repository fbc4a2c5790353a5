// ABOUTME: Intent types produced by the classifier and consumed by the router
// ABOUTME: A tagged union of a banking operation or a general inquiry reply

package classifier

import (
	"context"
	"errors"

	"github.com/2389/teller/internal/session"
)

var (
	// ErrUnavailable means the classification backend could not be reached or timed out.
	ErrUnavailable = errors.New("classifier unavailable")

	// ErrMalformed means the backend answered with something that is not an Intent.
	ErrMalformed = errors.New("classifier output malformed")

	// ErrEmptyHistory means there was no user turn to classify.
	ErrEmptyHistory = errors.New("no user message to classify")

	// ErrMissingAPIKey means the configured provider needs classifier.api_key.
	ErrMissingAPIKey = errors.New("classifier.api_key is required")
)

// Classifier turns a conversation plus retrieved context into an Intent.
type Classifier interface {
	Classify(ctx context.Context, history []session.Message, retrieved string) (*Intent, error)
}

// Kind selects which variant of an Intent is populated.
type Kind int

const (
	KindOperation Kind = iota + 1
	KindInquiry
)

// Action is a requested banking operation.
type Action string

const (
	ActionRegister Action = "REGISTER"
	ActionBalance  Action = "BALANCE"
	ActionDeposit  Action = "DEPOSIT"
	ActionWithdraw Action = "WITHDRAW"
	ActionTransfer Action = "TRANSFER"
	ActionIBAN     Action = "IBAN"
)

// Known reports whether a is one of the supported actions.
func (a Action) Known() bool {
	switch a {
	case ActionRegister, ActionBalance, ActionDeposit, ActionWithdraw, ActionTransfer, ActionIBAN:
		return true
	}
	return false
}

// Operation is the banking-operation variant. Nil fields were absent.
type Operation struct {
	Action   Action
	UserName *string
	Amount   *int64
	IBAN     *string

	// RawAmount holds an amount that was present but not a whole number.
	RawAmount string
}

// Intent is the classifier's verdict. Exactly one of Operation or Response
// is meaningful, chosen by Kind.
type Intent struct {
	Kind      Kind
	Operation Operation
	Response  string
}

// NewOperation builds an operation intent.
func NewOperation(op Operation) *Intent {
	return &Intent{Kind: KindOperation, Operation: op}
}

// NewInquiry builds a general-inquiry intent.
func NewInquiry(response string) *Intent {
	return &Intent{Kind: KindInquiry, Response: response}
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, history []session.Message, retrieved string) (*Intent, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, history []session.Message, retrieved string) (*Intent, error) {
	return f(ctx, history, retrieved)
}
