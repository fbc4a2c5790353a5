// ABOUTME: Reply text rendered by the intent router
// ABOUTME: Maps ledger outcomes and precondition failures to fixed user-facing phrases

package router

import (
	"errors"
	"fmt"

	"github.com/2389/teller/internal/ledger"
)

const (
	// FallbackReply answers unrecognized intents and classifier failures.
	FallbackReply = "Sorry, I couldn't process that request. Please try again."

	// RetryReply answers unexpected internal failures.
	RetryReply = "Something went wrong while processing your request. Please try again."

	ReplyRegisterFirst     = "Please register first."
	ReplyNeedAmount        = "Please register and specify an amount."
	ReplyNeedAmountAndIBAN = "Please register and provide amount and recipient IBAN."
	ReplyNeedName          = "Failed to register user: please tell me your full name."
)

func replyRegistered(a ledger.Account) string {
	return fmt.Sprintf("Successfully registered user %s with IBAN: %s and initial balance: %d", a.Name, a.IBAN, a.Balance)
}

func replyBalance(a ledger.Account) string {
	return fmt.Sprintf("Your current balance is %d. Your IBAN is %s.", a.Balance, a.IBAN)
}

func replyIBAN(a ledger.Account) string {
	return fmt.Sprintf("Your IBAN is %s.", a.IBAN)
}

func replyDeposited(amount int64, a ledger.Account) string {
	return fmt.Sprintf("Successfully deposited %d. New balance: %d", amount, a.Balance)
}

func replyWithdrew(amount int64, a ledger.Account) string {
	return fmt.Sprintf("Successfully withdrew %d. New balance: %d", amount, a.Balance)
}

func replyTransferred(r ledger.TransferResult) string {
	return fmt.Sprintf("Successfully transferred %d to %s. New balance: %d", r.Amount, r.To.Name, r.From.Balance)
}

// ledgerErrorText returns the phrase for a known ledger error, or "" if err
// is not one of them.
func ledgerErrorText(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "The amount must be a positive whole number."
	case errors.Is(err, ledger.ErrInvalidName):
		return "The name must not be empty."
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "Insufficient balance for this operation."
	case errors.Is(err, ledger.ErrNotFound):
		return "Your account could not be found. Please register first."
	case errors.Is(err, ledger.ErrRecipientNotFound):
		return "No account was found with that IBAN."
	case errors.Is(err, ledger.ErrDuplicateIdentity):
		return "An account with that name already exists."
	case errors.Is(err, ledger.ErrSelfTransfer):
		return "You cannot transfer money to your own account."
	default:
		return ""
	}
}
