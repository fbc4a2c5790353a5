// Package router maps classified intents onto ledger operations.
//
// Each session moves between two states. It starts in AwaitingIdentity
// and enters Identified only through a successful REGISTER in that same
// session. BALANCE, IBAN, DEPOSIT, WITHDRAW and TRANSFER act on the bound
// identity and are refused with a fixed phrase before registration.
//
// Every message yields exactly one reply, which is appended to the session
// history. Classifier failures and unrecognized actions produce
// FallbackReply; ledger errors produce fixed phrases.
package router
