// ABOUTME: IBAN generation for new accounts
// ABOUTME: Draws digits from crypto/rand and retries until a uniqueness check passes

package ledger

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// IBAN layout: country code, then check, bank, branch and account digits.
const (
	ibanCountry     = "GR"
	ibanCheckDigits = 2
	ibanBankDigits  = 3
	ibanBranch      = 4
	ibanAccount     = 16

	ibanDigits = ibanCheckDigits + ibanBankDigits + ibanBranch + ibanAccount

	// IBANLength is the length of every generated IBAN.
	IBANLength = len(ibanCountry) + ibanDigits
)

// DefaultIBANAttempts bounds IBAN generation when no option overrides it.
const DefaultIBANAttempts = 1000

// IBANGenerator produces a candidate IBAN.
type IBANGenerator func() (string, error)

// RandomIBAN returns a Greek-format IBAN whose digits are all random.
func RandomIBAN() (string, error) {
	return randomIBAN(rand.Reader)
}

func randomIBAN(r io.Reader) (string, error) {
	out := make([]byte, 0, IBANLength)
	out = append(out, ibanCountry...)

	var buf [32]byte
	for len(out) < IBANLength {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", fmt.Errorf("reading random digits: %w", err)
		}
		for _, b := range buf {
			// 250 is the largest multiple of 10 below 256; rejecting above it keeps digits uniform.
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == IBANLength {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateIBAN draws candidates from gen until taken reports one as free.
// It gives up with ErrIBANExhausted after attempts candidates.
func GenerateIBAN(gen IBANGenerator, taken func(string) bool, attempts int) (string, error) {
	if attempts <= 0 {
		attempts = DefaultIBANAttempts
	}
	for i := 0; i < attempts; i++ {
		iban, err := gen()
		if err != nil {
			return "", err
		}
		if !taken(iban) {
			return iban, nil
		}
	}
	return "", ErrIBANExhausted
}

// NormalizeIBAN strips whitespace and upper-cases letters, so
// "gr12 3456 ..." as typed in chat matches the stored form.
func NormalizeIBAN(s string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}
