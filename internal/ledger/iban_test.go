package ledger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomIBAN_Format(t *testing.T) {
	for i := 0; i < 100; i++ {
		iban, err := RandomIBAN()
		require.NoError(t, err)
		assert.Regexp(t, ibanPattern, iban)
	}
}

func TestRandomIBAN_RejectsBiasedBytes(t *testing.T) {
	// 250..255 are skipped; 0..249 map to b%10.
	src := bytes.Repeat([]byte{255, 251, 13}, 40)
	iban, err := randomIBAN(bytes.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "GR3333333333333333333333333", iban)
}

func TestRandomIBAN_ShortSource(t *testing.T) {
	_, err := randomIBAN(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestGenerateIBAN_PropagatesGeneratorError(t *testing.T) {
	boom := errors.New("entropy unavailable")
	_, err := GenerateIBAN(func() (string, error) { return "", boom }, func(string) bool { return false }, 3)
	assert.ErrorIs(t, err, boom)
}

func TestGenerateIBAN_DefaultAttempts(t *testing.T) {
	var calls int
	_, err := GenerateIBAN(func() (string, error) {
		calls++
		return "GR00", nil
	}, func(string) bool { return true }, 0)
	assert.ErrorIs(t, err, ErrIBANExhausted)
	assert.Equal(t, DefaultIBANAttempts, calls)
}

func TestNormalizeIBAN(t *testing.T) {
	assert.Equal(t, "GR1601101250000000012300695", NormalizeIBAN(" gr16 0110 1250 0000 0001 2300 695\n"))
}
