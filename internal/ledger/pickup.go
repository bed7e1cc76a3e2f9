package ledger

import (
	"crypto/rand"
	"math/big"
)

const (
	pickupCodeLength   = 5
	pickupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	pickupCodeAttempts = 3
)

// newPickupCode returns a short code that is easy to read aloud at the counter.
func newPickupCode() (string, error) {
	max := big.NewInt(int64(len(pickupCodeAlphabet)))
	code := make([]byte, pickupCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = pickupCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
