package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet is the 32-symbol unambiguous charset codes are drawn from.
// 0, O, 1 and I are excluded so codes survive being read aloud or
// hand-copied.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// Length is the number of symbols in a code.
const Length = 6

// Generate returns a random code of Length symbols from Alphabet.
func Generate() (string, error) {
	result := make([]byte, Length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range result {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating code symbol: %w", err)
		}
		result[i] = Alphabet[n.Int64()]
	}
	return string(result), nil
}

// Normalize upper-cases a user-entered code so lookups are case-insensitive.
func Normalize(raw string) string {
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
