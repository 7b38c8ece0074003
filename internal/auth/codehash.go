// Package auth — one-time code generation and hashing.
//
// The local gateway never stores a code in plain text. It stores a bcrypt
// hash, exactly as you would a password, and compares on verify. A code is
// only six digits, so the hash alone is not what keeps it safe: the short
// expiry and the attempt limit do that. The hash keeps a leaked database
// file from handing out live codes.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// CodeLength is the number of digits in a one-time code.
const CodeLength = 6

// defaultCost is lower than a password cost: codes live for minutes, not years.
const defaultCost = 10

// ErrCodeMismatch is returned by Verify when the code is wrong.
var ErrCodeMismatch = errors.New("auth: code does not match")

// CodeHasher issues and checks one-time codes.
type CodeHasher struct {
	cost int
}

func NewCodeHasher() *CodeHasher {
	return &CodeHasher{cost: defaultCost}
}

// NewCodeHasherForTest uses the given (low) bcrypt cost. Do NOT use in production.
func NewCodeHasherForTest(cost int) *CodeHasher {
	return &CodeHasher{cost: cost}
}

// Generate returns a uniformly random zero-padded CodeLength-digit code.
func (h *CodeHasher) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("auth: generating code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// Hash returns the bcrypt hash of code.
func (h *CodeHasher) Hash(code string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing code: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil if code matches hash and ErrCodeMismatch if it does not.
// The comparison is constant time.
func (h *CodeHasher) Verify(hash, code string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrCodeMismatch
		}
		return fmt.Errorf("auth: comparing code hash: %w", err)
	}
	return nil
}
