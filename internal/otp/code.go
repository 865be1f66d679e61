package otp

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	DefaultDigits = 6
	minDigits     = 4
	maxDigits     = 9
)

// CodeGenerator produces fixed-width numeric codes from a cryptographic source.
type CodeGenerator struct {
	digits int
	max    *big.Int
	rand   io.Reader
}

// NewCodeGenerator falls back to DefaultDigits outside 4..9 and to crypto/rand when r is nil.
func NewCodeGenerator(digits int, r io.Reader) *CodeGenerator {
	if digits < minDigits || digits > maxDigits {
		digits = DefaultDigits
	}
	if r == nil {
		r = rand.Reader
	}
	return &CodeGenerator{
		digits: digits,
		max:    new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil),
		rand:   r,
	}
}

// Generate returns a zero-padded code of exactly the configured width.
func (g *CodeGenerator) Generate() (string, error) {
	n, err := rand.Int(g.rand, g.max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", g.digits, n.Int64()), nil
}
