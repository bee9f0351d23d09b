package code

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// DefaultLength is the number of characters in an issued code.
	DefaultLength = 10
	// DefaultAlphabet holds the case-normalized symbols codes are drawn from.
	DefaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	minLength = 4
)

// ErrInvalidConfig is returned when a generator cannot be built from the given settings.
var ErrInvalidConfig = errors.New("invalid code generator config")

// Generator issues random share codes.
type Generator struct {
	length   int
	alphabet []byte
	index    [256]bool
	max      *big.Int
}

// NewGenerator builds a generator. Zero values fall back to the defaults.
func NewGenerator(length int, alphabet string) (*Generator, error) {
	if length == 0 {
		length = DefaultLength
	}
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if length < minLength {
		return nil, fmt.Errorf("%w: length %d below %d", ErrInvalidConfig, length, minLength)
	}

	g := &Generator{length: length}
	for i := 0; i < len(alphabet); i++ {
		ch := upper(alphabet[i])
		if !alphanumeric(ch) {
			return nil, fmt.Errorf("%w: alphabet must be letters and digits, got %q", ErrInvalidConfig, ch)
		}
		if g.index[ch] {
			continue
		}
		g.index[ch] = true
		g.alphabet = append(g.alphabet, ch)
	}
	if len(g.alphabet) < 2 {
		return nil, fmt.Errorf("%w: alphabet needs at least 2 distinct symbols", ErrInvalidConfig)
	}
	g.max = big.NewInt(int64(len(g.alphabet)))
	return g, nil
}

// Generate returns a fresh code drawn uniformly from the alphabet.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, g.max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		buf[i] = g.alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Length reports the code length.
func (g *Generator) Length() int { return g.length }

// Valid reports whether a normalized code could have been issued by g.
func (g *Generator) Valid(code string) bool {
	if len(code) != g.length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !g.index[code[i]] {
			return false
		}
	}
	return true
}

// Normalize trims surrounding whitespace and upper-cases a user supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func upper(ch byte) byte {
	if ch >= 'a' && ch <= 'z' {
		return ch - 'a' + 'A'
	}
	return ch
}

func alphanumeric(ch byte) bool {
	return (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}
