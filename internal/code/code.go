package code

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	DefaultLength      = 5
	DefaultMaxAttempts = 32
)

var ErrCodeGenerationExhausted = errors.New("room code generation exhausted")

type Generator struct {
	length      int
	maxAttempts int
}

func NewGenerator(length, maxAttempts int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{length: length, maxAttempts: maxAttempts}
}

// Generate draws codes until exists reports one as free. Running out of
// attempts means the code space is nearly full or the entropy source is
// broken; either way the caller should fail the request.
func (g *Generator) Generate(exists func(string) bool) (string, error) {
	for i := 0; i < g.maxAttempts; i++ {
		c, err := g.draw()
		if err != nil {
			return "", fmt.Errorf("draw room code: %w", err)
		}
		if !exists(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeGenerationExhausted, g.maxAttempts)
}

func (g *Generator) draw() (string, error) {
	size := big.NewInt(int64(len(Alphabet)))
	b := make([]byte, g.length)
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = Alphabet[n.Int64()]
	}
	return string(b), nil
}

// Valid reports whether c has the generator's length and only uses the
// alphabet. Input is expected to be normalized already.
func (g *Generator) Valid(c string) bool {
	if len(c) != g.length {
		return false
	}
	for i := 0; i < len(c); i++ {
		if strings.IndexByte(Alphabet, c[i]) < 0 {
			return false
		}
	}
	return true
}

// Normalize turns a human-typed code into its canonical form.
func Normalize(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
