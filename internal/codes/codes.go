// Package codes mints short human-relayable codes for community joins and
// barter confirmation.
package codes

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"strings"
)

// Alphabet is the uppercase alphanumeric set every code is drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is used when no length is configured.
const DefaultLength = 6

var ErrInvalidLength = errors.New("codes: length must be positive")

// Generator mints one code per call.
type Generator interface {
	NewCode() (string, error)
}

type randomGenerator struct {
	length int
}

// NewRandom returns a Generator backed by crypto/rand.
func NewRandom(length int) (Generator, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	return &randomGenerator{length: length}, nil
}

func (g *randomGenerator) NewCode() (string, error) {
	max := big.NewInt(int64(len(Alphabet)))

	var builder strings.Builder
	builder.Grow(g.length)

	for i := 0; i < g.length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(Alphabet[n.Int64()])
	}

	return builder.String(), nil
}

// Normalize trims and uppercases user input.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Match compares a submitted code against the expected one after
// normalization. An empty expected code never matches.
func Match(expected, submitted string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(Normalize(submitted))) == 1
}
