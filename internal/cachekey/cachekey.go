// Package cachekey allocates the opaque identifiers that name every poster
// artifact of one series.
//
// Keys are drawn at random from an alphabet without visually ambiguous
// characters (0, O, 1, l, I). No uniqueness check is made: with 56 symbols
// and 20 characters there are about 9.1e34 possible keys, so the birthday
// bound stays negligible at catalog scale.
//
// Keys imported from the legacy catalog were drawn from the full URL-safe
// nanoid alphabet. They stay valid, so validation accepts that superset.
package cachekey

import (
	"errors"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Alphabet is the symbol set new keys are drawn from
	Alphabet = "23456789abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

	// LegacyAlphabet is the URL-safe nanoid set of imported keys. Every
	// symbol is safe in a file name.
	LegacyAlphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// Length is the fixed key length
	Length = 20
)

// ErrInvalidKey is returned when a string is not a well-formed cache key
var ErrInvalidKey = errors.New("invalid cache key")

// Key names the derivative set of one series. It never changes once allocated.
type Key string

// New allocates a fresh random key
func New() (Key, error) {
	id, err := gonanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("failed to generate cache key: %w", err)
	}
	return Key(id), nil
}

// Parse validates s and returns it as a Key
func Parse(s string) (Key, error) {
	if err := Validate(s); err != nil {
		return "", err
	}
	return Key(s), nil
}

// Validate checks length and alphabet, accepting both new and legacy keys.
// Since keys become file names this also rejects anything that could escape
// the artifact root.
func Validate(s string) error {
	if len(s) != Length {
		return fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidKey, Length, len(s))
	}
	for _, r := range s {
		if !strings.ContainsRune(LegacyAlphabet, r) {
			return fmt.Errorf("%w: unexpected character %q", ErrInvalidKey, r)
		}
	}
	return nil
}

func (k Key) String() string {
	return string(k)
}
