package ident

import (
	"crypto/rand"
	"fmt"
)

// URL-safe, 64 characters, so one random byte masked to 6 bits maps to one
// character without modulo bias.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

const (
	FullLength  = 21
	ShortLength = 8
)

// New mints a storage identifier and an independent short identifier for
// public share links. Collisions are not checked here; the short_id unique
// constraint in the row store is the backstop.
func New() (string, string, error) {
	id, err := generate(FullLength)
	if err != nil {
		return "", "", err
	}

	shortID, err := generate(ShortLength)
	if err != nil {
		return "", "", err
	}

	return id, shortID, nil
}

func generate(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)&63]
	}

	return string(out), nil
}
