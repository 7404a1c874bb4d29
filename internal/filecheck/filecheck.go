package filecheck

import (
	"bytes"
	"errors"
	"fmt"
)

// MagicNumbers maps a declared content type to the byte signatures accepted
// for it. A declared type with no entry always fails the signature check,
// even when it is on the allow-list.
var MagicNumbers = map[string][][]byte{
	"image/png": {
		{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	},
	"image/jpeg": {
		{0xFF, 0xD8, 0xFF, 0xE0},
		{0xFF, 0xD8, 0xFF, 0xE1},
		{0xFF, 0xD8, 0xFF, 0xE2},
		{0xFF, 0xD8, 0xFF, 0xE8},
	},
	"image/webp": {
		{0x52, 0x49, 0x46, 0x46}, // RIFF header
	},
}

var (
	ErrDisallowedType = errors.New("file type is not allowed")
	ErrTooLarge       = errors.New("file is too large")
	ErrBadSignature   = errors.New("file content does not match its declared type")
)

type Validator struct {
	maxSize      int64
	allowedTypes map[string]struct{}
}

func NewValidator(maxSizeBytes int64, allowedTypes []string) *Validator {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = struct{}{}
	}

	return &Validator{
		maxSize:      maxSizeBytes,
		allowedTypes: allowed,
	}
}

// Validate checks the declared type, the size, and the leading bytes, in that
// order. The signature check runs regardless of the declared type being
// allowed, so a spoofed content type never slips through.
func (v *Validator) Validate(data []byte, contentType string, size int64) error {
	if _, ok := v.allowedTypes[contentType]; !ok {
		return fmt.Errorf("%w: %s", ErrDisallowedType, contentType)
	}

	if size > v.maxSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, size, v.maxSize)
	}

	if !MatchesSignature(data, contentType) {
		return ErrBadSignature
	}

	return nil
}

// MatchesSignature reports whether data starts with one of the signatures
// registered for contentType.
func MatchesSignature(data []byte, contentType string) bool {
	signatures, ok := MagicNumbers[contentType]
	if !ok {
		return false
	}

	for _, sig := range signatures {
		if len(data) >= len(sig) && bytes.Equal(data[:len(sig)], sig) {
			return true
		}
	}

	return false
}

const maxFilenameLen = 100

// SanitizeFilename keeps [A-Za-z0-9._-], replaces everything else with '_',
// and caps the result at 100 bytes. Used before the name is logged or
// forwarded upstream.
func SanitizeFilename(name string) string {
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}

	out := []byte(name)
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			out[i] = '_'
		}
	}

	return string(out)
}
