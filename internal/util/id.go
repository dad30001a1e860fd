package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random UUID suitable for primary keys.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns an opaque random token, optionally prefixed.
func NewToken(prefix string) string {
	bytes := make([]byte, 24)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
