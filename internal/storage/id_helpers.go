package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// newID mints an entity identifier.
func newID() string {
	return uuid.NewString()
}

// generateStreamKey mints an opaque broadcast credential. Keys are uppercase
// hex so they survive copy-paste into encoder software untouched.
func generateStreamKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate stream key: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
