package db

import (
	"strings"

	"github.com/google/uuid"
)

const conflictIDPrefix = "cf-"

// NormalizeConflictID ensures a conflict ID has the cf- prefix.
// Accepts bare hex IDs like "0a1b2c3d" and returns "cf-0a1b2c3d"
func NormalizeConflictID(id string) string {
	if id == "" {
		return id
	}
	if !strings.HasPrefix(id, conflictIDPrefix) {
		return conflictIDPrefix + id
	}
	return id
}

// generateConflictID generates a unique conflict ID
func generateConflictID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return conflictIDPrefix + u.String()[:8], nil
}
