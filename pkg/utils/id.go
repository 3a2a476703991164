package utils

import "github.com/google/uuid"

// GenerateID returns a new UUID v4 string.
func GenerateID() string {
	return uuid.New().String()
}

// IsValidUUID reports whether id parses as a UUID. Path parameters are
// checked with this before they ever reach a query.
func IsValidUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
