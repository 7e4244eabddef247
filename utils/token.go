package utils

import (
	"github.com/google/uuid"
)

// GenerateUUID returns a time-ordered UUIDv7 so ids sort by creation.
func GenerateUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}
