package common

import (
	"github.com/google/uuid"
)

// NewID generates a new canonical UUID string for a domain entity.
func NewID() string {
	return uuid.New().String()
}
