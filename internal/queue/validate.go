package queue

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var payloadValidator = validator.New()

// ValidatePayload runs struct-tag validation on a decoded job payload
// before it is enqueued (§4.7: malformed payloads are rejected at enqueue
// time rather than surfacing as a handler-time failure).
func ValidatePayload(payload interface{}) error {
	if err := payloadValidator.Struct(payload); err != nil {
		return fmt.Errorf("invalid job payload: %w", err)
	}
	return nil
}
