// Package uuid provides entry id generation and validation for the queue.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Entry ids are UUID v4: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new entry id.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a valid entry id.
// Enforces strict UUID v4 format with dashes and correct variant bits.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// Validate returns an error if the string is not a valid entry id.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid entry id: %q", s)
	}
	return nil
}
