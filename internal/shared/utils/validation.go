package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Size limits (in bytes)
const (
	MaxRequestBodySize = 1 * 1024 * 1024 // 1MB - maximum JSON request body
	MaxMessageSize     = 4 * 1024        // 4KB - single WebSocket client frame
)

// String length limits
const (
	MaxIDLength          = 128
	MaxDescriptionLength = 16 * 1024
)

// SafeIDPattern allows alphanumeric, dots, colons, hyphens, underscores.
// Pipeline ids appear in URL paths, so nothing that needs escaping.
var SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	if !utf8.ValidString(value) {
		return fmt.Errorf("%s is not valid UTF-8", fieldName)
	}
	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateID validates a caller-chosen pipeline id. Empty is allowed when not required.
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}

	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, dots, colons, hyphens, and underscores allowed)", fieldName)
	}

	return nil
}

// ValidateDescription bounds a launch description before it reaches the parser.
func ValidateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("pipeline description is required")
	}
	return ValidateString(description, "pipeline description", 1, MaxDescriptionLength, true)
}
