package workererrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ExtractUserFriendlyError creates a short, categorized message for health reports
func ExtractUserFriendlyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT: Broadcast did not finish in time"
	case errors.Is(err, context.Canceled):
		return "CANCELLED: Broadcast was cancelled"
	}

	errStr := err.Error()

	// Common error patterns and their friendly messages
	errorMappings := []struct {
		pattern string
		message string
	}{
		{"connection refused", "STORE: Database unreachable"},
		{"ping database", "STORE: Database unreachable"},
		{"too many clients", "STORE: Database connection limit reached"},
		{"does not exist", "STORE: Schema mismatch (missing table or column)"},
		{"password authentication failed", "STORE: Database credentials rejected"},
		{"panic recovered", "INTERNAL: Unexpected failure during broadcast"},
	}

	for _, mapping := range errorMappings {
		if strings.Contains(strings.ToLower(errStr), strings.ToLower(mapping.pattern)) {
			return mapping.message
		}
	}

	if strings.HasPrefix(errStr, "load participants of ") {
		return fmt.Sprintf("STORE: %s", extractInnerError(errStr))
	}

	// Fallback: return cleaned error
	return fmt.Sprintf("ERROR: %s", errStr)
}

// extractInnerError gets the innermost error message
func extractInnerError(errStr string) string {
	parts := strings.Split(errStr, ": ")
	return parts[len(parts)-1]
}
