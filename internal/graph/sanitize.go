package graph

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Patterns for material that must never leave the repository in error text:
// connection URIs, credential-looking key/value pairs, and basic-auth userinfo.
var (
	uriPattern        = regexp.MustCompile(`(?i)\b(?:neo4j|bolt)(?:\+s{1,2}c?)?://\S+`)
	credentialPattern = regexp.MustCompile(`(?i)(password|passwd|pwd|token|secret|apikey|api_key)\s*[=:]\s*\S+`)
	userinfoPattern   = regexp.MustCompile(`//[^/@\s]+@`)
)

// sanitizedError preserves errors.Is/As chains while replacing the message.
type sanitizedError struct {
	msg   string
	cause error
}

func (e *sanitizedError) Error() string { return e.msg }
func (e *sanitizedError) Unwrap() error { return e.cause }

// sanitizeError scrubs credentials and URIs from a store error before it
// surfaces to callers or logs.
func sanitizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	clean := SanitizeMessage(msg)
	if clean == msg {
		return err
	}
	return &sanitizedError{msg: clean, cause: errors.Unwrap(err)}
}

// SanitizeMessage removes connection URIs and credential material from text.
func SanitizeMessage(msg string) string {
	msg = uriPattern.ReplaceAllString(msg, "<store-uri>")
	msg = userinfoPattern.ReplaceAllString(msg, "//<redacted>@")
	msg = credentialPattern.ReplaceAllString(msg, "$1=<redacted>")
	return msg
}

// wrapQueryError wraps a query failure with a sanitized, parameter-free message.
func wrapQueryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s failed: %w", op, sanitizeError(err))
}

// describeQuery returns a short, value-free description for logs: the first
// keyword-bearing line of the statement.
func describeQuery(query string) string {
	for _, line := range strings.Split(query, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 80 {
				line = line[:80]
			}
			return line
		}
	}
	return ""
}
