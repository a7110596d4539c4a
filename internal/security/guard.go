package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxMessageLength caps a single chat message.
const DefaultMaxMessageLength = 2000

// ContentGuard validates chat message content before it reaches the store
type ContentGuard struct {
	maxLength       int
	blockedPatterns []*regexp.Regexp
}

// NewContentGuard creates a guard with the default blocklist
func NewContentGuard(maxLength int) *ContentGuard {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	patterns := []string{
		`(?i)<script\b`,
		`(?i)javascript:`,
		`(?i)data:text/html`,
		`\x00`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}

	return &ContentGuard{maxLength: maxLength, blockedPatterns: compiled}
}

// ValidationError represents a content validation error
type ValidationError struct {
	Message string
	Pattern string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate checks one message body. The empty-after-trim case is left to
// the send path, which already rejects it.
func (g *ContentGuard) Validate(content string) error {
	if !utf8.ValidString(content) {
		return &ValidationError{Message: "message is not valid UTF-8"}
	}
	if utf8.RuneCountInString(content) > g.maxLength {
		return &ValidationError{
			Message: fmt.Sprintf("message exceeds %d characters", g.maxLength),
		}
	}
	for _, p := range g.blockedPatterns {
		if p.MatchString(content) {
			return &ValidationError{
				Message: "message contains blocked content",
				Pattern: p.String(),
			}
		}
	}
	return nil
}

// Sanitize trims surrounding whitespace and collapses CR/LF pairs so
// transcripts render consistently across clients.
func Sanitize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.TrimSpace(content)
}
