// Package identity collapses raw, user-entered phone numbers into canonical
// identities. Normalization is total-or-rejected: there is no fallback key
// when a raw string cannot be resolved, because a fallback would break the
// "same human, same identity" rule.
package identity

import (
	"chat-sync/domain"
	"chat-sync/errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	// minDigits/maxDigits bound the digit count after stripping punctuation.
	// 10 is a national number, 15 is the E.164 ceiling.
	minDigits = 10
	maxDigits = 15
)

// DefaultPlaceholderPrefixes mark non-human test/demo accounts. Raw input
// starting with any of them is rejected regardless of digit content.
var DefaultPlaceholderPrefixes = []string{"demo-", "test-", "+15555550"}

type Resolver struct {
	defaultCountryCode  string
	placeholderPrefixes []string
}

// NewResolver builds a resolver. defaultCountryCode is prepended to exactly
// 10-digit numbers and must itself be 1 to 3 digits.
func NewResolver(defaultCountryCode string, placeholderPrefixes []string) (*Resolver, error) {
	if l := len(defaultCountryCode); l < 1 || l > 3 {
		return nil, fmt.Errorf("default country code must be 1 to 3 digits, got %q", defaultCountryCode)
	}
	for _, r := range defaultCountryCode {
		if !unicode.IsDigit(r) {
			return nil, fmt.Errorf("default country code must be digits only, got %q", defaultCountryCode)
		}
	}
	return &Resolver{
		defaultCountryCode:  defaultCountryCode,
		placeholderPrefixes: placeholderPrefixes,
	}, nil
}

// Normalize maps a raw string to its canonical identity or rejects it.
// Pure function: no I/O, same input always yields the same result.
//
// Punctuation carries no identity information, so every non-digit rune is
// stripped before the digit-count check: "555-123-4567", "(555) 123-4567",
// "+1 555 123 4567" and "5551234567" all normalize to "+15551234567".
// Rejection happens only on placeholder-prefix or digit-count grounds.
func (r *Resolver) Normalize(raw string) (domain.Identity, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty input", errors.ErrIdentityRejected)
	}
	for _, prefix := range r.placeholderPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return "", fmt.Errorf("%w: placeholder prefix %q", errors.ErrIdentityRejected, prefix)
		}
	}
	digits := stripNonDigits(trimmed)
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", fmt.Errorf("%w: %d digits outside [%d,%d]",
			errors.ErrIdentityRejected, len(digits), minDigits, maxDigits)
	}
	if len(digits) == minDigits {
		digits = r.defaultCountryCode + digits
	}
	return domain.Identity("+" + digits), nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
