// Package postcode recognises UK postcodes, full ("SW1A 1AA") or outward code only ("TS28").
package postcode

import (
	"regexp"
	"strings"
)

var (
	fullRe    = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]?\s?[0-9][A-Z]{2}$`)
	partialRe = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]?$`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// Normalize collapses whitespace runs to one space, trims and uppercases.
func Normalize(s string) string {
	return strings.ToUpper(spaceRe.ReplaceAllString(strings.TrimSpace(s), " "))
}

// IsFull reports whether s is a complete postcode (outward and inward code).
func IsFull(s string) bool {
	return fullRe.MatchString(Normalize(s))
}

// IsPartial reports whether s is an outward code with no inward code.
func IsPartial(s string) bool {
	return partialRe.MatchString(Normalize(s))
}

// Outward returns the outward code of a full or partial postcode.
func Outward(s string) string {
	n := Normalize(s)
	if i := strings.IndexByte(n, ' '); i >= 0 {
		return n[:i]
	}
	if fullRe.MatchString(n) {
		// No space: the inward code is always the last three characters.
		return n[:len(n)-3]
	}
	return n
}
