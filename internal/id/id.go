// Package id generates entity identifiers and resolves the short prefixes
// shown by the CLI.
package id

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ShortLen is the prefix length shown in listings.
const ShortLen = 8

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// New returns a fresh lowercase UUIDv4.
func New() string {
	return uuid.NewString()
}

// IsUUID checks if a string is a valid UUID
func IsUUID(s string) bool {
	return uuidPattern.MatchString(strings.ToLower(s))
}

// Short returns the display prefix of an id.
func Short(id string) string {
	if len(id) <= ShortLen {
		return id
	}
	return id[:ShortLen]
}

// Resolve finds the one id among candidates equal to ref or starting with
// it. It fails when nothing or more than one id matches.
func Resolve(ref string, candidates []string) (string, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return "", fmt.Errorf("empty id")
	}
	var matches []string
	for _, c := range candidates {
		if c == ref {
			return c, nil
		}
		if strings.HasPrefix(c, ref) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no entity matches id %q", ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id %q is ambiguous: %d matches", ref, len(matches))
	}
}
