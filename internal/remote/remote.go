// Package remote talks to the sync backend that stores each user's bundle.
package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/lherron/folio/internal/bundle"
)

// Remote pulls and pushes a user's SyncBundle.
type Remote interface {
	// Pull returns the stored bundle, or an empty bundle when the user has
	// never pushed.
	Pull(ctx context.Context, userID string) (*bundle.SyncBundle, error)
	// Push replaces the stored bundle.
	Push(ctx context.Context, userID string, b *bundle.SyncBundle) error
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote %s failed: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("remote %s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// ValidateUserID rejects ids that cannot be used as a path segment.
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." || strings.Contains(userID, "\x00") {
		return fmt.Errorf("invalid user id %q", userID)
	}
	return nil
}
