// Package refreshtokens declares the server-side repository contract for
// dashboard sessions: opaque refresh tokens bound to a user.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token for userID with an expiry of now+validity.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Find looks up a refresh token by its opaque token string.
	// Returns common.ErrNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string. Deleting a
	// non-existent token is not an error (logout is idempotent).
	Delete(ctx context.Context, token string) error

	// DeleteExpired purges every token of userID that expired before now and
	// reports how many were removed.
	DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error)
}
