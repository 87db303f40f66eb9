// Package users declares the server-side repository contract for dashboard
// operators and its PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
)

type Repository interface {
	// Create inserts the user and fills in its generated ID.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetUserByEmail returns common.ErrNotFound when no user has that email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdatePassword replaces the password hash of an existing user.
	UpdatePassword(ctx context.Context, userID string, hash []byte) error
}
