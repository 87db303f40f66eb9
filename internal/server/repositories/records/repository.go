// Package records is the document-store gateway of the catalog: one
// Repository contract with PostgreSQL (JSONB), DynamoDB and in-memory
// implementations. Records are schemaless field maps grouped by collection.
package records

import (
	"context"

	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
	"github.com/google/uuid"
)

// Repository persists catalog records. Every implementation returns
// common.ErrNotFound from Get, Update and Delete when the id is absent.
// Writes are last-write-wins.
type Repository interface {
	// Create stores a new record and returns its generated id.
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Update merges fields into an existing record.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Get(ctx context.Context, collection, id string) (*models.Record, error)
	Delete(ctx context.Context, collection, id string) error
	// List returns every record of the collection, oldest first.
	List(ctx context.Context, collection string) ([]*models.Record, error)
}

// newID is a seam for deterministic ids in tests.
var newID = func() string { return uuid.NewString() }
