package records

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
)

// MemoryRepository keeps records in process memory. It backs the
// "memory" document store used for local development and tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string]map[string]*models.Record
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		data: make(map[string]map[string]*models.Record),
		now:  time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, collection string, fields map[string]any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	rec := &models.Record{
		ID:         newID(),
		Collection: collection,
		Fields:     cloneFields(fields),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	c, ok := r.data[collection]
	if !ok {
		c = make(map[string]*models.Record)
		r.data[collection] = c
	}
	c[rec.ID] = rec
	return rec.ID, nil
}

func (r *MemoryRepository) Update(_ context.Context, collection, id string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.data[collection][id]
	if !ok {
		return common.ErrNotFound
	}
	maps.Copy(rec.Fields, fields)
	rec.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, collection, id string) (*models.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.data[collection][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (r *MemoryRepository) Delete(_ context.Context, collection, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[collection][id]; !ok {
		return common.ErrNotFound
	}
	delete(r.data[collection], id)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, collection string) ([]*models.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Record, 0, len(r.data[collection]))
	for _, rec := range r.data[collection] {
		result = append(result, cloneRecord(rec))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	maps.Copy(out, fields)
	return out
}

func cloneRecord(rec *models.Record) *models.Record {
	c := *rec
	c.Fields = cloneFields(rec.Fields)
	return &c
}
