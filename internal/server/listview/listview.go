// Package listview keeps the table of a collection's records: a full
// snapshot refetched on every load, with confirmed deletes.
package listview

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
	"github.com/dmitrijs2005/catalogadmin/internal/logging"
	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
	"github.com/dmitrijs2005/catalogadmin/internal/server/repositories/records"
)

// ConfirmFunc asks whether the record id may be deleted.
type ConfirmFunc func(id string) bool

// View is the list of one collection.
type View struct {
	collection string
	gateway    records.Repository
	log        logging.Logger

	mu   sync.RWMutex
	rows []*models.Record
}

func New(collection string, gateway records.Repository, log logging.Logger) *View {
	return &View{
		collection: collection,
		gateway:    gateway,
		log:        log.With("module", "listview", "collection", collection),
	}
}

func (v *View) Collection() string { return v.collection }

// Load fetches the whole collection and replaces the local rows.
func (v *View) Load(ctx context.Context) error {
	rows, err := v.gateway.List(ctx, v.collection)
	if err != nil {
		v.log.Error(ctx, "list failed", "error", err)
		return fmt.Errorf("list %s: %w", v.collection, err)
	}

	v.mu.Lock()
	v.rows = rows
	v.mu.Unlock()
	return nil
}

// Rows returns a copy of the current rows.
func (v *View) Rows() []*models.Record {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]*models.Record(nil), v.rows...)
}

// Delete removes id after confirm approves it. The local row goes away
// only once the remote delete succeeded; on failure the rows are left as
// they were and the error is returned.
func (v *View) Delete(ctx context.Context, id string, confirm ConfirmFunc) error {
	if confirm == nil || !confirm(id) {
		return common.ErrNotConfirmed
	}

	if err := v.gateway.Delete(ctx, v.collection, id); err != nil {
		v.log.Error(ctx, "delete failed", "id", id, "error", err)
		return &common.PersistenceError{Op: "delete", Collection: v.collection, ID: id, Cause: err}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.rows[:0:0]
	for _, r := range v.rows {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	v.rows = kept

	v.log.Info(ctx, "record deleted", "id", id)
	return nil
}

// Edit is not available from the list.
func (v *View) Edit(string) error {
	return common.ErrNotImplemented
}
