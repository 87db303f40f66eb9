package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/catalogadmin/internal/logging"
	"github.com/dmitrijs2005/catalogadmin/internal/server/catalog"
	"github.com/dmitrijs2005/catalogadmin/internal/server/config"
	"github.com/dmitrijs2005/catalogadmin/internal/server/form"
	"github.com/dmitrijs2005/catalogadmin/internal/server/listview"
	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
	"github.com/dmitrijs2005/catalogadmin/internal/server/repositories/records"
)

// CatalogService opens forms and list views over the configured
// collections. Forms it opens share the service's uploader and record
// store.
type CatalogService struct {
	registry   *catalog.Registry
	records    records.Repository
	uploader   form.Uploader
	blobs      form.BlobDeleter
	log        logging.Logger
	concurrent bool
	cleanup    bool
}

// NewCatalogService wires the service. blobs is only used when orphan
// cleanup is enabled in cfg and may be nil otherwise.
func NewCatalogService(reg *catalog.Registry, recs records.Repository, uploader form.Uploader, blobs form.BlobDeleter, cfg *config.Config, log logging.Logger) *CatalogService {
	return &CatalogService{
		registry:   reg,
		records:    recs,
		uploader:   uploader,
		blobs:      blobs,
		log:        log.With("module", "catalog"),
		concurrent: cfg.ConcurrentUploads,
		cleanup:    cfg.CleanupOrphans && blobs != nil,
	}
}

func (s *CatalogService) Schemas() []*catalog.Schema {
	return s.registry.All()
}

// Schema returns common.ErrUnknownCollection for unknown names.
func (s *CatalogService) Schema(collection string) (*catalog.Schema, error) {
	return s.registry.Get(collection)
}

func (s *CatalogService) formOptions(userID string, extra []form.Option) []form.Option {
	opts := []form.Option{form.WithLogger(s.log), form.WithAuthor(userID)}
	if s.concurrent {
		opts = append(opts, form.WithConcurrentUploads())
	}
	if s.cleanup {
		opts = append(opts, form.WithOrphanCleanup(s.blobs))
	}
	return append(opts, extra...)
}

// NewForm opens a create form on behalf of userID.
func (s *CatalogService) NewForm(collection, userID string, opts ...form.Option) (*form.Form, error) {
	schema, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	return form.New(schema, s.records, s.uploader, s.formOptions(userID, opts)...), nil
}

// EditForm opens an edit form for an existing record.
func (s *CatalogService) EditForm(ctx context.Context, collection, id, userID string, opts ...form.Option) (*form.Form, error) {
	schema, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	return form.Load(ctx, schema, s.records, s.uploader, id, s.formOptions(userID, opts)...)
}

func (s *CatalogService) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	if _, err := s.registry.Get(collection); err != nil {
		return nil, err
	}
	rec, err := s.records.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// ListView returns an unloaded list view of collection.
func (s *CatalogService) ListView(collection string) (*listview.View, error) {
	if _, err := s.registry.Get(collection); err != nil {
		return nil, err
	}
	return listview.New(collection, s.records, s.log), nil
}

// List returns a full snapshot of collection.
func (s *CatalogService) List(ctx context.Context, collection string) ([]*models.Record, error) {
	v, err := s.ListView(collection)
	if err != nil {
		return nil, err
	}
	if err := v.Load(ctx); err != nil {
		return nil, err
	}
	return v.Rows(), nil
}

// Delete removes a record. confirmed carries the caller's explicit
// confirmation; without it nothing is deleted.
func (s *CatalogService) Delete(ctx context.Context, collection, id string, confirmed bool) error {
	v, err := s.ListView(collection)
	if err != nil {
		return err
	}
	return v.Delete(ctx, id, func(string) bool { return confirmed })
}
