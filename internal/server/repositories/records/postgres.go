package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
	"github.com/dmitrijs2005/catalogadmin/internal/dbx"
	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
)

// PostgresRepository stores every collection in the records table, with
// the field map in a JSONB column.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	doc, err := marshalFields(fields)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO records (collection, id, fields)
		VALUES ($1, $2, $3::jsonb)
	`
	id := newID()
	if _, err := r.db.ExecContext(ctx, query, collection, id, doc); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// Update merges with the JSONB || operator, so keys absent from fields keep
// their stored value.
func (r *PostgresRepository) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	doc, err := marshalFields(fields)
	if err != nil {
		return err
	}

	query := `
		UPDATE records SET fields = fields || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2
	`
	res, err := r.db.ExecContext(ctx, query, collection, id, doc)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectOneRow(res)
}

func (r *PostgresRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	query := `
		SELECT id, fields, created_at, updated_at
		FROM records
		WHERE collection = $1 AND id = $2
	`
	rec := &models.Record{Collection: collection}
	var doc []byte
	err := r.db.QueryRowContext(ctx, query, collection, id).Scan(&rec.ID, &doc, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if rec.Fields, err = unmarshalFields(doc); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, collection, id string) error {
	query := `
		DELETE FROM records
		WHERE collection = $1 AND id = $2
	`
	res, err := r.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectOneRow(res)
}

func (r *PostgresRepository) List(ctx context.Context, collection string) ([]*models.Record, error) {
	query := `
		SELECT id, fields, created_at, updated_at
		FROM records
		WHERE collection = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Record, 0)
	for rows.Next() {
		rec := &models.Record{Collection: collection}
		var doc []byte
		if err := rows.Scan(&rec.ID, &doc, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		if rec.Fields, err = unmarshalFields(doc); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}

func unmarshalFields(doc []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(doc) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}
