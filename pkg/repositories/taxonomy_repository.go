package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/database"
	"github.com/facilitymap/facility-engine/pkg/models"
)

// TaxonomyRepository provides data access for taxonomy items of every type.
type TaxonomyRepository interface {
	Create(ctx context.Context, item *models.TaxonomyItem) error
	Update(ctx context.Context, item *models.TaxonomyItem) error
	Delete(ctx context.Context, taxonomyType string, id int64) (bool, error)
	GetByID(ctx context.Context, taxonomyType string, id int64) (*models.TaxonomyItem, error)
	ListByType(ctx context.Context, taxonomyType string) ([]*models.TaxonomyItem, error)
	SlugsWithPrefix(ctx context.Context, taxonomyType, prefix string, excludeID int64) ([]string, error)
	ExistingIDs(ctx context.Context, taxonomyType string, ids []int64) ([]int64, error)
}

type taxonomyRepository struct {
	db database.Querier
}

// NewTaxonomyRepository creates a new TaxonomyRepository.
func NewTaxonomyRepository(db database.Querier) TaxonomyRepository {
	return &taxonomyRepository{db: db}
}

var _ TaxonomyRepository = (*taxonomyRepository)(nil)

const taxonomyColumns = `id, taxonomy_type, name, slug, description, created_at, updated_at`

// Create inserts the item. A slug already taken within the type yields ErrConflict.
func (r *taxonomyRepository) Create(ctx context.Context, item *models.TaxonomyItem) error {
	now := dbNow()

	query := `
		INSERT INTO taxonomy_items (taxonomy_type, name, slug, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, item.Type, item.Name, item.Slug, item.Description, now).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create taxonomy item: %w", err)
	}
	return nil
}

func (r *taxonomyRepository) Update(ctx context.Context, item *models.TaxonomyItem) error {
	query := `
		UPDATE taxonomy_items
		SET name = $3, slug = $4, description = $5, updated_at = $6
		WHERE taxonomy_type = $1 AND id = $2
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, item.Type, item.ID, item.Name, item.Slug, item.Description, dbNow()).
		Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update taxonomy item: %w", err)
	}
	return nil
}

// Delete removes the item. Facility references are left in place.
func (r *taxonomyRepository) Delete(ctx context.Context, taxonomyType string, id int64) (bool, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM taxonomy_items WHERE taxonomy_type = $1 AND id = $2`, taxonomyType, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete taxonomy item: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *taxonomyRepository) GetByID(ctx context.Context, taxonomyType string, id int64) (*models.TaxonomyItem, error) {
	query := `SELECT ` + taxonomyColumns + ` FROM taxonomy_items WHERE taxonomy_type = $1 AND id = $2`

	item, err := scanTaxonomyItem(r.db.QueryRow(ctx, query, taxonomyType, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Item not found
		}
		return nil, err
	}
	return item, nil
}

// ListByType returns every item of the type ordered by name.
func (r *taxonomyRepository) ListByType(ctx context.Context, taxonomyType string) ([]*models.TaxonomyItem, error) {
	query := `SELECT ` + taxonomyColumns + ` FROM taxonomy_items WHERE taxonomy_type = $1 ORDER BY name, id`

	rows, err := r.db.Query(ctx, query, taxonomyType)
	if err != nil {
		return nil, fmt.Errorf("failed to query taxonomy items: %w", err)
	}
	defer rows.Close()

	items := make([]*models.TaxonomyItem, 0)
	for rows.Next() {
		item, err := scanTaxonomyItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating taxonomy items: %w", err)
	}
	return items, nil
}

// SlugsWithPrefix returns the slugs of the type equal to prefix or starting
// with "prefix-", excluding the item excludeID (0 excludes nothing).
func (r *taxonomyRepository) SlugsWithPrefix(ctx context.Context, taxonomyType, prefix string, excludeID int64) ([]string, error) {
	query := `
		SELECT slug FROM taxonomy_items
		WHERE taxonomy_type = $1
		  AND (slug = $2 OR slug LIKE $3)
		  AND id <> $4`

	rows, err := r.db.Query(ctx, query, taxonomyType, prefix, escapeLike(prefix)+"-%", excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query taxonomy slugs: %w", err)
	}
	defer rows.Close()

	slugs := make([]string, 0)
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy slug: %w", err)
		}
		slugs = append(slugs, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating taxonomy slugs: %w", err)
	}
	return slugs, nil
}

// ExistingIDs returns which of ids exist for the type, in no particular order.
func (r *taxonomyRepository) ExistingIDs(ctx context.Context, taxonomyType string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id FROM taxonomy_items WHERE taxonomy_type = $1 AND id = ANY($2)`, taxonomyType, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to verify taxonomy ids: %w", err)
	}
	defer rows.Close()

	existing := make([]int64, 0, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy id: %w", err)
		}
		existing = append(existing, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating taxonomy ids: %w", err)
	}
	return existing, nil
}

func scanTaxonomyItem(row pgx.Row) (*models.TaxonomyItem, error) {
	var t models.TaxonomyItem
	err := row.Scan(&t.ID, &t.Type, &t.Name, &t.Slug, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan taxonomy item: %w", err)
	}
	return &t, nil
}

// isUniqueViolation reports whether err is PostgreSQL error 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
