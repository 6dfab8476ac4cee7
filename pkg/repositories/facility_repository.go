package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/database"
	"github.com/facilitymap/facility-engine/pkg/models"
)

// FacilityRepository provides data access for facilities and their taxonomy membership.
type FacilityRepository interface {
	Create(ctx context.Context, facility *models.Facility) error
	Update(ctx context.Context, facility *models.Facility, expectedUpdatedAt *time.Time) error
	Delete(ctx context.Context, id int64) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Facility, error)
	List(ctx context.Context, q models.FacilityQuery) ([]*models.Facility, error)
	Count(ctx context.Context, q models.FacilityQuery) (int, error)
	CountByTaxonomyItem(ctx context.Context, taxonomyType string, itemID int64) (int, error)
}

type facilityRepository struct {
	db *database.DB
}

// NewFacilityRepository creates a new FacilityRepository.
func NewFacilityRepository(db *database.DB) FacilityRepository {
	return &facilityRepository{db: db}
}

var _ FacilityRepository = (*facilityRepository)(nil)

// ============================================================================
// Write Operations
// ============================================================================

// Create inserts the facility row and its taxonomy rows in one transaction
// and sets ID, CreatedAt and UpdatedAt on success.
func (r *facilityRepository) Create(ctx context.Context, facility *models.Facility) error {
	now := dbNow()

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO facilities (
				name, address, lat, lng, phone, website, description,
				custom_pin_image, images, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			RETURNING id, created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			facility.Name,
			facility.Address,
			facility.Lat,
			facility.Lng,
			facility.Phone,
			facility.Website,
			facility.Description,
			facility.CustomPinImage,
			nonNilStrings(facility.Images),
			now,
		).Scan(&facility.ID, &facility.CreatedAt, &facility.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create facility: %w", err)
		}

		return insertFacilityTaxonomies(ctx, tx, facility.ID, facility.Taxonomies)
	})
}

// Update overwrites every column and replaces the taxonomy rows. When
// expectedUpdatedAt is set the write only happens if the stored updated_at
// still equals it; otherwise ErrConflict is returned.
func (r *facilityRepository) Update(ctx context.Context, facility *models.Facility, expectedUpdatedAt *time.Time) error {
	now := dbNow()

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		var storedUpdatedAt time.Time
		err := tx.QueryRow(ctx,
			`SELECT updated_at FROM facilities WHERE id = $1 FOR UPDATE`, facility.ID,
		).Scan(&storedUpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("failed to lock facility: %w", err)
		}

		if expectedUpdatedAt != nil && !storedUpdatedAt.Equal(*expectedUpdatedAt) {
			return apperrors.ErrConflict
		}

		query := `
			UPDATE facilities
			SET name = $2, address = $3, lat = $4, lng = $5, phone = $6, website = $7,
			    description = $8, custom_pin_image = $9, images = $10, updated_at = $11
			WHERE id = $1
			RETURNING created_at, updated_at`

		err = tx.QueryRow(ctx, query,
			facility.ID,
			facility.Name,
			facility.Address,
			facility.Lat,
			facility.Lng,
			facility.Phone,
			facility.Website,
			facility.Description,
			facility.CustomPinImage,
			nonNilStrings(facility.Images),
			now,
		).Scan(&facility.CreatedAt, &facility.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update facility: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM facility_taxonomies WHERE facility_id = $1`, facility.ID); err != nil {
			return fmt.Errorf("failed to clear facility taxonomies: %w", err)
		}

		return insertFacilityTaxonomies(ctx, tx, facility.ID, facility.Taxonomies)
	})
}

// Delete removes the facility; taxonomy rows follow via ON DELETE CASCADE.
// Returns false when the facility did not exist.
func (r *facilityRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM facilities WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete facility: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ============================================================================
// Read Operations
// ============================================================================

func (r *facilityRepository) GetByID(ctx context.Context, id int64) (*models.Facility, error) {
	query := `
		SELECT ` + facilityColumns + `
		FROM facilities f
		WHERE f.id = $1`

	facility, err := scanFacility(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Facility not found
		}
		return nil, err
	}

	if err := r.loadTaxonomies(ctx, []*models.Facility{facility}); err != nil {
		return nil, err
	}
	return facility, nil
}

func (r *facilityRepository) List(ctx context.Context, q models.FacilityQuery) ([]*models.Facility, error) {
	sql, args := BuildFacilityQuery(q)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facilities: %w", err)
	}
	defer rows.Close()

	facilities := make([]*models.Facility, 0)
	for rows.Next() {
		facility, err := scanFacility(rows)
		if err != nil {
			return nil, err
		}
		facilities = append(facilities, facility)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facilities: %w", err)
	}

	if err := r.loadTaxonomies(ctx, facilities); err != nil {
		return nil, err
	}
	return facilities, nil
}

func (r *facilityRepository) Count(ctx context.Context, q models.FacilityQuery) (int, error) {
	sql, args := BuildFacilityCountQuery(q)

	var count int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count facilities: %w", err)
	}
	return count, nil
}

// CountByTaxonomyItem returns how many facilities reference the item.
func (r *facilityRepository) CountByTaxonomyItem(ctx context.Context, taxonomyType string, itemID int64) (int, error) {
	query := `
		SELECT COUNT(DISTINCT facility_id)
		FROM facility_taxonomies
		WHERE taxonomy_type = $1 AND item_id = $2`

	var count int
	if err := r.db.QueryRow(ctx, query, taxonomyType, itemID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count taxonomy usage: %w", err)
	}
	return count, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

// loadTaxonomies fills the Taxonomies set of every facility with one query.
func (r *facilityRepository) loadTaxonomies(ctx context.Context, facilities []*models.Facility) error {
	if len(facilities) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Facility, len(facilities))
	ids := make([]int64, 0, len(facilities))
	for _, f := range facilities {
		f.Taxonomies = models.TaxonomySet{}
		byID[f.ID] = f
		ids = append(ids, f.ID)
	}

	query := `
		SELECT facility_id, taxonomy_type, item_id
		FROM facility_taxonomies
		WHERE facility_id = ANY($1)
		ORDER BY facility_id, taxonomy_type, position`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to query facility taxonomies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var facilityID, itemID int64
		var taxonomyType string
		if err := rows.Scan(&facilityID, &taxonomyType, &itemID); err != nil {
			return fmt.Errorf("failed to scan facility taxonomy: %w", err)
		}
		if f, ok := byID[facilityID]; ok {
			f.Taxonomies[taxonomyType] = append(f.Taxonomies[taxonomyType], itemID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating facility taxonomies: %w", err)
	}
	return nil
}

// insertFacilityTaxonomies copies the membership rows, keeping each type's
// ID order in the position column.
func insertFacilityTaxonomies(ctx context.Context, tx pgx.Tx, facilityID int64, set models.TaxonomySet) error {
	var rows [][]any
	for _, taxonomyType := range models.TaxonomyTypes {
		for pos, itemID := range set[taxonomyType] {
			rows = append(rows, []any{facilityID, taxonomyType, itemID, int32(pos)})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"facility_taxonomies"},
		[]string{"facility_id", "taxonomy_type", "item_id", "position"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert facility taxonomies: %w", err)
	}
	return nil
}

func scanFacility(row pgx.Row) (*models.Facility, error) {
	var f models.Facility
	err := row.Scan(
		&f.ID,
		&f.Name,
		&f.Address,
		&f.Lat,
		&f.Lng,
		&f.Phone,
		&f.Website,
		&f.Description,
		&f.CustomPinImage,
		&f.Images,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan facility: %w", err)
	}
	if f.Images == nil {
		f.Images = []string{}
	}
	f.Taxonomies = models.TaxonomySet{}
	return &f, nil
}

// nonNilStrings keeps TEXT[] columns NOT NULL.
func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// dbNow returns the current time at the precision PostgreSQL stores, so
// values handed back to callers compare equal to what a later read returns.
func dbNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
