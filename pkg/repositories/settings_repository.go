package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/facilitymap/facility-engine/pkg/database"
	"github.com/facilitymap/facility-engine/pkg/models"
)

const mapSettingsKey = "map"

// SettingsRepository stores the global widget settings as JSONB.
type SettingsRepository interface {
	// GetMapSettings returns nil, nil when nothing has been saved yet.
	GetMapSettings(ctx context.Context) (*models.MapSettings, error)
	SaveMapSettings(ctx context.Context, settings *models.MapSettings) error
}

type settingsRepository struct {
	db database.Querier
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db database.Querier) SettingsRepository {
	return &settingsRepository{db: db}
}

var _ SettingsRepository = (*settingsRepository)(nil)

func (r *settingsRepository) GetMapSettings(ctx context.Context) (*models.MapSettings, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, mapSettingsKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get map settings: %w", err)
	}

	settings := models.DefaultMapSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal map settings: %w", err)
	}
	return &settings, nil
}

func (r *settingsRepository) SaveMapSettings(ctx context.Context, settings *models.MapSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal map settings: %w", err)
	}

	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.Exec(ctx, query, mapSettingsKey, raw, dbNow()); err != nil {
		return fmt.Errorf("failed to save map settings: %w", err)
	}
	return nil
}
