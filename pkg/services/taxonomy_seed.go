package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/facilitymap/facility-engine/pkg/models"
)

// seedItem is one entry of a taxonomy seed file:
//
//	levels_of_care:
//	  - name: Outpatient Care
//	    description: Scheduled visits without an overnight stay
type seedItem struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Seed adds the items of the seed file whose names (case-insensitive) are
// not present yet, so running it repeatedly is harmless. Unknown types are
// skipped with a warning. Returns the number of items created.
func (m *taxonomyManager) Seed(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read taxonomy seed file: %w", err)
	}

	var seed map[string][]seedItem
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse taxonomy seed file: %w", err)
	}

	for taxonomyType := range seed {
		if !models.IsTaxonomyType(taxonomyType) {
			m.logger.Warn("Skipping unknown taxonomy type in seed file", zap.String("taxonomy_type", taxonomyType))
		}
	}

	created := 0
	for _, store := range m.GetAllTaxonomies() {
		items := seed[store.Type()]
		if len(items) == 0 {
			continue
		}

		existing, err := store.GetAll(ctx)
		if err != nil {
			return created, err
		}
		names := make(map[string]bool, len(existing))
		for _, item := range existing {
			names[strings.ToLower(item.Name)] = true
		}

		for _, item := range items {
			key := strings.ToLower(strings.TrimSpace(item.Name))
			if key == "" || names[key] {
				continue
			}
			if _, err := store.Add(ctx, item.Name, item.Description); err != nil {
				return created, fmt.Errorf("failed to seed %s item %q: %w", store.Type(), item.Name, err)
			}
			names[key] = true
			created++
		}
	}

	m.logger.Info("Seeded taxonomy items", zap.Int("created", created))
	return created, nil
}
