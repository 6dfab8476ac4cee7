package repositories

import (
	"fmt"
	"strings"

	"github.com/facilitymap/facility-engine/pkg/models"
)

const facilityColumns = `f.id, f.name, f.address, f.lat, f.lng, f.phone, f.website,
		       f.description, f.custom_pin_image, f.images, f.created_at, f.updated_at`

var facilityOrderColumns = map[string]string{
	models.FacilityOrderName:      "f.name",
	models.FacilityOrderCreatedAt: "f.created_at",
	models.FacilityOrderUpdatedAt: "f.updated_at",
	models.FacilityOrderID:        "f.id",
}

// queryBuilder accumulates WHERE clauses and their positional arguments.
type queryBuilder struct {
	clauses []string
	args    []any
}

// arg appends v to the argument list and returns its placeholder.
func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *queryBuilder) where() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return "\n\t\tWHERE " + strings.Join(b.clauses, "\n\t\t  AND ")
}

// escapeLike escapes the LIKE metacharacters so user input only ever
// matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// filters adds one clause per active filter in q. Taxonomy types are
// walked in canonical order so identical queries produce identical SQL.
func (b *queryBuilder) filters(q models.FacilityQuery) {
	if q.Search != "" {
		p := b.arg("%" + escapeLike(q.Search) + "%")
		b.clauses = append(b.clauses,
			fmt.Sprintf("(f.name ILIKE %s OR f.address ILIKE %s OR f.description ILIKE %s)", p, p, p))
	}

	for _, taxonomyType := range models.TaxonomyTypes {
		ids := q.Taxonomies[taxonomyType]
		if len(ids) == 0 {
			continue
		}
		typeParam := b.arg(taxonomyType)
		idsParam := b.arg(ids)
		b.clauses = append(b.clauses, fmt.Sprintf(
			"f.id IN (SELECT facility_id FROM facility_taxonomies WHERE taxonomy_type = %s AND item_id = ANY(%s))",
			typeParam, idsParam))
	}

	if bb := q.Bounds; bb != nil {
		south, north := b.arg(bb.South), b.arg(bb.North)
		b.clauses = append(b.clauses, fmt.Sprintf("f.lat BETWEEN %s AND %s", south, north))

		west, east := b.arg(bb.West), b.arg(bb.East)
		if bb.CrossesAntimeridian() {
			b.clauses = append(b.clauses, fmt.Sprintf("(f.lng >= %s OR f.lng <= %s)", west, east))
		} else {
			b.clauses = append(b.clauses, fmt.Sprintf("f.lng BETWEEN %s AND %s", west, east))
		}
	}
}

// BuildFacilityQuery renders a normalized query as parameterized SQL.
// Only allow-listed column names are interpolated; every value is a placeholder.
func BuildFacilityQuery(q models.FacilityQuery) (string, []any) {
	b := &queryBuilder{}
	b.filters(q)

	column, ok := facilityOrderColumns[q.OrderBy]
	if !ok {
		column = facilityOrderColumns[models.FacilityOrderName]
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	orderBy := fmt.Sprintf("%s %s", column, direction)
	if column != "f.id" {
		orderBy += ", f.id ASC"
	}

	limit := q.Limit
	if limit <= 0 || limit > models.MaxFacilityResults {
		limit = models.MaxFacilityResults
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM facilities f%s
		ORDER BY %s
		LIMIT %s OFFSET %s`,
		facilityColumns, b.where(), orderBy, b.arg(limit), b.arg(offset))

	return sql, b.args
}

// BuildFacilityCountQuery renders the filters of q as a COUNT query, ignoring paging and order.
func BuildFacilityCountQuery(q models.FacilityQuery) (string, []any) {
	b := &queryBuilder{}
	b.filters(q)
	return "\n\t\tSELECT COUNT(*)\n\t\tFROM facilities f" + b.where(), b.args
}
