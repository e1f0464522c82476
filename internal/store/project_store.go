package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// ProjectStore handles projects and the categorization lookup tables
type ProjectStore struct {
	db *sql.DB
}

// GetByID retrieves a project by ID
func (s *ProjectStore) GetByID(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	project := &models.Project{}
	var kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, partner_id, is_active, created_at
		FROM projects
		WHERE id = $1
	`, projectID).Scan(&project.ID, &project.Name, &kind, &project.PartnerID, &project.IsActive, &project.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	project.Kind = models.ProjectKind(kind)
	return project, nil
}

// List retrieves projects, optionally restricted to one partner
func (s *ProjectStore) List(ctx context.Context, partnerID *uuid.UUID, activeOnly bool) ([]models.Project, error) {
	query := `
		SELECT id, name, kind, partner_id, is_active, created_at
		FROM projects
		WHERE ($1::uuid IS NULL OR partner_id = $1)
	`
	if activeOnly {
		query += " AND is_active = true"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var p models.Project
		var kind string
		if err := rows.Scan(&p.ID, &p.Name, &kind, &p.PartnerID, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Kind = models.ProjectKind(kind)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Lookups returns the selectable values of a categorization field. Modules
// are filtered to the project and the shared ones.
func (s *ProjectStore) Lookups(ctx context.Context, field models.CategorizationField, projectID *uuid.UUID) ([]models.Lookup, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("unknown field %q", string(field))
	}

	var rows *sql.Rows
	var err error
	if field == models.FieldModule {
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, name FROM modules WHERE project_id IS NULL OR project_id = $1 ORDER BY name",
			projectID,
		)
	} else {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf("SELECT id, name FROM %s ORDER BY id", field.LookupTable()))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s values: %w", field, err)
	}
	defer rows.Close()

	values := []models.Lookup{}
	for rows.Next() {
		var l models.Lookup
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", field, err)
		}
		values = append(values, l)
	}
	return values, rows.Err()
}
