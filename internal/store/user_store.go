package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// UserStore reads user records. Accounts are managed by the identity provider.
type UserStore struct {
	db *sql.DB
}

// GetByID retrieves an active user
func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u := &models.User{}
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, role, partner_id, is_active, created_at, updated_at
		FROM users
		WHERE id = $1 AND is_active
	`, userID).Scan(&u.ID, &u.Email, &u.FullName, &role, &u.PartnerID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = models.Role(role)
	return u, nil
}
