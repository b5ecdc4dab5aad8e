// README: Identity store backed by PostgreSQL (users table keyed by email).
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripease/internal/apperr"
)

type Repository interface {
	FindByEmail(ctx context.Context, email string) (Identity, error)
	Save(ctx context.Context, id *Identity) error
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (Identity, error) {
	var id Identity
	err := s.db.QueryRow(ctx, `
		SELECT id, email, role, name
		FROM users
		WHERE email = $1`, strings.ToLower(email),
	).Scan(&id.ReferenceID, &id.Email, &id.Role, &id.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, apperr.New(apperr.ErrNotFound, "user not found")
	}
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Save inserts the user or updates role and name for an existing email.
func (s *Store) Save(ctx context.Context, id *Identity) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO users (email, role, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET role = EXCLUDED.role, name = EXCLUDED.name
		RETURNING id`,
		strings.ToLower(id.Email), string(id.Role), id.Name,
	).Scan(&id.ReferenceID)
}
