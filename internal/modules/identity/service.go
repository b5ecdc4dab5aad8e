// README: Identity service maps an authenticated email to a customer or driver reference.
package identity

import (
	"context"
	"errors"
	"strings"

	"tripease/internal/apperr"
)

type Service struct {
	store Repository
}

func NewService(store Repository) *Service {
	return &Service{store: store}
}

// Resolve fails with ErrUnauthenticated when the email is empty or unknown.
func (s *Service) Resolve(ctx context.Context, email string) (Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Identity{}, apperr.New(apperr.ErrUnauthenticated, "caller identity missing")
	}
	id, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return Identity{}, apperr.New(apperr.ErrUnauthenticated, "caller is not a registered user")
	}
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

func (s *Service) Register(ctx context.Context, email string, role Role, name string) (Identity, error) {
	fields := map[string]string{}
	if !strings.Contains(email, "@") {
		fields["email"] = "must be a valid email address"
	}
	if !role.Valid() {
		fields["role"] = "must be one of CUSTOMER, DRIVER, VALIDATOR"
	}
	if len(fields) > 0 {
		return Identity{}, &apperr.ValidationError{Fields: fields}
	}
	id := Identity{Email: email, Role: role, Name: name}
	if err := s.store.Save(ctx, &id); err != nil {
		return Identity{}, err
	}
	return id, nil
}
