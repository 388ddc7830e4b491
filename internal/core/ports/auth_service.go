package ports

import (
	"context"

	"github.com/clientdesk/clients-api/internal/core/domain"
)

// RegisterInput carries the fields accepted by the sign-up endpoint.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// AuthResult is returned by a successful Register or Login.
type AuthResult struct {
	Token string
	User  *domain.User
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
}
