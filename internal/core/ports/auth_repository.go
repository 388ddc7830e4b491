package ports

import (
	"context"

	"github.com/clientdesk/clients-api/internal/core/domain"
)

// AuthRepository defines the persistence operations for user accounts.
type AuthRepository interface {
	// Create inserts user and fills in its ID and CreatedAt. A duplicate email
	// yields domain.ErrUserExists.
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
}
