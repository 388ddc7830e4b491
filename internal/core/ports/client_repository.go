package ports

import (
	"context"

	"github.com/clientdesk/clients-api/internal/core/domain"
)

// ListClientsFilter carries the query parameters for listing clients.
// OwnerID is always set by the service layer.
type ListClientsFilter struct {
	OwnerID int64
	Name    string // case-insensitive substring
	Email   string // exact match
	Active  *bool
	Search  string // substring over name, email and phone; includes deleted rows
	Limit   int
	Offset  int
}

// ClientRepository defines persistence operations for clients. Every method
// is scoped by owner; rows of other owners behave as if they did not exist.
type ClientRepository interface {
	// Create inserts c and fills in its ID and timestamps. A duplicate
	// (owner, email) pair yields domain.ErrClientEmailTaken.
	Create(ctx context.Context, c *domain.Client) error
	FindByID(ctx context.Context, ownerID, id int64) (*domain.Client, error)
	List(ctx context.Context, filter ListClientsFilter) ([]*domain.Client, error)
	// Update writes the supplied changes in a single statement and returns
	// the stored row.
	Update(ctx context.Context, ownerID, id int64, changes domain.ClientChanges) (*domain.Client, error)
	Delete(ctx context.Context, ownerID, id int64) error
}
