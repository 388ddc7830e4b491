package ports

import (
	"context"
	"io"

	"github.com/clientdesk/clients-api/internal/core/domain"
)

// CreateClientInput carries the fields accepted on client creation.
type CreateClientInput struct {
	OwnerID        int64
	Name           string
	Email          string
	Phone          string
	Active         *bool
	IdempotencyKey string
}

// CreateClientResult wraps the created client.
type CreateClientResult struct {
	Client *domain.Client
	// Replayed is true when the Idempotency-Key matched an earlier creation.
	Replayed bool
}

// ReplaceClientInput carries a full (PUT) update. Phone and Active default to
// their zero values when absent.
type ReplaceClientInput struct {
	Name   string
	Email  string
	Phone  string
	Active bool
}

// ListClientsInput carries the parameters of the list endpoint.
type ListClientsInput struct {
	OwnerID int64
	Name    string
	Email   string
	Active  *bool
	Search  string
	Limit   int
	Offset  int
}

// AvatarUpload is an image to store as a client's avatar.
type AvatarUpload struct {
	Body        io.Reader
	Size        int64
	ContentType string
}

// ClientService defines the use cases over owner-scoped client records.
type ClientService interface {
	List(ctx context.Context, in ListClientsInput) ([]*domain.Client, error)
	Get(ctx context.Context, ownerID, id int64) (*domain.Client, error)
	Create(ctx context.Context, in CreateClientInput) (*CreateClientResult, error)
	Replace(ctx context.Context, ownerID, id int64, in ReplaceClientInput) (*domain.Client, error)
	Patch(ctx context.Context, ownerID, id int64, changes domain.ClientChanges) (*domain.Client, error)
	Delete(ctx context.Context, ownerID, id int64) error

	SetFavorite(ctx context.Context, ownerID, id int64, favorite bool) (*domain.Client, error)
	SetRating(ctx context.Context, ownerID, id int64, rating float64) (*domain.Client, error)
	SoftDelete(ctx context.Context, ownerID, id int64) (*domain.Client, error)
	Restore(ctx context.Context, ownerID, id int64) (*domain.Client, error)

	UploadAvatar(ctx context.Context, ownerID, id int64, upload AvatarUpload) (*domain.Client, error)
	OpenAvatar(ctx context.Context, ownerID, id int64) (io.ReadCloser, error)
}
