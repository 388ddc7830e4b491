package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clientdesk/clients-api/internal/metrics"
	"github.com/clientdesk/clients-api/internal/core/domain"
	"github.com/clientdesk/clients-api/internal/core/ports"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500

	MaxAvatarSize = 5 << 20
)

// ClientService implements the owner-scoped client use cases.
type ClientService struct {
	repo        ports.ClientRepository
	idempotency ports.IdempotencyStore // optional
	avatars     ports.ObjectStorage    // optional
	logger      zerolog.Logger
	now         func() time.Time
}

// ClientOption configures optional collaborators of ClientService.
type ClientOption func(*ClientService)

// WithIdempotencyStore enables Idempotency-Key replay on Create.
func WithIdempotencyStore(store ports.IdempotencyStore) ClientOption {
	return func(s *ClientService) { s.idempotency = store }
}

// WithAvatarStorage enables avatar upload and download.
func WithAvatarStorage(storage ports.ObjectStorage) ClientOption {
	return func(s *ClientService) { s.avatars = storage }
}

func NewClientService(repo ports.ClientRepository, logger zerolog.Logger, opts ...ClientOption) *ClientService {
	s := &ClientService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the owner's clients in ascending id order. Deleted clients are
// only included when a search term is given.
func (s *ClientService) List(ctx context.Context, in ports.ListClientsInput) ([]*domain.Client, error) {
	limit := in.Limit
	switch {
	case limit == 0:
		limit = DefaultListLimit
	case limit < 0:
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	if in.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidInput)
	}

	clients, err := s.repo.List(ctx, ports.ListClientsFilter{
		OwnerID: in.OwnerID,
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Active:  in.Active,
		Search:  strings.TrimSpace(in.Search),
		Limit:   limit,
		Offset:  in.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	if clients == nil {
		clients = []*domain.Client{}
	}
	return clients, nil
}

func (s *ClientService) Get(ctx context.Context, ownerID, id int64) (*domain.Client, error) {
	c, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// Create inserts a new client for the owner. Email uniqueness per owner is
// decided by the store's unique constraint, not by a prior read.
func (s *ClientService) Create(ctx context.Context, in ports.CreateClientInput) (*ports.CreateClientResult, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", domain.ErrInvalidInput)
	}

	if replay := s.lookupReplay(ctx, in.OwnerID, in.IdempotencyKey); replay != nil {
		if replay.Name != name || !strings.EqualFold(replay.Email, email) {
			return nil, fmt.Errorf("%w: key %q", domain.ErrIdempotencyKeyUsed, in.IdempotencyKey)
		}
		return &ports.CreateClientResult{Client: replay, Replayed: true}, nil
	}

	now := s.now()
	client := &domain.Client{
		OwnerID:   in.OwnerID,
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(in.Phone),
		Active:    in.Active != nil && *in.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, client); err != nil {
		if errors.Is(err, domain.ErrClientEmailTaken) {
			return nil, err
		}
		s.logger.Error().Err(err).Int64("owner_id", in.OwnerID).Msg("failed to create client")
		return nil, fmt.Errorf("create client: %w", err)
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.Remember(ctx, in.OwnerID, in.IdempotencyKey, client.ID); err != nil {
			s.logger.Warn().Err(err).Str("idempotency_key", in.IdempotencyKey).Msg("failed to store idempotency key")
		}
	}

	metrics.ClientMutationsTotal.WithLabelValues("create").Inc()
	s.logger.Info().Int64("client_id", client.ID).Int64("owner_id", in.OwnerID).Msg("client created")
	return &ports.CreateClientResult{Client: client}, nil
}

// lookupReplay returns the client an earlier request with the same key
// created, or nil. Cache failures degrade to a normal create.
func (s *ClientService) lookupReplay(ctx context.Context, ownerID int64, key string) *domain.Client {
	if key == "" || s.idempotency == nil {
		return nil
	}
	clientID, found, err := s.idempotency.Lookup(ctx, ownerID, key)
	if err != nil {
		metrics.IdempotencyLookupsTotal.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency lookup failed, creating anyway")
		return nil
	}
	if !found {
		metrics.IdempotencyLookupsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	// The remembered client may have been deleted since.
	existing, err := s.repo.FindByID(ctx, ownerID, clientID)
	if err != nil {
		metrics.IdempotencyLookupsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.IdempotencyLookupsTotal.WithLabelValues("hit").Inc()
	s.logger.Info().Str("idempotency_key", key).Int64("client_id", clientID).Msg("idempotent replay")
	return existing
}

// Replace performs a full update: phone and active are overwritten even when
// the caller left them out.
func (s *ClientService) Replace(ctx context.Context, ownerID, id int64, in ports.ReplaceClientInput) (*domain.Client, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", domain.ErrInvalidInput)
	}
	phone := strings.TrimSpace(in.Phone)
	active := in.Active

	return s.write(ctx, "replace", ownerID, id, domain.ClientChanges{
		Name:   &name,
		Email:  &email,
		Phone:  &phone,
		Active: &active,
	})
}

// Patch writes only the supplied fields.
func (s *ClientService) Patch(ctx context.Context, ownerID, id int64, changes domain.ClientChanges) (*domain.Client, error) {
	if changes.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
	}
	if err := changes.Validate(); err != nil {
		return nil, err
	}
	if changes.Name != nil {
		name := strings.TrimSpace(*changes.Name)
		changes.Name = &name
	}
	if changes.Email != nil {
		email := strings.TrimSpace(*changes.Email)
		changes.Email = &email
	}
	// Stored keys are issued by UploadAvatar only.
	if changes.Avatar != nil && domain.IsStoredAvatar(*changes.Avatar) && !domain.OwnsAvatarKey(ownerID, id, *changes.Avatar) {
		return nil, fmt.Errorf("%w: avatar %q was not uploaded for this client", domain.ErrInvalidInput, *changes.Avatar)
	}
	return s.write(ctx, "patch", ownerID, id, changes)
}

func (s *ClientService) SetFavorite(ctx context.Context, ownerID, id int64, favorite bool) (*domain.Client, error) {
	return s.Patch(ctx, ownerID, id, domain.ClientChanges{Favorite: &favorite})
}

func (s *ClientService) SetRating(ctx context.Context, ownerID, id int64, rating float64) (*domain.Client, error) {
	return s.Patch(ctx, ownerID, id, domain.ClientChanges{Rating: &rating})
}

// SoftDelete hides the client from default listings without removing it.
func (s *ClientService) SoftDelete(ctx context.Context, ownerID, id int64) (*domain.Client, error) {
	deleted := true
	return s.Patch(ctx, ownerID, id, domain.ClientChanges{Deleted: &deleted})
}

// Restore brings a soft-deleted client back as active.
func (s *ClientService) Restore(ctx context.Context, ownerID, id int64) (*domain.Client, error) {
	deleted, active := false, true
	return s.Patch(ctx, ownerID, id, domain.ClientChanges{Deleted: &deleted, Active: &active})
}

func (s *ClientService) Delete(ctx context.Context, ownerID, id int64) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	metrics.ClientMutationsTotal.WithLabelValues("delete").Inc()
	s.logger.Info().Int64("client_id", id).Int64("owner_id", ownerID).Msg("client deleted")
	return nil
}

// UploadAvatar stores the image and points the client's avatar at it.
func (s *ClientService) UploadAvatar(ctx context.Context, ownerID, id int64, upload ports.AvatarUpload) (*domain.Client, error) {
	if s.avatars == nil {
		return nil, fmt.Errorf("%w: avatar storage is not configured", domain.ErrUnavailable)
	}
	ext, ok := domain.AvatarExtension(upload.ContentType)
	if !ok {
		return nil, fmt.Errorf("%w: avatar must be a jpeg, png or webp image", domain.ErrInvalidInput)
	}
	if upload.Size <= 0 || upload.Size > MaxAvatarSize {
		return nil, fmt.Errorf("%w: avatar must be between 1 byte and %d bytes", domain.ErrInvalidInput, MaxAvatarSize)
	}

	// Fail before uploading when the client is absent or foreign.
	current, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}

	key := domain.AvatarKeyPrefix(ownerID, id) + uuid.NewString() + ext
	if err := s.avatars.Put(ctx, key, upload.Body, upload.Size, upload.ContentType); err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}

	updated, err := s.write(ctx, "avatar", ownerID, id, domain.ClientChanges{Avatar: &key})
	if err != nil {
		return nil, err
	}

	if domain.OwnsAvatarKey(ownerID, id, current.Avatar) {
		if err := s.avatars.Delete(ctx, current.Avatar); err != nil {
			s.logger.Warn().Err(err).Str("key", current.Avatar).Msg("failed to remove previous avatar")
		}
	}
	return updated, nil
}

// OpenAvatar streams the stored avatar of a client.
func (s *ClientService) OpenAvatar(ctx context.Context, ownerID, id int64) (io.ReadCloser, error) {
	if s.avatars == nil {
		return nil, fmt.Errorf("%w: avatar storage is not configured", domain.ErrUnavailable)
	}
	c, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("open avatar: %w", err)
	}
	if !domain.OwnsAvatarKey(ownerID, id, c.Avatar) {
		return nil, fmt.Errorf("open avatar: %w", domain.ErrClientNotFound)
	}
	rc, err := s.avatars.Get(ctx, c.Avatar)
	if err != nil {
		return nil, fmt.Errorf("open avatar: %w", err)
	}
	return rc, nil
}

func (s *ClientService) write(ctx context.Context, op string, ownerID, id int64, changes domain.ClientChanges) (*domain.Client, error) {
	changes.UpdatedAt = s.now()
	c, err := s.repo.Update(ctx, ownerID, id, changes)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) || errors.Is(err, domain.ErrClientEmailTaken) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("op", op).Int64("client_id", id).Msg("failed to update client")
		return nil, fmt.Errorf("%s client: %w", op, err)
	}
	metrics.ClientMutationsTotal.WithLabelValues(op).Inc()
	return c, nil
}
