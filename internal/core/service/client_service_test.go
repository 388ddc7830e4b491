package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clientdesk/clients-api/internal/core/domain"
	"github.com/clientdesk/clients-api/internal/core/ports"
	"github.com/clientdesk/clients-api/internal/infrastructure/db/memory"
)

type stubObjects struct {
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newStubObjects() *stubObjects {
	return &stubObjects{objects: make(map[string][]byte)}
}

func (s *stubObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = b
	return nil
}

func (s *stubObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *stubObjects) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return nil
}

type failingIdempotency struct{}

func (failingIdempotency) Lookup(context.Context, int64, string) (int64, bool, error) {
	return 0, false, errors.New("redis down")
}

func (failingIdempotency) Remember(context.Context, int64, string, int64) error {
	return errors.New("redis down")
}

func newClientSvc(opts ...ClientOption) (*ClientService, *memory.Store) {
	store := memory.New()
	return NewClientService(store.Clients(), zerolog.Nop(), opts...), store
}

func mustCreate(t *testing.T, svc *ClientService, owner int64, name, email string) *domain.Client {
	t.Helper()
	res, err := svc.Create(context.Background(), ports.CreateClientInput{OwnerID: owner, Name: name, Email: email})
	if err != nil {
		t.Fatalf("create %s: %v", email, err)
	}
	return res.Client
}

func TestClientService_Create_Defaults(t *testing.T) {
	svc, _ := newClientSvc()

	res, err := svc.Create(context.Background(), ports.CreateClientInput{
		OwnerID: 1, Name: "  Acme ", Email: "acme@example.com", Phone: "555",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := res.Client
	if c.ID == 0 || c.Name != "Acme" || c.Phone != "555" {
		t.Fatalf("unexpected client: %+v", c)
	}
	if c.Active || c.Deleted || c.Favorite || c.Rating != 0 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Status() != domain.ClientInactive {
		t.Fatalf("expected inactive, got %s", c.Status())
	}
	if res.Replayed {
		t.Fatalf("fresh create must not be a replay")
	}
}

func TestClientService_Create_RequiresNameAndEmail(t *testing.T) {
	svc, _ := newClientSvc()

	for _, in := range []ports.CreateClientInput{
		{OwnerID: 1, Email: "a@example.com"},
		{OwnerID: 1, Name: "A"},
		{OwnerID: 1, Name: " ", Email: " "},
	} {
		if _, err := svc.Create(context.Background(), in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("input %+v: expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestClientService_Create_DuplicateEmailPerOwner(t *testing.T) {
	svc, _ := newClientSvc()
	mustCreate(t, svc, 1, "A", "dup@example.com")

	_, err := svc.Create(context.Background(), ports.CreateClientInput{OwnerID: 1, Name: "B", Email: "dup@example.com"})
	if !errors.Is(err, domain.ErrClientEmailTaken) {
		t.Fatalf("expected ErrClientEmailTaken, got %v", err)
	}

	mustCreate(t, svc, 2, "A", "dup@example.com")
}

func TestClientService_Create_ConcurrentSameEmail(t *testing.T) {
	svc, _ := newClientSvc()

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		conflict int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), ports.CreateClientInput{OwnerID: 1, Name: "Race", Email: "race@example.com"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrClientEmailTaken):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || conflict != workers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", workers-1, ok, conflict)
	}
}

func TestClientService_Create_IdempotencyReplay(t *testing.T) {
	store := memory.New()
	svc := NewClientService(store.Clients(), zerolog.Nop(), WithIdempotencyStore(store))

	in := ports.CreateClientInput{OwnerID: 1, Name: "Acme", Email: "acme@example.com", IdempotencyKey: "key-1"}
	first, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.Client.ID != first.Client.ID {
		t.Fatalf("expected replay of %d, got %+v", first.Client.ID, second)
	}

	// Another owner using the same key creates its own client.
	other, err := svc.Create(context.Background(), ports.CreateClientInput{OwnerID: 2, Name: "Acme", Email: "acme@example.com", IdempotencyKey: "key-1"})
	if err != nil {
		t.Fatalf("other owner: %v", err)
	}
	if other.Replayed {
		t.Fatalf("idempotency keys must be owner-scoped")
	}
}

func TestClientService_Create_IdempotencyKeyReusedWithDifferentBody(t *testing.T) {
	store := memory.New()
	svc := NewClientService(store.Clients(), zerolog.Nop(), WithIdempotencyStore(store))
	ctx := context.Background()

	in := ports.CreateClientInput{OwnerID: 1, Name: "Acme", Email: "acme@example.com", IdempotencyKey: "key-1"}
	if _, err := svc.Create(ctx, in); err != nil {
		t.Fatalf("first create: %v", err)
	}

	for _, changed := range []ports.CreateClientInput{
		{OwnerID: 1, Name: "Acme", Email: "other@example.com", IdempotencyKey: "key-1"},
		{OwnerID: 1, Name: "Globex", Email: "acme@example.com", IdempotencyKey: "key-1"},
	} {
		if _, err := svc.Create(ctx, changed); !errors.Is(err, domain.ErrIdempotencyKeyUsed) {
			t.Fatalf("create %s/%s: expected ErrIdempotencyKeyUsed, got %v", changed.Name, changed.Email, err)
		}
	}

	// Surrounding whitespace and email case do not count as a different request.
	same := ports.CreateClientInput{OwnerID: 1, Name: " Acme ", Email: "ACME@example.com", IdempotencyKey: "key-1"}
	res, err := svc.Create(ctx, same)
	if err != nil || !res.Replayed {
		t.Fatalf("expected replay, got %+v, %v", res, err)
	}
	list, err := svc.List(ctx, ports.ListClientsInput{OwnerID: 1})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected a single stored client, got %d (%v)", len(list), err)
	}
}

func TestClientService_Create_IdempotencyStoreDownStillCreates(t *testing.T) {
	svc, _ := newClientSvc(WithIdempotencyStore(failingIdempotency{}))

	res, err := svc.Create(context.Background(), ports.CreateClientInput{OwnerID: 1, Name: "A", Email: "a@example.com", IdempotencyKey: "k"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Replayed || res.Client.ID == 0 {
		t.Fatalf("expected fresh client, got %+v", res)
	}
}

func TestClientService_List_LimitsAndVisibility(t *testing.T) {
	svc, _ := newClientSvc()
	ctx := context.Background()

	a := mustCreate(t, svc, 1, "Alpha", "alpha@example.com")
	b := mustCreate(t, svc, 1, "Beta", "beta@example.com")
	mustCreate(t, svc, 2, "Gamma", "gamma@example.com")

	if _, err := svc.SoftDelete(ctx, 1, b.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	got, err := svc.List(ctx, ports.ListClientsInput{OwnerID: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("expected only %d, got %+v", a.ID, got)
	}

	got, err = svc.List(ctx, ports.ListClientsInput{OwnerID: 1, Search: "beta"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("search must include deleted rows, got %+v", got)
	}

	if _, err := svc.List(ctx, ports.ListClientsInput{OwnerID: 1, Limit: -1}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative limit, got %v", err)
	}
	if _, err := svc.List(ctx, ports.ListClientsInput{OwnerID: 1, Offset: -1}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative offset, got %v", err)
	}

	empty, err := svc.List(ctx, ports.ListClientsInput{OwnerID: 99})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", empty, err)
	}
}

type recordingClientRepo struct {
	ports.ClientRepository
	filter ports.ListClientsFilter
}

func (r *recordingClientRepo) List(_ context.Context, f ports.ListClientsFilter) ([]*domain.Client, error) {
	r.filter = f
	return nil, nil
}

func TestClientService_List_DefaultAndCappedLimit(t *testing.T) {
	repo := &recordingClientRepo{}
	svc := NewClientService(repo, zerolog.Nop())

	if _, err := svc.List(context.Background(), ports.ListClientsInput{OwnerID: 1}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.filter.Limit != DefaultListLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultListLimit, repo.filter.Limit)
	}

	if _, err := svc.List(context.Background(), ports.ListClientsInput{OwnerID: 1, Limit: 10_000}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.filter.Limit != MaxListLimit {
		t.Fatalf("expected capped limit %d, got %d", MaxListLimit, repo.filter.Limit)
	}
}

func TestClientService_Replace_ClearsOmittedFields(t *testing.T) {
	svc, _ := newClientSvc()
	ctx := context.Background()

	active := true
	res, err := svc.Create(ctx, ports.CreateClientInput{OwnerID: 1, Name: "A", Email: "a@example.com", Phone: "555", Active: &active})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Replace(ctx, 1, res.Client.ID, ports.ReplaceClientInput{Name: "B", Email: "b@example.com"})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if updated.Name != "B" || updated.Email != "b@example.com" || updated.Phone != "" || updated.Active {
		t.Fatalf("unexpected replace result: %+v", updated)
	}
	if updated.UpdatedAt.Before(res.Client.UpdatedAt) {
		t.Fatalf("updated_at went backwards")
	}

	if _, err := svc.Replace(ctx, 1, res.Client.ID, ports.ReplaceClientInput{Name: "B"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Replace(ctx, 2, res.Client.ID, ports.ReplaceClientInput{Name: "B", Email: "b@example.com"}); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound for foreign owner, got %v", err)
	}
}

func TestClientService_Patch(t *testing.T) {
	svc, _ := newClientSvc()
	ctx := context.Background()
	c := mustCreate(t, svc, 1, "A", "a@example.com")
	mustCreate(t, svc, 1, "B", "b@example.com")

	if _, err := svc.Patch(ctx, 1, c.ID, domain.ClientChanges{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty patch, got %v", err)
	}

	empty := ""
	if _, err := svc.Patch(ctx, 1, c.ID, domain.ClientChanges{Name: &empty}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}

	taken := "b@example.com"
	if _, err := svc.Patch(ctx, 1, c.ID, domain.ClientChanges{Email: &taken}); !errors.Is(err, domain.ErrClientEmailTaken) {
		t.Fatalf("expected ErrClientEmailTaken, got %v", err)
	}

	fav := true
	updated, err := svc.Patch(ctx, 1, c.ID, domain.ClientChanges{Favorite: &fav})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if !updated.Favorite || updated.Name != "A" {
		t.Fatalf("patch must only touch favorite: %+v", updated)
	}
}

func TestClientService_SetRating(t *testing.T) {
	svc, _ := newClientSvc()
	c := mustCreate(t, svc, 1, "A", "a@example.com")

	for _, bad := range []float64{-0.5, 5.5, 3.2} {
		if _, err := svc.SetRating(context.Background(), 1, c.ID, bad); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("rating %v: expected ErrInvalidInput, got %v", bad, err)
		}
	}

	updated, err := svc.SetRating(context.Background(), 1, c.ID, 4.5)
	if err != nil {
		t.Fatalf("set rating: %v", err)
	}
	if updated.Rating != 4.5 {
		t.Fatalf("expected 4.5, got %v", updated.Rating)
	}
}

func TestClientService_SoftDeleteAndRestore(t *testing.T) {
	svc, _ := newClientSvc()
	ctx := context.Background()
	c := mustCreate(t, svc, 1, "A", "a@example.com")

	trashed, err := svc.SoftDelete(ctx, 1, c.ID)
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if trashed.Status() != domain.ClientDeleted {
		t.Fatalf("expected deleted status, got %s", trashed.Status())
	}

	got, err := svc.Get(ctx, 1, c.ID)
	if err != nil || !got.Deleted {
		t.Fatalf("soft-deleted client must stay addressable: %+v %v", got, err)
	}

	restored, err := svc.Restore(ctx, 1, c.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Deleted || !restored.Active || restored.Status() != domain.ClientActive {
		t.Fatalf("unexpected restored client: %+v", restored)
	}
}

func TestClientService_Delete(t *testing.T) {
	svc, _ := newClientSvc()
	ctx := context.Background()
	c := mustCreate(t, svc, 1, "A", "a@example.com")

	if err := svc.Delete(ctx, 2, c.ID); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound for foreign owner, got %v", err)
	}
	if err := svc.Delete(ctx, 1, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, 1, c.ID); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound after delete, got %v", err)
	}
}

func TestClientService_Avatar_Unavailable(t *testing.T) {
	svc, _ := newClientSvc()
	c := mustCreate(t, svc, 1, "A", "a@example.com")

	_, err := svc.UploadAvatar(context.Background(), 1, c.ID, ports.AvatarUpload{Body: strings.NewReader("x"), Size: 1, ContentType: "image/png"})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := svc.OpenAvatar(context.Background(), 1, c.ID); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientService_Avatar_UploadReplaceAndOpen(t *testing.T) {
	objects := newStubObjects()
	svc, _ := newClientSvc(WithAvatarStorage(objects))
	ctx := context.Background()
	c := mustCreate(t, svc, 1, "A", "a@example.com")

	if _, err := svc.OpenAvatar(ctx, 1, c.ID); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound without avatar, got %v", err)
	}

	first, err := svc.UploadAvatar(ctx, 1, c.ID, ports.AvatarUpload{Body: strings.NewReader("png-1"), Size: 5, ContentType: "image/png"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(first.Avatar, "avatars/1/") || !strings.HasSuffix(first.Avatar, ".png") {
		t.Fatalf("unexpected avatar key: %s", first.Avatar)
	}

	second, err := svc.UploadAvatar(ctx, 1, c.ID, ports.AvatarUpload{Body: strings.NewReader("png-2"), Size: 5, ContentType: "image/png"})
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if len(objects.deleted) != 1 || objects.deleted[0] != first.Avatar {
		t.Fatalf("expected previous avatar to be removed, got %v", objects.deleted)
	}

	rc, err := svc.OpenAvatar(ctx, 1, c.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "png-2" {
		t.Fatalf("unexpected avatar body %q (key %s)", body, second.Avatar)
	}
}

func TestClientService_Avatar_ForeignKeyIsNeitherServedNorDeleted(t *testing.T) {
	objects := newStubObjects()
	svc, _ := newClientSvc(WithAvatarStorage(objects))
	ctx := context.Background()

	mine := mustCreate(t, svc, 1, "Mine", "mine@example.com")
	theirs := mustCreate(t, svc, 2, "Theirs", "theirs@example.com")

	uploaded, err := svc.UploadAvatar(ctx, 2, theirs.ID, ports.AvatarUpload{Body: strings.NewReader("SECRET"), Size: 6, ContentType: "image/png"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	foreignKey := uploaded.Avatar

	// Neither another owner's key nor a sibling client's key may be assigned.
	sibling := mustCreate(t, svc, 1, "Sibling", "sibling@example.com")
	for _, key := range []string{foreignKey, domain.AvatarKeyPrefix(1, sibling.ID) + "x.png"} {
		if _, err := svc.Patch(ctx, 1, mine.ID, domain.ClientChanges{Avatar: &key}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("patch avatar %s: expected ErrInvalidInput, got %v", key, err)
		}
	}

	// A key planted directly in the store is still not trusted.
	if _, err := svc.write(ctx, "patch", 1, mine.ID, domain.ClientChanges{Avatar: &foreignKey}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.OpenAvatar(ctx, 1, mine.ID); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound for a foreign key, got %v", err)
	}
	if _, err := svc.UploadAvatar(ctx, 1, mine.ID, ports.AvatarUpload{Body: strings.NewReader("png"), Size: 3, ContentType: "image/png"}); err != nil {
		t.Fatalf("own upload: %v", err)
	}
	if len(objects.deleted) != 0 {
		t.Fatalf("foreign object must not be deleted, got %v", objects.deleted)
	}
	if string(objects.objects[foreignKey]) != "SECRET" {
		t.Fatalf("foreign object was altered")
	}

	// External URLs and clearing stay allowed.
	external := "https://cdn.example.com/a.png"
	if _, err := svc.Patch(ctx, 1, mine.ID, domain.ClientChanges{Avatar: &external}); err != nil {
		t.Fatalf("external avatar: %v", err)
	}
}

func TestClientService_Avatar_Validation(t *testing.T) {
	objects := newStubObjects()
	svc, _ := newClientSvc(WithAvatarStorage(objects))
	c := mustCreate(t, svc, 1, "A", "a@example.com")

	cases := []ports.AvatarUpload{
		{Body: strings.NewReader("x"), Size: 1, ContentType: "application/pdf"},
		{Body: strings.NewReader(""), Size: 0, ContentType: "image/png"},
		{Body: strings.NewReader("x"), Size: MaxAvatarSize + 1, ContentType: "image/jpeg"},
	}
	for _, up := range cases {
		if _, err := svc.UploadAvatar(context.Background(), 1, c.ID, up); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("upload %s/%d: expected ErrInvalidInput, got %v", up.ContentType, up.Size, err)
		}
	}

	_, err := svc.UploadAvatar(context.Background(), 2, c.ID, ports.AvatarUpload{Body: strings.NewReader("x"), Size: 1, ContentType: "image/png"})
	if !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound for foreign owner, got %v", err)
	}
	if len(objects.objects) != 0 {
		t.Fatalf("nothing should have been stored")
	}
}
