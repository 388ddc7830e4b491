package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clientdesk/clients-api/internal/core/domain"
	"github.com/clientdesk/clients-api/internal/core/ports"
)

type stubAuthRepo struct {
	users     map[string]*domain.User
	nextID    int64
	createErr error
	findErr   error
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{users: make(map[string]*domain.User), nextID: 1}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubAuthRepo) Create(_ context.Context, user *domain.User) error {
	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.users[user.Email]; exists {
		return domain.ErrUserExists
	}
	user.ID = r.nextID
	r.nextID++
	r.users[user.Email] = cloneUser(user)
	return nil
}

func (r *stubAuthRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	if u, ok := r.users[email]; ok {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubAuthRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func newAuthSvc(repo *stubAuthRepo) *AuthService {
	return NewAuthService(repo, "secret", time.Hour, zerolog.Nop())
}

func register(t *testing.T, svc *AuthService, email string) *ports.AuthResult {
	t.Helper()
	res, err := svc.Register(context.Background(), ports.RegisterInput{
		Name:     "Ana",
		Email:    email,
		Phone:    "555-0100",
		Password: "pass123",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return res
}

func TestAuthService_Register_Success(t *testing.T) {
	repo := newStubAuthRepo()
	svc := newAuthSvc(repo)

	res := register(t, svc, "ana@example.com")
	if res.Token == "" {
		t.Fatalf("expected token")
	}
	if res.User.PasswordHash == "pass123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(res.User.PasswordHash), []byte("pass123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if res.User.Avatar != domain.DefaultAvatar {
		t.Fatalf("expected default avatar, got %q", res.User.Avatar)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	svc := newAuthSvc(newStubAuthRepo())

	cases := []ports.RegisterInput{
		{Email: "a@example.com", Password: "x"},
		{Name: "A", Password: "x"},
		{Name: "A", Email: "a@example.com"},
		{Name: "   ", Email: "a@example.com", Password: "x"},
	}
	for _, in := range cases {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("input %+v: expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	repo := newStubAuthRepo()
	svc := newAuthSvc(repo)
	register(t, svc, "ana@example.com")

	_, err := svc.Register(context.Background(), ports.RegisterInput{Name: "Other", Email: "ana@example.com", Password: "x"})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Register_IndexViolationIsConflict(t *testing.T) {
	repo := newStubAuthRepo()
	repo.createErr = domain.ErrUserExists
	svc := newAuthSvc(repo)

	_, err := svc.Register(context.Background(), ports.RegisterInput{Name: "A", Email: "a@example.com", Password: "x"})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Register_LookupFailure(t *testing.T) {
	repo := newStubAuthRepo()
	repo.findErr = errors.New("connection reset")
	svc := newAuthSvc(repo)

	_, err := svc.Register(context.Background(), ports.RegisterInput{Name: "A", Email: "a@example.com", Password: "x"})
	if err == nil || domain.KindOf(err) != domain.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	repo := newStubAuthRepo()
	svc := newAuthSvc(repo)
	registered := register(t, svc, "ana@example.com")

	res, err := svc.Login(context.Background(), "ana@example.com", "pass123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if res.User.ID != registered.User.ID {
		t.Fatalf("expected user %d, got %d", registered.User.ID, res.User.ID)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(res.Token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("failed to parse token: %v", err)
	}
	if claims.Subject != strconv.FormatInt(registered.User.ID, 10) {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > time.Hour {
		t.Fatalf("unexpected expiry: %v", claims.ExpiresAt)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti")
	}
}

func TestAuthService_Login_TokensAreDistinct(t *testing.T) {
	svc := newAuthSvc(newStubAuthRepo())
	register(t, svc, "ana@example.com")

	a, err := svc.Login(context.Background(), "ana@example.com", "pass123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	b, err := svc.Login(context.Background(), "ana@example.com", "pass123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if a.Token == b.Token {
		t.Fatalf("expected distinct tokens")
	}
}

func TestAuthService_Login_InvalidPassword(t *testing.T) {
	svc := newAuthSvc(newStubAuthRepo())
	register(t, svc, "ana@example.com")

	if _, err := svc.Login(context.Background(), "ana@example.com", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_UserNotFound(t *testing.T) {
	svc := newAuthSvc(newStubAuthRepo())

	if _, err := svc.Login(context.Background(), "ghost@example.com", "pwd"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthService_Login_MissingFields(t *testing.T) {
	svc := newAuthSvc(newStubAuthRepo())

	if _, err := svc.Login(context.Background(), "", "pwd"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "a@example.com", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
