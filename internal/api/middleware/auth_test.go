package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/clientdesk/clients-api/internal/core/domain"
)

type stubUsers struct {
	users map[int64]*domain.User
	err   error
	calls int
}

func (s *stubUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func runAuth(t *testing.T, users UserFinder, header string) (error, bool, any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	var userID any
	err := Auth("secret", users)(func(c echo.Context) error {
		called = true
		userID = c.Get(UserIDKey)
		return c.NoContent(http.StatusOK)
	})(c)
	return err, called, userID
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	users := &stubUsers{users: map[int64]*domain.User{7: {ID: 7, Email: "a@x.com"}}}
	token := signToken(t, jwt.SigningMethodHS256, []byte("secret"), validClaims("7"))

	err, called, userID := runAuth(t, users, "Bearer "+token)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if userID != int64(7) {
		t.Fatalf("expected user_id 7, got %v", userID)
	}
	if users.calls != 1 {
		t.Fatalf("expected one lookup, got %d", users.calls)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	users := &stubUsers{users: map[int64]*domain.User{7: {ID: 7}}}

	expired := validClaims("7")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("7"))},
		{"wrong algorithm", "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte("secret"), validClaims("7"))},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("secret"), expired)},
		{"non numeric subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("secret"), validClaims("a@x.com"))},
		{"unknown user", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("secret"), validClaims("99"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err, called, _ := runAuth(t, users, tt.header)
			if !errors.Is(err, domain.ErrUnauthenticated) {
				t.Fatalf("expected ErrUnauthenticated, got %v", err)
			}
			if called {
				t.Fatalf("next must not be called")
			}
		})
	}
}

func TestAuthMiddleware_LookupFailure(t *testing.T) {
	users := &stubUsers{err: errors.New("connection reset")}
	token := signToken(t, jwt.SigningMethodHS256, []byte("secret"), validClaims("7"))

	err, called, _ := runAuth(t, users, "Bearer "+token)
	if err == nil || errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if domain.KindOf(err) != domain.KindInternal {
		t.Fatalf("expected internal kind, got %s", domain.KindOf(err))
	}
	if called {
		t.Fatalf("next must not be called")
	}
}
