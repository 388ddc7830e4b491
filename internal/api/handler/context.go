package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/clientdesk/clients-api/internal/api/middleware"
	"github.com/clientdesk/clients-api/internal/core/domain"
)

// ctxOwner extracts the user id injected by the Auth middleware. A missing id
// means the route was wired without the middleware; fail closed.
func ctxOwner(c echo.Context) (int64, error) {
	id, _ := c.Get(middleware.UserIDKey).(int64)
	if id <= 0 {
		return 0, fmt.Errorf("%w: missing user identity", domain.ErrUnauthenticated)
	}
	return id, nil
}
