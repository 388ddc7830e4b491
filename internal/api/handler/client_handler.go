package handler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clientdesk/clients-api/internal/core/domain"
	"github.com/clientdesk/clients-api/internal/core/ports"
)

// HeaderIdempotencyKey makes POST /clients safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxPatchBody = 1 << 20

// ClientHandler serves the owner-scoped /clients resource.
type ClientHandler struct {
	clients ports.ClientService
}

// NewClientHandler creates a ClientHandler backed by the given service.
func NewClientHandler(clients ports.ClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

// List handles GET /clients.
//
// @Summary      List clients
// @Description  Deleted clients are hidden unless a search term (q) is given.
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        name    query     string  false  "Name substring (case-insensitive)"
// @Param        email   query     string  false  "Exact email"
// @Param        active  query     bool    false  "Active flag"
// @Param        q       query     string  false  "Search over name, email and phone"
// @Param        limit   query     int     false  "Page size (default 100, max 500)"
// @Param        offset  query     int     false  "Offset"
// @Success      200     {array}   clientResponse
// @Failure      400     {object}  errorResponse
// @Failure      401     {object}  errorResponse
// @Failure      500     {object}  errorResponse
// @Router       /clients [get]
func (h *ClientHandler) List(c echo.Context) error {
	ownerID, err := ctxOwner(c)
	if err != nil {
		return err
	}

	in, err := parseListQuery(c.QueryParams(), ownerID)
	if err != nil {
		return err
	}

	clients, err := h.clients.List(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResponses(clients))
}

// Get handles GET /clients/:id.
//
// @Summary      Get a client
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Client ID"
// @Success      200  {object}  clientResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /clients/{id} [get]
func (h *ClientHandler) Get(c echo.Context) error {
	ownerID, id, err := h.target(c)
	if err != nil {
		return err
	}

	client, err := h.clients.Get(c.Request().Context(), ownerID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResponse(client))
}

// Create handles POST /clients. A repeated Idempotency-Key returns the
// originally created client with 200.
//
// @Summary      Create a client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string         false  "Retry key"
// @Param        body             body      clientRequest  true   "Client"
// @Success      201              {object}  clientResponse
// @Success      200              {object}  clientResponse  "Idempotent replay"
// @Failure      400              {object}  errorResponse
// @Failure      401              {object}  errorResponse
// @Failure      409              {object}  errorResponse
// @Router       /clients [post]
func (h *ClientHandler) Create(c echo.Context) error {
	ownerID, err := ctxOwner(c)
	if err != nil {
		return err
	}

	var req clientRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	key := c.Request().Header.Get(HeaderIdempotencyKey)
	res, err := h.clients.Create(c.Request().Context(), toCreateInput(req, ownerID, key))
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, toClientResponse(res.Client))
}

// Replace handles PUT /clients/:id. Omitted phone and active are cleared.
//
// @Summary      Replace a client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int            true  "Client ID"
// @Param        body  body      clientRequest  true  "Client"
// @Success      200   {object}  clientResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /clients/{id} [put]
func (h *ClientHandler) Replace(c echo.Context) error {
	ownerID, id, err := h.target(c)
	if err != nil {
		return err
	}

	var req clientRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	client, err := h.clients.Replace(c.Request().Context(), ownerID, id, toReplaceInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResponse(client))
}

// Patch handles PATCH /clients/:id.
//
// @Summary      Partially update a client
// @Description  Accepts any subset of name, email, phone, active, deleted, favorite, rating, avatar.
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                 true  "Client ID"
// @Param        body  body      clientPatchRequest  true  "Fields to update"
// @Success      200   {object}  clientResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /clients/{id} [patch]
func (h *ClientHandler) Patch(c echo.Context) error {
	ownerID, id, err := h.target(c)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPatchBody))
	if err != nil {
		return fmt.Errorf("%w: unreadable request body", domain.ErrInvalidInput)
	}
	changes, err := parseClientPatch(body)
	if err != nil {
		return err
	}

	client, err := h.clients.Patch(c.Request().Context(), ownerID, id, changes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResponse(client))
}

// Delete handles DELETE /clients/:id. The row is removed permanently.
//
// @Summary      Delete a client
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Client ID"
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /clients/{id} [delete]
func (h *ClientHandler) Delete(c echo.Context) error {
	ownerID, id, err := h.target(c)
	if err != nil {
		return err
	}

	if err := h.clients.Delete(c.Request().Context(), ownerID, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "client deleted"})
}

// SetFavorite handles PUT /clients/:id/favorite.
//
// @Summary      Mark or unmark a client as favorite
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int              true  "Client ID"
// @Param        body  body      favoriteRequest  true  "Favorite flag"
// @Success      200   {object}  clientResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /clients/{id}/favorite [put]
func (h *ClientHandler) SetFavorite(c echo.Context) error {
	ownerID, id, err := h.target(c)
	if err != nil {
		return err
	}

	var req favoriteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	client, err := h.clients.SetFavorite(c.Request().Context(), ownerID, id, *req.Favorite)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResponse(client))
}

// SetRating handles PUT /clients/:id/rating.
//
// @Summary      Rate a client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int            true  "Client ID"
// @Param        body  body      ratingRequest  true  "Rating from 0 to 5 in steps of 0.5"
// @Success      200   {object}  clientResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /clients/{id}/rating [put]
func (h *ClientHandler) SetRating(c echo.Context) error {
	ownerID, id, err := h.target(c)
	if err != nil {
		return err
	}

	var req ratingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	client, err := h.clients.SetRating(c.Request().Context(), ownerID, id, *req.Rating)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResponse(client))
}

// Trash handles POST /clients/:id/trash.
//
// @Summary      Soft-delete a client
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Client ID"
// @Success      200  {object}  clientResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /clients/{id}/trash [post]
func (h *ClientHandler) Trash(c echo.Context) error {
	ownerID, id, err := h.target(c)
	if err != nil {
		return err
	}

	client, err := h.clients.SoftDelete(c.Request().Context(), ownerID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResponse(client))
}

// Restore handles POST /clients/:id/restore.
//
// @Summary      Restore a soft-deleted client
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Client ID"
// @Success      200  {object}  clientResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /clients/{id}/restore [post]
func (h *ClientHandler) Restore(c echo.Context) error {
	ownerID, id, err := h.target(c)
	if err != nil {
		return err
	}

	client, err := h.clients.Restore(c.Request().Context(), ownerID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResponse(client))
}

// UploadAvatar handles PUT /clients/:id/avatar (multipart field "file").
//
// @Summary      Upload a client avatar
// @Tags         clients
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int   true  "Client ID"
// @Param        file  formData  file  true  "JPEG, PNG or WebP image up to 5 MiB"
// @Success      200   {object}  clientResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /clients/{id}/avatar [put]
func (h *ClientHandler) UploadAvatar(c echo.Context) error {
	ownerID, id, err := h.target(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidInput)
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("%w: unreadable upload", domain.ErrInvalidInput)
	}
	defer f.Close()

	// The declared part type is ignored; the bytes decide.
	body := bufio.NewReader(f)
	client, err := h.clients.UploadAvatar(c.Request().Context(), ownerID, id, ports.AvatarUpload{
		Body:        body,
		Size:        fh.Size,
		ContentType: sniffContentType(body),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResponse(client))
}

// Avatar handles GET /clients/:id/avatar and streams the stored image.
//
// @Summary      Download a client avatar
// @Tags         clients
// @Produce      image/jpeg,image/png,image/webp
// @Security     BearerAuth
// @Param        id   path  int  true  "Client ID"
// @Success      200  {file}    binary
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /clients/{id}/avatar [get]
func (h *ClientHandler) Avatar(c echo.Context) error {
	ownerID, id, err := h.target(c)
	if err != nil {
		return err
	}

	rc, err := h.clients.OpenAvatar(c.Request().Context(), ownerID, id)
	if err != nil {
		return err
	}
	defer rc.Close()

	body := bufio.NewReader(rc)
	contentType := sniffContentType(body)
	if _, ok := domain.AvatarExtension(contentType); !ok {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderXContentTypeOptions, "nosniff")
	return c.Stream(http.StatusOK, contentType, body)
}

// target resolves the owner and the :id path parameter.
func (h *ClientHandler) target(c echo.Context) (ownerID, id int64, err error) {
	ownerID, err = ctxOwner(c)
	if err != nil {
		return 0, 0, err
	}
	id, err = parseClientID(c.Param("id"))
	if err != nil {
		return 0, 0, err
	}
	return ownerID, id, nil
}

// sniffContentType peeks at the first bytes without consuming them.
func sniffContentType(r *bufio.Reader) string {
	head, err := r.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return echo.MIMEOctetStream
	}
	return http.DetectContentType(head)
}
