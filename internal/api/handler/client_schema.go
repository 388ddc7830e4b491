package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/clientdesk/clients-api/internal/core/domain"
	"github.com/clientdesk/clients-api/internal/core/ports"
)

// errorResponse documents the error envelope rendered by the central error handler.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Request / Response types ---

type clientRequest struct {
	Name   string `json:"name"   validate:"required"`
	Email  string `json:"email"  validate:"required"`
	Phone  string `json:"phone"`
	Active *bool  `json:"active"`
}

type favoriteRequest struct {
	Favorite *bool `json:"favorite" validate:"required"`
}

type ratingRequest struct {
	Rating *float64 `json:"rating" validate:"required"`
}

// clientPatchRequest documents the accepted PATCH keys; the body itself is
// decoded by parseClientPatch.
type clientPatchRequest struct {
	Name     *string  `json:"name,omitempty"`
	Email    *string  `json:"email,omitempty"`
	Phone    *string  `json:"phone,omitempty"`
	Active   *bool    `json:"active,omitempty"`
	Deleted  *bool    `json:"deleted,omitempty"`
	Favorite *bool    `json:"favorite,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Avatar   *string  `json:"avatar,omitempty"`
}

type clientResponse struct {
	ID        int64               `json:"id"`
	OwnerID   int64               `json:"owner_id"`
	Name      string              `json:"name"`
	Email     string              `json:"email"`
	Phone     string              `json:"phone"`
	Active    bool                `json:"active"`
	Deleted   bool                `json:"deleted"`
	Favorite  bool                `json:"favorite"`
	Rating    float64             `json:"rating"`
	Avatar    string              `json:"avatar"`
	Status    domain.ClientStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// --- PATCH parsing ---

// patchAliases maps every accepted key to its field. The Portuguese keys are
// kept for older mobile builds.
var patchAliases = map[string]string{
	"name":      "name",
	"nome":      "name",
	"email":     "email",
	"phone":     "phone",
	"telefone":  "phone",
	"active":    "active",
	"ativo":     "active",
	"deleted":   "deleted",
	"favorite":  "favorite",
	"favorito":  "favorite",
	"rating":    "rating",
	"avaliacao": "rating",
	"avatar":    "avatar",
}

// parseClientPatch decodes a PATCH body into a ClientChanges, accepting only
// whitelisted keys. phone and avatar accept null to clear the value.
func parseClientPatch(body []byte) (domain.ClientChanges, error) {
	var changes domain.ClientChanges

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return changes, fmt.Errorf("%w: body must be a JSON object", domain.ErrInvalidInput)
	}

	seen := make(map[string]string, len(raw))
	for key, value := range raw {
		field, ok := patchAliases[key]
		if !ok {
			return changes, fmt.Errorf("%w: field %q cannot be updated", domain.ErrInvalidInput, key)
		}
		if prev, dup := seen[field]; dup {
			return changes, fmt.Errorf("%w: fields %q and %q both set %s", domain.ErrInvalidInput, prev, key, field)
		}
		seen[field] = key

		var err error
		switch field {
		case "name":
			changes.Name, err = decodeString(value, false)
		case "email":
			changes.Email, err = decodeString(value, false)
		case "phone":
			changes.Phone, err = decodeString(value, true)
		case "avatar":
			changes.Avatar, err = decodeString(value, true)
		case "active":
			changes.Active, err = decodeBool(value)
		case "deleted":
			changes.Deleted, err = decodeBool(value)
		case "favorite":
			changes.Favorite, err = decodeBool(value)
		case "rating":
			changes.Rating, err = decodeNumber(value)
		}
		if err != nil {
			return changes, fmt.Errorf("%w: field %q %s", domain.ErrInvalidInput, key, err.Error())
		}
	}
	return changes, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(raw json.RawMessage, nullable bool) (*string, error) {
	if isNull(raw) {
		if !nullable {
			return nil, fmt.Errorf("must not be null")
		}
		empty := ""
		return &empty, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("must be a string")
	}
	return &s, nil
}

func decodeBool(raw json.RawMessage) (*bool, error) {
	var b bool
	if isNull(raw) || json.Unmarshal(raw, &b) != nil {
		return nil, fmt.Errorf("must be a boolean")
	}
	return &b, nil
}

func decodeNumber(raw json.RawMessage) (*float64, error) {
	var f float64
	if isNull(raw) || json.Unmarshal(raw, &f) != nil {
		return nil, fmt.Errorf("must be a number")
	}
	return &f, nil
}

// --- Query parsing ---

// parseListQuery reads the list filters. Malformed values are rejected
// rather than ignored.
func parseListQuery(q url.Values, ownerID int64) (ports.ListClientsInput, error) {
	in := ports.ListClientsInput{
		OwnerID: ownerID,
		Name:    q.Get("name"),
		Email:   q.Get("email"),
		Search:  q.Get("q"),
	}

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return in, fmt.Errorf("%w: active must be a boolean", domain.ErrInvalidInput)
		}
		in.Active = &active
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return in, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput)
		}
		in.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return in, fmt.Errorf("%w: offset must be a non-negative integer", domain.ErrInvalidInput)
		}
		in.Offset = offset
	}
	return in, nil
}

func parseClientID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: client id must be a positive integer", domain.ErrInvalidInput)
	}
	return id, nil
}
