package handler

import (
	"github.com/clientdesk/clients-api/internal/core/domain"
	"github.com/clientdesk/clients-api/internal/core/ports"
)

func toClientResponse(c *domain.Client) clientResponse {
	return clientResponse{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Active:    c.Active,
		Deleted:   c.Deleted,
		Favorite:  c.Favorite,
		Rating:    c.Rating,
		Avatar:    c.Avatar,
		Status:    c.Status(),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toClientResponses(clients []*domain.Client) []clientResponse {
	out := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, toClientResponse(c))
	}
	return out
}

func toCreateInput(req clientRequest, ownerID int64, idempotencyKey string) ports.CreateClientInput {
	return ports.CreateClientInput{
		OwnerID:        ownerID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Active:         req.Active,
		IdempotencyKey: idempotencyKey,
	}
}

// toReplaceInput applies PUT semantics: absent phone and active are cleared.
func toReplaceInput(req clientRequest) ports.ReplaceClientInput {
	return ports.ReplaceClientInput{
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
		Active: req.Active != nil && *req.Active,
	}
}
