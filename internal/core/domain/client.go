package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ClientStatus is the visibility state derived from the active and deleted flags.
type ClientStatus string

const (
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
	ClientDeleted  ClientStatus = "deleted"
)

const (
	MinRating  = 0.0
	MaxRating  = 5.0
	ratingStep = 0.5
)

// Client is a customer record owned by exactly one User.
type Client struct {
	ID        int64
	OwnerID   int64
	Name      string
	Email     string
	Phone     string
	Active    bool
	Deleted   bool
	Favorite  bool
	Rating    float64
	Avatar    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status derives the three-state visibility of the client.
func (c *Client) Status() ClientStatus {
	switch {
	case c.Deleted:
		return ClientDeleted
	case c.Active:
		return ClientActive
	default:
		return ClientInactive
	}
}

// ClientChanges is a set of field writes. Nil fields are left untouched.
type ClientChanges struct {
	Name     *string
	Email    *string
	Phone    *string
	Active   *bool
	Deleted  *bool
	Favorite *bool
	Rating   *float64
	Avatar   *string

	UpdatedAt time.Time
}

// Empty reports whether no field is set.
func (ch ClientChanges) Empty() bool {
	return ch.Name == nil && ch.Email == nil && ch.Phone == nil && ch.Active == nil &&
		ch.Deleted == nil && ch.Favorite == nil && ch.Rating == nil && ch.Avatar == nil
}

// Validate checks the values of the supplied fields.
func (ch ClientChanges) Validate() error {
	if ch.Name != nil && strings.TrimSpace(*ch.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if ch.Email != nil && strings.TrimSpace(*ch.Email) == "" {
		return fmt.Errorf("%w: email must not be empty", ErrInvalidInput)
	}
	if ch.Rating != nil {
		if err := ValidateRating(*ch.Rating); err != nil {
			return err
		}
	}
	return nil
}

// Apply writes the supplied fields onto c.
func (ch ClientChanges) Apply(c *Client) {
	if ch.Name != nil {
		c.Name = *ch.Name
	}
	if ch.Email != nil {
		c.Email = *ch.Email
	}
	if ch.Phone != nil {
		c.Phone = *ch.Phone
	}
	if ch.Active != nil {
		c.Active = *ch.Active
	}
	if ch.Deleted != nil {
		c.Deleted = *ch.Deleted
	}
	if ch.Favorite != nil {
		c.Favorite = *ch.Favorite
	}
	if ch.Rating != nil {
		c.Rating = *ch.Rating
	}
	if ch.Avatar != nil {
		c.Avatar = *ch.Avatar
	}
	if !ch.UpdatedAt.IsZero() {
		c.UpdatedAt = ch.UpdatedAt
	}
}

// ValidateRating accepts values from 0 to 5 in half-point steps.
func ValidateRating(r float64) error {
	if math.IsNaN(r) || r < MinRating || r > MaxRating {
		return fmt.Errorf("%w: rating must be between %.0f and %.0f", ErrInvalidInput, MinRating, MaxRating)
	}
	if math.Mod(r, ratingStep) != 0 {
		return fmt.Errorf("%w: rating must be a multiple of %.1f", ErrInvalidInput, ratingStep)
	}
	return nil
}
