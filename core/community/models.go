package community

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lifecraft/backend/core"
)

// Session is a scheduled in-person community training event.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"` // UTC
	Capacity    int       `json:"capacity"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// SessionDetail is a session joined with its current attendance.
type SessionDetail struct {
	Session
	RegisteredCount int `json:"registered_count"`
}

func (sd SessionDetail) IsFull() bool {
	return sd.Capacity > 0 && sd.RegisteredCount >= sd.Capacity
}

// Registration records a user's spot in a session.
type Registration struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewSession contains information needed to create a new Session.
type NewSession struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Location    string    `json:"location" validate:"required"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	Capacity    int       `json:"capacity" validate:"min=1"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	ns.Description = core.CleanString(ns.Description)
	ns.Location = core.CleanString(ns.Location)
	return validate.Struct(ns)
}

// UpdateSession defines what information may be provided to modify an existing Session.
type UpdateSession struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartsAt    *time.Time `json:"starts_at"`
	Capacity    *int       `json:"capacity" validate:"omitempty,min=1"`
}

func (us *UpdateSession) Validate(validate *validator.Validate, orig Session) error {
	if title := core.CleanString(us.Title); title != "" {
		us.Title = title
	} else {
		us.Title = orig.Title
	}
	if desc := core.CleanString(us.Description); desc != "" {
		us.Description = desc
	} else {
		us.Description = orig.Description
	}
	if loc := core.CleanString(us.Location); loc != "" {
		us.Location = loc
	} else {
		us.Location = orig.Location
	}
	return validate.Struct(us)
}
