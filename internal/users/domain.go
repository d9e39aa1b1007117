package users

import (
	"time"

	"github.com/google/uuid"
)

// Location is an optional free-form profile address.
type Location struct {
	Country string `json:"country,omitempty"`
	State   string `json:"state,omitempty"`
	City    string `json:"city,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

// User is a credential-store record. Exactly one role per user; the
// RefreshTokenFingerprint holds the single active refresh token, empty
// when none is outstanding. DeletedAt is reserved for soft deletes and is
// never consulted by authorization logic.
type User struct {
	ID                      uuid.UUID
	FirstName               string
	LastName                string
	Username                string
	Email                   string
	PasswordHash            string
	Role                    string
	RefreshTokenFingerprint string
	DateOfBirth             *time.Time
	PhoneNumber             string
	Location                *Location
	CreatedAt               time.Time
	UpdatedAt               time.Time
	DeletedAt               *time.Time
}
