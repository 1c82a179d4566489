package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
)

// Invitation asks a placeholder user to register and join a household.
type Invitation struct {
	ID           uuid.UUID                  `json:"id"`
	Email        string                     `json:"email"`
	HouseholdID  uuid.UUID                  `json:"household_id"`
	InvitedBy    uuid.UUID                  `json:"invited_by"`
	Token        uuid.UUID                  `json:"-"`
	Status       constants.InvitationStatus `json:"status"`
	ExpiresAt    time.Time                  `json:"expires_at"`
	SentAt       *time.Time                 `json:"sent_at,omitempty"`
	SendError    *string                    `json:"send_error,omitempty"`
	SendAttempts int                        `json:"send_attempts"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// Expired reports whether the token is no longer usable at now.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
