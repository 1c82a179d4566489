package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
)

// Tenancy is a rental period of a household.
type Tenancy struct {
	ID              uuid.UUID               `json:"id"`
	HouseholdID     uuid.UUID               `json:"household_id"`
	Name            string                  `json:"name"`
	Status          constants.TenancyStatus `json:"status"`
	StartDate       Date                    `json:"start_date"`
	EndDate         *Date                   `json:"end_date"`
	MonthlyRent     float64                 `json:"monthly_rent"`
	Deposit         float64                 `json:"deposit"`
	ProofDocumentID *uuid.UUID              `json:"proof_document_id,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`

	Renters []*Renter `json:"renters,omitempty"`
}

// Validate checks the row-level invariants shared by every write path.
func (t *Tenancy) Validate() error {
	v := common.NewValidator().
		Field("name", t.Name, common.Required, common.MaxLength(255)).
		Field("monthly_rent", t.MonthlyRent, common.NonNegative).
		Field("deposit", t.Deposit, common.NonNegative)
	if t.StartDate.IsZero() {
		v.Add("start_date", nil, "is required")
	}
	if t.EndDate != nil && !t.EndDate.After(t.StartDate) {
		v.Add("end_date", t.EndDate.String(), "must be after start_date")
	}
	if !constants.ValidTenancyStatus(string(t.Status)) {
		v.Add("status", t.Status, "unknown tenancy status")
	}
	return v.Err("invalid tenancy")
}

// StatusForStart derives the confirm-time status from the start date.
func StatusForStart(start Date, now time.Time) constants.TenancyStatus {
	if !start.After(DateOf(now)) {
		return constants.TenancyActive
	}
	return constants.TenancyFuture
}

// Renter links a user to a tenancy.
type Renter struct {
	ID        uuid.UUID `json:"id"`
	TenancyID uuid.UUID `json:"tenancy_id"`
	UserID    uuid.UUID `json:"user_id"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `json:"user,omitempty"`
}

// TenancyFilter narrows tenancy listings; zero values mean "any".
type TenancyFilter struct {
	OwnerID     *uuid.UUID
	HouseholdID *uuid.UUID
	Status      constants.TenancyStatus
	Search      string
}
