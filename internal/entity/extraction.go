package entity

// ExtractedRenter is one renter as read from an agreement document.
type ExtractedRenter struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	IsPrimary   bool    `json:"is_primary"`
}

// ExtractionResult is the validated model output. Every field is optional.
// The legacy top-level name/contact fields mirror the first renter unless the
// model set them explicitly.
type ExtractionResult struct {
	StartDate   *Date             `json:"start_date"`
	EndDate     *Date             `json:"end_date"`
	MonthlyRent *float64          `json:"monthly_rent"`
	Deposit     *float64          `json:"deposit"`
	Renters     []ExtractedRenter `json:"renters"`

	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`

	// Warnings lists fields nulled by lenient parsing.
	Warnings []string `json:"warnings,omitempty"`
}
