package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
)

// TenancyAgreement is one upload attempt of a tenancy agreement document.
type TenancyAgreement struct {
	ID            uuid.UUID                 `json:"id"`
	HouseholdID   uuid.UUID                 `json:"household_id"`
	UploadedBy    uuid.UUID                 `json:"uploaded_by"`
	FileName      string                    `json:"file_name"`
	FileExt       string                    `json:"file_ext"`
	FileSize      int64                     `json:"file_size"`
	StorageKey    string                    `json:"-"`
	Status        constants.AgreementStatus `json:"status"`
	ExtractedData *ExtractionResult         `json:"extracted_data"`
	ErrorCode     *string                   `json:"error_code,omitempty"`
	ErrorMessage  *string                   `json:"error_message,omitempty"`
	ErrorFields   []common.ValidationError  `json:"error_fields,omitempty"`
	ProcessedAt   *time.Time                `json:"processed_at,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}
