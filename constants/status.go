package constants

// AgreementStatus is the canonical status for rows in tenancy_agreements.
type AgreementStatus string

// Stable values (store these exact strings in DB).
const (
	AgreementPending    AgreementStatus = "pending"    // uploaded, not yet sent to the model
	AgreementProcessing AgreementStatus = "processing" // normalize + extract in progress
	AgreementProcessed  AgreementStatus = "processed"  // extracted_data populated
	AgreementFailed     AgreementStatus = "failed"     // terminal failure, error fields populated
)

// agreementTransitions lists the allowed forward moves. failed -> pending is the explicit reset used
// when a landlord re-triggers processing on the same record.
var agreementTransitions = map[AgreementStatus][]AgreementStatus{
	AgreementPending:    {AgreementProcessing, AgreementFailed},
	AgreementProcessing: {AgreementProcessed, AgreementFailed},
	AgreementFailed:     {AgreementPending},
	AgreementProcessed:  nil,
}

// CanTransition reports whether an agreement may move from -> to.
func CanTransition(from, to AgreementStatus) bool {
	for _, s := range agreementTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesFor returns every status that may legally move to the given target.
func SourcesFor(to AgreementStatus) []AgreementStatus {
	var out []AgreementStatus
	for _, from := range []AgreementStatus{AgreementPending, AgreementProcessing, AgreementProcessed, AgreementFailed} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// TenancyStatus is the lifecycle of a lease period.
type TenancyStatus string

const (
	TenancyFuture    TenancyStatus = "future"
	TenancyActive    TenancyStatus = "active"
	TenancyMovingOut TenancyStatus = "moving_out"
	TenancyMovedOut  TenancyStatus = "moved_out"
)

// TenancyStatuses holds the allowed values for the status column.
var TenancyStatuses = []string{
	string(TenancyFuture),
	string(TenancyActive),
	string(TenancyMovingOut),
	string(TenancyMovedOut),
}

// ValidTenancyStatus reports whether s is a known tenancy status.
func ValidTenancyStatus(s string) bool {
	for _, v := range TenancyStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// InvitationStatus tracks whether the invitee accepted.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// Role is the account role carried in the auth token.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleLandlord Role = "landlord"
	RoleTenant   Role = "tenant"
)
