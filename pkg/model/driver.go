package model

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// Driver is the actor that claims trips. Available and CompletedTrips are only
// written inside trip coordinator transactions.
type Driver struct {
	ID                 int64              `json:"id"`
	Available          bool               `json:"available"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	CompletedTrips     int                `json:"completed_trips"`
}

func (d *Driver) IsApproved() bool {
	return d.VerificationStatus == VerificationApproved
}
