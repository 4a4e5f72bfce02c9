package model

import "time"

type InvitationStatus string

const (
	InvitationPending InvitationStatus = "pending"
	InvitationUsed    InvitationStatus = "used"
	InvitationExpired InvitationStatus = "expired"
)

type Invitation struct {
	Code        string           `json:"code"`
	HouseholdID string           `json:"householdId"`
	InviterID   string           `json:"inviterId"`
	Status      InvitationStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	ExpiresAt   time.Time        `json:"expiresAt"`
}
