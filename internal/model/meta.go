package model

import "time"

// FamilyOwner is the owner id of records shared by the whole household.
// It has no backing user row.
const FamilyOwner = "family"

// Meta is the identity and tenancy carried by every household record.
type Meta struct {
	ID          string    `json:"id"`
	HouseholdID string    `json:"householdId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
