package model

import "time"

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// DefaultAvatar is assigned to users who join without choosing one.
const DefaultAvatar = "👤"

type Household struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type User struct {
	ID           string    `json:"id"`
	HouseholdID  string    `json:"householdId"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Avatar       string    `json:"avatar"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Member is the short form of a user shown in the household snapshot.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// FamilyMember is the synthetic member representing shared ownership.
var FamilyMember = Member{ID: FamilyOwner, Name: "Family", Avatar: "🏠"}
