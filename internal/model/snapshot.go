package model

// DefaultHouseholdName is shown when the caller's household row is missing.
const DefaultHouseholdName = "My Household"

// NoInsurance is the emergency insurance value when no insurance document exists.
const NoInsurance = "No Insurance Record Found"

// Snapshot is the full view of one household returned to clients on bootstrap.
type Snapshot struct {
	HouseholdName string         `json:"householdName"`
	Users         []Member       `json:"users"`
	Docs          []Document     `json:"docs"`
	Assets        []Asset        `json:"assets"`
	Bills         []Bill         `json:"bills"`
	Health        []Health       `json:"health"`
	Vehicles      []Vehicle      `json:"vehicles"`
	Properties    []Property     `json:"properties"`
	Subscriptions []Subscription `json:"subscriptions"`
	Emergency     Emergency      `json:"emergency"`
}

type Emergency struct {
	Contacts  []EmergencyContact `json:"contacts"`
	Insurance string             `json:"insurance"`
}
