package model

const (
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"

	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
)

type Subscription struct {
	Meta
	Name            string  `json:"name"`
	Amount          float64 `json:"amount"`
	BillingCycle    string  `json:"billingCycle"`
	NextBillingDate string  `json:"nextBillingDate"`
	Status          string  `json:"status"`
	UserID          string  `json:"userId"`
}

type EmergencyContact struct {
	Meta
	Name   string `json:"name"`
	Number string `json:"number"`
}
