package model

import "time"

type Backup struct {
	ID          string    `json:"id"`
	HouseholdID string    `json:"householdId"`
	ObjectKey   string    `json:"objectKey"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}
