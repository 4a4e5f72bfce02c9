package model

import (
	"encoding/json"
	"time"
)

const (
	BillPaid    = "paid"
	BillPending = "pending"
	BillOverdue = "overdue"
)

type Bill struct {
	Meta
	Title   string  `json:"title"`
	Amount  float64 `json:"amount"`
	DueDate string  `json:"dueDate"`
	Status  string  `json:"status"`
	UserID  string  `json:"userId"`

	// Overdue is derived on read and never persisted.
	Overdue bool `json:"overdue"`
}

// UnmarshalJSON accepts the legacy "user" owner key as well as "userId".
// Keys missing from data keep b's current values.
func (b *Bill) UnmarshalJSON(data []byte) error {
	type plain Bill
	var aux struct {
		plain
		User string `json:"user"`
	}
	owner := b.UserID
	aux.plain = plain(*b)
	aux.plain.UserID = ""
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*b = Bill(aux.plain)
	if b.UserID == "" {
		b.UserID = aux.User
	}
	if b.UserID == "" {
		b.UserID = owner
	}
	return nil
}

// RefreshOverdue sets Overdue for an unpaid bill whose due date is before today.
func (b *Bill) RefreshOverdue(today time.Time) {
	days, ok := DaysUntil(b.DueDate, today)
	b.Overdue = ok && b.Status != BillPaid && days < 0
}
