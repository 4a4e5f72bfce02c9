// Package briefing derives the urgent items of a household from its snapshot.
package briefing

import (
	"fmt"
	"sort"
	"time"

	"github.com/dukerupert/hearth/internal/model"
)

const (
	KindBill         = "bill"
	KindWarranty     = "warranty"
	KindSubscription = "subscription"
)

// Day windows, inclusive.
const (
	BillDueDays     = 5
	WarrantyDays    = 45
	RenewalDays     = 5
	minWarrantyDays = 1
	minRenewalDays  = 0
)

type Alert struct {
	Kind     string `json:"kind"`
	RecordID string `json:"recordId"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Days     int    `json:"days"`
	Message  string `json:"message"`
}

// Compute lists the snapshot's urgent items as of today, soonest first.
// Bills that are not paid qualify when due within BillDueDays, overdue ones
// included. Warranties qualify when they end in 1..WarrantyDays days and
// active subscriptions when they renew in 0..RenewalDays days. Records with
// missing or unparseable dates are skipped.
func Compute(s model.Snapshot, today time.Time) []Alert {
	alerts := []Alert{}

	for _, b := range s.Bills {
		if b.Status == model.BillPaid {
			continue
		}
		days, ok := model.DaysUntil(b.DueDate, today)
		if !ok || days > BillDueDays {
			continue
		}
		alerts = append(alerts, Alert{
			Kind:     KindBill,
			RecordID: b.ID,
			Title:    b.Title,
			Date:     b.DueDate,
			Days:     days,
			Message:  billMessage(days),
		})
	}

	for _, a := range s.Assets {
		days, ok := model.DaysUntil(a.WarrantyExpiry, today)
		if !ok || days < minWarrantyDays || days > WarrantyDays {
			continue
		}
		alerts = append(alerts, Alert{
			Kind:     KindWarranty,
			RecordID: a.ID,
			Title:    a.Title,
			Date:     a.WarrantyExpiry,
			Days:     days,
			Message:  fmt.Sprintf("Warranty expires in %d days", days),
		})
	}

	for _, sub := range s.Subscriptions {
		if sub.Status != model.SubscriptionActive {
			continue
		}
		days, ok := model.DaysUntil(sub.NextBillingDate, today)
		if !ok || days < minRenewalDays || days > RenewalDays {
			continue
		}
		alerts = append(alerts, Alert{
			Kind:     KindSubscription,
			RecordID: sub.ID,
			Title:    sub.Name,
			Date:     sub.NextBillingDate,
			Days:     days,
			Message:  renewalMessage(days),
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Days != alerts[j].Days {
			return alerts[i].Days < alerts[j].Days
		}
		return alerts[i].Title < alerts[j].Title
	})
	return alerts
}

func billMessage(days int) string {
	switch {
	case days < 0:
		return fmt.Sprintf("Overdue by %d days", -days)
	case days == 0:
		return "Due today"
	default:
		return fmt.Sprintf("Due in %d days", days)
	}
}

func renewalMessage(days int) string {
	if days == 0 {
		return "Renews today"
	}
	return fmt.Sprintf("Renews in %d days", days)
}
