package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/blob"
	"github.com/dukerupert/hearth/internal/model"
)

func hashSecureNumber(d *model.Document) error {
	if !d.Secure || d.Number == "" || auth.LooksHashed(d.Number) {
		return nil
	}
	hash, err := auth.HashSecret(d.Number)
	if errors.Is(err, auth.ErrSecretTooLong) {
		return invalid("number must be at most %d bytes", auth.MaxSecretLen)
	}
	if err != nil {
		return err
	}
	d.Number = hash
	return nil
}

// DocumentKind removes a deleted document's attachment from blobs.
func DocumentKind(blobs blob.Store, logger *slog.Logger) Kind[model.Document] {
	return Kind[model.Document]{
		Label:  "Document",
		Entity: "document",
		Meta:   func(d *model.Document) *model.Meta { return &d.Meta },
		Owner:  func(d *model.Document) *string { return &d.UserID },
		Prepare: func(d, existing *model.Document) error {
			if err := required("title", d.Title); err != nil {
				return err
			}
			if err := required("type", d.Type); err != nil {
				return err
			}
			if err := optionalDate("expiry", d.Expiry); err != nil {
				return err
			}
			if d.Tags == nil {
				d.Tags = []string{}
			}
			d.FileKey = ""
			if existing != nil {
				d.FileKey = existing.FileKey
			}
			return hashSecureNumber(d)
		},
		AfterDelete: func(ctx context.Context, d *model.Document) {
			if d.FileKey == "" || blobs == nil {
				return
			}
			if err := blobs.Delete(ctx, d.FileKey); err != nil {
				logger.Warn("remove attachment", "document_id", d.ID, "key", d.FileKey, "error", err)
			}
		},
	}
}

func AssetKind() Kind[model.Asset] {
	return Kind[model.Asset]{
		Label:  "Asset",
		Entity: "asset",
		Meta:   func(a *model.Asset) *model.Meta { return &a.Meta },
		Owner:  func(a *model.Asset) *string { return &a.UserID },
		Prepare: func(a, existing *model.Asset) error {
			if err := required("title", a.Title); err != nil {
				return err
			}
			if a.ServiceInterval < 0 {
				return invalid("serviceInterval must not be negative")
			}
			if err := optionalDate("purchaseDate", a.PurchaseDate); err != nil {
				return err
			}
			if err := optionalDate("warrantyExpiry", a.WarrantyExpiry); err != nil {
				return err
			}
			// History only grows through the service endpoint once created.
			if existing != nil {
				a.ServiceHistory = existing.ServiceHistory
			}
			if a.ServiceHistory == nil {
				a.ServiceHistory = []model.ServiceEntry{}
			}
			return nil
		},
	}
}

func BillKind() Kind[model.Bill] {
	return Kind[model.Bill]{
		Label:  "Bill",
		Entity: "bill",
		Meta:   func(b *model.Bill) *model.Meta { return &b.Meta },
		Owner:  func(b *model.Bill) *string { return &b.UserID },
		Prepare: func(b, _ *model.Bill) error {
			if err := required("title", b.Title); err != nil {
				return err
			}
			if b.Amount < 0 {
				return invalid("amount must not be negative")
			}
			if err := requiredDate("dueDate", b.DueDate); err != nil {
				return err
			}
			if b.Status == "" {
				b.Status = model.BillPending
			}
			return oneOf("status", b.Status, model.BillPaid, model.BillPending, model.BillOverdue)
		},
	}
}

func HealthKind() Kind[model.Health] {
	return Kind[model.Health]{
		Label:  "Health record",
		Entity: "health",
		Meta:   func(h *model.Health) *model.Meta { return &h.Meta },
		Owner:  func(h *model.Health) *string { return &h.UserID },
		Prepare: func(h, _ *model.Health) error {
			switch d := h.Detail.(type) {
			case model.BloodGroup:
				return required("value", d.Value)
			case model.Vaccination:
				if err := required("value", d.Value); err != nil {
					return err
				}
				if err := optionalDate("date", d.Date); err != nil {
					return err
				}
				return optionalDate("nextDue", d.NextDue)
			case model.Prescription:
				return required("title", d.Title)
			case model.Allergy:
				return required("value", d.Value)
			}
			return invalid("type is required")
		},
	}
}

// customFields keeps every submitted pair as given.
func customFields(fields []model.CustomField) []model.CustomField {
	if fields == nil {
		return []model.CustomField{}
	}
	return fields
}

func VehicleKind() Kind[model.Vehicle] {
	return Kind[model.Vehicle]{
		Label:  "Vehicle",
		Entity: "vehicle",
		Meta:   func(v *model.Vehicle) *model.Meta { return &v.Meta },
		Owner:  func(v *model.Vehicle) *string { return &v.UserID },
		Prepare: func(v, _ *model.Vehicle) error {
			v.CustomFields = customFields(v.CustomFields)
			return required("number", v.Number)
		},
	}
}

func PropertyKind() Kind[model.Property] {
	return Kind[model.Property]{
		Label:  "Property",
		Entity: "property",
		Meta:   func(p *model.Property) *model.Meta { return &p.Meta },
		Owner:  func(p *model.Property) *string { return &p.UserID },
		Prepare: func(p, _ *model.Property) error {
			p.CustomFields = customFields(p.CustomFields)
			return required("name", p.Name)
		},
	}
}

func SubscriptionKind() Kind[model.Subscription] {
	return Kind[model.Subscription]{
		Label:  "Subscription",
		Entity: "subscription",
		Meta:   func(s *model.Subscription) *model.Meta { return &s.Meta },
		Owner:  func(s *model.Subscription) *string { return &s.UserID },
		Prepare: func(s, _ *model.Subscription) error {
			if err := required("name", s.Name); err != nil {
				return err
			}
			if s.Amount < 0 {
				return invalid("amount must not be negative")
			}
			if err := requiredDate("nextBillingDate", s.NextBillingDate); err != nil {
				return err
			}
			if s.BillingCycle == "" {
				s.BillingCycle = model.CycleMonthly
			}
			if err := oneOf("billingCycle", s.BillingCycle, model.CycleMonthly, model.CycleYearly); err != nil {
				return err
			}
			if s.Status == "" {
				s.Status = model.SubscriptionActive
			}
			return oneOf("status", s.Status, model.SubscriptionActive, model.SubscriptionCancelled)
		},
	}
}

func EmergencyContactKind() Kind[model.EmergencyContact] {
	return Kind[model.EmergencyContact]{
		Label:  "Emergency contact",
		Entity: "emergency_contact",
		Meta:   func(c *model.EmergencyContact) *model.Meta { return &c.Meta },
		Prepare: func(c, _ *model.EmergencyContact) error {
			if err := required("name", c.Name); err != nil {
				return err
			}
			return required("number", c.Number)
		},
	}
}
