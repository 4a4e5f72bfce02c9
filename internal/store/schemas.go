package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/hearth/internal/model"
)

// AttachmentURL is where a document's file is served from.
func AttachmentURL(documentID string) string {
	return "/api/documents/" + documentID + "/file"
}

var DocumentSchema = Schema[model.Document]{
	Table:        "documents",
	Columns:      []string{"title", "type", "tags", "user_id", "expiry", "location", "secure", "number", "file_key"},
	SearchColumn: "title",
	Meta:         func(d *model.Document) *model.Meta { return &d.Meta },
	Values: func(d *model.Document) ([]any, error) {
		tags, err := encodeList(d.Tags)
		if err != nil {
			return nil, err
		}
		return []any{d.Title, d.Type, tags, d.UserID, d.Expiry, d.Location, d.Secure, d.Number, d.FileKey}, nil
	},
	Scan: func(d *model.Document) ([]any, func() error) {
		var tags string
		dest := []any{&d.Title, &d.Type, &tags, &d.UserID, &d.Expiry, &d.Location, &d.Secure, &d.Number, &d.FileKey}
		return dest, func() (err error) {
			if d.FileKey != "" {
				d.FileURL = AttachmentURL(d.ID)
			}
			d.Tags, err = decodeList[string](tags)
			return err
		}
	},
}

var AssetSchema = Schema[model.Asset]{
	Table:        "assets",
	Columns:      []string{"title", "purchase_date", "warranty_expiry", "service_interval", "service_history", "user_id"},
	SearchColumn: "title",
	Meta:         func(a *model.Asset) *model.Meta { return &a.Meta },
	Values: func(a *model.Asset) ([]any, error) {
		history, err := encodeList(a.ServiceHistory)
		if err != nil {
			return nil, err
		}
		return []any{a.Title, a.PurchaseDate, a.WarrantyExpiry, a.ServiceInterval, history, a.UserID}, nil
	},
	Scan: func(a *model.Asset) ([]any, func() error) {
		var history string
		dest := []any{&a.Title, &a.PurchaseDate, &a.WarrantyExpiry, &a.ServiceInterval, &history, &a.UserID}
		return dest, func() (err error) {
			a.ServiceHistory, err = decodeList[model.ServiceEntry](history)
			return err
		}
	},
}

var BillSchema = Schema[model.Bill]{
	Table:        "bills",
	Columns:      []string{"title", "amount", "due_date", "status", "user_id"},
	SearchColumn: "title",
	Meta:         func(b *model.Bill) *model.Meta { return &b.Meta },
	Values: func(b *model.Bill) ([]any, error) {
		return []any{b.Title, b.Amount, b.DueDate, b.Status, b.UserID}, nil
	},
	Scan: func(b *model.Bill) ([]any, func() error) {
		dest := []any{&b.Title, &b.Amount, &b.DueDate, &b.Status, &b.UserID}
		return dest, func() error {
			b.RefreshOverdue(time.Now())
			return nil
		}
	},
}

var HealthSchema = Schema[model.Health]{
	Table:   "health",
	Columns: []string{"user_id", "type", "details"},
	Meta:    func(h *model.Health) *model.Meta { return &h.Meta },
	Values: func(h *model.Health) ([]any, error) {
		if h.Detail == nil {
			return nil, fmt.Errorf("health record has no detail")
		}
		details, err := json.Marshal(h.Detail)
		if err != nil {
			return nil, fmt.Errorf("encode health detail: %w", err)
		}
		return []any{h.UserID, string(h.Type()), string(details)}, nil
	},
	Scan: func(h *model.Health) ([]any, func() error) {
		var typ, details string
		dest := []any{&h.UserID, &typ, &details}
		return dest, func() (err error) {
			h.Detail, err = model.DecodeHealthDetail(model.HealthType(typ), []byte(details))
			return err
		}
	},
}

var VehicleSchema = Schema[model.Vehicle]{
	Table:        "vehicles",
	Columns:      []string{"number", "custom_fields", "user_id"},
	SearchColumn: "number",
	Meta:         func(v *model.Vehicle) *model.Meta { return &v.Meta },
	Values: func(v *model.Vehicle) ([]any, error) {
		fields, err := encodeList(v.CustomFields)
		if err != nil {
			return nil, err
		}
		return []any{v.Number, fields, v.UserID}, nil
	},
	Scan: func(v *model.Vehicle) ([]any, func() error) {
		var fields string
		return []any{&v.Number, &fields, &v.UserID}, func() (err error) {
			v.CustomFields, err = decodeList[model.CustomField](fields)
			return err
		}
	},
}

var PropertySchema = Schema[model.Property]{
	Table:        "properties",
	Columns:      []string{"name", "custom_fields", "user_id"},
	SearchColumn: "name",
	Meta:         func(p *model.Property) *model.Meta { return &p.Meta },
	Values: func(p *model.Property) ([]any, error) {
		fields, err := encodeList(p.CustomFields)
		if err != nil {
			return nil, err
		}
		return []any{p.Name, fields, p.UserID}, nil
	},
	Scan: func(p *model.Property) ([]any, func() error) {
		var fields string
		return []any{&p.Name, &fields, &p.UserID}, func() (err error) {
			p.CustomFields, err = decodeList[model.CustomField](fields)
			return err
		}
	},
}

var SubscriptionSchema = Schema[model.Subscription]{
	Table:        "subscriptions",
	Columns:      []string{"name", "amount", "billing_cycle", "next_billing_date", "status", "user_id"},
	SearchColumn: "name",
	Meta:         func(s *model.Subscription) *model.Meta { return &s.Meta },
	Values: func(s *model.Subscription) ([]any, error) {
		return []any{s.Name, s.Amount, s.BillingCycle, s.NextBillingDate, s.Status, s.UserID}, nil
	},
	Scan: func(s *model.Subscription) ([]any, func() error) {
		return []any{&s.Name, &s.Amount, &s.BillingCycle, &s.NextBillingDate, &s.Status, &s.UserID}, nil
	},
}

var EmergencyContactSchema = Schema[model.EmergencyContact]{
	Table:   "emergency_contacts",
	Columns: []string{"name", "number"},
	Meta:    func(c *model.EmergencyContact) *model.Meta { return &c.Meta },
	Values: func(c *model.EmergencyContact) ([]any, error) {
		return []any{c.Name, c.Number}, nil
	},
	Scan: func(c *model.EmergencyContact) ([]any, func() error) {
		return []any{&c.Name, &c.Number}, nil
	},
}

// Records bundles the repository of every household record kind.
type Records struct {
	Documents     *Repository[model.Document]
	Assets        *Repository[model.Asset]
	Bills         *Repository[model.Bill]
	Health        *Repository[model.Health]
	Vehicles      *Repository[model.Vehicle]
	Properties    *Repository[model.Property]
	Subscriptions *Repository[model.Subscription]
	Contacts      *Repository[model.EmergencyContact]
}

func NewRecords(db *sql.DB) *Records {
	return &Records{
		Documents:     NewRepository(db, DocumentSchema),
		Assets:        NewRepository(db, AssetSchema),
		Bills:         NewRepository(db, BillSchema),
		Health:        NewRepository(db, HealthSchema),
		Vehicles:      NewRepository(db, VehicleSchema),
		Properties:    NewRepository(db, PropertySchema),
		Subscriptions: NewRepository(db, SubscriptionSchema),
		Contacts:      NewRepository(db, EmergencyContactSchema),
	}
}
