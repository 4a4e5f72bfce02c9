package model

type ServiceEntry struct {
	Date string `json:"date"`
	Note string `json:"note"`
}

type Asset struct {
	Meta
	Title           string         `json:"title"`
	PurchaseDate    string         `json:"purchaseDate,omitempty"`
	WarrantyExpiry  string         `json:"warrantyExpiry,omitempty"`
	ServiceInterval int            `json:"serviceInterval"`
	ServiceHistory  []ServiceEntry `json:"serviceHistory"`
	UserID          string         `json:"userId"`
}
