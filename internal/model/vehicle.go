package model

// CustomField is one user-defined label/value pair, kept in entry order.
type CustomField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Vehicle struct {
	Meta
	Number       string        `json:"number"`
	CustomFields []CustomField `json:"customFields"`
	UserID       string        `json:"userId"`
}

type Property struct {
	Meta
	Name         string        `json:"name"`
	CustomFields []CustomField `json:"customFields"`
	UserID       string        `json:"userId"`
}
