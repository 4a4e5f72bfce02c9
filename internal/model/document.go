package model

type Document struct {
	Meta
	Title    string   `json:"title"`
	Type     string   `json:"type"`
	Tags     []string `json:"tags"`
	UserID   string   `json:"userId"`
	Expiry   string   `json:"expiry,omitempty"`
	Location string   `json:"location,omitempty"`
	Secure   bool     `json:"secure"`
	Number   string   `json:"number,omitempty"`
	FileURL  string   `json:"fileUrl,omitempty"`

	// FileKey is the blob key of the attached file, if any.
	FileKey string `json:"-"`
}

// HasTag reports whether the document carries tag, ignoring case.
func (d *Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if equalFold(t, tag) {
			return true
		}
	}
	return false
}
