package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

type HealthType string

const (
	HealthBloodGroup   HealthType = "Blood Group"
	HealthVaccination  HealthType = "Vaccination"
	HealthPrescription HealthType = "Prescription"
	HealthAllergy      HealthType = "Allergy"
)

var ErrUnknownHealthType = errors.New("unknown health record type")

// HealthDetail is the type-specific part of a health record. Exactly one case
// is set on a Health value.
type HealthDetail interface {
	HealthType() HealthType
}

type BloodGroup struct {
	Value string `json:"value"`
}

type Vaccination struct {
	Value   string `json:"value"`
	Date    string `json:"date,omitempty"`
	NextDue string `json:"nextDue,omitempty"`
}

type Prescription struct {
	Title  string `json:"title"`
	Dosage string `json:"dosage,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

type Allergy struct {
	Value string `json:"value"`
	Notes string `json:"notes,omitempty"`
}

func (BloodGroup) HealthType() HealthType   { return HealthBloodGroup }
func (Vaccination) HealthType() HealthType  { return HealthVaccination }
func (Prescription) HealthType() HealthType { return HealthPrescription }
func (Allergy) HealthType() HealthType      { return HealthAllergy }

type Health struct {
	Meta
	UserID string
	Detail HealthDetail
}

// Type returns the discriminator of the record's detail, or "" if unset.
func (h Health) Type() HealthType {
	if h.Detail == nil {
		return ""
	}
	return h.Detail.HealthType()
}

type healthHead struct {
	Meta
	UserID string     `json:"userId"`
	Type   HealthType `json:"type"`
}

// MarshalJSON flattens the detail fields next to the common ones, so a
// vaccination renders as {"id":..,"type":"Vaccination","value":..,"nextDue":..}.
func (h Health) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if h.Detail != nil {
		body, err := json.Marshal(h.Detail)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
	}
	head, err := json.Marshal(healthHead{Meta: h.Meta, UserID: h.UserID, Type: h.Type()})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(head, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes over h's current values: keys missing from data are
// left alone, and the detail is kept while the type is unchanged.
func (h *Health) UnmarshalJSON(data []byte) error {
	head := healthHead{Meta: h.Meta, UserID: h.UserID, Type: h.Type()}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var base HealthDetail
	if head.Type == h.Type() {
		base = h.Detail
	}
	detail, err := decodeHealthDetail(head.Type, data, base)
	if err != nil {
		return err
	}
	h.Meta = head.Meta
	h.UserID = head.UserID
	h.Detail = detail
	return nil
}

// DecodeHealthDetail decodes the case named by t from a JSON object. Fields
// belonging to other cases are ignored.
func DecodeHealthDetail(t HealthType, data []byte) (HealthDetail, error) {
	return decodeHealthDetail(t, data, nil)
}

func decodeHealthDetail(t HealthType, data []byte, base HealthDetail) (HealthDetail, error) {
	switch t {
	case HealthBloodGroup:
		d, _ := base.(BloodGroup)
		err := json.Unmarshal(data, &d)
		return d, err
	case HealthVaccination:
		d, _ := base.(Vaccination)
		err := json.Unmarshal(data, &d)
		return d, err
	case HealthPrescription:
		d, _ := base.(Prescription)
		err := json.Unmarshal(data, &d)
		return d, err
	case HealthAllergy:
		d, _ := base.(Allergy)
		err := json.Unmarshal(data, &d)
		return d, err
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownHealthType, t)
}
