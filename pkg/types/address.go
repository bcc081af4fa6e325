package types

import "strings"

// AddressSnapshot is the shipping address copied onto an order at creation
// time. Later edits to the buyer's address book never reach placed orders.
type AddressSnapshot struct {
	RecipientName string `json:"recipient_name" validate:"required,max=120" gorm:"column:recipient_name;not null"`
	Phone         string `json:"phone" validate:"required,max=32" gorm:"column:phone;not null"`
	AddressLine   string `json:"address_line" validate:"required,max=255" gorm:"column:address_line;not null"`
	City          string `json:"city" validate:"required,max=120" gorm:"column:city;not null"`
	PostalCode    string `json:"postal_code" validate:"required,max=16" gorm:"column:postal_code;not null"`
	DestinationID string `json:"destination_id" validate:"required,max=64" gorm:"column:destination_id;not null"`
}

// Normalize trims whitespace on every field.
func (a AddressSnapshot) Normalize() AddressSnapshot {
	return AddressSnapshot{
		RecipientName: strings.TrimSpace(a.RecipientName),
		Phone:         strings.TrimSpace(a.Phone),
		AddressLine:   strings.TrimSpace(a.AddressLine),
		City:          strings.TrimSpace(a.City),
		PostalCode:    strings.TrimSpace(a.PostalCode),
		DestinationID: strings.TrimSpace(a.DestinationID),
	}
}

// Missing returns the json names of required fields that are blank.
func (a AddressSnapshot) Missing() []string {
	fields := []struct {
		name  string
		value string
	}{
		{"recipient_name", a.RecipientName},
		{"phone", a.Phone},
		{"address_line", a.AddressLine},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"destination_id", a.DestinationID},
	}
	missing := []string{}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}
