// internal/model/recipient.go
package model

import "strings"

// Recipient is one row of a recipient list.
type Recipient struct {
	Address string            `json:"address"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Key returns the address in the form used to key send records.
func (r Recipient) Key() string {
	return NormalizeAddress(r.Address)
}

// NormalizeAddress trims and lower-cases an email address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
