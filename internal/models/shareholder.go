package models

import "strings"

// ShareholderType distinguishes natural persons from legal entities.
type ShareholderType string

const (
	ShareholderTypeIndividual ShareholderType = "INDIVIDUAL"
	ShareholderTypeCompany    ShareholderType = "COMPANY"
)

// Shareholder is a member of a coop. NationalID is stored as written by the
// registry, which encrypts it; the ledger treats it as an opaque string.
type Shareholder struct {
	Base
	CoopID      string          `gorm:"type:uuid;not null;index" json:"coop_id"`
	Type        ShareholderType `gorm:"not null" json:"type"`
	FirstName   string          `json:"first_name,omitempty"`
	LastName    string          `json:"last_name,omitempty"`
	CompanyName string          `json:"company_name,omitempty"`
	Email       string          `gorm:"index" json:"email"`
	NationalID  string          `gorm:"column:national_id" json:"-"`
	IBAN        string          `gorm:"column:iban" json:"iban"`
	BIC         string          `gorm:"column:bic" json:"bic"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`
}

// DisplayName returns the company name for companies and "First Last" otherwise.
func (s *Shareholder) DisplayName() string {
	if s.Type == ShareholderTypeCompany && s.CompanyName != "" {
		return s.CompanyName
	}
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}
