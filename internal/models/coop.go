package models

// Coop is a tenant cooperative. Every other entity is scoped by CoopID.
type Coop struct {
	Base
	Name      string `gorm:"not null" json:"name"`
	OGMPrefix string `gorm:"column:ogm_prefix;size:3;not null;uniqueIndex" json:"ogm_prefix"`
	IBAN      string `gorm:"column:iban" json:"iban"`
	BIC       string `gorm:"column:bic" json:"bic"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`
}

// Project is an optional earmark for share purchases.
type Project struct {
	Base
	CoopID   string `gorm:"type:uuid;not null;index" json:"coop_id"`
	Name     string `gorm:"not null" json:"name"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}
