package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShareStatus is the lifecycle state of a Share.
type ShareStatus string

const (
	ShareStatusPending     ShareStatus = "PENDING"
	ShareStatusActive      ShareStatus = "ACTIVE"
	ShareStatusSold        ShareStatus = "SOLD"
	ShareStatusTransferred ShareStatus = "TRANSFERRED"
)

// ShareClass is a category of shares with its own price and limits.
type ShareClass struct {
	Base
	CoopID        string          `gorm:"type:uuid;not null;index" json:"coop_id"`
	Code          string          `gorm:"not null" json:"code"`
	Name          string          `gorm:"not null" json:"name"`
	PricePerShare decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price_per_share"`
	MinShares     int             `gorm:"not null;default:1" json:"min_shares"`
	// MaxShares of 0 means no upper limit per purchase.
	MaxShares            int                 `gorm:"not null;default:0" json:"max_shares"`
	DividendRateOverride decimal.NullDecimal `gorm:"type:decimal(9,6)" json:"dividend_rate_override"`
	IsActive             bool                `gorm:"default:true" json:"is_active"`
}

// Share is a holding of a number of shares of one class by one shareholder.
// PurchasePricePerShare is written once at creation and never updated.
type Share struct {
	Base
	CoopID                string          `gorm:"type:uuid;not null;index" json:"coop_id"`
	ShareholderID         string          `gorm:"type:uuid;not null;index" json:"shareholder_id"`
	ShareClassID          string          `gorm:"type:uuid;not null;index" json:"share_class_id"`
	ProjectID             *string         `gorm:"type:uuid" json:"project_id,omitempty"`
	Quantity              int             `gorm:"not null" json:"quantity"`
	PurchasePricePerShare decimal.Decimal `gorm:"type:decimal(20,2);not null;<-:create" json:"purchase_price_per_share"`
	PurchaseDate          time.Time       `gorm:"not null;index" json:"purchase_date"`
	Status                ShareStatus     `gorm:"not null;index" json:"status"`
	CertificateNumber     *string         `json:"certificate_number,omitempty"`

	ShareClass  *ShareClass  `gorm:"foreignKey:ShareClassID" json:"share_class,omitempty"`
	Shareholder *Shareholder `gorm:"foreignKey:ShareholderID" json:"shareholder,omitempty"`
}

// Value returns quantity times the purchase price snapshot.
func (s *Share) Value() decimal.Decimal {
	return s.PurchasePricePerShare.Mul(decimal.NewFromInt(int64(s.Quantity)))
}
