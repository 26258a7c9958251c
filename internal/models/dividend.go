package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DividendPeriodStatus: DRAFT -> CALCULATED (repeatable) -> PAID (terminal).
type DividendPeriodStatus string

const (
	DividendPeriodStatusDraft      DividendPeriodStatus = "DRAFT"
	DividendPeriodStatusCalculated DividendPeriodStatus = "CALCULATED"
	DividendPeriodStatusPaid       DividendPeriodStatus = "PAID"
)

// DividendPeriod is one dividend declaration for a financial year.
// Rates are fractions: 0.025 is 2.5 %.
type DividendPeriod struct {
	Base
	CoopID             string               `gorm:"type:uuid;not null;uniqueIndex:idx_dividend_period_coop_year" json:"coop_id"`
	Year               int                  `gorm:"not null;uniqueIndex:idx_dividend_period_coop_year" json:"year"`
	DividendRate       decimal.Decimal      `gorm:"type:decimal(9,6);not null" json:"dividend_rate"`
	WithholdingTaxRate decimal.Decimal      `gorm:"type:decimal(9,6);not null" json:"withholding_tax_rate"`
	ExDividendDate     time.Time            `gorm:"not null" json:"ex_dividend_date"`
	PaymentDate        time.Time            `gorm:"not null" json:"payment_date"`
	Status             DividendPeriodStatus `gorm:"not null" json:"status"`
	CalculatedAt       *time.Time           `json:"calculated_at,omitempty"`
	PaidAt             *time.Time           `json:"paid_at,omitempty"`
	PaymentReference   *string              `json:"payment_reference,omitempty"`
}

// BreakdownLine is the dividend earned by a group of shares of one class at
// one purchase price.
type BreakdownLine struct {
	ShareClassID   string          `json:"share_class_id"`
	ShareClassName string          `json:"share_class_name"`
	Quantity       int             `json:"quantity"`
	PricePerShare  decimal.Decimal `json:"price_per_share"`
	TotalValue     decimal.Decimal `json:"total_value"`
	DividendRate   decimal.Decimal `json:"dividend_rate"`
	DividendAmount decimal.Decimal `json:"dividend_amount"`
}

// DividendPayout is the amount owed to one shareholder for one period.
type DividendPayout struct {
	Base
	CoopID           string          `gorm:"type:uuid;not null;index" json:"coop_id"`
	DividendPeriodID string          `gorm:"type:uuid;not null;uniqueIndex:idx_payout_period_shareholder" json:"dividend_period_id"`
	ShareholderID    string          `gorm:"type:uuid;not null;uniqueIndex:idx_payout_period_shareholder" json:"shareholder_id"`
	GrossAmount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"gross_amount"`
	WithholdingTax   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"withholding_tax"`
	NetAmount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"net_amount"`
	Breakdown        []BreakdownLine `gorm:"type:text;serializer:json" json:"breakdown"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	PaymentReference *string         `json:"payment_reference,omitempty"`

	Shareholder *Shareholder `gorm:"foreignKey:ShareholderID" json:"shareholder,omitempty"`
}
