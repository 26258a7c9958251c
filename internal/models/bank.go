package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchStatus of an imported bank statement row.
type MatchStatus string

const (
	MatchStatusUnmatched     MatchStatus = "UNMATCHED"
	MatchStatusAutoMatched   MatchStatus = "AUTO_MATCHED"
	MatchStatusManualMatched MatchStatus = "MANUAL_MATCHED"
)

// BankImport is one uploaded bank statement.
type BankImport struct {
	Base
	CoopID         string `gorm:"type:uuid;not null;index" json:"coop_id"`
	Filename       string `gorm:"not null" json:"filename"`
	ImportedBy     string `gorm:"not null" json:"imported_by"`
	RowCount       int    `gorm:"not null;default:0" json:"row_count"`
	MatchedCount   int    `gorm:"not null;default:0" json:"matched_count"`
	UnmatchedCount int    `gorm:"not null;default:0" json:"unmatched_count"`
	SkippedCount   int    `gorm:"not null;default:0" json:"skipped_count"`
}

// BankTransaction is one parsed statement row.
type BankTransaction struct {
	Base
	CoopID           string          `gorm:"type:uuid;not null;index" json:"coop_id"`
	BankImportID     string          `gorm:"type:uuid;not null;index" json:"bank_import_id"`
	Date             time.Time       `gorm:"not null" json:"date"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Counterparty     string          `json:"counterparty"`
	ReferenceText    string          `json:"reference_text"`
	ExtractedOGM     *string         `gorm:"column:extracted_ogm;index" json:"extracted_ogm,omitempty"`
	MatchStatus      MatchStatus     `gorm:"not null;index" json:"match_status"`
	MatchedPaymentID *string         `gorm:"type:uuid" json:"matched_payment_id,omitempty"`
	MatchedAt        *time.Time      `json:"matched_at,omitempty"`
	MatchedBy        *string         `json:"matched_by,omitempty"`
}
