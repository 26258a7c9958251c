package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of share transaction
type TransactionType string

const (
	TransactionTypePurchase    TransactionType = "PURCHASE"
	TransactionTypeSale        TransactionType = "SALE"
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT"
	TransactionTypeTransferIn  TransactionType = "TRANSFER_IN"
)

// TransactionStatus only advances forward:
// PENDING -> APPROVED -> COMPLETED, or PENDING -> REJECTED.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusApproved  TransactionStatus = "APPROVED"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusRejected  TransactionStatus = "REJECTED"
)

// Transaction is a movement of shares between the coop and a shareholder or
// between two shareholders.
type Transaction struct {
	Base
	CoopID          string            `gorm:"type:uuid;not null;index" json:"coop_id"`
	Type            TransactionType   `gorm:"not null;index" json:"type"`
	Status          TransactionStatus `gorm:"not null;index" json:"status"`
	ShareID         string            `gorm:"type:uuid;not null;index" json:"share_id"`
	ShareholderID   string            `gorm:"type:uuid;not null;index" json:"shareholder_id"`
	Quantity        int               `gorm:"not null" json:"quantity"`
	PricePerShare   decimal.Decimal   `gorm:"type:decimal(20,2);not null;<-:create" json:"price_per_share"`
	TotalAmount     decimal.Decimal   `gorm:"type:decimal(20,2);not null;<-:create" json:"total_amount"`
	ProcessedBy     *string           `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`

	// For transfers
	FromShareholderID *string `gorm:"type:uuid" json:"from_shareholder_id,omitempty"`
	ToShareholderID   *string `gorm:"type:uuid" json:"to_shareholder_id,omitempty"`

	// Relationships
	Share   *Share   `gorm:"foreignKey:ShareID" json:"share,omitempty"`
	Payment *Payment `gorm:"foreignKey:TransactionID" json:"payment,omitempty"`
}

// PaymentMethod is how the money moves.
type PaymentMethod string

const PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"

// PaymentStatus of an expected incoming payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusMatched   PaymentStatus = "MATCHED"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment is the money expected for a purchase, identified on the bank
// statement by its OGM code.
type Payment struct {
	Base
	CoopID        string          `gorm:"type:uuid;not null;uniqueIndex:idx_payment_coop_sequence" json:"coop_id"`
	TransactionID string          `gorm:"type:uuid;not null;uniqueIndex" json:"transaction_id"`
	Method        PaymentMethod   `gorm:"not null" json:"method"`
	Status        PaymentStatus   `gorm:"not null;index" json:"status"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	OGMCode       string          `gorm:"column:ogm_code;not null;uniqueIndex" json:"ogm_code"`
	OGMSequence   int             `gorm:"column:ogm_sequence;not null;uniqueIndex:idx_payment_coop_sequence" json:"ogm_sequence"`
	MatchedAt     *time.Time      `json:"matched_at,omitempty"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
}
