package services

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"coopledger/internal/models"
	"coopledger/internal/pagination"
	"coopledger/internal/repository"
)

// PurchaseInput describes a request to buy new shares from the coop.
type PurchaseInput struct {
	CoopID        string
	ShareholderID string
	ShareClassID  string
	Quantity      int
	ProjectID     *string
	// PurchaseDate defaults to today.
	PurchaseDate  time.Time
}

// PurchaseResult is the Share/Transaction/Payment triple created by a purchase.
type PurchaseResult struct {
	Share       *models.Share       `json:"share"`
	Transaction *models.Transaction `json:"transaction"`
	Payment     *models.Payment     `json:"payment"`
}

// SaleInput describes a shareholder selling shares back to the coop.
type SaleInput struct {
	CoopID        string
	ShareholderID string
	ShareID       string
	Quantity      int
}

// TransferInput describes moving shares between two shareholders.
type TransferInput struct {
	CoopID            string
	FromShareholderID string
	ToShareholderID   string
	ShareID           string
	Quantity          int
	Actor             string
	// TransferDate is stamped on both legs; defaults to now.
	TransferDate      time.Time
}

// TransferResult holds both legs of a transfer and the shares involved.
type TransferResult struct {
	Out         *models.Transaction `json:"transfer_out"`
	In          *models.Transaction `json:"transfer_in"`
	SourceShare *models.Share       `json:"source_share"`
	NewShare    *models.Share       `json:"new_share"`
}

// PaymentDirection tells the renderer who pays whom.
type PaymentDirection string

const (
	PaymentDirectionIncoming PaymentDirection = "INCOMING"
	PaymentDirectionOutgoing PaymentDirection = "OUTGOING"
)

// PaymentDetails is everything needed to render transfer instructions or a QR code.
type PaymentDetails struct {
	Direction       PaymentDirection `json:"direction"`
	BeneficiaryName string           `json:"beneficiary_name"`
	IBAN            string           `json:"iban"`
	BIC             string           `json:"bic"`
	Amount          decimal.Decimal  `json:"amount"`
	OGMCode         string           `json:"ogm_code,omitempty"`
}

// LedgerServicer defines the share transaction state machine.
type LedgerServicer interface {
	InitiatePurchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error)
	InitiateSale(ctx context.Context, in SaleInput) (*models.Transaction, error)
	Approve(ctx context.Context, coopID, transactionID, approver string) (*models.Transaction, error)
	Reject(ctx context.Context, coopID, transactionID, approver, reason string) (*models.Transaction, error)
	Complete(ctx context.Context, coopID, transactionID, approver string) (*models.Transaction, error)
	ExecuteTransfer(ctx context.Context, in TransferInput) (*TransferResult, error)
	GetPaymentDetails(ctx context.Context, coopID, transactionID string) (*PaymentDetails, error)
	GetTransaction(ctx context.Context, coopID, transactionID string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, coopID string, filter repository.TransactionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
	GetPaymentByOGM(ctx context.Context, coopID, code string) (*models.Payment, error)
}

// ImportInput is one bank statement to reconcile.
type ImportInput struct {
	CoopID     string
	Filename   string
	Reader     io.Reader
	ImportedBy string
}

// SkippedRow reports a statement line that could not be parsed.
type SkippedRow struct {
	Line   int    `json:"line"`
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// ImportResult summarises an import.
type ImportResult struct {
	Import  *models.BankImport `json:"import"`
	Skipped []SkippedRow       `json:"skipped"`
}

// BankImportServicer defines bank statement reconciliation.
type BankImportServicer interface {
	Import(ctx context.Context, in ImportInput) (*ImportResult, error)
	ManualMatch(ctx context.Context, coopID, bankTransactionID, paymentID, actor string) (*models.BankTransaction, error)
	GetImport(ctx context.Context, coopID, importID string) (*models.BankImport, error)
	ListImports(ctx context.Context, coopID string, page pagination.PageRequest) (*pagination.PageResponse[models.BankImport], error)
	ListBankTransactions(ctx context.Context, coopID, importID string, status models.MatchStatus, page pagination.PageRequest) (*pagination.PageResponse[models.BankTransaction], error)
}

// PeriodInput declares a dividend period.
type PeriodInput struct {
	Year               int
	DividendRate       decimal.Decimal
	WithholdingTaxRate decimal.Decimal
	ExDividendDate     time.Time
	PaymentDate        time.Time
}

// DividendSummary is a period with its payouts and totals.
type DividendSummary struct {
	Period           *models.DividendPeriod  `json:"period"`
	Payouts          []models.DividendPayout `json:"payouts"`
	ShareholderCount int                     `json:"shareholder_count"`
	TotalGross       decimal.Decimal         `json:"total_gross"`
	TotalTax         decimal.Decimal         `json:"total_tax"`
	TotalNet         decimal.Decimal         `json:"total_net"`
}

// DividendServicer defines the dividend engine.
type DividendServicer interface {
	CreatePeriod(ctx context.Context, coopID string, in PeriodInput) (*models.DividendPeriod, error)
	GetPeriod(ctx context.Context, coopID, periodID string) (*models.DividendPeriod, error)
	ListPeriods(ctx context.Context, coopID string) ([]models.DividendPeriod, error)
	Calculate(ctx context.Context, coopID, periodID string) (*DividendSummary, error)
	MarkAsPaid(ctx context.Context, coopID, periodID, reference string) (*models.DividendPeriod, error)
	GetPayouts(ctx context.Context, coopID, periodID string) (*DividendSummary, error)
	ExportCSV(ctx context.Context, coopID, periodID string, w io.Writer) error
}

// ShareholderInput registers a shareholder.
type ShareholderInput struct {
	Type        models.ShareholderType
	FirstName   string
	LastName    string
	CompanyName string
	Email       string
	NationalID  string
	IBAN        string
	BIC         string
}

// ShareholderDetails is a shareholder with decrypted PII.
type ShareholderDetails struct {
	models.Shareholder
	NationalID string `json:"national_id,omitempty"`
}

// ShareholderServicer defines the shareholder registry.
type ShareholderServicer interface {
	CreateShareholder(ctx context.Context, coopID string, in ShareholderInput) (*ShareholderDetails, error)
	GetShareholder(ctx context.Context, coopID, shareholderID string) (*ShareholderDetails, error)
	ListShareholders(ctx context.Context, coopID string, page pagination.PageRequest) (*pagination.PageResponse[models.Shareholder], error)
	GetShareholderShares(ctx context.Context, coopID, shareholderID string) ([]models.Share, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(ctx context.Context, actor, coopID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
