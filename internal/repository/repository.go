// Package repository defines per-entity data access interfaces and the unit
// of work the ledger services run their multi-entity mutations in. Services
// depend only on these interfaces; the gorm implementation lives alongside.
//
// Conditional updates return (bool, error): false with a nil error means the
// row was not in the expected state, i.e. somebody else got there first.
package repository

import (
	"context"
	"time"

	"coopledger/internal/models"
	"coopledger/internal/pagination"
)

// Store groups the repositories. Inside WithinTx every repository shares the
// same database transaction.
type Store interface {
	Coops() CoopRepository
	Shareholders() ShareholderRepository
	Projects() ProjectRepository
	ShareClasses() ShareClassRepository
	Shares() ShareRepository
	Transactions() TransactionRepository
	Payments() PaymentRepository
	BankImports() BankImportRepository
	BankTransactions() BankTransactionRepository
	DividendPeriods() DividendPeriodRepository
	DividendPayouts() DividendPayoutRepository
	AuditLogs() AuditLogRepository
}

// UnitOfWork runs fn atomically. If fn returns an error every write made
// through the Store passed to fn is rolled back and the error is returned
// unchanged.
type UnitOfWork interface {
	Store
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type CoopRepository interface {
	Create(ctx context.Context, coop *models.Coop) error
	GetByID(ctx context.Context, id string) (*models.Coop, error)
	// Touch writes the coop row, holding its row lock until the enclosing
	// transaction ends. Used to serialize OGM sequence allocation.
	Touch(ctx context.Context, id string) error
}

type ShareholderRepository interface {
	Create(ctx context.Context, shareholder *models.Shareholder) error
	GetByID(ctx context.Context, coopID, id string) (*models.Shareholder, error)
	List(ctx context.Context, coopID string, page pagination.PageRequest) ([]models.Shareholder, int64, error)
}

type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, coopID, id string) (*models.Project, error)
}

type ShareClassRepository interface {
	Create(ctx context.Context, class *models.ShareClass) error
	GetByID(ctx context.Context, coopID, id string) (*models.ShareClass, error)
}

type ShareRepository interface {
	Create(ctx context.Context, share *models.Share) error
	GetByID(ctx context.Context, coopID, id string) (*models.Share, error)
	// ClaimActive writes the share row only while it is ACTIVE.
	ClaimActive(ctx context.Context, coopID, id string) (bool, error)
	TransitionStatus(ctx context.Context, id string, from, to models.ShareStatus) (bool, error)
	// DecrementQuantity reduces an ACTIVE share's quantity by n, only while
	// more than n remain.
	DecrementQuantity(ctx context.Context, id string, n int) (bool, error)
	ListEligibleForDividend(ctx context.Context, coopID string, before time.Time) ([]models.Share, error)
	ListByShareholder(ctx context.Context, coopID, shareholderID string) ([]models.Share, error)
}

// TransactionUpdate carries the columns written together with a status change.
type TransactionUpdate struct {
	ProcessedBy     string
	ProcessedAt     time.Time
	RejectionReason string
}

// TransactionFilter narrows ListTransactions. Empty fields are ignored.
type TransactionFilter struct {
	ShareholderID string                   `form:"shareholder_id"`
	ShareID       string                   `form:"share_id"`
	Type          models.TransactionType   `form:"type"`
	Status        models.TransactionStatus `form:"status"`
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetByID(ctx context.Context, coopID, id string) (*models.Transaction, error)
	TransitionStatus(ctx context.Context, id string, from, to models.TransactionStatus, upd TransactionUpdate) (bool, error)
	SumSaleQuantity(ctx context.Context, shareID string, statuses ...models.TransactionStatus) (int, error)
	List(ctx context.Context, coopID string, filter TransactionFilter, page pagination.PageRequest) ([]models.Transaction, int64, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, coopID, id string) (*models.Payment, error)
	GetByOGM(ctx context.Context, coopID, code string) (*models.Payment, error)
	// FindByTransactionID returns nil, nil when the transaction has no payment.
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	// FindPendingByOGM returns nil, nil when no PENDING payment carries code.
	FindPendingByOGM(ctx context.Context, coopID, code string) (*models.Payment, error)
	// MaxSequence returns the highest OGM sequence ever issued for the coop, or 0.
	MaxSequence(ctx context.Context, coopID string) (int, error)
	TransitionStatus(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, at time.Time) (bool, error)
}

type BankImportRepository interface {
	Create(ctx context.Context, imp *models.BankImport) error
	GetByID(ctx context.Context, coopID, id string) (*models.BankImport, error)
	List(ctx context.Context, coopID string, page pagination.PageRequest) ([]models.BankImport, int64, error)
	UpdateCounts(ctx context.Context, imp *models.BankImport) error
	// AdjustMatchCounts moves rows from the unmatched to the matched tally.
	AdjustMatchCounts(ctx context.Context, id string, matched int) error
}

// BankTransactionMatch carries the columns written when a row is matched.
type BankTransactionMatch struct {
	Status    models.MatchStatus
	PaymentID string
	MatchedBy string
	MatchedAt time.Time
}

type BankTransactionRepository interface {
	Create(ctx context.Context, bt *models.BankTransaction) error
	GetByID(ctx context.Context, coopID, id string) (*models.BankTransaction, error)
	// MarkMatched resolves a row only while it is still UNMATCHED.
	MarkMatched(ctx context.Context, id string, match BankTransactionMatch) (bool, error)
	ListByImport(ctx context.Context, coopID, importID string, status models.MatchStatus, page pagination.PageRequest) ([]models.BankTransaction, int64, error)
}

type DividendPeriodRepository interface {
	Create(ctx context.Context, period *models.DividendPeriod) error
	GetByID(ctx context.Context, coopID, id string) (*models.DividendPeriod, error)
	List(ctx context.Context, coopID string) ([]models.DividendPeriod, error)
	// MarkCalculated moves any non-PAID period to CALCULATED.
	MarkCalculated(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkPaid moves a CALCULATED period to PAID.
	MarkPaid(ctx context.Context, id, reference string, at time.Time) (bool, error)
}

type DividendPayoutRepository interface {
	// DeleteByPeriod hard-deletes every payout of the period.
	DeleteByPeriod(ctx context.Context, periodID string) (int64, error)
	CreateBatch(ctx context.Context, payouts []models.DividendPayout) error
	ListByPeriod(ctx context.Context, coopID, periodID string) ([]models.DividendPayout, error)
	MarkPaid(ctx context.Context, periodID, reference string, at time.Time) (int64, error)
}

type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}
