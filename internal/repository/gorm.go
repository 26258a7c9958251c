package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "coopledger/internal/errors"

	"gorm.io/gorm"
)

// GormUnitOfWork implements UnitOfWork on top of a gorm connection.
type GormUnitOfWork struct {
	*gormStore
	db        *gorm.DB
	txOptions *sql.TxOptions
	txTimeout time.Duration
}

// Option configures a GormUnitOfWork.
type Option func(*GormUnitOfWork)

// WithIsolation sets the isolation level of every transaction. PostgreSQL runs
// with sql.LevelSerializable; SQLite only supports its default.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(u *GormUnitOfWork) {
		u.txOptions = &sql.TxOptions{Isolation: level}
	}
}

// WithTxTimeout bounds each transaction. Zero disables the bound.
func WithTxTimeout(d time.Duration) Option {
	return func(u *GormUnitOfWork) {
		u.txTimeout = d
	}
}

// NewGormUnitOfWork creates a unit of work over db.
func NewGormUnitOfWork(db *gorm.DB, opts ...Option) *GormUnitOfWork {
	u := &GormUnitOfWork{gormStore: newGormStore(db), db: db}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WithinTx runs fn inside a single database transaction.
func (u *GormUnitOfWork) WithinTx(ctx context.Context, fn func(Store) error) error {
	if u.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.txTimeout)
		defer cancel()
	}

	var opts []*sql.TxOptions
	if u.txOptions != nil {
		opts = append(opts, u.txOptions)
	}
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newGormStore(tx))
	}, opts...)
}

type gormStore struct {
	coops            *coopRepository
	shareholders     *shareholderRepository
	projects         *projectRepository
	shareClasses     *shareClassRepository
	shares           *shareRepository
	transactions     *transactionRepository
	payments         *paymentRepository
	bankImports      *bankImportRepository
	bankTransactions *bankTransactionRepository
	dividendPeriods  *dividendPeriodRepository
	dividendPayouts  *dividendPayoutRepository
	auditLogs        *auditLogRepository
}

func newGormStore(db *gorm.DB) *gormStore {
	return &gormStore{
		coops:            &coopRepository{db: db},
		shareholders:     &shareholderRepository{db: db},
		projects:         &projectRepository{db: db},
		shareClasses:     &shareClassRepository{db: db},
		shares:           &shareRepository{db: db},
		transactions:     &transactionRepository{db: db},
		payments:         &paymentRepository{db: db},
		bankImports:      &bankImportRepository{db: db},
		bankTransactions: &bankTransactionRepository{db: db},
		dividendPeriods:  &dividendPeriodRepository{db: db},
		dividendPayouts:  &dividendPayoutRepository{db: db},
		auditLogs:        &auditLogRepository{db: db},
	}
}

func (s *gormStore) Coops() CoopRepository                       { return s.coops }
func (s *gormStore) Shareholders() ShareholderRepository         { return s.shareholders }
func (s *gormStore) Projects() ProjectRepository                 { return s.projects }
func (s *gormStore) ShareClasses() ShareClassRepository          { return s.shareClasses }
func (s *gormStore) Shares() ShareRepository                     { return s.shares }
func (s *gormStore) Transactions() TransactionRepository         { return s.transactions }
func (s *gormStore) Payments() PaymentRepository                 { return s.payments }
func (s *gormStore) BankImports() BankImportRepository           { return s.bankImports }
func (s *gormStore) BankTransactions() BankTransactionRepository { return s.bankTransactions }
func (s *gormStore) DividendPeriods() DividendPeriodRepository   { return s.dividendPeriods }
func (s *gormStore) DividendPayouts() DividendPayoutRepository   { return s.dividendPayouts }
func (s *gormStore) AuditLogs() AuditLogRepository               { return s.auditLogs }

// notFound maps gorm.ErrRecordNotFound to the entity's NOT_FOUND error and
// returns any other error unchanged.
func notFound(err error, sentinel *apperrors.AppError, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(sentinel, entity, id)
	}
	return err
}

// duplicate maps unique-constraint violations to sentinel.
func duplicate(err error, sentinel *apperrors.AppError) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Wrap(sentinel, err)
	}
	return err
}

// affected converts an UPDATE result into the conditional-update contract.
func affected(res *gorm.DB) (bool, error) {
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
