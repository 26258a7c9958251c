package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"coopledger/internal/lock"
	"coopledger/internal/models"
	"coopledger/internal/pagination"
	"coopledger/internal/repository"
	"coopledger/internal/testutil"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// ledgerEnv bundles a database, a coop with one shareholder and one share
// class, and every service wired to them.
type ledgerEnv struct {
	db       *gorm.DB
	uow      *repository.GormUnitOfWork
	ledger   LedgerServicer
	bank     BankImportServicer
	dividend DividendServicer
	coop     *models.Coop
	holder   *models.Shareholder
	class    *models.ShareClass
}

func setupLedger(t *testing.T) *ledgerEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	uow := repository.NewGormUnitOfWork(db)
	coop := testutil.CreateTestCoop(t, db)
	return &ledgerEnv{
		db:       db,
		uow:      uow,
		ledger:   NewLedgerService(uow, WithClock(fixedClock)),
		bank:     NewBankImportService(uow, WithClock(fixedClock)),
		dividend: NewDividendService(uow, lock.NewLocalLocker(time.Second), WithClock(fixedClock)),
		coop:     coop,
		holder:   testutil.CreateTestShareholder(t, db, coop.ID),
		class:    testutil.CreateTestShareClass(t, db, coop.ID, "250.00"),
	}
}

// purchase runs InitiatePurchase and fails the test on error.
func (e *ledgerEnv) purchase(t *testing.T, holder *models.Shareholder, quantity int) *PurchaseResult {
	t.Helper()
	res, err := e.ledger.InitiatePurchase(context.Background(), PurchaseInput{
		CoopID:        e.coop.ID,
		ShareholderID: holder.ID,
		ShareClassID:  e.class.ID,
		Quantity:      quantity,
	})
	testutil.AssertNoError(t, err)
	return res
}

// activeShare creates an ACTIVE share of quantity for holder, bought a year
// before testNow.
func (e *ledgerEnv) activeShare(t *testing.T, holder *models.Shareholder, quantity int) *models.Share {
	t.Helper()
	return testutil.CreateTestShare(t, e.db, holder, e.class, quantity, models.ShareStatusActive, testNow.AddDate(-1, 0, 0))
}

func (e *ledgerEnv) reloadShare(t *testing.T, id string) *models.Share {
	t.Helper()
	var share models.Share
	if err := e.db.First(&share, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload share %s: %v", id, err)
	}
	return &share
}

func (e *ledgerEnv) reloadPayment(t *testing.T, id string) *models.Payment {
	t.Helper()
	var p models.Payment
	if err := e.db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload payment %s: %v", id, err)
	}
	return &p
}

func (e *ledgerEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

var errBoom = errors.New("boom: payment store unavailable")

// failingPaymentsUoW wraps a unit of work so that creating a payment inside a
// transaction fails after the share and transaction rows were written.
type failingPaymentsUoW struct {
	repository.UnitOfWork
}

func (u failingPaymentsUoW) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return u.UnitOfWork.WithinTx(ctx, func(store repository.Store) error {
		return fn(failingPaymentsStore{Store: store})
	})
}

type failingPaymentsStore struct {
	repository.Store
}

func (s failingPaymentsStore) Payments() repository.PaymentRepository {
	return failingPayments{PaymentRepository: s.Store.Payments()}
}

type failingPayments struct {
	repository.PaymentRepository
}

func (failingPayments) Create(context.Context, *models.Payment) error {
	return errBoom
}

func paginationDefaults() pagination.PageRequest {
	p := pagination.PageRequest{}
	p.Defaults()
	return p
}
