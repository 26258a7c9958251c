package services

import (
	"context"
	"time"

	"coopledger/internal/bankcsv"
	apperrors "coopledger/internal/errors"
	"coopledger/internal/logger"
	"coopledger/internal/models"
	"coopledger/internal/ogm"
	"coopledger/internal/pagination"
	"coopledger/internal/repository"
)

// bankImportService reconciles bank statements against pending payments.
type bankImportService struct {
	uow repository.UnitOfWork
	now func() time.Time
}

// NewBankImportService creates a new BankImportServicer.
func NewBankImportService(uow repository.UnitOfWork, opts ...ServiceOption) BankImportServicer {
	o := buildOptions(opts)
	return &bankImportService{uow: uow, now: o.now}
}

// Import parses a statement and stores one BankTransaction per parseable row,
// matching rows whose reference carries the OGM of a PENDING payment. The
// whole statement is one unit of work; unparseable rows are reported in the
// result and otherwise ignored.
func (s *bankImportService) Import(ctx context.Context, in ImportInput) (*ImportResult, error) {
	if in.Reader == nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "A bank statement file is required")
	}

	rows, rowErrs, err := bankcsv.Parse(in.Reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.WithMessage(apperrors.ErrInvalidInput, "Bank statement could not be read"), err)
	}

	log := logger.Get()
	skipped := make([]SkippedRow, 0, len(rowErrs))
	for _, re := range rowErrs {
		log.Warnw("skipping bank statement row",
			"file", in.Filename, "line", re.Line, "field", re.Field, "value", re.Value, "error", re.Err)
		skipped = append(skipped, SkippedRow{Line: re.Line, Field: re.Field, Value: re.Value, Reason: re.Err.Error()})
	}

	at := s.now()
	var imp *models.BankImport
	err = s.uow.WithinTx(ctx, func(store repository.Store) error {
		if _, err := store.Coops().GetByID(ctx, in.CoopID); err != nil {
			return err
		}

		imp = &models.BankImport{
			CoopID:       in.CoopID,
			Filename:     in.Filename,
			ImportedBy:   in.ImportedBy,
			SkippedCount: len(rowErrs),
		}
		if err := store.BankImports().Create(ctx, imp); err != nil {
			return err
		}

		for _, row := range rows {
			matched, err := s.importRow(ctx, store, imp, row, at)
			if err != nil {
				return err
			}
			imp.RowCount++
			if matched {
				imp.MatchedCount++
			} else {
				imp.UnmatchedCount++
			}
		}

		return store.BankImports().UpdateCounts(ctx, imp)
	})
	if err != nil {
		return nil, err
	}

	log.Infow("bank statement imported",
		"import_id", imp.ID,
		"file", in.Filename,
		"rows", imp.RowCount,
		"matched", imp.MatchedCount,
		"unmatched", imp.UnmatchedCount,
		"skipped", imp.SkippedCount,
	)
	return &ImportResult{Import: imp, Skipped: skipped}, nil
}

func (s *bankImportService) importRow(ctx context.Context, store repository.Store, imp *models.BankImport, row bankcsv.Row, at time.Time) (bool, error) {
	bt := &models.BankTransaction{
		CoopID:        imp.CoopID,
		BankImportID:  imp.ID,
		Date:          models.DateOnly(row.Date),
		Amount:        row.Amount,
		Counterparty:  row.Counterparty,
		ReferenceText: row.ReferenceText,
		MatchStatus:   models.MatchStatusUnmatched,
	}
	code, found := ogm.Extract(row.ReferenceText)
	if found {
		bt.ExtractedOGM = &code
	}
	if err := store.BankTransactions().Create(ctx, bt); err != nil {
		return false, err
	}

	// Only incoming money with a checksum-valid reference can settle a purchase.
	if !found || !row.Amount.IsPositive() || !ogm.IsValid(code) {
		return false, nil
	}

	payment, err := store.Payments().FindPendingByOGM(ctx, imp.CoopID, code)
	if err != nil || payment == nil {
		return false, err
	}
	if !row.Amount.Equal(payment.Amount) {
		logger.Get().Warnw("bank amount differs from expected payment",
			"ogm", code, "expected", payment.Amount.StringFixed(2), "received", row.Amount.StringFixed(2), "line", row.Line)
	}

	claimed, err := settleMatchedPayment(ctx, store, payment, SystemActor, at)
	if err != nil || !claimed {
		return false, err
	}

	ok, err := store.BankTransactions().MarkMatched(ctx, bt.ID, repository.BankTransactionMatch{
		Status:    models.MatchStatusAutoMatched,
		PaymentID: payment.ID,
		MatchedAt: at,
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ManualMatch resolves an UNMATCHED row against a PENDING payment chosen by
// an operator, using the same settlement as the automatic path.
func (s *bankImportService) ManualMatch(ctx context.Context, coopID, bankTransactionID, paymentID, actor string) (*models.BankTransaction, error) {
	at := s.now()
	var out *models.BankTransaction
	err := s.uow.WithinTx(ctx, func(store repository.Store) error {
		bt, err := store.BankTransactions().GetByID(ctx, coopID, bankTransactionID)
		if err != nil {
			return err
		}
		payment, err := store.Payments().GetByID(ctx, coopID, paymentID)
		if err != nil {
			return err
		}

		ok, err := store.BankTransactions().MarkMatched(ctx, bt.ID, repository.BankTransactionMatch{
			Status:    models.MatchStatusManualMatched,
			PaymentID: payment.ID,
			MatchedBy: actor,
			MatchedAt: at,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.WithDetails(apperrors.ErrAlreadyMatched,
				"entity", "bank transaction", "id", bt.ID, "status", string(bt.MatchStatus))
		}

		claimed, err := settleMatchedPayment(ctx, store, payment, actor, at)
		if err != nil {
			return err
		}
		if !claimed {
			return apperrors.InvalidTransition("payment", payment.ID, string(payment.Status), string(models.PaymentStatusMatched))
		}

		if err := store.BankImports().AdjustMatchCounts(ctx, bt.BankImportID, 1); err != nil {
			return err
		}

		out, err = store.BankTransactions().GetByID(ctx, coopID, bt.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("bank transaction matched manually",
		"bank_transaction_id", bankTransactionID, "payment_id", paymentID, "actor", actor)
	return out, nil
}

// GetImport retrieves an import with its counters.
func (s *bankImportService) GetImport(ctx context.Context, coopID, importID string) (*models.BankImport, error) {
	return s.uow.BankImports().GetByID(ctx, coopID, importID)
}

// ListImports retrieves a page of imports, newest first.
func (s *bankImportService) ListImports(ctx context.Context, coopID string, page pagination.PageRequest) (*pagination.PageResponse[models.BankImport], error) {
	page.Defaults()
	imports, total, err := s.uow.BankImports().List(ctx, coopID, page)
	if err != nil {
		return nil, err
	}
	resp := pagination.NewPageResponse(imports, page.Page, page.PageSize, total)
	return &resp, nil
}

// ListBankTransactions retrieves the rows of an import, optionally by match status.
func (s *bankImportService) ListBankTransactions(ctx context.Context, coopID, importID string, status models.MatchStatus, page pagination.PageRequest) (*pagination.PageResponse[models.BankTransaction], error) {
	if _, err := s.uow.BankImports().GetByID(ctx, coopID, importID); err != nil {
		return nil, err
	}
	page.Defaults()
	rows, total, err := s.uow.BankTransactions().ListByImport(ctx, coopID, importID, status, page)
	if err != nil {
		return nil, err
	}
	resp := pagination.NewPageResponse(rows, page.Page, page.PageSize, total)
	return &resp, nil
}
