package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/lock"
	"coopledger/internal/logger"
	"coopledger/internal/models"
	"coopledger/internal/repository"
)

// dividendService calculates and settles dividend periods. Calculation and
// payment of one period are serialized through the locker.
type dividendService struct {
	uow    repository.UnitOfWork
	locker lock.Locker
	now    func() time.Time
}

// NewDividendService creates a new DividendServicer.
func NewDividendService(uow repository.UnitOfWork, locker lock.Locker, opts ...ServiceOption) DividendServicer {
	o := buildOptions(opts)
	return &dividendService{uow: uow, locker: locker, now: o.now}
}

// CreatePeriod declares a DRAFT period. One period per coop and year.
func (s *dividendService) CreatePeriod(ctx context.Context, coopID string, in PeriodInput) (*models.DividendPeriod, error) {
	if in.Year < 1900 || in.Year > 9999 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Year is out of range")
	}
	if !validRate(in.DividendRate) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Dividend rate must be between 0 and 1")
	}
	if !validRate(in.WithholdingTaxRate) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Withholding tax rate must be between 0 and 1")
	}
	if in.ExDividendDate.IsZero() || in.PaymentDate.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Ex-dividend date and payment date are required")
	}
	exDate, payDate := models.DateOnly(in.ExDividendDate), models.DateOnly(in.PaymentDate)
	if payDate.Before(exDate) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Payment date cannot be before the ex-dividend date")
	}

	if _, err := s.uow.Coops().GetByID(ctx, coopID); err != nil {
		return nil, err
	}

	period := &models.DividendPeriod{
		CoopID:             coopID,
		Year:               in.Year,
		DividendRate:       in.DividendRate,
		WithholdingTaxRate: in.WithholdingTaxRate,
		ExDividendDate:     exDate,
		PaymentDate:        payDate,
		Status:             models.DividendPeriodStatusDraft,
	}
	if err := s.uow.DividendPeriods().Create(ctx, period); err != nil {
		return nil, err
	}
	return period, nil
}

func validRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThanOrEqual(decimal.NewFromInt(1))
}

// GetPeriod retrieves a period.
func (s *dividendService) GetPeriod(ctx context.Context, coopID, periodID string) (*models.DividendPeriod, error) {
	return s.uow.DividendPeriods().GetByID(ctx, coopID, periodID)
}

// ListPeriods retrieves all periods of a coop, latest year first.
func (s *dividendService) ListPeriods(ctx context.Context, coopID string) ([]models.DividendPeriod, error) {
	periods, err := s.uow.DividendPeriods().List(ctx, coopID)
	if err != nil {
		return nil, err
	}
	if periods == nil {
		periods = []models.DividendPeriod{}
	}
	return periods, nil
}

// Calculate replaces the period's payouts with a fresh computation over the
// shares that were ACTIVE and bought strictly before the ex-dividend date.
func (s *dividendService) Calculate(ctx context.Context, coopID, periodID string) (*DividendSummary, error) {
	release, err := s.acquire(ctx, periodID)
	if err != nil {
		return nil, err
	}
	defer release()

	var summary *DividendSummary
	err = s.uow.WithinTx(ctx, func(store repository.Store) error {
		period, err := store.DividendPeriods().GetByID(ctx, coopID, periodID)
		if err != nil {
			return err
		}
		if period.Status == models.DividendPeriodStatusPaid {
			return apperrors.InvalidTransition("dividend period", period.ID,
				string(period.Status), string(models.DividendPeriodStatusCalculated))
		}

		shares, err := store.Shares().ListEligibleForDividend(ctx, coopID, period.ExDividendDate)
		if err != nil {
			return err
		}
		payouts := computePayouts(period, shares)

		deleted, err := store.DividendPayouts().DeleteByPeriod(ctx, period.ID)
		if err != nil {
			return err
		}
		if err := store.DividendPayouts().CreateBatch(ctx, payouts); err != nil {
			return err
		}

		at := s.now()
		ok, err := store.DividendPeriods().MarkCalculated(ctx, period.ID, at)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.InvalidTransition("dividend period", period.ID,
				string(period.Status), string(models.DividendPeriodStatusCalculated))
		}
		period.Status = models.DividendPeriodStatusCalculated
		period.CalculatedAt = &at

		stored, err := store.DividendPayouts().ListByPeriod(ctx, coopID, period.ID)
		if err != nil {
			return err
		}
		summary = summarize(period, stored)

		logger.Get().Infow("dividends calculated",
			"period_id", period.ID,
			"year", period.Year,
			"eligible_shares", len(shares),
			"payouts", len(payouts),
			"replaced", deleted,
			"total_gross", summary.TotalGross.StringFixed(2),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// MarkAsPaid closes a CALCULATED period. PAID is terminal.
func (s *dividendService) MarkAsPaid(ctx context.Context, coopID, periodID, reference string) (*models.DividendPeriod, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "A payment reference is required")
	}

	release, err := s.acquire(ctx, periodID)
	if err != nil {
		return nil, err
	}
	defer release()

	var out *models.DividendPeriod
	err = s.uow.WithinTx(ctx, func(store repository.Store) error {
		period, err := store.DividendPeriods().GetByID(ctx, coopID, periodID)
		if err != nil {
			return err
		}

		at := s.now()
		ok, err := store.DividendPeriods().MarkPaid(ctx, period.ID, reference, at)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.InvalidTransition("dividend period", period.ID,
				string(period.Status), string(models.DividendPeriodStatusPaid))
		}

		n, err := store.DividendPayouts().MarkPaid(ctx, period.ID, reference, at)
		if err != nil {
			return err
		}

		out, err = store.DividendPeriods().GetByID(ctx, coopID, periodID)
		if err != nil {
			return err
		}
		logger.Get().Infow("dividend period paid",
			"period_id", period.ID, "payouts", n, "reference", reference)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPayouts retrieves a period with its payouts and totals.
func (s *dividendService) GetPayouts(ctx context.Context, coopID, periodID string) (*DividendSummary, error) {
	period, err := s.uow.DividendPeriods().GetByID(ctx, coopID, periodID)
	if err != nil {
		return nil, err
	}
	payouts, err := s.uow.DividendPayouts().ListByPeriod(ctx, coopID, periodID)
	if err != nil {
		return nil, err
	}
	return summarize(period, payouts), nil
}

// exportHeader is the first line of the payout export.
const exportHeader = "Shareholder ID;Name;Type;Email;Gross;Tax;Net;Reference"

// ExportCSV writes the period's payouts as semicolon-separated rows for the
// bank or accounting package. Free-text columns are always quoted.
func (s *dividendService) ExportCSV(ctx context.Context, coopID, periodID string, w io.Writer) error {
	summary, err := s.GetPayouts(ctx, coopID, periodID)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(exportHeader + "\n"); err != nil {
		return err
	}

	for _, p := range summary.Payouts {
		var name, shType, email string
		if p.Shareholder != nil {
			name = p.Shareholder.DisplayName()
			shType = string(p.Shareholder.Type)
			email = p.Shareholder.Email
		}
		reference := ""
		if p.PaymentReference != nil {
			reference = *p.PaymentReference
		}

		fields := []string{
			p.ShareholderID,
			quoteField(name),
			shType,
			quoteField(email),
			p.GrossAmount.StringFixed(2),
			p.WithholdingTax.StringFixed(2),
			p.NetAmount.StringFixed(2),
			quoteField(reference),
		}
		if _, err := bw.WriteString(strings.Join(fields, ";") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func quoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (s *dividendService) acquire(ctx context.Context, periodID string) (func(), error) {
	release, err := s.locker.Acquire(ctx, "dividend-period:"+periodID)
	if errors.Is(err, lock.ErrTimeout) {
		return nil, apperrors.WithDetails(apperrors.ErrLockBusy, "entity", "dividend period", "id", periodID)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire dividend period lock: %w", err)
	}
	return release, nil
}
