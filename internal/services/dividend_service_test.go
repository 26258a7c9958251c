package services

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"coopledger/internal/lock"
	"coopledger/internal/models"
	"coopledger/internal/testutil"
)

var (
	exDate  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	payDate = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
)

func (e *ledgerEnv) period(t *testing.T, rate, tax string) *models.DividendPeriod {
	t.Helper()
	p, err := e.dividend.CreatePeriod(context.Background(), e.coop.ID, PeriodInput{
		Year:               2023,
		DividendRate:       decimal.RequireFromString(rate),
		WithholdingTaxRate: decimal.RequireFromString(tax),
		ExDividendDate:     exDate,
		PaymentDate:        payDate,
	})
	testutil.AssertNoError(t, err)
	return p
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreatePeriod(t *testing.T) {
	ctx := context.Background()

	t.Run("draft", func(t *testing.T) {
		env := setupLedger(t)
		p := env.period(t, "0.05", "0.30")
		if p.Status != models.DividendPeriodStatusDraft {
			t.Errorf("expected DRAFT, got %s", p.Status)
		}
	})

	t.Run("one_per_year", func(t *testing.T) {
		env := setupLedger(t)
		env.period(t, "0.05", "0.30")
		_, err := env.dividend.CreatePeriod(ctx, env.coop.ID, PeriodInput{
			Year: 2023, DividendRate: dec("0.04"), WithholdingTaxRate: dec("0.30"),
			ExDividendDate: exDate, PaymentDate: payDate,
		})
		testutil.AssertAppError(t, err, "CONFLICT")
	})

	tests := []struct {
		name string
		in   PeriodInput
	}{
		{"rate_above_one", PeriodInput{Year: 2023, DividendRate: dec("1.5"), WithholdingTaxRate: dec("0.3"), ExDividendDate: exDate, PaymentDate: payDate}},
		{"negative_tax", PeriodInput{Year: 2023, DividendRate: dec("0.05"), WithholdingTaxRate: dec("-0.1"), ExDividendDate: exDate, PaymentDate: payDate}},
		{"year_out_of_range", PeriodInput{Year: 12, DividendRate: dec("0.05"), WithholdingTaxRate: dec("0.3"), ExDividendDate: exDate, PaymentDate: payDate}},
		{"missing_dates", PeriodInput{Year: 2023, DividendRate: dec("0.05"), WithholdingTaxRate: dec("0.3")}},
		{"payment_before_ex_date", PeriodInput{Year: 2023, DividendRate: dec("0.05"), WithholdingTaxRate: dec("0.3"), ExDividendDate: payDate, PaymentDate: exDate}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupLedger(t)
			_, err := env.dividend.CreatePeriod(ctx, env.coop.ID, tt.in)
			testutil.AssertAppError(t, err, "VALIDATION")
		})
	}
}

func TestCalculate(t *testing.T) {
	ctx := context.Background()

	t.Run("single_holder", func(t *testing.T) {
		env := setupLedger(t)
		env.activeShare(t, env.holder, 10)
		p := env.period(t, "0.05", "0.30")

		sum, err := env.dividend.Calculate(ctx, env.coop.ID, p.ID)
		testutil.AssertNoError(t, err)

		if sum.Period.Status != models.DividendPeriodStatusCalculated || sum.Period.CalculatedAt == nil {
			t.Errorf("expected CALCULATED with timestamp, got %s", sum.Period.Status)
		}
		if sum.ShareholderCount != 1 {
			t.Fatalf("expected 1 payout, got %d", sum.ShareholderCount)
		}
		po := sum.Payouts[0]
		testutil.AssertDecimal(t, "gross", po.GrossAmount, "125")
		testutil.AssertDecimal(t, "tax", po.WithholdingTax, "37.50")
		testutil.AssertDecimal(t, "net", po.NetAmount, "87.50")
		if len(po.Breakdown) != 1 || po.Breakdown[0].Quantity != 10 || !po.Breakdown[0].TotalValue.Equal(dec("2500")) {
			t.Errorf("unexpected breakdown: %+v", po.Breakdown)
		}
		if po.Shareholder == nil || po.Shareholder.ID != env.holder.ID {
			t.Error("expected shareholder to be loaded on the payout")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		env := setupLedger(t)
		other := testutil.CreateTestShareholder(t, env.db, env.coop.ID)
		env.activeShare(t, env.holder, 10)
		env.activeShare(t, env.holder, 3)
		env.activeShare(t, other, 7)
		p := env.period(t, "0.035", "0.30")

		first, err := env.dividend.Calculate(ctx, env.coop.ID, p.ID)
		testutil.AssertNoError(t, err)
		second, err := env.dividend.Calculate(ctx, env.coop.ID, p.ID)
		testutil.AssertNoError(t, err)

		if !first.TotalGross.Equal(second.TotalGross) || !first.TotalTax.Equal(second.TotalTax) || !first.TotalNet.Equal(second.TotalNet) {
			t.Errorf("totals differ between runs: %s/%s vs %s/%s", first.TotalGross, first.TotalNet, second.TotalGross, second.TotalNet)
		}
		if second.ShareholderCount != 2 {
			t.Errorf("expected 2 payouts, got %d", second.ShareholderCount)
		}
		if n := env.count(t, &models.DividendPayout{}); n != 2 {
			t.Errorf("expected payouts replaced not duplicated, found %d rows", n)
		}
		for i := range first.Payouts {
			if first.Payouts[i].ShareholderID != second.Payouts[i].ShareholderID || !first.Payouts[i].NetAmount.Equal(second.Payouts[i].NetAmount) {
				t.Errorf("payout %d differs between runs", i)
			}
		}
	})

	t.Run("ex_dividend_date_is_exclusive", func(t *testing.T) {
		env := setupLedger(t)
		late := testutil.CreateTestShareholder(t, env.db, env.coop.ID)
		testutil.CreateTestShare(t, env.db, env.holder, env.class, 4, models.ShareStatusActive, exDate.AddDate(0, 0, -1))
		testutil.CreateTestShare(t, env.db, late, env.class, 4, models.ShareStatusActive, exDate)
		p := env.period(t, "0.05", "0")

		sum, err := env.dividend.Calculate(ctx, env.coop.ID, p.ID)
		testutil.AssertNoError(t, err)
		if sum.ShareholderCount != 1 || sum.Payouts[0].ShareholderID != env.holder.ID {
			t.Errorf("expected only the share bought before the ex-date, got %d payouts", sum.ShareholderCount)
		}
	})

	t.Run("only_active_shares", func(t *testing.T) {
		env := setupLedger(t)
		testutil.CreateTestShare(t, env.db, env.holder, env.class, 5, models.ShareStatusPending, exDate.AddDate(-1, 0, 0))
		testutil.CreateTestShare(t, env.db, env.holder, env.class, 5, models.ShareStatusSold, exDate.AddDate(-1, 0, 0))
		p := env.period(t, "0.05", "0.30")

		sum, err := env.dividend.Calculate(ctx, env.coop.ID, p.ID)
		testutil.AssertNoError(t, err)
		if sum.ShareholderCount != 0 || !sum.TotalGross.IsZero() {
			t.Errorf("expected no payouts, got %d", sum.ShareholderCount)
		}
	})

	t.Run("class_rate_override", func(t *testing.T) {
		env := setupLedger(t)
		premium := testutil.CreateTestShareClass(t, env.db, env.coop.ID, "100.00")
		if err := env.db.Model(premium).Update("dividend_rate_override", dec("0.08")).Error; err != nil {
			t.Fatalf("set override: %v", err)
		}
		env.activeShare(t, env.holder, 4)
		testutil.CreateTestShare(t, env.db, env.holder, premium, 10, models.ShareStatusActive, exDate.AddDate(-1, 0, 0))
		p := env.period(t, "0.05", "0.30")

		sum, err := env.dividend.Calculate(ctx, env.coop.ID, p.ID)
		testutil.AssertNoError(t, err)
		po := sum.Payouts[0]
		// 1000 * 0.05 + 1000 * 0.08
		testutil.AssertDecimal(t, "gross", po.GrossAmount, "130")
		testutil.AssertDecimal(t, "tax", po.WithholdingTax, "39")
		testutil.AssertDecimal(t, "net", po.NetAmount, "91")
		if len(po.Breakdown) != 2 {
			t.Errorf("expected one line per class, got %d", len(po.Breakdown))
		}
	})

	t.Run("paid_is_final", func(t *testing.T) {
		env := setupLedger(t)
		env.activeShare(t, env.holder, 10)
		p := env.period(t, "0.05", "0.30")
		_, err := env.dividend.Calculate(ctx, env.coop.ID, p.ID)
		testutil.AssertNoError(t, err)
		_, err = env.dividend.MarkAsPaid(ctx, env.coop.ID, p.ID, "BATCH-2024-06")
		testutil.AssertNoError(t, err)

		_, err = env.dividend.Calculate(ctx, env.coop.ID, p.ID)
		testutil.AssertAppError(t, err, "INVALID_STATE")
	})

	t.Run("busy_period", func(t *testing.T) {
		env := setupLedger(t)
		p := env.period(t, "0.05", "0.30")
		locker := lock.NewLocalLocker(20 * time.Millisecond)
		svc := NewDividendService(env.uow, locker, WithClock(fixedClock))

		release, err := locker.Acquire(ctx, "dividend-period:"+p.ID)
		testutil.AssertNoError(t, err)
		defer release()

		_, err = svc.Calculate(ctx, env.coop.ID, p.ID)
		testutil.AssertAppError(t, err, "CONFLICT")
	})

	t.Run("unknown_period", func(t *testing.T) {
		env := setupLedger(t)
		_, err := env.dividend.Calculate(ctx, env.coop.ID, "00000000-0000-0000-0000-000000000000")
		testutil.AssertAppError(t, err, "NOT_FOUND")
	})
}

func TestMarkAsPaid(t *testing.T) {
	ctx := context.Background()

	t.Run("draft_cannot_be_paid", func(t *testing.T) {
		env := setupLedger(t)
		p := env.period(t, "0.05", "0.30")
		_, err := env.dividend.MarkAsPaid(ctx, env.coop.ID, p.ID, "REF")
		testutil.AssertAppError(t, err, "INVALID_STATE")
	})

	t.Run("reference_required", func(t *testing.T) {
		env := setupLedger(t)
		p := env.period(t, "0.05", "0.30")
		_, err := env.dividend.MarkAsPaid(ctx, env.coop.ID, p.ID, "")
		testutil.AssertAppError(t, err, "VALIDATION")
	})

	t.Run("stamps_period_and_payouts", func(t *testing.T) {
		env := setupLedger(t)
		env.activeShare(t, env.holder, 10)
		p := env.period(t, "0.05", "0.30")
		_, err := env.dividend.Calculate(ctx, env.coop.ID, p.ID)
		testutil.AssertNoError(t, err)

		paid, err := env.dividend.MarkAsPaid(ctx, env.coop.ID, p.ID, "BATCH-2024-06")
		testutil.AssertNoError(t, err)
		if paid.Status != models.DividendPeriodStatusPaid || paid.PaidAt == nil {
			t.Errorf("expected PAID with timestamp, got %s", paid.Status)
		}
		if paid.PaymentReference == nil || *paid.PaymentReference != "BATCH-2024-06" {
			t.Error("expected payment reference on the period")
		}

		sum, err := env.dividend.GetPayouts(ctx, env.coop.ID, p.ID)
		testutil.AssertNoError(t, err)
		for _, po := range sum.Payouts {
			if po.PaidAt == nil || po.PaymentReference == nil || *po.PaymentReference != "BATCH-2024-06" {
				t.Errorf("payout %s not stamped", po.ID)
			}
		}

		_, err = env.dividend.MarkAsPaid(ctx, env.coop.ID, p.ID, "AGAIN")
		testutil.AssertAppError(t, err, "INVALID_STATE")
	})
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	env := setupLedger(t)
	company := &models.Shareholder{
		CoopID: env.coop.ID, Type: models.ShareholderTypeCompany, CompanyName: `Acme "Green" NV`,
		Email: "finance@acme.test", IBAN: "BE71096123456769", IsActive: true,
	}
	if err := env.db.Create(company).Error; err != nil {
		t.Fatalf("create company: %v", err)
	}
	env.activeShare(t, company, 10)
	p := env.period(t, "0.05", "0.30")
	_, err := env.dividend.Calculate(ctx, env.coop.ID, p.ID)
	testutil.AssertNoError(t, err)

	var buf bytes.Buffer
	testutil.AssertNoError(t, env.dividend.ExportCSV(ctx, env.coop.ID, p.ID, &buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != exportHeader {
		t.Errorf("unexpected header %q", lines[0])
	}
	want := company.ID + `;"Acme ""Green"" NV";COMPANY;"finance@acme.test";125.00;37.50;87.50;""`
	if lines[1] != want {
		t.Errorf("unexpected row\n got: %s\nwant: %s", lines[1], want)
	}
}

func TestComputePayoutsRounding(t *testing.T) {
	period := &models.DividendPeriod{
		DividendRate:       dec("0.033"),
		WithholdingTaxRate: dec("0.30"),
	}
	period.ID = "period"
	class := &models.ShareClass{Name: "A"}
	class.ID = "class-a"

	shares := []models.Share{
		{ShareholderID: "h1", ShareClassID: "class-a", ShareClass: class, Quantity: 3, PurchasePricePerShare: dec("33.33")},
		{ShareholderID: "h1", ShareClassID: "class-a", ShareClass: class, Quantity: 1, PurchasePricePerShare: dec("33.33")},
		{ShareholderID: "h1", ShareClassID: "class-a", ShareClass: class, Quantity: 2, PurchasePricePerShare: dec("50")},
	}

	payouts := computePayouts(period, shares)
	if len(payouts) != 1 {
		t.Fatalf("expected 1 payout, got %d", len(payouts))
	}
	po := payouts[0]
	// 133.32 * 0.033 = 4.39956 -> 4.40 ; 100 * 0.033 = 3.30
	if len(po.Breakdown) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(po.Breakdown))
	}
	testutil.AssertDecimal(t, "gross", po.GrossAmount, "7.70")
	// 7.70 * 0.30 = 2.31
	testutil.AssertDecimal(t, "tax", po.WithholdingTax, "2.31")
	testutil.AssertDecimal(t, "net", po.NetAmount, "5.39")
	if !po.NetAmount.Add(po.WithholdingTax).Equal(po.GrossAmount) {
		t.Error("net plus tax must equal gross")
	}
}
