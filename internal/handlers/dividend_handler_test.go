package handlers

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/models"
	"coopledger/internal/services"
)

// --- mock dividend service ---

type mockDividendService struct {
	createFn    func(coopID string, in services.PeriodInput) (*models.DividendPeriod, error)
	getFn       func(coopID, id string) (*models.DividendPeriod, error)
	calculateFn func(coopID, id string) (*services.DividendSummary, error)
	markPaidFn  func(coopID, id, reference string) (*models.DividendPeriod, error)
	exportFn    func(coopID, id string, w io.Writer) error
}

func (m *mockDividendService) CreatePeriod(_ context.Context, coopID string, in services.PeriodInput) (*models.DividendPeriod, error) {
	if m.createFn != nil {
		return m.createFn(coopID, in)
	}
	return &models.DividendPeriod{Year: in.Year, Status: models.DividendPeriodStatusDraft}, nil
}

func (m *mockDividendService) GetPeriod(_ context.Context, coopID, id string) (*models.DividendPeriod, error) {
	if m.getFn != nil {
		return m.getFn(coopID, id)
	}
	return &models.DividendPeriod{Base: models.Base{ID: id}, Year: 2023}, nil
}

func (m *mockDividendService) ListPeriods(_ context.Context, _ string) ([]models.DividendPeriod, error) {
	return []models.DividendPeriod{{Year: 2023}, {Year: 2022}}, nil
}

func (m *mockDividendService) Calculate(_ context.Context, coopID, id string) (*services.DividendSummary, error) {
	if m.calculateFn != nil {
		return m.calculateFn(coopID, id)
	}
	return &services.DividendSummary{Period: &models.DividendPeriod{}}, nil
}

func (m *mockDividendService) MarkAsPaid(_ context.Context, coopID, id, reference string) (*models.DividendPeriod, error) {
	if m.markPaidFn != nil {
		return m.markPaidFn(coopID, id, reference)
	}
	return &models.DividendPeriod{Status: models.DividendPeriodStatusPaid, PaymentReference: &reference}, nil
}

func (m *mockDividendService) GetPayouts(_ context.Context, _, _ string) (*services.DividendSummary, error) {
	return &services.DividendSummary{Period: &models.DividendPeriod{}, Payouts: []models.DividendPayout{}}, nil
}

func (m *mockDividendService) ExportCSV(_ context.Context, coopID, id string, w io.Writer) error {
	if m.exportFn != nil {
		return m.exportFn(coopID, id, w)
	}
	return nil
}

var _ services.DividendServicer = (*mockDividendService)(nil)

func setupDividendRouter(handler *DividendHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectScope(testActor, testCoopID))
	auth.POST("/dividend-periods", handler.CreatePeriod)
	auth.GET("/dividend-periods", handler.ListPeriods)
	auth.GET("/dividend-periods/:id", handler.GetPeriod)
	auth.POST("/dividend-periods/:id/calculate", handler.Calculate)
	auth.POST("/dividend-periods/:id/mark-paid", handler.MarkAsPaid)
	auth.GET("/dividend-periods/:id/payouts", handler.GetPayouts)
	auth.GET("/dividend-periods/:id/export", handler.Export)
	return r
}

func TestDividendHandler_CreatePeriod(t *testing.T) {
	t.Run("creates a draft period", func(t *testing.T) {
		var captured services.PeriodInput
		svc := &mockDividendService{
			createFn: func(_ string, in services.PeriodInput) (*models.DividendPeriod, error) {
				captured = in
				return &models.DividendPeriod{Year: in.Year, Status: models.DividendPeriodStatusDraft}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupDividendRouter(NewDividendHandler(svc, audit))

		rec := doRequest(r, http.MethodPost, "/dividend-periods",
			`{"year":2023,"dividend_rate":"0.05","withholding_tax_rate":"0.30","ex_dividend_date":"2024-01-01","payment_date":"2024-06-30"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if !captured.DividendRate.Equal(decimal.RequireFromString("0.05")) || !captured.WithholdingTaxRate.Equal(decimal.RequireFromString("0.3")) {
			t.Errorf("unexpected rates: %+v", captured)
		}
		if captured.ExDividendDate.Format(dateLayout) != "2024-01-01" || captured.PaymentDate.Format(dateLayout) != "2024-06-30" {
			t.Errorf("unexpected dates: %+v", captured)
		}
		period := parseJSON(t, rec)["period"].(map[string]interface{})
		if period["status"] != "DRAFT" {
			t.Errorf("expected DRAFT, got %v", period["status"])
		}
		if len(audit.entries) != 1 || audit.entries[0].action != "CREATE_DIVIDEND_PERIOD" {
			t.Errorf("expected audit entry, got %+v", audit.entries)
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{"rate above one", `{"year":2023,"dividend_rate":"1.5","withholding_tax_rate":"0.30","ex_dividend_date":"2024-01-01","payment_date":"2024-06-30"}`},
		{"negative tax", `{"year":2023,"dividend_rate":"0.05","withholding_tax_rate":"-0.1","ex_dividend_date":"2024-01-01","payment_date":"2024-06-30"}`},
		{"missing year", `{"dividend_rate":"0.05","withholding_tax_rate":"0.30","ex_dividend_date":"2024-01-01","payment_date":"2024-06-30"}`},
		{"bad date", `{"year":2023,"dividend_rate":"0.05","withholding_tax_rate":"0.30","ex_dividend_date":"2024-13-01","payment_date":"2024-06-30"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupDividendRouter(NewDividendHandler(&mockDividendService{}, &mockAuditService{}))
			rec := doRequest(r, http.MethodPost, "/dividend-periods", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			assertErrorCode(t, parseJSON(t, rec), "VALIDATION")
		})
	}

	t.Run("duplicate year", func(t *testing.T) {
		svc := &mockDividendService{
			createFn: func(string, services.PeriodInput) (*models.DividendPeriod, error) {
				return nil, apperrors.ErrDuplicateDividendPeriod
			},
		}
		r := setupDividendRouter(NewDividendHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/dividend-periods",
			`{"year":2023,"dividend_rate":"0.05","withholding_tax_rate":"0.30","ex_dividend_date":"2024-01-01","payment_date":"2024-06-30"}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "CONFLICT")
	})
}

func TestDividendHandler_Calculate(t *testing.T) {
	t.Run("returns totals", func(t *testing.T) {
		svc := &mockDividendService{
			calculateFn: func(_, id string) (*services.DividendSummary, error) {
				return &services.DividendSummary{
					Period:           &models.DividendPeriod{Base: models.Base{ID: id}, Status: models.DividendPeriodStatusCalculated},
					ShareholderCount: 1,
					TotalGross:       decimal.RequireFromString("125"),
					TotalTax:         decimal.RequireFromString("37.5"),
					TotalNet:         decimal.RequireFromString("87.5"),
				}, nil
			},
		}
		r := setupDividendRouter(NewDividendHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/dividend-periods/"+testOtherID+"/calculate", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := parseJSON(t, rec)
		if body["total_net"] != "87.5" || body["shareholder_count"] != float64(1) {
			t.Errorf("unexpected summary: %v", body)
		}
	})

	t.Run("paid period", func(t *testing.T) {
		svc := &mockDividendService{
			calculateFn: func(_, id string) (*services.DividendSummary, error) {
				return nil, apperrors.InvalidTransition("dividend period", id, "PAID", "CALCULATED")
			},
		}
		r := setupDividendRouter(NewDividendHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/dividend-periods/"+testOtherID+"/calculate", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_STATE")
	})
}

func TestDividendHandler_MarkAsPaid(t *testing.T) {
	t.Run("requires a reference", func(t *testing.T) {
		r := setupDividendRouter(NewDividendHandler(&mockDividendService{}, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/dividend-periods/"+testOtherID+"/mark-paid", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("passes the reference", func(t *testing.T) {
		var ref string
		svc := &mockDividendService{
			markPaidFn: func(_, _, reference string) (*models.DividendPeriod, error) {
				ref = reference
				return &models.DividendPeriod{Status: models.DividendPeriodStatusPaid, PaymentReference: &reference}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupDividendRouter(NewDividendHandler(svc, audit))
		rec := doRequest(r, http.MethodPost, "/dividend-periods/"+testOtherID+"/mark-paid", `{"payment_reference":"BATCH-2024-06"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if ref != "BATCH-2024-06" {
			t.Errorf("expected reference forwarded, got %q", ref)
		}
		if len(audit.entries) != 1 || audit.entries[0].action != "MARK_DIVIDENDS_PAID" {
			t.Errorf("expected audit entry, got %+v", audit.entries)
		}
	})
}

func TestDividendHandler_Export(t *testing.T) {
	t.Run("streams csv", func(t *testing.T) {
		svc := &mockDividendService{
			exportFn: func(_, _ string, w io.Writer) error {
				_, err := io.WriteString(w, "shareholder_id;name\n")
				return err
			},
		}
		r := setupDividendRouter(NewDividendHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodGet, "/dividend-periods/"+testOtherID+"/export", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
			t.Errorf("unexpected content type %q", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="dividends-2023.csv"` {
			t.Errorf("unexpected disposition %q", cd)
		}
		if rec.Body.String() != "shareholder_id;name\n" {
			t.Errorf("unexpected body %q", rec.Body.String())
		}
	})

	t.Run("unknown period", func(t *testing.T) {
		svc := &mockDividendService{
			getFn: func(_, id string) (*models.DividendPeriod, error) {
				return nil, apperrors.NotFound(apperrors.ErrDividendPeriodNotFound, "dividend period", id)
			},
		}
		r := setupDividendRouter(NewDividendHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodGet, "/dividend-periods/"+testOtherID+"/export", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestDividendHandler_ListPeriods(t *testing.T) {
	r := setupDividendRouter(NewDividendHandler(&mockDividendService{}, &mockAuditService{}))
	rec := doRequest(r, http.MethodGet, "/dividend-periods", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if periods := parseJSON(t, rec)["periods"].([]interface{}); len(periods) != 2 {
		t.Errorf("expected 2 periods, got %d", len(periods))
	}
}
