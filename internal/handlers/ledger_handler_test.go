package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/models"
	"coopledger/internal/pagination"
	"coopledger/internal/repository"
	"coopledger/internal/services"
)

// --- mock ledger service ---

type mockLedgerService struct {
	purchaseFn       func(in services.PurchaseInput) (*services.PurchaseResult, error)
	saleFn           func(in services.SaleInput) (*models.Transaction, error)
	approveFn        func(coopID, id, actor string) (*models.Transaction, error)
	rejectFn         func(coopID, id, actor, reason string) (*models.Transaction, error)
	completeFn       func(coopID, id, actor string) (*models.Transaction, error)
	transferFn       func(in services.TransferInput) (*services.TransferResult, error)
	paymentDetailsFn func(coopID, id string) (*services.PaymentDetails, error)
	getFn            func(coopID, id string) (*models.Transaction, error)
	listFn           func(coopID string, f repository.TransactionFilter, p pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
	byOGMFn          func(coopID, code string) (*models.Payment, error)
}

func (m *mockLedgerService) InitiatePurchase(_ context.Context, in services.PurchaseInput) (*services.PurchaseResult, error) {
	if m.purchaseFn != nil {
		return m.purchaseFn(in)
	}
	return &services.PurchaseResult{Share: &models.Share{}, Transaction: &models.Transaction{}, Payment: &models.Payment{}}, nil
}

func (m *mockLedgerService) InitiateSale(_ context.Context, in services.SaleInput) (*models.Transaction, error) {
	if m.saleFn != nil {
		return m.saleFn(in)
	}
	return &models.Transaction{}, nil
}

func (m *mockLedgerService) Approve(_ context.Context, coopID, id, actor string) (*models.Transaction, error) {
	if m.approveFn != nil {
		return m.approveFn(coopID, id, actor)
	}
	return &models.Transaction{}, nil
}

func (m *mockLedgerService) Reject(_ context.Context, coopID, id, actor, reason string) (*models.Transaction, error) {
	if m.rejectFn != nil {
		return m.rejectFn(coopID, id, actor, reason)
	}
	return &models.Transaction{}, nil
}

func (m *mockLedgerService) Complete(_ context.Context, coopID, id, actor string) (*models.Transaction, error) {
	if m.completeFn != nil {
		return m.completeFn(coopID, id, actor)
	}
	return &models.Transaction{}, nil
}

func (m *mockLedgerService) ExecuteTransfer(_ context.Context, in services.TransferInput) (*services.TransferResult, error) {
	if m.transferFn != nil {
		return m.transferFn(in)
	}
	return &services.TransferResult{NewShare: &models.Share{}}, nil
}

func (m *mockLedgerService) GetPaymentDetails(_ context.Context, coopID, id string) (*services.PaymentDetails, error) {
	if m.paymentDetailsFn != nil {
		return m.paymentDetailsFn(coopID, id)
	}
	return &services.PaymentDetails{}, nil
}

func (m *mockLedgerService) GetTransaction(_ context.Context, coopID, id string) (*models.Transaction, error) {
	if m.getFn != nil {
		return m.getFn(coopID, id)
	}
	return &models.Transaction{}, nil
}

func (m *mockLedgerService) ListTransactions(_ context.Context, coopID string, f repository.TransactionFilter, p pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	if m.listFn != nil {
		return m.listFn(coopID, f, p)
	}
	resp := pagination.NewPageResponse([]models.Transaction{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockLedgerService) GetPaymentByOGM(_ context.Context, coopID, code string) (*models.Payment, error) {
	if m.byOGMFn != nil {
		return m.byOGMFn(coopID, code)
	}
	return &models.Payment{}, nil
}

var _ services.LedgerServicer = (*mockLedgerService)(nil)

func setupLedgerRouter(handler *LedgerHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectScope(testActor, testCoopID))
	auth.POST("/transactions/purchase", handler.InitiatePurchase)
	auth.POST("/transactions/sale", handler.InitiateSale)
	auth.POST("/transactions/transfer", handler.ExecuteTransfer)
	auth.GET("/transactions", handler.ListTransactions)
	auth.GET("/transactions/:id", handler.GetTransaction)
	auth.POST("/transactions/:id/approve", handler.Approve)
	auth.POST("/transactions/:id/reject", handler.Reject)
	auth.POST("/transactions/:id/complete", handler.Complete)
	auth.GET("/transactions/:id/payment-details", handler.GetPaymentDetails)
	auth.GET("/payments/lookup", handler.GetPaymentByOGM)
	return r
}

func TestLedgerHandler_InitiatePurchase(t *testing.T) {
	t.Run("returns 201 with the payment reference", func(t *testing.T) {
		var captured services.PurchaseInput
		svc := &mockLedgerService{
			purchaseFn: func(in services.PurchaseInput) (*services.PurchaseResult, error) {
				captured = in
				return &services.PurchaseResult{
					Share:       &models.Share{Base: models.Base{ID: testShare}, Quantity: in.Quantity},
					Transaction: &models.Transaction{Base: models.Base{ID: testTxnID}},
					Payment:     &models.Payment{OGMCode: "+++001/0000/00177+++", Amount: decimal.NewFromInt(500)},
				}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupLedgerRouter(NewLedgerHandler(svc, audit))

		rec := doRequest(r, http.MethodPost, "/transactions/purchase",
			`{"shareholder_id":"`+testHolder+`","share_class_id":"`+testClass+`","quantity":2,"purchase_date":"2024-03-01"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if captured.CoopID != testCoopID || captured.Quantity != 2 || captured.PurchaseDate.Format(dateLayout) != "2024-03-01" {
			t.Errorf("unexpected input: %+v", captured)
		}
		payment := parseJSON(t, rec)["payment"].(map[string]interface{})
		if payment["ogm_code"] != "+++001/0000/00177+++" {
			t.Errorf("expected OGM in response, got %v", payment["ogm_code"])
		}
		if len(audit.entries) != 1 || audit.entries[0].action != "INITIATE_PURCHASE" || audit.entries[0].actor != testActor {
			t.Errorf("expected audit entry, got %+v", audit.entries)
		}
	})

	t.Run("returns 400 on zero quantity", func(t *testing.T) {
		r := setupLedgerRouter(NewLedgerHandler(&mockLedgerService{}, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/purchase",
			`{"shareholder_id":"`+testHolder+`","share_class_id":"`+testClass+`","quantity":0}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "VALIDATION")
	})

	t.Run("returns 400 on bad date", func(t *testing.T) {
		r := setupLedgerRouter(NewLedgerHandler(&mockLedgerService{}, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/purchase",
			`{"shareholder_id":"`+testHolder+`","share_class_id":"`+testClass+`","quantity":1,"purchase_date":"01/03/2024"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 404 from service", func(t *testing.T) {
		svc := &mockLedgerService{
			purchaseFn: func(services.PurchaseInput) (*services.PurchaseResult, error) {
				return nil, apperrors.NotFound(apperrors.ErrShareClassNotFound, "share class", testClass)
			},
		}
		r := setupLedgerRouter(NewLedgerHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/purchase",
			`{"shareholder_id":"`+testHolder+`","share_class_id":"`+testClass+`","quantity":1}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "NOT_FOUND")
	})

	t.Run("returns 401 without scope", func(t *testing.T) {
		handler := NewLedgerHandler(&mockLedgerService{}, &mockAuditService{})
		r := gin.New()
		r.POST("/transactions/purchase", handler.InitiatePurchase)
		rec := doRequest(r, http.MethodPost, "/transactions/purchase", `{}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestLedgerHandler_InitiateSale(t *testing.T) {
	t.Run("returns 409 with details when over-committed", func(t *testing.T) {
		svc := &mockLedgerService{
			saleFn: func(services.SaleInput) (*models.Transaction, error) {
				return nil, apperrors.WithDetails(apperrors.ErrOverCommitted, "available", "4")
			},
		}
		r := setupLedgerRouter(NewLedgerHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/sale",
			`{"shareholder_id":"`+testHolder+`","share_id":"`+testShare+`","quantity":5}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		body := parseJSON(t, rec)
		assertErrorCode(t, body, "OVER_COMMITTED")
		details := body["error"].(map[string]interface{})["details"].(map[string]interface{})
		if details["available"] != "4" {
			t.Errorf("expected available=4 in details, got %v", details)
		}
	})

	t.Run("returns 422 on wrong owner", func(t *testing.T) {
		svc := &mockLedgerService{
			saleFn: func(services.SaleInput) (*models.Transaction, error) { return nil, apperrors.ErrWrongOwner },
		}
		r := setupLedgerRouter(NewLedgerHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/sale",
			`{"shareholder_id":"`+testHolder+`","share_id":"`+testShare+`","quantity":1}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on malformed share id", func(t *testing.T) {
		r := setupLedgerRouter(NewLedgerHandler(&mockLedgerService{}, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/sale",
			`{"shareholder_id":"`+testHolder+`","share_id":"42","quantity":1}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestLedgerHandler_ExecuteTransfer(t *testing.T) {
	t.Run("passes actor to the service", func(t *testing.T) {
		var captured services.TransferInput
		svc := &mockLedgerService{
			transferFn: func(in services.TransferInput) (*services.TransferResult, error) {
				captured = in
				return &services.TransferResult{NewShare: &models.Share{Base: models.Base{ID: testOtherID}}}, nil
			},
		}
		r := setupLedgerRouter(NewLedgerHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/transfer",
			`{"from_shareholder_id":"`+testHolder+`","to_shareholder_id":"`+testOtherID+`","share_id":"`+testShare+`","quantity":3}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if captured.Actor != testActor || captured.Quantity != 3 {
			t.Errorf("unexpected input: %+v", captured)
		}
	})

	t.Run("returns 400 when sender and recipient match", func(t *testing.T) {
		r := setupLedgerRouter(NewLedgerHandler(&mockLedgerService{}, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/transfer",
			`{"from_shareholder_id":"`+testHolder+`","to_shareholder_id":"`+testHolder+`","share_id":"`+testShare+`","quantity":3}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestLedgerHandler_Review(t *testing.T) {
	t.Run("approve returns 200", func(t *testing.T) {
		svc := &mockLedgerService{
			approveFn: func(coopID, id, actor string) (*models.Transaction, error) {
				if coopID != testCoopID || id != testTxnID || actor != testActor {
					t.Errorf("unexpected args %s %s %s", coopID, id, actor)
				}
				return &models.Transaction{Base: models.Base{ID: id}, Status: models.TransactionStatusApproved}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupLedgerRouter(NewLedgerHandler(svc, audit))
		rec := doRequest(r, http.MethodPost, "/transactions/"+testTxnID+"/approve", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		txn := parseJSON(t, rec)["transaction"].(map[string]interface{})
		if txn["status"] != "APPROVED" {
			t.Errorf("expected APPROVED, got %v", txn["status"])
		}
		if len(audit.entries) != 1 || audit.entries[0].action != "APPROVE_TRANSACTION" {
			t.Errorf("expected approve audit entry, got %+v", audit.entries)
		}
	})

	t.Run("approve returns 409 on invalid state", func(t *testing.T) {
		svc := &mockLedgerService{
			approveFn: func(_, id, _ string) (*models.Transaction, error) {
				return nil, apperrors.InvalidTransition("transaction", id, "COMPLETED", "APPROVED")
			},
		}
		r := setupLedgerRouter(NewLedgerHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/"+testTxnID+"/approve", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_STATE")
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		r := setupLedgerRouter(NewLedgerHandler(&mockLedgerService{}, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/"+testTxnID+"/reject", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("reject passes the reason", func(t *testing.T) {
		var reason string
		svc := &mockLedgerService{
			rejectFn: func(_, _, _, r string) (*models.Transaction, error) {
				reason = r
				return &models.Transaction{Status: models.TransactionStatusRejected}, nil
			},
		}
		r := setupLedgerRouter(NewLedgerHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/"+testTxnID+"/reject", `{"reason":"duplicate"}`)
		if rec.Code != http.StatusOK || reason != "duplicate" {
			t.Fatalf("expected 200 with reason, got %d %q", rec.Code, reason)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		r := setupLedgerRouter(NewLedgerHandler(&mockLedgerService{}, &mockAuditService{}))
		rec := doRequest(r, http.MethodPost, "/transactions/abc/complete", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestLedgerHandler_Queries(t *testing.T) {
	t.Run("list passes filters", func(t *testing.T) {
		var filter repository.TransactionFilter
		var page pagination.PageRequest
		svc := &mockLedgerService{
			listFn: func(_ string, f repository.TransactionFilter, p pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
				filter, page = f, p
				resp := pagination.NewPageResponse([]models.Transaction{{}}, 2, 5, 6)
				return &resp, nil
			},
		}
		r := setupLedgerRouter(NewLedgerHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodGet, "/transactions?type=SALE&status=PENDING&shareholder_id="+testHolder+"&page=2&page_size=5", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if filter.Type != models.TransactionTypeSale || filter.Status != models.TransactionStatusPending || filter.ShareholderID != testHolder {
			t.Errorf("unexpected filter: %+v", filter)
		}
		if page.Page != 2 || page.PageSize != 5 {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("list rejects unknown type", func(t *testing.T) {
		r := setupLedgerRouter(NewLedgerHandler(&mockLedgerService{}, &mockAuditService{}))
		rec := doRequest(r, http.MethodGet, "/transactions?type=GIFT", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("payment details", func(t *testing.T) {
		svc := &mockLedgerService{
			paymentDetailsFn: func(_, _ string) (*services.PaymentDetails, error) {
				return &services.PaymentDetails{
					Direction: services.PaymentDirectionIncoming, BeneficiaryName: "Energie Coop",
					IBAN: "BE68539007547034", Amount: decimal.RequireFromString("500"), OGMCode: "+++001/0000/00177+++",
				}, nil
			},
		}
		r := setupLedgerRouter(NewLedgerHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodGet, "/transactions/"+testTxnID+"/payment-details", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := parseJSON(t, rec)
		if body["direction"] != "INCOMING" || body["ogm_code"] != "+++001/0000/00177+++" {
			t.Errorf("unexpected details: %v", body)
		}
	})

	t.Run("payment lookup surfaces checksum errors", func(t *testing.T) {
		svc := &mockLedgerService{
			byOGMFn: func(_, _ string) (*models.Payment, error) { return nil, apperrors.ErrInvalidOGMChecksum },
		}
		r := setupLedgerRouter(NewLedgerHandler(svc, &mockAuditService{}))
		rec := doRequest(r, http.MethodGet, "/payments/lookup?ogm=001000000178", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_OGM_CHECKSUM")
	})
}
