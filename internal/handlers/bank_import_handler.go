package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/models"
	"coopledger/internal/pagination"
	"coopledger/internal/services"
)

// maxStatementSize bounds an uploaded bank statement.
const maxStatementSize = 10 << 20

// BankImportHandler handles bank statement uploads and reconciliation.
type BankImportHandler struct {
	bankImportService services.BankImportServicer
	ledgerService     services.LedgerServicer
	auditService      services.AuditServicer
}

// NewBankImportHandler creates a new BankImportHandler.
func NewBankImportHandler(bankImportService services.BankImportServicer, ledgerService services.LedgerServicer, auditService services.AuditServicer) *BankImportHandler {
	return &BankImportHandler{bankImportService: bankImportService, ledgerService: ledgerService, auditService: auditService}
}

// ListBankTransactionsQuery filters the rows of an import.
type ListBankTransactionsQuery struct {
	pagination.PageRequest
	Status string `form:"status" binding:"omitempty,match_status"`
}

// ManualMatchRequest names the payment a bank row settles, by id or by
// structured reference.
type ManualMatchRequest struct {
	PaymentID string `json:"payment_id" binding:"omitempty,uuid"`
	OGM       string `json:"ogm" binding:"omitempty,ogm"`
}

// Import uploads a bank statement
// @Summary     Import a bank statement
// @Description Parses a semicolon-separated statement and matches incoming transfers to pending payments
// @Tags        bank-imports
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file formData file true "Bank statement CSV"
// @Success     201 {object} services.ImportResult
// @Failure     400 {object} ErrorResponse "Missing or unreadable file"
// @Router      /bank-imports [post]
func (h *BankImportHandler) Import(c *gin.Context) {
	actor, coopID, err := getScope(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxStatementSize)
	fh, err := c.FormFile("file")
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "A statement file is required in field 'file'"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInvalidInput, err))
		return
	}
	defer f.Close()

	res, err := h.bankImportService.Import(c.Request.Context(), services.ImportInput{
		CoopID:     coopID,
		Filename:   filepath.Base(fh.Filename),
		Reader:     f,
		ImportedBy: actor,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), actor, coopID, "IMPORT_BANK_STATEMENT", "bank_import", res.Import.ID, c.ClientIP(),
		map[string]interface{}{
			"filename":  res.Import.Filename,
			"rows":      res.Import.RowCount,
			"matched":   res.Import.MatchedCount,
			"unmatched": res.Import.UnmatchedCount,
			"skipped":   res.Import.SkippedCount,
		})

	c.JSON(http.StatusCreated, res)
}

// ListImports lists statement imports, newest first
// @Summary     List bank imports
// @Tags        bank-imports
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[models.BankImport]
// @Router      /bank-imports [get]
func (h *BankImportHandler) ListImports(c *gin.Context) {
	coopID, err := getCoopID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	resp, err := h.bankImportService.ListImports(c.Request.Context(), coopID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetImport returns one import with its counters
// @Summary     Get a bank import
// @Tags        bank-imports
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Import ID"
// @Success     200 {object} models.BankImport
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /bank-imports/{id} [get]
func (h *BankImportHandler) GetImport(c *gin.Context) {
	coopID, err := getCoopID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	imp, err := h.bankImportService.GetImport(c.Request.Context(), coopID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"import": imp})
}

// ListBankTransactions lists the rows of an import
// @Summary     List bank transactions of an import
// @Tags        bank-imports
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Import ID"
// @Param       status query string false "UNMATCHED, AUTO_MATCHED or MANUAL_MATCHED"
// @Success     200 {object} pagination.PageResponse[models.BankTransaction]
// @Router      /bank-imports/{id}/transactions [get]
func (h *BankImportHandler) ListBankTransactions(c *gin.Context) {
	coopID, err := getCoopID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q ListBankTransactionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	resp, err := h.bankImportService.ListBankTransactions(c.Request.Context(), coopID, id, models.MatchStatus(q.Status), q.PageRequest)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ManualMatch settles a pending payment with an unmatched bank row
// @Summary     Match a bank transaction manually
// @Tags        bank-imports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Bank transaction ID"
// @Param       request body ManualMatchRequest true "Payment to match"
// @Success     200 {object} models.BankTransaction
// @Failure     409 {object} ErrorResponse "Row already matched or payment not pending"
// @Router      /bank-transactions/{id}/match [post]
func (h *BankImportHandler) ManualMatch(c *gin.Context) {
	actor, coopID, err := getScope(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ManualMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	paymentID := req.PaymentID
	if paymentID == "" && req.OGM == "" {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Either payment_id or ogm is required"))
		return
	}
	if paymentID == "" {
		payment, err := h.ledgerService.GetPaymentByOGM(c.Request.Context(), coopID, req.OGM)
		if err != nil {
			respondWithError(c, err)
			return
		}
		paymentID = payment.ID
	}

	bt, err := h.bankImportService.ManualMatch(c.Request.Context(), coopID, id, paymentID, actor)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), actor, coopID, "MATCH_BANK_TRANSACTION", "bank_transaction", bt.ID, c.ClientIP(),
		map[string]interface{}{"payment_id": paymentID})

	c.JSON(http.StatusOK, gin.H{"bank_transaction": bt})
}
