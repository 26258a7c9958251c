package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coopledger/internal/models"
	"coopledger/internal/pagination"
	"coopledger/internal/repository"
	"coopledger/internal/services"
)

// LedgerHandler handles share transactions and their payments.
type LedgerHandler struct {
	ledgerService services.LedgerServicer
	auditService  services.AuditServicer
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerService services.LedgerServicer, auditService services.AuditServicer) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService, auditService: auditService}
}

// PurchaseRequest represents the request payload for buying shares.
type PurchaseRequest struct {
	ShareholderID string  `json:"shareholder_id" binding:"required,uuid"`
	ShareClassID  string  `json:"share_class_id" binding:"required,uuid"`
	Quantity      int     `json:"quantity" binding:"required,min=1"`
	ProjectID     *string `json:"project_id" binding:"omitempty,uuid"`
	PurchaseDate  string  `json:"purchase_date"`
}

// SaleRequest represents the request payload for selling shares back to the coop.
type SaleRequest struct {
	ShareholderID string `json:"shareholder_id" binding:"required,uuid"`
	ShareID       string `json:"share_id" binding:"required,uuid"`
	Quantity      int    `json:"quantity" binding:"required,min=1"`
}

// TransferRequest represents the request payload for moving shares between shareholders.
type TransferRequest struct {
	FromShareholderID string `json:"from_shareholder_id" binding:"required,uuid"`
	ToShareholderID   string `json:"to_shareholder_id" binding:"required,uuid,nefield=FromShareholderID"`
	ShareID           string `json:"share_id" binding:"required,uuid"`
	Quantity          int    `json:"quantity" binding:"required,min=1"`
	TransferDate      string `json:"transfer_date"`
}

// RejectRequest represents the request payload for rejecting a transaction.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// ListTransactionsQuery filters the transaction list.
type ListTransactionsQuery struct {
	pagination.PageRequest
	ShareholderID string `form:"shareholder_id" binding:"omitempty,uuid"`
	ShareID       string `form:"share_id" binding:"omitempty,uuid"`
	Type          string `form:"type" binding:"omitempty,share_tx_type"`
	Status        string `form:"status" binding:"omitempty,oneof=PENDING APPROVED COMPLETED REJECTED"`
}

// PaymentLookupQuery finds a payment by its structured reference.
type PaymentLookupQuery struct {
	OGM string `form:"ogm" binding:"required"`
}

// InitiatePurchase starts a share purchase
// @Summary     Buy shares
// @Description Creates a PENDING share, its PURCHASE transaction and the payment with its structured reference
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body PurchaseRequest true "Purchase details"
// @Success     201 {object} services.PurchaseResult
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Unknown shareholder, class or project"
// @Router      /transactions/purchase [post]
func (h *LedgerHandler) InitiatePurchase(c *gin.Context) {
	actor, coopID, err := getScope(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}
	purchaseDate, err := parseDate("purchase_date", req.PurchaseDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	res, err := h.ledgerService.InitiatePurchase(c.Request.Context(), services.PurchaseInput{
		CoopID:        coopID,
		ShareholderID: req.ShareholderID,
		ShareClassID:  req.ShareClassID,
		Quantity:      req.Quantity,
		ProjectID:     req.ProjectID,
		PurchaseDate:  purchaseDate,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), actor, coopID, "INITIATE_PURCHASE", "transaction", res.Transaction.ID, c.ClientIP(),
		map[string]interface{}{"quantity": req.Quantity, "ogm": res.Payment.OGMCode})

	c.JSON(http.StatusCreated, res)
}

// InitiateSale starts a sale of shares back to the coop
// @Summary     Sell shares
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body SaleRequest true "Sale details"
// @Success     201 {object} models.Transaction
// @Failure     409 {object} ErrorResponse "Share not ACTIVE or quantity over-committed"
// @Failure     422 {object} ErrorResponse "Share owned by someone else"
// @Router      /transactions/sale [post]
func (h *LedgerHandler) InitiateSale(c *gin.Context) {
	actor, coopID, err := getScope(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	txn, err := h.ledgerService.InitiateSale(c.Request.Context(), services.SaleInput{
		CoopID:        coopID,
		ShareholderID: req.ShareholderID,
		ShareID:       req.ShareID,
		Quantity:      req.Quantity,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), actor, coopID, "INITIATE_SALE", "transaction", txn.ID, c.ClientIP(),
		map[string]interface{}{"share_id": req.ShareID, "quantity": req.Quantity})

	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

// ExecuteTransfer moves shares between two shareholders
// @Summary     Transfer shares
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body TransferRequest true "Transfer details"
// @Success     201 {object} services.TransferResult
// @Failure     409 {object} ErrorResponse "Share not ACTIVE or quantity over-committed"
// @Router      /transactions/transfer [post]
func (h *LedgerHandler) ExecuteTransfer(c *gin.Context) {
	actor, coopID, err := getScope(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}
	transferDate, err := parseDate("transfer_date", req.TransferDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	res, err := h.ledgerService.ExecuteTransfer(c.Request.Context(), services.TransferInput{
		CoopID:            coopID,
		FromShareholderID: req.FromShareholderID,
		ToShareholderID:   req.ToShareholderID,
		ShareID:           req.ShareID,
		Quantity:          req.Quantity,
		Actor:             actor,
		TransferDate:      transferDate,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), actor, coopID, "EXECUTE_TRANSFER", "share", req.ShareID, c.ClientIP(),
		map[string]interface{}{"to": req.ToShareholderID, "quantity": req.Quantity, "new_share_id": res.NewShare.ID})

	c.JSON(http.StatusCreated, res)
}

// ListTransactions lists transactions, newest first
// @Summary     List transactions
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       shareholder_id query string false "Filter by shareholder"
// @Param       share_id query string false "Filter by share"
// @Param       type query string false "PURCHASE, SALE, TRANSFER_OUT or TRANSFER_IN"
// @Param       status query string false "PENDING, APPROVED, COMPLETED or REJECTED"
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[models.Transaction]
// @Router      /transactions [get]
func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	coopID, err := getCoopID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q ListTransactionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	resp, err := h.ledgerService.ListTransactions(c.Request.Context(), coopID, repository.TransactionFilter{
		ShareholderID: q.ShareholderID,
		ShareID:       q.ShareID,
		Type:          models.TransactionType(q.Type),
		Status:        models.TransactionStatus(q.Status),
	}, q.PageRequest)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetTransaction returns one transaction with its payment
// @Summary     Get a transaction
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} models.Transaction
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /transactions/{id} [get]
func (h *LedgerHandler) GetTransaction(c *gin.Context) {
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

	txn, err := h.ledgerService.GetTransaction(c.Request.Context(), coopID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// Approve approves a PENDING transaction
// @Summary     Approve a transaction
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} models.Transaction
// @Failure     409 {object} ErrorResponse "Not PENDING"
// @Router      /transactions/{id}/approve [post]
func (h *LedgerHandler) Approve(c *gin.Context) {
	h.review(c, "APPROVE_TRANSACTION", func(coopID, id, actor string) (*models.Transaction, error) {
		return h.ledgerService.Approve(c.Request.Context(), coopID, id, actor)
	})
}

// Complete completes an APPROVED transaction
// @Summary     Complete a transaction
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} models.Transaction
// @Failure     409 {object} ErrorResponse "Not APPROVED"
// @Router      /transactions/{id}/complete [post]
func (h *LedgerHandler) Complete(c *gin.Context) {
	h.review(c, "COMPLETE_TRANSACTION", func(coopID, id, actor string) (*models.Transaction, error) {
		return h.ledgerService.Complete(c.Request.Context(), coopID, id, actor)
	})
}

// Reject rejects a PENDING transaction
// @Summary     Reject a transaction
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Param       request body RejectRequest true "Reason"
// @Success     200 {object} models.Transaction
// @Failure     409 {object} ErrorResponse "Not PENDING"
// @Router      /transactions/{id}/reject [post]
func (h *LedgerHandler) Reject(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}
	h.review(c, "REJECT_TRANSACTION", func(coopID, id, actor string) (*models.Transaction, error) {
		return h.ledgerService.Reject(c.Request.Context(), coopID, id, actor, req.Reason)
	})
}

func (h *LedgerHandler) review(c *gin.Context, action string, fn func(coopID, id, actor string) (*models.Transaction, error)) {
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

	txn, err := fn(coopID, id, actor)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), actor, coopID, action, "transaction", txn.ID, c.ClientIP(),
		map[string]interface{}{"status": txn.Status})

	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// GetPaymentDetails returns the transfer instructions for a transaction
// @Summary     Payment details
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} services.PaymentDetails
// @Failure     409 {object} ErrorResponse "Transfers have no payment"
// @Router      /transactions/{id}/payment-details [get]
func (h *LedgerHandler) GetPaymentDetails(c *gin.Context) {
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

	details, err := h.ledgerService.GetPaymentDetails(c.Request.Context(), coopID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// GetPaymentByOGM looks up a payment by structured reference
// @Summary     Find a payment by reference
// @Tags        payments
// @Produce     json
// @Security    BearerAuth
// @Param       ogm query string true "Structured reference, formatted or bare"
// @Success     200 {object} models.Payment
// @Failure     400 {object} ErrorResponse "Malformed reference"
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /payments/lookup [get]
func (h *LedgerHandler) GetPaymentByOGM(c *gin.Context) {
	coopID, err := getCoopID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q PaymentLookupQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	payment, err := h.ledgerService.GetPaymentByOGM(c.Request.Context(), coopID, q.OGM)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}
