package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"coopledger/internal/logger"
	"coopledger/internal/services"
)

// DividendHandler handles dividend periods and payouts.
type DividendHandler struct {
	dividendService services.DividendServicer
	auditService    services.AuditServicer
}

// NewDividendHandler creates a new DividendHandler.
func NewDividendHandler(dividendService services.DividendServicer, auditService services.AuditServicer) *DividendHandler {
	return &DividendHandler{dividendService: dividendService, auditService: auditService}
}

// CreatePeriodRequest represents the request payload for declaring a dividend period.
// Rates are fractions: 0.05 is five percent.
type CreatePeriodRequest struct {
	Year               int             `json:"year" binding:"required,min=1900,max=9999"`
	DividendRate       decimal.Decimal `json:"dividend_rate" binding:"required,rate" swaggertype:"string"`
	WithholdingTaxRate decimal.Decimal `json:"withholding_tax_rate" binding:"required,rate" swaggertype:"string"`
	ExDividendDate     string          `json:"ex_dividend_date" binding:"required"`
	PaymentDate        string          `json:"payment_date" binding:"required"`
}

// MarkPaidRequest represents the request payload for closing a period.
type MarkPaidRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required,max=100"`
}

// CreatePeriod declares a DRAFT dividend period
// @Summary     Create a dividend period
// @Tags        dividends
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreatePeriodRequest true "Period details"
// @Success     201 {object} models.DividendPeriod
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     409 {object} ErrorResponse "Period for this year exists"
// @Router      /dividend-periods [post]
func (h *DividendHandler) CreatePeriod(c *gin.Context) {
	actor, coopID, err := getScope(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}
	exDate, err := parseDate("ex_dividend_date", req.ExDividendDate)
	if err != nil {
		respondWithError(c, err)
		return
	}
	payDate, err := parseDate("payment_date", req.PaymentDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	period, err := h.dividendService.CreatePeriod(c.Request.Context(), coopID, services.PeriodInput{
		Year:               req.Year,
		DividendRate:       req.DividendRate,
		WithholdingTaxRate: req.WithholdingTaxRate,
		ExDividendDate:     exDate,
		PaymentDate:        payDate,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), actor, coopID, "CREATE_DIVIDEND_PERIOD", "dividend_period", period.ID, c.ClientIP(),
		map[string]interface{}{"year": req.Year, "dividend_rate": req.DividendRate.String()})

	c.JSON(http.StatusCreated, gin.H{"period": period})
}

// ListPeriods lists dividend periods, latest year first
// @Summary     List dividend periods
// @Tags        dividends
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array} models.DividendPeriod
// @Router      /dividend-periods [get]
func (h *DividendHandler) ListPeriods(c *gin.Context) {
	coopID, err := getCoopID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	periods, err := h.dividendService.ListPeriods(c.Request.Context(), coopID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": periods})
}

// GetPeriod returns one dividend period
// @Summary     Get a dividend period
// @Tags        dividends
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     200 {object} models.DividendPeriod
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /dividend-periods/{id} [get]
func (h *DividendHandler) GetPeriod(c *gin.Context) {
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

	period, err := h.dividendService.GetPeriod(c.Request.Context(), coopID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": period})
}

// Calculate (re)computes a period's payouts
// @Summary     Calculate dividends
// @Tags        dividends
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     200 {object} services.DividendSummary
// @Failure     409 {object} ErrorResponse "Period is PAID or busy"
// @Router      /dividend-periods/{id}/calculate [post]
func (h *DividendHandler) Calculate(c *gin.Context) {
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

	summary, err := h.dividendService.Calculate(c.Request.Context(), coopID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), actor, coopID, "CALCULATE_DIVIDENDS", "dividend_period", id, c.ClientIP(),
		map[string]interface{}{"payouts": summary.ShareholderCount, "total_gross": summary.TotalGross.StringFixed(2)})

	c.JSON(http.StatusOK, summary)
}

// MarkAsPaid closes a CALCULATED period
// @Summary     Mark dividends paid
// @Tags        dividends
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Param       request body MarkPaidRequest true "Payment batch reference"
// @Success     200 {object} models.DividendPeriod
// @Failure     409 {object} ErrorResponse "Period is not CALCULATED"
// @Router      /dividend-periods/{id}/mark-paid [post]
func (h *DividendHandler) MarkAsPaid(c *gin.Context) {
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

	var req MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	period, err := h.dividendService.MarkAsPaid(c.Request.Context(), coopID, id, req.PaymentReference)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), actor, coopID, "MARK_DIVIDENDS_PAID", "dividend_period", id, c.ClientIP(),
		map[string]interface{}{"payment_reference": req.PaymentReference})

	c.JSON(http.StatusOK, gin.H{"period": period})
}

// GetPayouts returns a period with its payouts and totals
// @Summary     Dividend payouts
// @Tags        dividends
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     200 {object} services.DividendSummary
// @Router      /dividend-periods/{id}/payouts [get]
func (h *DividendHandler) GetPayouts(c *gin.Context) {
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

	summary, err := h.dividendService.GetPayouts(c.Request.Context(), coopID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Export streams the payouts as CSV
// @Summary     Export dividend payouts
// @Tags        dividends
// @Produce     text/csv
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     200 {string} string "Semicolon-separated payouts"
// @Router      /dividend-periods/{id}/export [get]
func (h *DividendHandler) Export(c *gin.Context) {
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

	period, err := h.dividendService.GetPeriod(c.Request.Context(), coopID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="dividends-%d.csv"`, period.Year))
	c.Status(http.StatusOK)
	if err := h.dividendService.ExportCSV(c.Request.Context(), coopID, id, c.Writer); err != nil {
		// Headers are already sent; all that is left is to log.
		logger.Get().Errorw("dividend export failed", "period_id", id, "error", err)
	}
}
