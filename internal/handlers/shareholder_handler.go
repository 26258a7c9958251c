package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coopledger/internal/models"
	"coopledger/internal/pagination"
	"coopledger/internal/services"
)

// ShareholderHandler handles the shareholder registry.
type ShareholderHandler struct {
	shareholderService services.ShareholderServicer
	auditService       services.AuditServicer
}

// NewShareholderHandler creates a new ShareholderHandler.
func NewShareholderHandler(shareholderService services.ShareholderServicer, auditService services.AuditServicer) *ShareholderHandler {
	return &ShareholderHandler{shareholderService: shareholderService, auditService: auditService}
}

// CreateShareholderRequest represents the request payload for registering a shareholder.
type CreateShareholderRequest struct {
	Type        string `json:"type" binding:"required,shareholder_type"`
	FirstName   string `json:"first_name" binding:"max=100"`
	LastName    string `json:"last_name" binding:"max=100"`
	CompanyName string `json:"company_name" binding:"max=200"`
	Email       string `json:"email" binding:"omitempty,email"`
	NationalID  string `json:"national_id" binding:"max=50"`
	IBAN        string `json:"iban" binding:"omitempty,iban"`
	BIC         string `json:"bic" binding:"omitempty,bic"`
}

// CreateShareholder registers a shareholder
// @Summary     Register a shareholder
// @Tags        shareholders
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateShareholderRequest true "Shareholder details"
// @Success     201 {object} services.ShareholderDetails
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /shareholders [post]
func (h *ShareholderHandler) CreateShareholder(c *gin.Context) {
	actor, coopID, err := getScope(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateShareholderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	sh, err := h.shareholderService.CreateShareholder(c.Request.Context(), coopID, services.ShareholderInput{
		Type:        models.ShareholderType(req.Type),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		CompanyName: req.CompanyName,
		Email:       req.Email,
		NationalID:  req.NationalID,
		IBAN:        req.IBAN,
		BIC:         req.BIC,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(c.Request.Context(), actor, coopID, "CREATE_SHAREHOLDER", "shareholder", sh.ID, c.ClientIP(),
		map[string]interface{}{"type": req.Type, "email": sh.Email})

	c.JSON(http.StatusCreated, gin.H{"shareholder": sh})
}

// ListShareholders lists the cooperative's shareholders
// @Summary     List shareholders
// @Tags        shareholders
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[models.Shareholder]
// @Router      /shareholders [get]
func (h *ShareholderHandler) ListShareholders(c *gin.Context) {
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

	resp, err := h.shareholderService.ListShareholders(c.Request.Context(), coopID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetShareholder returns one shareholder with decrypted PII
// @Summary     Get a shareholder
// @Tags        shareholders
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Shareholder ID"
// @Success     200 {object} services.ShareholderDetails
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /shareholders/{id} [get]
func (h *ShareholderHandler) GetShareholder(c *gin.Context) {
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

	sh, err := h.shareholderService.GetShareholder(c.Request.Context(), coopID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shareholder": sh})
}

// GetShareholderShares lists every share a shareholder has held
// @Summary     List a shareholder's shares
// @Tags        shareholders
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Shareholder ID"
// @Success     200 {array} models.Share
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /shareholders/{id}/shares [get]
func (h *ShareholderHandler) GetShareholderShares(c *gin.Context) {
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

	shares, err := h.shareholderService.GetShareholderShares(c.Request.Context(), coopID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shares": shares})
}
