// Package server assembles the HTTP router.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"coopledger/internal/handlers"
	"coopledger/internal/middleware"
)

// Handlers groups the HTTP handlers mounted under /api/v1.
type Handlers struct {
	Shareholders *handlers.ShareholderHandler
	Ledger       *handlers.LedgerHandler
	BankImports  *handlers.BankImportHandler
	Dividends    *handlers.DividendHandler
}

// PipelineConfig enables the API-key protected statement upload used by the
// bank feed. Empty fields leave the endpoint answering 503.
type PipelineConfig struct {
	APIKey string
	CoopID string
}

// Option adjusts router construction.
type Option func(*routerOptions)

type routerOptions struct {
	allowedOrigins []string
}

// WithAllowedOrigins restricts CORS to the given origins. Without it any
// origin is allowed, since browsers never send the pipeline key.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *routerOptions) { o.allowedOrigins = origins }
}

// NewRouter builds the gin engine with middleware, docs, health and API routes.
func NewRouter(h Handlers, pipeline PipelineConfig, opts ...Option) *gin.Engine {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(cors.New(corsConfig(o.allowedOrigins)))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Bank feed uploads
	feed := v1.Group("/pipeline")
	feed.Use(middleware.PipelineAuthMiddleware(pipeline.APIKey, pipeline.CoopID))
	feed.POST("/bank-imports", h.BankImports.Import)

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	shareholders := protected.Group("/shareholders")
	shareholders.POST("", h.Shareholders.CreateShareholder)
	shareholders.GET("", h.Shareholders.ListShareholders)
	shareholders.GET("/:id", h.Shareholders.GetShareholder)
	shareholders.GET("/:id/shares", h.Shareholders.GetShareholderShares)

	transactions := protected.Group("/transactions")
	transactions.POST("/purchase", h.Ledger.InitiatePurchase)
	transactions.POST("/sale", h.Ledger.InitiateSale)
	transactions.POST("/transfer", h.Ledger.ExecuteTransfer)
	transactions.GET("", h.Ledger.ListTransactions)
	transactions.GET("/:id", h.Ledger.GetTransaction)
	transactions.POST("/:id/approve", h.Ledger.Approve)
	transactions.POST("/:id/reject", h.Ledger.Reject)
	transactions.POST("/:id/complete", h.Ledger.Complete)
	transactions.GET("/:id/payment-details", h.Ledger.GetPaymentDetails)

	protected.GET("/payments/lookup", h.Ledger.GetPaymentByOGM)

	imports := protected.Group("/bank-imports")
	imports.POST("", h.BankImports.Import)
	imports.GET("", h.BankImports.ListImports)
	imports.GET("/:id", h.BankImports.GetImport)
	imports.GET("/:id/transactions", h.BankImports.ListBankTransactions)

	protected.POST("/bank-transactions/:id/match", h.BankImports.ManualMatch)

	periods := protected.Group("/dividend-periods")
	periods.POST("", h.Dividends.CreatePeriod)
	periods.GET("", h.Dividends.ListPeriods)
	periods.GET("/:id", h.Dividends.GetPeriod)
	periods.POST("/:id/calculate", h.Dividends.Calculate)
	periods.POST("/:id/mark-paid", h.Dividends.MarkAsPaid)
	periods.GET("/:id/payouts", h.Dividends.GetPayouts)
	periods.GET("/:id/export", h.Dividends.Export)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-API-Key", "X-Request-ID"}
	cfg.ExposeHeaders = []string{"Content-Disposition", "X-Request-ID"}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}
