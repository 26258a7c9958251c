package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coopledger/internal/config"
	"coopledger/internal/database"
	"coopledger/internal/fieldcrypto"
	"coopledger/internal/handlers"
	"coopledger/internal/jobs"
	"coopledger/internal/lock"
	"coopledger/internal/logger"
	"coopledger/internal/repository"
	"coopledger/internal/server"
	"coopledger/internal/services"
	"coopledger/internal/validator"

	_ "coopledger/internal/docs" // Import swagger docs
)

// @title           Coopledger API
// @version         1.0
// @description     Share-capital ledger for cooperatives: share purchases, sales and transfers with structured payment references, bank statement reconciliation and dividend runs.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey PipelineKey
// @in header
// @name X-API-Key

func main() {
	logger.Init(os.Getenv("ENV"), logger.WithLevel(os.Getenv("LOG_LEVEL")))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbConfig := database.NewConfig(appConfig)
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer dbManager.Close()

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	validator.Register()

	uow := repository.NewGormUnitOfWork(dbManager.DB(),
		repository.WithIsolation(sql.LevelSerializable),
		repository.WithTxTimeout(dbConfig.TxTimeout),
	)

	var locker lock.Locker
	if appConfig.RedisAddr != "" {
		client, err := lock.NewRedisClient(ctx, appConfig.RedisAddr, appConfig.RedisPassword)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, appConfig.LockTTL, appConfig.LockWaitTimeout)
		log.Infow("using redis locks", "addr", appConfig.RedisAddr)
	} else {
		locker = lock.NewLocalLocker(appConfig.LockWaitTimeout)
		log.Info("using in-process locks")
	}

	cipher, err := fieldcrypto.New(appConfig.FieldEncryptionSecret)
	if err != nil {
		return fmt.Errorf("failed to initialise field encryption: %w", err)
	}

	// Services
	auditService := services.NewAuditService(uow)
	ledgerService := services.NewLedgerService(uow)
	bankImportService := services.NewBankImportService(uow)
	dividendService := services.NewDividendService(uow, locker)
	shareholderService := services.NewShareholderService(uow, cipher)

	router := server.NewRouter(server.Handlers{
		Shareholders: handlers.NewShareholderHandler(shareholderService, auditService),
		Ledger:       handlers.NewLedgerHandler(ledgerService, auditService),
		BankImports:  handlers.NewBankImportHandler(bankImportService, ledgerService, auditService),
		Dividends:    handlers.NewDividendHandler(dividendService, auditService),
	},
		server.PipelineConfig{APIKey: appConfig.PipelineAPIKey, CoopID: appConfig.BankInboxCoopID},
		server.WithAllowedOrigins(appConfig.CORSAllowedOrigins...),
	)

	if appConfig.BankInboxDir != "" {
		stopJobs, err := startInbox(ctx, appConfig, bankImportService)
		if err != nil {
			return err
		}
		defer stopJobs()
	}

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting coopledger server on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startInbox wires the bank statement inbox to the cron schedule and, when
// enabled, the file watcher.
func startInbox(ctx context.Context, cfg *config.Config, imports services.BankImportServicer) (func(), error) {
	importer, err := jobs.NewInboxImporter(cfg.BankInboxDir, cfg.BankInboxCoopID, imports,
		jobs.WithWorkers(cfg.BankInboxWorkers))
	if err != nil {
		return nil, fmt.Errorf("failed to set up bank inbox: %w", err)
	}

	scheduler, err := jobs.NewScheduler(cfg.BankInboxSchedule, importer)
	if err != nil {
		return nil, err
	}
	scheduler.Start()

	if cfg.BankInboxWatch {
		go func() {
			if err := jobs.Watch(ctx, importer); err != nil {
				logger.Get().Errorw("bank inbox watcher stopped", "error", err)
			}
		}()
	}

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		scheduler.Stop(stopCtx)
	}, nil
}
