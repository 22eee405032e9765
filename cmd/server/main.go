package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"revenue-backend/internal/auth"
	"revenue-backend/internal/cache"
	"revenue-backend/internal/config"
	"revenue-backend/internal/database"
	"revenue-backend/internal/db"
	"revenue-backend/internal/handlers"
	"revenue-backend/internal/health"
	h "revenue-backend/internal/http"
	"revenue-backend/internal/middleware"
	"revenue-backend/internal/repositories"
	"revenue-backend/internal/services"
	"revenue-backend/internal/shard"
	"revenue-backend/internal/storage"
)

func main() {
	cfg := config.Load()

	pool := db.Connect(cfg)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	migrator := database.NewMigrator(pool)
	if err := migrator.Run(ctx); err != nil {
		cancel()
		log.Fatalf("[Main] Migration failed: %v", err)
	}
	cancel()

	// Redis is optional: without it the roster snapshot and the distributed
	// in-flight lock switch off and everything else keeps working.
	if err := cache.Init(); err != nil {
		log.Printf("[Main] Redis unavailable, continuing without it: %v", err)
	}

	// Repositories
	districtRepo := repositories.NewDistrictRepository(pool)
	ledgerRepo := repositories.NewLedgerRepository(pool)
	submissionRepo := repositories.NewSubmissionRepository(pool)
	receiptRepo := repositories.NewReceiptRepository(pool)
	userRepo := repositories.NewUserRepository(pool)

	// Shard router over the district roster
	rosterTTL := time.Duration(cfg.Roster.TTLSeconds) * time.Second
	router := shard.NewRouter(districtRepo,
		shard.WithTTL(rosterTTL),
		shard.WithSnapshot(cache.NewRosterSnapshot()),
	)

	// Services
	jwtManager := auth.NewJWTManager(cfg)
	userService := services.NewUserService(userRepo, jwtManager)
	inflight := services.NewInflightGuard(cache.GetLocker())
	submissionService := services.NewSubmissionService(router, ledgerRepo, submissionRepo, inflight)
	aggregationService := services.NewAggregationService(router, ledgerRepo)

	// Receipt storage is optional: without credentials the upload endpoint
	// reports itself unavailable.
	var receiptStore *storage.ReceiptStore
	if cfg.Storage.AccessKey != "" {
		var err error
		receiptStore, err = storage.NewReceiptStore(cfg)
		if err != nil {
			log.Printf("[Main] Receipt storage unavailable: %v", err)
		}
	} else {
		log.Println("[Main] Receipt storage not configured, uploads disabled")
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(userService)
	districtHandler := handlers.NewDistrictHandler(router)
	submissionHandler := handlers.NewSubmissionHandler(submissionService)
	receiptHandler := handlers.NewReceiptHandler(receiptStore, receiptRepo, submissionService)
	reportHandler := handlers.NewDCBReportHandler(aggregationService)
	healthHandler := handlers.NewHealthHandler(health.NewHealthChecker(pool, cache.GetClient()))
	monitoringHandler := handlers.NewMonitoringHandler(pool, router)

	authMiddleware := middleware.NewAuthMiddleware(jwtManager, userRepo)

	mux := h.NewRouter(
		authHandler,
		districtHandler,
		submissionHandler,
		receiptHandler,
		reportHandler,
		healthHandler,
		monitoringHandler,
		authMiddleware,
	)

	handler := middleware.PanicRecovery(middleware.NewCORS(cfg)(mux))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("[Main] Revenue reconciliation server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("[Main] Server failed: %v", err)
	}
}
