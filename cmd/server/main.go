package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/corebank/ledger/internal/database"
	"github.com/corebank/ledger/internal/handlers"
	mW "github.com/corebank/ledger/internal/middleware"
	"github.com/corebank/ledger/internal/services"
)

// @title Core Banking Ledger API
// @version 1.0
// @description Ledger core: accounts, balances and atomic deposit/withdraw/transfer operations
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("ledger.lock_timeout", "LEDGER_LOCK_TIMEOUT")
	viper.BindEnv("ledger.cas_retries", "LEDGER_CAS_RETRIES")
	viper.BindEnv("ledger.idempotency_ttl", "LEDGER_IDEMPOTENCY_TTL")
	viper.BindEnv("settlement.bank_id", "SETTLEMENT_BANK_ID")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	viper.SetDefault("ledger.lock_timeout", 5*time.Second)
	viper.SetDefault("ledger.idempotency_ttl", 30*time.Second)

	db := database.InitDatabase()
	defer db.Close()

	if err := database.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	accountStore := services.NewAccountStore(db)
	transactionLog := services.NewTransactionLog(db)
	lockManager := services.NewLockManager(viper.GetDuration("ledger.lock_timeout"))
	idempotencyGuard := services.NewIdempotencyGuard(db, redisClient, viper.GetDuration("ledger.idempotency_ttl"))

	var converter services.Converter
	if c := services.NewStaticRateConverter(); c != nil {
		converter = c
		log.Println("Currency conversion enabled")
	}

	ledgerService := services.NewLedgerService(db, accountStore, transactionLog, lockManager, idempotencyGuard, converter)
	accountService := services.NewAccountService(accountStore)
	qrService := services.NewQRService(accountStore, redisClient)
	settlementService := services.NewSettlementService(transactionLog, accountStore, viper.GetString("settlement.bank_id"))

	ledgerHandler := handlers.NewLedgerHandler(ledgerService, settlementService)
	accountHandler := handlers.NewAccountHandler(accountService, qrService)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/accounts", accountHandler.OpenAccount)
			r.Get("/accounts/{accountNumber}", accountHandler.GetAccount)
			r.Put("/accounts/{accountNumber}/status", accountHandler.UpdateStatus)
			r.Get("/accounts/{accountNumber}/qr", accountHandler.ReceiveQR)

			r.Post("/accounts/{accountNumber}/deposit", ledgerHandler.Deposit)
			r.Post("/accounts/{accountNumber}/withdraw", ledgerHandler.Withdraw)
			r.Get("/accounts/{accountNumber}/balance", ledgerHandler.GetBalance)
			r.Get("/accounts/{accountNumber}/transactions", ledgerHandler.ListTransactions)

			r.Post("/transfers", ledgerHandler.Transfer)
			r.Post("/transfers/{referenceNumber}/settlement", ledgerHandler.ExportSettlement)

			r.Get("/transactions/{transactionId}", ledgerHandler.GetTransaction)
			r.Post("/transactions/{referenceNumber}/reverse", ledgerHandler.Reverse)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
