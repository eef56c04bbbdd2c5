package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"greenlens/loan-portal/loan-portal-backend/internal/config"
	"greenlens/loan-portal/loan-portal-backend/internal/emissions"
	"greenlens/loan-portal/loan-portal-backend/internal/lifecycle"
	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
	"greenlens/loan-portal/loan-portal-backend/internal/scheduler"
)

// RecalcWorker runs the portfolio-wide balance recalculation on a cron
// schedule. Each run amortizes every active loan to the current date and
// refreshes its attribution record.
type RecalcWorker struct {
	batch  *scheduler.BatchRecalculator
	logger *zap.Logger
	spec   string

	mu      sync.Mutex
	running bool
}

// NewRecalcWorker creates a new recalculation worker
func NewRecalcWorker(batch *scheduler.BatchRecalculator, logger *zap.Logger, spec string) *RecalcWorker {
	return &RecalcWorker{
		batch:  batch,
		logger: logger,
		spec:   spec,
	}
}

// Start runs the cron loop until the context is cancelled
func (w *RecalcWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting recalculation worker", zap.String("cron_spec", w.spec))

	c := cron.New()
	_, err := c.AddFunc(w.spec, func() {
		w.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", w.spec, err)
	}

	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	// Let an in-flight run finish before returning.
	<-stopCtx.Done()

	w.logger.Info("Recalculation worker shutting down")
	return nil
}

// runOnce executes a single portfolio pass, skipping if one is in flight
func (w *RecalcWorker) runOnce(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Warn("Previous recalculation still running, skipping this tick")
		return
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	asOf := time.Now().UTC()
	report, err := w.batch.Run(ctx, asOf)
	if err != nil {
		w.logger.Error("Portfolio recalculation failed", zap.Error(err))
		return
	}

	w.logger.Info("Portfolio recalculation completed",
		zap.Time("as_of", report.AsOf),
		zap.Int("processed", report.Processed),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int64("duration_ms", report.DurationMs))

	for _, batchErr := range report.Errors {
		w.logger.Warn("Loan recalculation failed",
			zap.String("loan_id", batchErr.LoanID.String()),
			zap.String("error", batchErr.Message))
	}
}

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on environment")
	}

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := portfolio.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	logger.Info("Connected to database")

	// Wire the engine
	store := portfolio.NewRepository(db)
	provider := emissions.NewFactorTableProvider()
	processor := lifecycle.NewProcessor(store, provider, lifecycle.SystemClock(), logger, lifecycle.Config{
		BalanceTolerance: cfg.Engine.BalanceTolerance,
		IOTimeout:        cfg.Engine.IOTimeout,
	})
	batch := scheduler.NewBatchRecalculator(store, processor, logger, scheduler.Config{
		MaxConcurrent: cfg.Batch.MaxConcurrent,
		LoanTimeout:   cfg.Batch.LoanTimeout,
	})

	worker := NewRecalcWorker(batch, logger, cfg.Batch.CronSpec)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Start worker
	logger.Info("Recalculation worker starting")
	if err := worker.Start(ctx); err != nil {
		logger.Error("Worker error", zap.Error(err))
	}

	logger.Info("Recalculation worker stopped")
}
