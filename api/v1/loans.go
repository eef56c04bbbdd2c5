package v1

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"greenlens/loan-portal/loan-portal-backend/internal/emissions"
	"greenlens/loan-portal/loan-portal-backend/internal/lifecycle"
	"greenlens/loan-portal/loan-portal-backend/internal/loans"
	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
	"greenlens/loan-portal/loan-portal-backend/internal/reporting"
	"greenlens/loan-portal/loan-portal-backend/internal/scheduler"
)

// LoansAPI holds the loan engine API dependencies
type LoansAPI struct {
	Handler    *loans.Handler
	Service    *loans.Service
	Repository portfolio.Repository
	Batch      *scheduler.BatchRecalculator
}

// SetupLoansAPI wires the attribution engine onto a database handle
func SetupLoansAPI(db *gorm.DB, logger *zap.Logger) (*LoansAPI, error) {
	repository := portfolio.NewRepository(db)
	provider := emissions.NewFactorTableProvider()
	clock := lifecycle.SystemClock()

	processor := lifecycle.NewProcessor(repository, provider, clock, logger, lifecycle.DefaultConfig())
	batch := scheduler.NewBatchRecalculator(repository, processor, logger, scheduler.DefaultConfig())
	aggregator := reporting.NewAggregator(repository, logger)

	service := loans.NewService(repository, processor, batch, aggregator, clock, logger)
	handler := loans.NewHandler(service, logger)

	return &LoansAPI{
		Handler:    handler,
		Service:    service,
		Repository: repository,
		Batch:      batch,
	}, nil
}

// RegisterLoansRoutes registers the loan engine routes on the router group
func RegisterLoansRoutes(router *gin.RouterGroup, api *LoansAPI) {
	api.Handler.RegisterRoutes(router)
}
