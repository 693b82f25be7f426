package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	repo "github.com/joseph-ayodele/payslip-extractor/internal/repository"
)

// ConnectStore opens the expected-record database, pings it and makes sure
// the employees table exists.
func ConnectStore(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repo.DB, repo.EmployeeRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := repo.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return nil, nil, err
	}
	if err := PingDB(ctx, db, logger, cfg.DialTimeout); err != nil {
		db.Close(logger)
		return nil, nil, err
	}
	employees := repo.NewEmployeeRepository(db, logger)
	if err := employees.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		db.Close(logger)
		return nil, nil, err
	}
	return db, employees, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, db *repo.DB, logger *slog.Logger, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return db.HealthCheck(ctx, timeout, logger)
}
