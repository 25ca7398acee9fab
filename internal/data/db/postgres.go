package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/scigraph/scigraph-backend/internal/platform/envutil"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// PostgresService owns the gorm handle plus a raw pgx pool for the few
// statements gorm expresses poorly (alias upsert with ON CONFLICT).
type PostgresService struct {
	db   *gorm.DB
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgresService(logg *logger.Logger) (*PostgresService, error) {
	serviceLog := logg.With("service", "PostgresService")

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		envutil.String("POSTGRES_USER", "postgres"),
		envutil.String("POSTGRES_PASSWORD", ""),
		envutil.String("POSTGRES_HOST", "localhost"),
		envutil.String("POSTGRES_PORT", "5432"),
		envutil.String("POSTGRES_NAME", "scigraph"),
		envutil.String("POSTGRES_SSLMODE", "disable"),
	)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	return &PostgresService{db: gdb, pool: pool, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB          { return s.db }
func (s *PostgresService) Pool() *pgxpool.Pool   { return s.pool }
func (s *PostgresService) Close()                { s.pool.Close() }
