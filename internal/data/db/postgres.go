package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := envutil.Str("POSTGRES_HOST", "localhost")
	port := envutil.Str("POSTGRES_PORT", "5432")
	user := envutil.Str("POSTGRES_USER", "postgres")
	password := envutil.Str("POSTGRES_PASSWORD", "")
	name := envutil.Str("POSTGRES_NAME", "memorybank")
	sslmode := envutil.Str("POSTGRES_SSLMODE", "disable")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)

	serviceLog.Info("connecting to postgres", "host", host, "db", name)
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := gormDB.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gormDB, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("running automigration")
	if err := s.db.AutoMigrate(
		&domain.Document{},
		&domain.DocumentChunk{},
		&domain.Concept{},
		&domain.ConceptMention{},
		&domain.Relationship{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }
