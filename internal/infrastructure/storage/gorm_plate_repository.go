package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
)

// pgUniqueViolation код SQLSTATE нарушения уникальности в PostgreSQL
const pgUniqueViolation = "23505"

// GormPlateRepository хранилище номеров в SQLite или PostgreSQL
type GormPlateRepository struct {
	db *gorm.DB
}

// OpenGormPlateRepository открывает базу по драйверу sqlite или postgres и создаёт схему.
func OpenGormPlateRepository(driver, dsn string) (*GormPlateRepository, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite допускает одного писателя, остальные ждут через busy_timeout
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewGormPlateRepository(db)
}

// NewGormPlateRepository оборачивает готовое соединение и мигрирует схему.
func NewGormPlateRepository(db *gorm.DB) (*GormPlateRepository, error) {
	if err := db.AutoMigrate(&entity.PlateRecord{}); err != nil {
		return nil, fmt.Errorf("migrate plate_records: %w", err)
	}
	return &GormPlateRepository{db: db}, nil
}

// FindByText возвращает запись по нормализованному номеру
func (r *GormPlateRepository) FindByText(ctx context.Context, canonicalText string) (*entity.PlateRecord, error) {
	var rec entity.PlateRecord
	err := r.db.WithContext(ctx).Where("canonical_text = ?", canonicalText).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find plate: %w", err)
	}
	return &rec, nil
}

// InsertIfAbsent вставляет запись с ON CONFLICT DO NOTHING. Конфликт по уникальному
// индексу, пришедший ошибкой от драйвера, трактуется так же, как пропущенная вставка.
func (r *GormPlateRepository) InsertIfAbsent(ctx context.Context, rec entity.PlateRecord) (entity.PlateRecord, bool, error) {
	rec.ID = 0
	if rec.Source == "" {
		rec.Source = entity.DefaultSource
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "canonical_text"}},
			DoNothing: true,
		}).
		Create(&rec)

	switch {
	case res.Error != nil && IsUniqueViolation(res.Error):
		return r.existing(ctx, rec.CanonicalText)
	case res.Error != nil:
		return entity.PlateRecord{}, false, fmt.Errorf("insert plate: %w", res.Error)
	case res.RowsAffected == 0:
		return r.existing(ctx, rec.CanonicalText)
	}
	return rec, true, nil
}

// existing дочитывает победившую запись. Если её не удалось прочитать,
// возвращается конфликт без идентификатора.
func (r *GormPlateRepository) existing(ctx context.Context, canonicalText string) (entity.PlateRecord, bool, error) {
	rec, err := r.FindByText(ctx, canonicalText)
	if err != nil {
		return entity.PlateRecord{CanonicalText: canonicalText}, false, nil
	}
	return *rec, false, nil
}

// Close закрывает пул соединений
func (r *GormPlateRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsUniqueViolation распознаёт нарушение уникальности у sqlite3, pgx и в переведённом gorm виде.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

var _ port.PlateRepository = (*GormPlateRepository)(nil)
