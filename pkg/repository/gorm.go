package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormRepository is the relational store for every tenant and platform
// entity. A repository built without a DSN answers every call with a
// "database not configured" error instead of failing at startup.
type GormRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormRepository(cfg *config.DatabaseConfig, logger *zap.Logger) (*GormRepository, error) {
	if cfg.DSN == "" {
		logger.Warn("Database DSN not set, relational store disabled")
		return &GormRepository{logger: logger}, nil
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(logger.Named("gorm")),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// one connection keeps an in-memory database alive and serialises writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return &GormRepository{db: db, logger: logger}, nil
}

// NewGormRepositoryFromDB wraps an existing connection.
func NewGormRepositoryFromDB(db *gorm.DB, logger *zap.Logger) *GormRepository {
	return &GormRepository{db: db, logger: logger}
}

// DB exposes the underlying connection, nil when the store is disabled.
func (r *GormRepository) DB() *gorm.DB {
	return r.db
}

func (r *GormRepository) conn(ctx context.Context) (*gorm.DB, error) {
	if r.db == nil {
		return nil, errs.NotConfigured("database")
	}
	return r.db.WithContext(ctx), nil
}

// Migrate creates or updates every table and seeds the plan catalog when
// it is empty.
func (r *GormRepository) Migrate(ctx context.Context) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return r.SeedPlans(ctx, models.DefaultPlans())
}

func (r *GormRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return errs.NotConfigured("database")
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormRepository) Close() error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// dbError translates a gorm error into a coded error.
func dbError(err error, op, notFoundMsg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &errs.Error{Code: errs.ENotFound, Msg: notFoundMsg, Op: op}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &errs.Error{Code: errs.EConflict, Op: op, Err: err}
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	return &errs.Error{Code: errs.EInternal, Op: op, Err: err}
}

type gormLogger struct {
	log           *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(log *zap.Logger) gormlogger.Interface {
	return &gormLogger{log: log, level: gormlogger.Warn, slowThreshold: 200 * time.Millisecond}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	n := *l
	n.level = level
	return &n
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Sugar().Infof(msg, args...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Sugar().Warnf(msg, args...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Sugar().Errorf(msg, args...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Error("SQL failed", zap.Error(err), zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn("Slow SQL", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Debug("SQL", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	}
}
