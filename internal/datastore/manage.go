package datastore

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/roadwatch/roadwatch-go/internal/errors"
	"github.com/roadwatch/roadwatch-go/internal/logging"
)

// slowQueryThreshold marks queries worth warning about. Auto-migration
// batches can legitimately take several hundred milliseconds.
const slowQueryThreshold = time.Second

// performAutoMigration brings the schema up to date for the connected
// database.
func performAutoMigration(db *gorm.DB, backend string) error {
	if err := db.AutoMigrate(&Incident{}, &User{}, &InvitationCode{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("backend", backend).
			Context("operation", "auto_migrate").
			Build()
	}
	getLogger().Info("database schema migrated", "backend", backend)
	return nil
}

// createGormLogger adapts the service logger to GORM's logger interface.
func createGormLogger() gormlogger.Interface {
	return &slogGormLogger{
		logger:    logging.ForService("datastore"),
		threshold: slowQueryThreshold,
	}
}

type slogGormLogger struct {
	logger    *slog.Logger
	threshold time.Duration
}

func (l *slogGormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *slogGormLogger) Info(_ context.Context, msg string, args ...any) {
	l.logger.Info(msg, "args", args)
}

func (l *slogGormLogger) Warn(_ context.Context, msg string, args ...any) {
	l.logger.Warn(msg, "args", args)
}

func (l *slogGormLogger) Error(_ context.Context, msg string, args ...any) {
	l.logger.Error(msg, "args", args)
}

func (l *slogGormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.logger.Error("query failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
	case elapsed > l.threshold:
		sql, rows := fc()
		l.logger.Warn("slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
