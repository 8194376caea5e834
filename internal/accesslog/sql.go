package accesslog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLConfig selects the database holding the access log.
type SQLConfig struct {
	Driver string // "sqlite" (default) or "postgres".
	DSN    string // File path for sqlite, connection string for postgres.
}

// accessModel maps to the "credential_accesses" table. The autoincrement
// id is the insertion order.
type accessModel struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Credential string    `gorm:"not null;index"`
	Project    string    `gorm:"not null;default:''"`
	AccessedAt time.Time `gorm:"not null"`
}

func (accessModel) TableName() string { return "credential_accesses" }

// SQLBackend stores entries as rows. Each append is a single INSERT, so
// concurrent writers from several processes do not lose entries.
type SQLBackend struct {
	db     *gorm.DB
	target string
}

var _ Backend = (*SQLBackend)(nil)

// OpenSQL connects to the configured database and migrates the table.
func OpenSQL(cfg SQLConfig, slogger *slog.Logger) (*SQLBackend, error) {
	if slogger == nil {
		slogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("access log dsn is required")
	}

	var dialector gorm.Dialector
	target := cfg.DSN
	switch cfg.Driver {
	case "", "sqlite":
		dir := filepath.Dir(cfg.DSN)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
		dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", cfg.DSN)
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
		target = "postgres"
	default:
		return nil, fmt.Errorf("access log driver %q is not supported (use sqlite or postgres)", cfg.Driver)
	}

	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening access log database: %w", err)
	}
	if err := db.AutoMigrate(&accessModel{}); err != nil {
		return nil, fmt.Errorf("migrating access log table: %w", err)
	}

	slogger.Info("access log database ready",
		slog.String("driver", dialector.Name()),
	)
	return &SQLBackend{db: db, target: target}, nil
}

func (b *SQLBackend) Append(ctx context.Context, e Entry) error {
	row := accessModel{
		Credential: e.Credential,
		Project:    e.Context,
		AccessedAt: e.AccessedAt.UTC(),
	}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return &PersistenceError{Op: "write", Path: b.target, Err: err}
	}
	return nil
}

func (b *SQLBackend) Entries(ctx context.Context) ([]Entry, error) {
	var rows []accessModel
	if err := b.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, &PersistenceError{Op: "read", Path: b.target, Err: err}
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			Credential: r.Credential,
			Context:    r.Project,
			AccessedAt: r.AccessedAt.UTC(),
		})
	}
	return entries, nil
}

// Ping checks the database connection for readiness probes.
func (b *SQLBackend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (b *SQLBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
