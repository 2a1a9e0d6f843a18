package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type auditRow struct {
	ID        uint   `gorm:"primaryKey"`
	Kind      string `gorm:"not null;index"`
	Username  string
	Peer      string
	ConnID    string
	Detail    string
	CreatedAt time.Time `gorm:"index"`
}

func (auditRow) TableName() string { return "audit_events" }

// SQLiteStore writes events to a local SQLite file (pure Go, no cgo).
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at path and migrates the table.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("audit: empty sqlite path")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&auditRow{}); err != nil {
		_ = closeGorm(db)
		return nil, fmt.Errorf("audit: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, ev Event) error {
	if ev.Kind == "" {
		return errors.New("audit: missing kind")
	}
	row := auditRow{
		Kind:      ev.Kind,
		Username:  ev.Username,
		Peer:      ev.Peer,
		ConnID:    ev.ConnID,
		Detail:    ev.Detail,
		CreatedAt: ev.At.UTC(),
	}
	if err := gorm.G[auditRow](s.db).Create(ctx, &row); err != nil {
		return fmt.Errorf("audit: insert %s: %w", ev.Kind, err)
	}
	return nil
}

// Events returns stored events oldest first. Used by tests and tooling.
func (s *SQLiteStore) Events(ctx context.Context) ([]Event, error) {
	rows, err := gorm.G[auditRow](s.db).Order("id").Find(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, Event{
			Kind:     r.Kind,
			Username: r.Username,
			Peer:     r.Peer,
			ConnID:   r.ConnID,
			Detail:   r.Detail,
			At:       r.CreatedAt,
		})
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return closeGorm(s.db)
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
