// Package ledger keeps a local sqlite history of esorex recipe runs.
package ledger

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vimospipe/esorex"
)

// Run is one recorded recipe call.
type Run struct {
	ID         string `gorm:"primaryKey;size:36"`
	Recipe     string `gorm:"index;not null"`
	SOF        string
	OutputDir  string
	Command    string
	ExitCode   int
	Error      string
	StartedAt  time.Time `gorm:"index"`
	DurationMS int64
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// Succeeded reports whether the recipe exited cleanly.
func (r Run) Succeeded() bool {
	return r.ExitCode == 0 && r.Error == ""
}

// Ledger stores runs with gorm.
type Ledger struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite ledger at path.
func Open(path string) (*Ledger, error) {
	newLogger := logger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Warn,
			Colorful:      false,
		},
	)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	return New(db)
}

// New wraps an open database and migrates the schema.
func New(db *gorm.DB) (*Ledger, error) {
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrating ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record stores a finished recipe call. It satisfies esorex.Recorder.
func (l *Ledger) Record(ctx context.Context, res esorex.Result) error {
	run := Run{
		ID:         res.ID,
		Recipe:     res.Recipe,
		SOF:        res.SOF,
		OutputDir:  res.OutputDir,
		Command:    strings.Join(res.Command, " "),
		ExitCode:   res.ExitCode,
		StartedAt:  res.Started,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	return l.db.WithContext(ctx).Create(&run).Error
}

// List returns the most recent runs first. An empty recipe matches all
// recipes; limit <= 0 means no limit.
func (l *Ledger) List(ctx context.Context, recipe string, limit int) ([]Run, error) {
	q := l.db.WithContext(ctx).Order("started_at desc")
	if recipe != "" {
		q = q.Where("recipe = ?", recipe)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
