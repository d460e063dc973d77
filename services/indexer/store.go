package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nexumfi/core/events"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Filter narrows a journal query. Zero values match everything.
type Filter struct {
	Type      string
	Module    string
	SubjectID string
	After     uint64
	Limit     int
}

// Store persists ledger events and implements events.Emitter.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Dialector picks the gorm driver for dsn: postgres:// and postgresql://
// URLs and key=value strings containing host= use Postgres, everything else
// is treated as a sqlite DSN.
func Dialector(dsn string) gorm.Dialector {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		return postgres.Open(trimmed)
	}
	return sqlite.Open(trimmed)
}

// Open connects to dsn and migrates the schema.
func Open(dsn string, log *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("indexer: dsn required")
	}
	db, err := gorm.Open(Dialector(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last EventRecord
	err := db.Order("sequence desc").Limit(1).Take(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("indexer: load cursor: %w", err)
	}
	return &Store{db: db, logger: log, nowFn: time.Now, seq: last.Sequence}, nil
}

// Emit records evt. Journal failures are logged and never reach the ledger.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	if _, err := s.Record(context.Background(), evt); err != nil {
		s.logger.Error("index event", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Record stores evt and returns the persisted row.
func (s *Store) Record(ctx context.Context, evt events.Event) (*EventRecord, error) {
	if evt == nil {
		return nil, errors.New("indexer: nil event")
	}
	var attrs map[string]string
	if payload, ok := events.ToPayload(evt); ok {
		attrs = payload.Attributes
	}
	encoded := ""
	if len(attrs) > 0 {
		raw, err := json.Marshal(attrs)
		if err != nil {
			return nil, fmt.Errorf("indexer: encode attributes: %w", err)
		}
		encoded = string(raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record := &EventRecord{
		ID:         uuid.New(),
		Sequence:   s.seq + 1,
		Type:       evt.EventType(),
		Module:     moduleOf(evt.EventType()),
		SubjectID:  subjectOf(attrs),
		Attributes: encoded,
		CreatedAt:  s.nowFn().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("indexer: insert: %w", err)
	}
	s.seq = record.Sequence
	return record, nil
}

// Query returns matching events in sequence order.
func (s *Store) Query(ctx context.Context, filter Filter) ([]EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	query := s.db.WithContext(ctx).Model(&EventRecord{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Module != "" {
		query = query.Where("module = ?", filter.Module)
	}
	if filter.SubjectID != "" {
		query = query.Where("subject_id = ?", filter.SubjectID)
	}
	if filter.After > 0 {
		query = query.Where("sequence > ?", filter.After)
	}
	var out []EventRecord
	if err := query.Order("sequence asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func moduleOf(eventType string) string {
	if idx := strings.IndexByte(eventType, '.'); idx > 0 {
		return eventType[:idx]
	}
	return eventType
}

// subjectOf picks the entity an event is about: a receivable or loan id, or
// the vault account involved.
func subjectOf(attrs map[string]string) string {
	for _, key := range []string{"loanId", "id", "account"} {
		if v := strings.TrimSpace(attrs[key]); v != "" {
			return v
		}
	}
	return ""
}
