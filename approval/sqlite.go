package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type ticketRecord struct {
	QueryID     string `gorm:"primaryKey;size:36"`
	Question    string
	SQL         string `gorm:"column:sql_text"`
	Explanation string
	Status      string `gorm:"index"`
	CreatedAt   time.Time
	DecidedAt   *time.Time
	RowCount    int
}

func (ticketRecord) TableName() string { return "sql_tickets" }

// SQLiteTicketStore persists tickets across restarts, keeping the audit trail
// of executed and rejected statements.
type SQLiteTicketStore struct {
	db *gorm.DB
}

func NewSQLiteTicketStore(path string) (*SQLiteTicketStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ticket store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&ticketRecord{}); err != nil {
		return nil, fmt.Errorf("migrate ticket store: %w", err)
	}
	return &SQLiteTicketStore{db: db}, nil
}

func (s *SQLiteTicketStore) Create(ctx context.Context, t *Ticket) error {
	return s.db.WithContext(ctx).Create(toRecord(t)).Error
}

func (s *SQLiteTicketStore) Get(ctx context.Context, queryID string) (*Ticket, error) {
	var rec ticketRecord
	err := s.db.WithContext(ctx).First(&rec, "query_id = ?", queryID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return fromRecord(&rec), nil
}

// Update persists a transition out of PENDING. The status guard makes the
// transition atomic at the store level, so even another process sharing the
// file cannot decide a ticket twice.
func (s *SQLiteTicketStore) Update(ctx context.Context, t *Ticket) error {
	res := s.db.WithContext(ctx).Model(&ticketRecord{}).
		Where("query_id = ? AND status = ?", t.QueryID, string(StatusPending)).
		Updates(map[string]any{
			"status":     string(t.Status),
			"decided_at": t.DecidedAt,
			"row_count":  t.RowCount,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, t.QueryID); err != nil {
			return err
		}
		return ErrAlreadyDecided
	}
	return nil
}

func (s *SQLiteTicketStore) ListByStatus(ctx context.Context, status Status) ([]*Ticket, error) {
	var recs []ticketRecord
	err := s.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	tickets := make([]*Ticket, len(recs))
	for i := range recs {
		tickets[i] = fromRecord(&recs[i])
	}
	return tickets, nil
}

func toRecord(t *Ticket) *ticketRecord {
	return &ticketRecord{
		QueryID:     t.QueryID,
		Question:    t.Question,
		SQL:         t.SQL,
		Explanation: t.Explanation,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		DecidedAt:   t.DecidedAt,
		RowCount:    t.RowCount,
	}
}

func fromRecord(rec *ticketRecord) *Ticket {
	return &Ticket{
		QueryID:     rec.QueryID,
		Question:    rec.Question,
		SQL:         rec.SQL,
		Explanation: rec.Explanation,
		Status:      Status(rec.Status),
		CreatedAt:   rec.CreatedAt,
		DecidedAt:   rec.DecidedAt,
		RowCount:    rec.RowCount,
	}
}
