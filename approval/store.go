package approval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTicketNotFound is returned by TicketStore.Get for unknown query IDs.
var ErrTicketNotFound = errors.New("approval: ticket not found")

// ErrAlreadyDecided is returned by TicketStore.Update when the stored ticket
// is no longer pending. The stores guard the transition themselves, so a
// terminal ticket can never be overwritten even by a racing process.
var ErrAlreadyDecided = errors.New("approval: ticket already decided")

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool { return s == StatusExecuted || s == StatusRejected }

// Ticket is one generated SQL statement awaiting or past human review.
// Executed and rejected tickets are retained as an audit record.
type Ticket struct {
	QueryID  string `json:"query_id"`
	Question string `json:"question"`
	SQL      string `json:"sql"`
	// Explanation is the natural-language description of what the statement
	// returns, shown to the reviewer deciding on the ticket.
	Explanation string     `json:"explanation"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	// RowCount is set on executed tickets; result rows themselves are
	// returned to the caller, not persisted.
	RowCount int `json:"row_count,omitempty"`
}

// TicketStore persists tickets.
type TicketStore interface {
	Create(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, queryID string) (*Ticket, error)
	Update(ctx context.Context, t *Ticket) error
	ListByStatus(ctx context.Context, status Status) ([]*Ticket, error)
}

// MemoryTicketStore keeps tickets in process memory.
type MemoryTicketStore struct {
	mu      sync.RWMutex
	tickets map[string]Ticket
}

func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{tickets: make(map[string]Ticket)}
}

func (s *MemoryTicketStore) Create(_ context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.QueryID] = *t
	return nil
}

func (s *MemoryTicketStore) Get(_ context.Context, queryID string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[queryID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	copied := t
	return &copied, nil
}

func (s *MemoryTicketStore) Update(_ context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tickets[t.QueryID]
	if !ok {
		return ErrTicketNotFound
	}
	if stored.Status.Terminal() {
		return ErrAlreadyDecided
	}
	s.tickets[t.QueryID] = *t
	return nil
}

func (s *MemoryTicketStore) ListByStatus(_ context.Context, status Status) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Ticket
	for _, t := range s.tickets {
		if t.Status == status {
			copied := t
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
