package approval

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datakita/querybridge/common/logger"
	"github.com/datakita/querybridge/errs"
)

// Runner executes an approved read-only statement against the analytical
// database.
type Runner interface {
	Run(ctx context.Context, query string) ([]map[string]any, error)
}

// Workflow is the SQL approval state machine. Tickets move PENDING to
// EXECUTED or REJECTED exactly once; terminal states never transition again.
type Workflow struct {
	store  TicketStore
	runner Runner

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewWorkflow(store TicketStore, runner Runner) *Workflow {
	return &Workflow{store: store, runner: runner, locks: make(map[string]*sync.Mutex)}
}

// Create validates sql through the safety filter and, if it passes, persists a
// PENDING ticket carrying the reviewer-facing explanation. Unsafe statements
// are rejected before any ticket exists.
func (w *Workflow) Create(ctx context.Context, question, sql, explanation string) (*Ticket, error) {
	if err := CheckReadOnly(sql); err != nil {
		return nil, err
	}
	t := &Ticket{
		QueryID:     uuid.NewString(),
		Question:    question,
		SQL:         sql,
		Explanation: explanation,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	if err := w.store.Create(ctx, t); err != nil {
		return nil, errs.Wrap(errs.KindExternalFailure, err, "persist ticket")
	}
	logger.Infof("approval: ticket %s created", t.QueryID)
	return t, nil
}

// Execute resolves a pending ticket. With approved=false the ticket becomes
// REJECTED and nothing runs. With approved=true the statement runs first; only
// a successful run transitions the ticket to EXECUTED, a failed run leaves it
// PENDING so the decision can be retried.
//
// Concurrent Execute calls for one ticket are linearized by a per-ticket lock,
// so exactly one caller wins and the rest observe a terminal state.
func (w *Workflow) Execute(ctx context.Context, queryID string, approved bool) (*Ticket, []map[string]any, error) {
	lock := w.lockFor(queryID)
	lock.Lock()
	defer lock.Unlock()

	t, err := w.store.Get(ctx, queryID)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil, nil, errs.New(errs.KindNotFound, "ticket %s not found", queryID)
		}
		return nil, nil, errs.Wrap(errs.KindExternalFailure, err, "load ticket %s", queryID)
	}
	if t.Status.Terminal() {
		return nil, nil, errs.New(errs.KindInvalidTransition, "ticket %s is already %s", queryID, t.Status)
	}

	now := time.Now()
	if !approved {
		t.Status = StatusRejected
		t.DecidedAt = &now
		if err := w.store.Update(ctx, t); err != nil {
			return nil, nil, transitionError(err, "persist rejection of %s", queryID)
		}
		w.forgetLock(queryID)
		logger.Infof("approval: ticket %s rejected", queryID)
		return t, nil, nil
	}

	rows, err := w.runner.Run(ctx, t.SQL)
	if err != nil {
		// The ticket stays PENDING: an approval that failed downstream was
		// never consumed.
		return nil, nil, errs.Wrap(errs.KindExternalFailure, err, "execute ticket %s", queryID)
	}
	t.Status = StatusExecuted
	t.DecidedAt = &now
	t.RowCount = len(rows)
	if err := w.store.Update(ctx, t); err != nil {
		return nil, nil, transitionError(err, "persist execution of %s", queryID)
	}
	w.forgetLock(queryID)
	logger.Infof("approval: ticket %s executed, %d rows", queryID, len(rows))
	return t, rows, nil
}

func transitionError(err error, format string, args ...interface{}) error {
	if errors.Is(err, ErrAlreadyDecided) {
		return errs.Wrap(errs.KindInvalidTransition, err, format, args...)
	}
	return errs.Wrap(errs.KindExternalFailure, err, format, args...)
}

// Get returns a ticket by query ID.
func (w *Workflow) Get(ctx context.Context, queryID string) (*Ticket, error) {
	t, err := w.store.Get(ctx, queryID)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil, errs.New(errs.KindNotFound, "ticket %s not found", queryID)
		}
		return nil, errs.Wrap(errs.KindExternalFailure, err, "load ticket %s", queryID)
	}
	return t, nil
}

// ListPending returns pending tickets oldest first.
func (w *Workflow) ListPending(ctx context.Context) ([]*Ticket, error) {
	tickets, err := w.store.ListByStatus(ctx, StatusPending)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalFailure, err, "list pending tickets")
	}
	return tickets, nil
}

func (w *Workflow) lockFor(queryID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.locks[queryID]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[queryID] = lock
	}
	return lock
}

// forgetLock drops the per-ticket mutex once the ticket is terminal, keeping
// the lock map proportional to pending tickets rather than all tickets ever.
// Callers still hold the dropped mutex; late arrivals get a fresh one and
// observe the terminal state through the store.
func (w *Workflow) forgetLock(queryID string) {
	w.mu.Lock()
	delete(w.locks, queryID)
	w.mu.Unlock()
}
