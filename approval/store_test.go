package approval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingTicket(id string) *Ticket {
	return &Ticket{
		QueryID:     id,
		Question:    "how many orders",
		SQL:         "SELECT count(*) FROM orders",
		Explanation: "Counts every order.",
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

func decide(t *Ticket, status Status) *Ticket {
	now := time.Now()
	decided := *t
	decided.Status = status
	decided.DecidedAt = &now
	return &decided
}

func TestMemoryStore_UpdateGuardsTerminal(t *testing.T) {
	store := NewMemoryTicketStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, pendingTicket("t1")))

	require.NoError(t, store.Update(ctx, decide(pendingTicket("t1"), StatusExecuted)))

	// A second decision hits the store guard, not just the workflow lock.
	err := store.Update(ctx, decide(pendingTicket("t1"), StatusRejected))
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
}

func TestMemoryStore_UpdateUnknownTicket(t *testing.T) {
	store := NewMemoryTicketStore()
	err := store.Update(context.Background(), pendingTicket("missing"))
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteTicketStore(filepath.Join(t.TempDir(), "tickets.db"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, pendingTicket("t1")))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM orders", got.SQL)
	assert.Equal(t, "Counts every order.", got.Explanation)
	assert.Equal(t, StatusPending, got.Status)
}

func TestSQLiteStore_UpdateGuardsTerminal(t *testing.T) {
	store, err := NewSQLiteTicketStore(filepath.Join(t.TempDir(), "tickets.db"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, pendingTicket("t1")))

	require.NoError(t, store.Update(ctx, decide(pendingTicket("t1"), StatusRejected)))

	err = store.Update(ctx, decide(pendingTicket("t1"), StatusExecuted))
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.NotNil(t, got.DecidedAt)
}

func TestSQLiteStore_UpdateUnknownTicket(t *testing.T) {
	store, err := NewSQLiteTicketStore(filepath.Join(t.TempDir(), "tickets.db"))
	require.NoError(t, err)

	err = store.Update(context.Background(), pendingTicket("missing"))
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestSQLiteStore_ListPendingSkipsDecided(t *testing.T) {
	store, err := NewSQLiteTicketStore(filepath.Join(t.TempDir(), "tickets.db"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, pendingTicket("t1")))
	require.NoError(t, store.Create(ctx, pendingTicket("t2")))
	require.NoError(t, store.Update(ctx, decide(pendingTicket("t1"), StatusExecuted)))

	pending, err := store.ListByStatus(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t2", pending[0].QueryID)
}
