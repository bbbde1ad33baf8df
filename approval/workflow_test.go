package approval

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakita/querybridge/errs"
)

// stubRunner records executions and returns a fixed result.
type stubRunner struct {
	calls atomic.Int64
	err   error
	rows  []map[string]any
}

func (r *stubRunner) Run(_ context.Context, _ string) ([]map[string]any, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return r.rows, nil
}

func newWorkflow(runner *stubRunner) *Workflow {
	return NewWorkflow(NewMemoryTicketStore(), runner)
}

func TestCreate_PendingTicket(t *testing.T) {
	w := newWorkflow(&stubRunner{})
	ticket, err := w.Create(context.Background(), "how many orders", "SELECT count(*) FROM orders", "Counts every order.")
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.QueryID)
	assert.Equal(t, StatusPending, ticket.Status)
	assert.Equal(t, "Counts every order.", ticket.Explanation)
	assert.Nil(t, ticket.DecidedAt)
}

func TestCreate_ExplanationReachesCallers(t *testing.T) {
	w := newWorkflow(&stubRunner{})
	ticket, err := w.Create(context.Background(), "how many orders", "SELECT count(*) FROM orders", "Counts every order.")
	require.NoError(t, err)

	// The explanation must survive the store round-trip and appear in the
	// serialized ticket reviewers see.
	got, err := w.Get(context.Background(), ticket.QueryID)
	require.NoError(t, err)
	assert.Equal(t, "Counts every order.", got.Explanation)

	body, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"explanation":"Counts every order."`)
}

func TestCreate_UnsafeSQLNeverBecomesTicket(t *testing.T) {
	w := newWorkflow(&stubRunner{})
	_, err := w.Create(context.Background(), "cleanup", "DROP TABLE orders", "")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindSQLSafetyRejected))

	pending, err := w.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExecute_ApprovedRunsOnce(t *testing.T) {
	runner := &stubRunner{rows: []map[string]any{{"count": int64(42)}}}
	w := newWorkflow(runner)
	ticket, err := w.Create(context.Background(), "q", "SELECT count(*) FROM orders", "")
	require.NoError(t, err)

	updated, rows, err := w.Execute(context.Background(), ticket.QueryID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, updated.Status)
	assert.NotNil(t, updated.DecidedAt)
	assert.Equal(t, 1, updated.RowCount)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestExecute_RejectedNeverRuns(t *testing.T) {
	runner := &stubRunner{}
	w := newWorkflow(runner)
	ticket, err := w.Create(context.Background(), "q", "SELECT 1", "")
	require.NoError(t, err)

	updated, rows, err := w.Execute(context.Background(), ticket.QueryID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, updated.Status)
	assert.Nil(t, rows)
	assert.EqualValues(t, 0, runner.calls.Load())

	// Rejected tickets remain readable for audit.
	got, err := w.Get(context.Background(), ticket.QueryID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
}

func TestExecute_TerminalStatesAreFinal(t *testing.T) {
	runner := &stubRunner{}
	w := newWorkflow(runner)
	ticket, err := w.Create(context.Background(), "q", "SELECT 1", "")
	require.NoError(t, err)

	_, _, err = w.Execute(context.Background(), ticket.QueryID, true)
	require.NoError(t, err)

	for _, approved := range []bool{true, false} {
		_, _, err = w.Execute(context.Background(), ticket.QueryID, approved)
		require.Error(t, err)
		assert.True(t, errs.IsKind(err, errs.KindInvalidTransition))
	}
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestExecute_TerminalReleasesTicketLock(t *testing.T) {
	w := newWorkflow(&stubRunner{})
	executed, _ := w.Create(context.Background(), "q", "SELECT 1", "")
	rejected, _ := w.Create(context.Background(), "q", "SELECT 2", "")

	_, _, err := w.Execute(context.Background(), executed.QueryID, true)
	require.NoError(t, err)
	_, _, err = w.Execute(context.Background(), rejected.QueryID, false)
	require.NoError(t, err)

	// Decided tickets keep no per-ticket lock around; the map tracks only
	// undecided work.
	w.mu.Lock()
	remaining := len(w.locks)
	w.mu.Unlock()
	assert.Zero(t, remaining)

	// A decision attempt after cleanup still sees the terminal state.
	_, _, err = w.Execute(context.Background(), executed.QueryID, false)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvalidTransition))
}

func TestExecute_RunnerFailureLeavesPending(t *testing.T) {
	runner := &stubRunner{err: errors.New("database offline")}
	w := newWorkflow(runner)
	ticket, err := w.Create(context.Background(), "q", "SELECT 1", "")
	require.NoError(t, err)

	_, _, err = w.Execute(context.Background(), ticket.QueryID, true)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindExternalFailure))

	got, err := w.Get(context.Background(), ticket.QueryID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	// The approval can be retried once the database is back.
	runner.err = nil
	updated, _, err := w.Execute(context.Background(), ticket.QueryID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, updated.Status)
}

func TestExecute_UnknownTicket(t *testing.T) {
	w := newWorkflow(&stubRunner{})
	_, _, err := w.Execute(context.Background(), "no-such-id", true)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestExecute_ConcurrentDecisionsLinearize(t *testing.T) {
	runner := &stubRunner{rows: []map[string]any{{"n": int64(1)}}}
	w := newWorkflow(runner)
	ticket, err := w.Create(context.Background(), "q", "SELECT 1", "")
	require.NoError(t, err)

	const callers = 16
	var wins, conflicts atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		approved := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := w.Execute(context.Background(), ticket.QueryID, approved)
			switch {
			case err == nil:
				wins.Add(1)
			case errs.IsKind(err, errs.KindInvalidTransition):
				conflicts.Add(1)
			default:
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, callers-1, conflicts.Load())
	assert.LessOrEqual(t, runner.calls.Load(), int64(1))

	got, err := w.Get(context.Background(), ticket.QueryID)
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
}

func TestListPending_OldestFirst(t *testing.T) {
	store := NewMemoryTicketStore()
	w := NewWorkflow(store, &stubRunner{})

	base := time.Now()
	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Create(context.Background(), &Ticket{
			QueryID:   id,
			SQL:       "SELECT 1",
			Status:    StatusPending,
			CreatedAt: base.Add(time.Duration(2-i) * time.Minute),
		}))
	}

	pending, err := w.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "b", pending[0].QueryID)
	assert.Equal(t, "a", pending[1].QueryID)
	assert.Equal(t, "c", pending[2].QueryID)
}
