package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/billingtest"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

type stubQueue struct {
	name       string
	propertyID int64
	closed     bool
}

func (s *stubQueue) Trigger(_ context.Context, name string, propertyID int64) (*asynq.TaskInfo, error) {
	s.name, s.propertyID = name, propertyID
	return &asynq.TaskInfo{ID: "t-1", Type: name, Queue: jobs.QueueDefault}, nil
}

func (s *stubQueue) InspectQueue(context.Context) (QueueStats, error) {
	return QueueStats{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}, nil
}

func (s *stubQueue) Close() error {
	s.closed = true
	return nil
}

func run(t *testing.T, deps Deps, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func queueDeps(q *stubQueue) Deps {
	return Deps{Queue: func() (Queue, error) { return q, nil }}
}

func TestTriggerBillingTick(t *testing.T) {
	q := &stubQueue{}
	out, err := run(t, queueDeps(q), "jobs", "trigger", "billing-tick", "--property", "12")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskBillingTick, q.name)
	require.Equal(t, int64(12), q.propertyID)
	require.True(t, q.closed)
	require.Contains(t, out, "enqueued billing:invoice_tick id=t-1")
}

func TestTriggerUnknownJob(t *testing.T) {
	q := &stubQueue{}
	_, err := run(t, queueDeps(q), "jobs", "trigger", "reindex")
	require.Error(t, err)
	require.Empty(t, q.name)
}

func TestInspectPrintsJSON(t *testing.T) {
	out, err := run(t, queueDeps(&stubQueue{}), "jobs", "inspect")
	require.NoError(t, err)
	var stats QueueStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, 3, stats.Pending)
	require.Equal(t, 1, stats.Retry)
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestJobsCLITriggerUsesJobsClient(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC)
	enq := &recordingEnqueuer{}
	c := &JobsCLI{client: jobs.NewClientWith(enq), now: func() time.Time { return at }}

	info, err := c.Trigger(context.Background(), jobs.TaskBillingTick, 4)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskBillingTick, info.Type)
	var payload jobs.BillingTickPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, int64(4), payload.PropertyID)
	require.True(t, at.Equal(payload.ScheduledFor))

	_, err = c.Trigger(context.Background(), jobs.TaskGLIntegrity, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskGLIntegrity, enq.tasks[1].Type())

	_, err = c.Trigger(context.Background(), "nope", 0)
	require.Error(t, err)
	require.Len(t, enq.tasks, 2)
	require.NoError(t, c.Close())
}

func ledgerDeps(store *billingtest.Store) Deps {
	return Deps{Ledger: func(context.Context) (jobs.UnbalancedLister, func(), error) {
		return store.Ledger(), func() {}, nil
	}}
}

func TestLedgerCheckBalanced(t *testing.T) {
	out, err := run(t, ledgerDeps(billingtest.New()), "ledger", "check")
	require.NoError(t, err)
	require.Equal(t, "ledger balanced\n", out)
}

func TestLedgerCheckReportsDrift(t *testing.T) {
	store := billingtest.New()
	acct := store.AddAccount(billing.GLAccountKey{
		HolderKind: billing.HolderProperty, HolderID: 1,
		AccountType: billing.AccountTypeAsset, SubType: billing.SubTypeCashAndBank,
	})
	ref := uuid.New()
	store.InjectJournalRow(billing.GLTransaction{
		GLAccountID: acct.ID, Direction: billing.DirectionDebit, Amount: decimal.RequireFromString("12.5"), EventRef: ref,
	})

	out, err := run(t, ledgerDeps(store), "ledger", "check")
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Contains(t, out, ref.String()+" debit=12.50 credit=0.00")
}
