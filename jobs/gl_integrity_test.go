package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/billingtest"
	jobmetrics "github.com/odyssey-erp/odyssey-rent/internal/jobs"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

func TestGLIntegrityPassesOnBalancedJournal(t *testing.T) {
	store := billingtest.New()
	job := &GLIntegrityJob{Ledger: store.Ledger(), Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	events, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestGLIntegrityFlagsUnbalancedEvent(t *testing.T) {
	store := billingtest.New()
	acct := store.AddAccount(billing.GLAccountKey{
		HolderKind: billing.HolderProperty, HolderID: 1,
		AccountType: billing.AccountTypeAsset, SubType: billing.SubTypeCashAndBank,
	})
	ref := uuid.New()
	store.InjectJournalRow(billing.GLTransaction{
		GLAccountID: acct.ID, Direction: billing.DirectionDebit, Amount: decimal.NewFromInt(10), EventRef: ref,
	})
	job := &GLIntegrityJob{Ledger: store.Ledger()}

	events, err := job.Run(context.Background())
	require.ErrorIs(t, err, billing.ErrLedgerImbalance)
	require.Len(t, events, 1)
	require.Equal(t, ref, events[0].EventRef)

	task, err := NewGLIntegrityTask(time.Now())
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, billing.ErrLedgerImbalance)
}

func TestGLIntegritySkipsWhenLockHeld(t *testing.T) {
	store := billingtest.New()
	acct := store.AddAccount(billing.GLAccountKey{
		HolderKind: billing.HolderProperty, HolderID: 1,
		AccountType: billing.AccountTypeAsset, SubType: billing.SubTypeCashAndBank,
	})
	store.InjectJournalRow(billing.GLTransaction{
		GLAccountID: acct.ID, Direction: billing.DirectionDebit, Amount: decimal.NewFromInt(10), EventRef: uuid.New(),
	})
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	job := &GLIntegrityJob{Ledger: store.Ledger(), Redis: client}

	require.NoError(t, mr.Set(shared.GLIntegrityLockKey, "other-replica"))
	events, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)

	mr.Del(shared.GLIntegrityLockKey)
	events, err = job.Run(context.Background())
	require.ErrorIs(t, err, billing.ErrLedgerImbalance)
	require.Len(t, events, 1)
	require.False(t, mr.Exists(shared.GLIntegrityLockKey))
}
