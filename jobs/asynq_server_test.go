package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	tasks  []*asynq.Task
	closed bool
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: QueueDefault}, nil
}

func (r *recordingEnqueuer) Close() error {
	r.closed = true
	return nil
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}

func TestBillingTickTaskPayload(t *testing.T) {
	task, err := NewBillingTickTask(BillingTickPayload{PropertyID: 9})
	require.NoError(t, err)
	require.Equal(t, TaskBillingTick, task.Type())

	var payload BillingTickPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(9), payload.PropertyID)
}

func TestClientEnqueuesTasks(t *testing.T) {
	enq := &recordingEnqueuer{}
	client := NewClientWith(enq)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC)

	info, err := client.EnqueueBillingTick(ctx, BillingTickPayload{ScheduledFor: at, PropertyID: 4})
	require.NoError(t, err)
	require.Equal(t, TaskBillingTick, info.Type)
	_, err = client.EnqueueGLIntegrity(ctx, at)
	require.NoError(t, err)

	require.Len(t, enq.tasks, 2)
	var tick BillingTickPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &tick))
	require.Equal(t, int64(4), tick.PropertyID)
	require.True(t, at.Equal(tick.ScheduledFor))
	require.Equal(t, TaskGLIntegrity, enq.tasks[1].Type())

	require.NoError(t, client.Close())
	require.True(t, enq.closed)
}
