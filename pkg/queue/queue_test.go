package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ledgerline/taskqueue/pkg/core"
	"github.com/ledgerline/taskqueue/pkg/storage"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tasks.db")
	db, err := gorm.Open(sqlite.Open(dbPath+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open sqlite")

	store := storage.NewGormStore(db)
	require.NoError(t, store.Migrate(context.Background()), "migrate schema")
	return New(store)
}

type chargeParams struct {
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
}

func TestRegister(t *testing.T) {
	q := newTestQueue(t)

	q.Register("charge", func(ctx context.Context, p chargeParams) error {
		return nil
	})

	assert.True(t, q.HasHandler("charge"))
	assert.False(t, q.HasHandler("refund"))
}

func TestRegister_InvalidName_Panics(t *testing.T) {
	q := newTestQueue(t)

	assert.Panics(t, func() {
		q.Register("", func(ctx context.Context, p chargeParams) error { return nil })
	})
	assert.Panics(t, func() {
		q.Register("bad name!", func(ctx context.Context, p chargeParams) error { return nil })
	})
}

func TestRegister_InvalidHandler_Panics(t *testing.T) {
	q := newTestQueue(t)

	assert.Panics(t, func() {
		q.Register("charge", "not a function")
	})
	assert.Panics(t, func() {
		q.Register("charge", func(ctx context.Context, n int) int { return n })
	})
}

func TestEnqueue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	q.Register("charge", func(ctx context.Context, p chargeParams) error { return nil })

	id, err := q.Enqueue(ctx, "charge", chargeParams{Amount: 1500, Currency: "USD"},
		Priority(7), Retries(5))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, err := q.GetStatus(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, core.StatePending, task.State)
	assert.Equal(t, 7, task.Priority)
	assert.Equal(t, 5, task.MaxRetries)
	assert.JSONEq(t, `{"amount":1500,"currency":"USD"}`, string(task.Payload))
}

func TestEnqueue_UnknownType(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), "refund", chargeParams{})
	assert.True(t, errors.Is(err, core.ErrUnknownTaskType))
}

func TestEnqueue_InvalidName(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), "not a valid name!", nil)
	assert.True(t, errors.Is(err, core.ErrInvalidTaskTypeName))
}

func TestEnqueue_PayloadTooLarge(t *testing.T) {
	q := newTestQueue(t)

	q.Register("charge", func(ctx context.Context, p []byte) error { return nil })

	huge := make([]byte, 2<<20)
	_, err := q.Enqueue(context.Background(), "charge", huge)
	assert.True(t, errors.Is(err, core.ErrPayloadTooLarge))
}

func TestEnqueue_Delay(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	q.Register("charge", func(ctx context.Context, p chargeParams) error { return nil })

	id, err := q.Enqueue(ctx, "charge", chargeParams{}, Delay(time.Hour))
	require.NoError(t, err)

	task, err := q.GetStatus(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, task.RunAt)
	assert.True(t, task.RunAt.After(time.Now().Add(50*time.Minute)))
}

func TestEnqueue_EmitsEventAndCounts(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	q.Register("charge", func(ctx context.Context, p chargeParams) error { return nil })

	events := q.Events()
	defer q.Unsubscribe(events)

	id, err := q.Enqueue(ctx, "charge", chargeParams{Amount: 100})
	require.NoError(t, err)

	select {
	case e := <-events:
		queued, ok := e.(*core.TaskQueued)
		require.True(t, ok, "expected TaskQueued, got %T", e)
		assert.Equal(t, id, queued.Task.ID)
	default:
		t.Fatal("expected a queued event")
	}

	stats := q.QueueStats()
	assert.Equal(t, int64(1), stats.Pending)
	assert.Zero(t, stats.Workers)
}

func TestEnqueue_NotifiesWakers(t *testing.T) {
	q := newTestQueue(t)

	q.Register("charge", func(ctx context.Context, p chargeParams) error { return nil })

	woke := 0
	q.RegisterWaker(func() { woke++ })

	_, err := q.Enqueue(context.Background(), "charge", chargeParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, woke)
}

func TestGetStatus_NotFound(t *testing.T) {
	q := newTestQueue(t)

	task, err := q.GetStatus(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestQueueStats_Idempotent(t *testing.T) {
	q := newTestQueue(t)

	q.Register("charge", func(ctx context.Context, p chargeParams) error { return nil })
	_, err := q.Enqueue(context.Background(), "charge", chargeParams{})
	require.NoError(t, err)

	a := q.QueueStats()
	b := q.QueueStats()
	assert.Equal(t, a.Pending, b.Pending)
	assert.Equal(t, a.Processed, b.Processed)
	assert.Equal(t, a.Failed, b.Failed)
	assert.Equal(t, a.Workers, b.Workers)
	assert.False(t, b.Timestamp.Before(a.Timestamp))
}

func TestRetryFailed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	q.Register("charge", func(ctx context.Context, p chargeParams) error { return nil })
	id, err := q.Enqueue(ctx, "charge", chargeParams{})
	require.NoError(t, err)

	// Drive the task to failed through the store.
	_, err = q.Store().MarkProcessing(ctx, id)
	require.NoError(t, err)
	require.NoError(t, q.Store().MarkFailed(ctx, id, "declined"))
	require.NoError(t, q.SyncStats(ctx))

	events := q.Events()
	defer q.Unsubscribe(events)

	ok, err := q.RetryFailed(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	task, err := q.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatePending, task.State)
	assert.Zero(t, task.RetryCount)

	select {
	case e := <-events:
		_, ok := e.(*core.TaskReset)
		assert.True(t, ok, "expected TaskReset, got %T", e)
	default:
		t.Fatal("expected a reset event")
	}

	stats := q.QueueStats()
	assert.Equal(t, int64(1), stats.Pending)
	assert.Zero(t, stats.Failed)
}

func TestRetryFailed_CompletedIsNoOp(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	q.Register("charge", func(ctx context.Context, p chargeParams) error { return nil })
	id, err := q.Enqueue(ctx, "charge", chargeParams{})
	require.NoError(t, err)

	_, err = q.Store().MarkProcessing(ctx, id)
	require.NoError(t, err)
	require.NoError(t, q.Store().MarkCompleted(ctx, id, nil))

	ok, err := q.RetryFailed(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	task, err := q.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, task.State)
}

func TestRetryFailed_NotFound(t *testing.T) {
	q := newTestQueue(t)

	ok, err := q.RetryFailed(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvents_SlowSubscriberDoesNotBlock(t *testing.T) {
	q := newTestQueue(t)

	// Subscribe but never read; Emit must not block once the buffer fills.
	ch := q.Events()
	defer q.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			q.Emit(&core.TaskQueued{Task: &core.Task{ID: "x"}, Timestamp: time.Now()})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	q := newTestQueue(t)

	ch := q.Events()
	q.Unsubscribe(ch)

	q.Emit(&core.TaskQueued{Task: &core.Task{ID: "x"}, Timestamp: time.Now()})
	select {
	case e := <-ch:
		t.Fatalf("expected no event after unsubscribe, got %T", e)
	default:
	}
}

func TestHooks(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	var started, completed, failed, retried int
	q.OnTaskStart(func(ctx context.Context, task *core.Task) { started++ })
	q.OnTaskComplete(func(ctx context.Context, task *core.Task) { completed++ })
	q.OnTaskFail(func(ctx context.Context, task *core.Task, err error) { failed++ })
	q.OnTaskRetry(func(ctx context.Context, task *core.Task, attempt int, err error) { retried++ })

	task := &core.Task{ID: "t1", Type: "charge"}
	q.CallStartHooks(ctx, task)
	q.CallCompleteHooks(ctx, task)
	q.CallFailHooks(ctx, task, errors.New("declined"))
	q.CallRetryHooks(ctx, task, 1, errors.New("declined"))

	assert.Equal(t, 1, started)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, retried)
}
