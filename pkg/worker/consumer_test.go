package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/fifocopy/internal/logging"
	"github.com/jzx17/fifocopy/pkg/queue"
	"github.com/jzx17/fifocopy/pkg/retry"
	"github.com/jzx17/fifocopy/pkg/types"
)

// recordingSink remembers processed tasks and fails the ones listed in failOn
type recordingSink struct {
	mu     sync.Mutex
	seen   []string
	failOn map[string]error
}

func (s *recordingSink) Process(ctx context.Context, task string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, task)
	return s.failOn[task]
}

func (s *recordingSink) processed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

func filledQueue(t *testing.T, capacity int, items ...string) *queue.BoundedQueue[string] {
	t.Helper()
	q, err := queue.New[string](capacity)
	require.NoError(t, err)
	for _, item := range items {
		require.True(t, q.Push(item))
	}
	return q
}

func TestConsumer_DrainsAfterShutdown(t *testing.T) {
	q := filledQueue(t, 4, "a", "b", "c")
	q.Shutdown()

	sink := &recordingSink{}
	var released []string
	c, err := NewConsumer[string](q, sink, ConsumerConfig[string]{
		OnDone: func(task string) { released = append(released, task) },
	})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []string{"a", "b", "c"}, sink.processed())
	assert.Equal(t, []string{"a", "b", "c"}, released)
	assert.Equal(t, WorkerStateStopped, c.State())
	assert.Equal(t, int64(3), c.Stats().TotalProcessed)
}

func TestConsumer_FailedTaskDoesNotStopLoop(t *testing.T) {
	exists := errors.New("destination exists")
	q := filledQueue(t, 4, "a", "b", "c")
	q.Shutdown()

	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Writer: &buf})
	require.NoError(t, err)

	sink := &recordingSink{failOn: map[string]error{"b": exists}}
	var reported []error
	var released []string
	c, err := NewConsumer[string](q, sink, ConsumerConfig[string]{
		Operation: "copy",
		ErrorHandler: func(err error) error {
			reported = append(reported, err)
			return nil
		},
		OnDone: func(task string) { released = append(released, task) },
		Logger: logger,
	})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []string{"a", "b", "c"}, sink.processed())
	assert.Equal(t, []string{"a", "b", "c"}, released, "failed tasks are released too")

	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], exists)
	var taskErr *types.TaskError[string]
	require.ErrorAs(t, reported[0], &taskErr)
	assert.Equal(t, "b", taskErr.Task)
	assert.Equal(t, "copy", taskErr.Operation)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.TotalProcessed)
	assert.Equal(t, int64(1), stats.TotalFailed)
	assert.Contains(t, buf.String(), "task failed")
	assert.Contains(t, buf.String(), "error=\"destination exists\"")
}

func TestConsumer_RecoversSinkPanic(t *testing.T) {
	q := filledQueue(t, 2, "a", "b")
	q.Shutdown()

	var processed int32
	sink := types.SinkFunc[string](func(ctx context.Context, task string) error {
		if task == "a" {
			panic("sink bug")
		}
		atomic.AddInt32(&processed, 1)
		return nil
	})

	c, err := NewConsumer[string](q, sink, ConsumerConfig[string]{})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&processed))
	assert.Equal(t, int64(1), c.Stats().TotalFailed)
}

func TestConsumer_RetriesRetryableFailures(t *testing.T) {
	q := filledQueue(t, 1, "a")
	q.Shutdown()

	var attempts int32
	sink := types.SinkFunc[string](func(ctx context.Context, task string) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return types.NewRetryableError(errors.New("resource busy"))
		}
		return nil
	})

	c, err := NewConsumer[string](q, sink, ConsumerConfig[string]{
		Retry: retry.NewRetryExecutor(retry.NewFixedDelayRetry(3, 0)),
	})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.TotalProcessed)
	assert.Equal(t, int64(1), stats.TotalRetries)
}

func TestConsumer_WaitsForWorkUntilShutdown(t *testing.T) {
	q, err := queue.New[string](2)
	require.NoError(t, err)

	sink := &recordingSink{}
	c, err := NewConsumer[string](q, sink, ConsumerConfig[string]{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.True(t, q.Push("late"))
	require.Eventually(t, func() bool {
		return len(sink.processed()) == 1
	}, 2*time.Second, time.Millisecond)

	select {
	case <-done:
		t.Fatal("consumer exited before shutdown")
	default:
	}

	q.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not observe shutdown")
	}
}

func TestConsumer_ErrorHandlerFailureIsLogged(t *testing.T) {
	q := filledQueue(t, 1, "a")
	q.Shutdown()

	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Writer: &buf})
	require.NoError(t, err)

	sink := types.SinkFunc[string](func(ctx context.Context, task string) error {
		return errors.New("copy failed")
	})
	c, err := NewConsumer[string](q, sink, ConsumerConfig[string]{
		ErrorHandler: func(err error) error { return errors.New("report failed") },
		Logger:       logger,
	})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Contains(t, buf.String(), "error handler failed")
}

func TestNewConsumer_Validation(t *testing.T) {
	q, err := queue.New[string](1)
	require.NoError(t, err)

	_, err = NewConsumer[string](q, nil, ConsumerConfig[string]{})
	assert.ErrorIs(t, err, types.ErrNilSink)

	_, err = NewConsumer[string](nil, &recordingSink{}, ConsumerConfig[string]{})
	assert.Error(t, err)

	c, err := NewConsumer[string](q, &recordingSink{}, ConsumerConfig[string]{})
	require.NoError(t, err)
	q.Shutdown()
	require.NoError(t, c.Run(context.Background()))
	assert.ErrorIs(t, c.Run(context.Background()), types.ErrAlreadyStarted)
}

func TestProducerConsumer_PreservesOrder(t *testing.T) {
	q, err := queue.New[string](2)
	require.NoError(t, err)

	names := make([]string, 200)
	for i := range names {
		names[i] = fmt.Sprintf("file-%03d.txt", i)
	}

	p, err := NewProducer[string](tasks(names...), q, ProducerConfig[string]{})
	require.NoError(t, err)

	sink := &recordingSink{}
	c, err := NewConsumer[string](q, sink, ConsumerConfig[string]{})
	require.NoError(t, err)

	consumerDone := make(chan error, 1)
	go func() { consumerDone <- c.Run(context.Background()) }()

	require.NoError(t, p.Run(context.Background()))
	q.Shutdown()
	require.NoError(t, <-consumerDone)

	assert.Equal(t, names, sink.processed())
	assert.LessOrEqual(t, q.Stats().HighWater, 2)
}
