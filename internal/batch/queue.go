package batch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/inference"
)

// Sink receives each outcome as soon as its file is done.
type Sink func(entity.FileOutcome)

// Job is one file handed to the queue.
type Job struct {
	Path        string
	SubmittedAt time.Time
}

// Queue processes files as they are discovered, e.g. by a directory watcher.
// All files share one run, so the isolation report covers the whole session.
type Queue struct {
	orch   *Orchestrator
	sink   Sink
	run    *inference.Run
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
	seq    atomic.Int64
}

type QueueOption func(*Queue)

func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func NewQueue(orch *Orchestrator, sink Sink, logger *slog.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = func(entity.FileOutcome) {}
	}
	ctx, cancel := context.WithCancel(common.WithRunID(context.Background(), uuid.New().String()))
	q := &Queue{
		orch:   orch,
		sink:   sink,
		run:    inference.NewRun(orch.isolation),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		ch:     make(chan Job, 256),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.orch.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("batch.queue.worker_started", "worker_id", workerID)
				for job := range q.ch {
					idx := int(q.seq.Add(1) - 1)
					q.sink(q.orch.ProcessOne(q.ctx, q.run, idx, job.Path))
				}
				q.logger.Debug("batch.queue.worker_stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue blocks when the queue is full. It returns an error once Shutdown
// has started or ctx ends first.
func (q *Queue) Enqueue(ctx context.Context, path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return common.ConfigurationError("queue is shutting down")
	}
	job := Job{Path: path, SubmittedAt: time.Now()}
	select {
	case q.ch <- job:
		q.logger.Info("batch.queue.enqueued", "path", path)
		return nil
	default:
	}
	q.logger.Warn("batch.queue.full", "path", path)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the session's isolation report and counters.
func (q *Queue) Stats() entity.RunStats {
	return q.run.Stats()
}

// Shutdown stops accepting files and waits for queued ones. If ctx ends
// first, in-flight files are cancelled.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("batch.queue.shutdown_interrupted")
		q.cancel()
		<-done
	case <-done:
		q.logger.Info("batch.queue.drained")
	}
	q.cancel()
}
