package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	jobTracer          = otel.Tracer("brokerlink/scheduler")
	jobMeter           = otel.Meter("brokerlink/scheduler")
	jobDuration, _     = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _        = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobQueueDropped, _ = jobMeter.Int64Counter("scheduler.job.queue_dropped", metric.WithDescription("Jobs dropped due to full queue"))
)

var (
	ErrQueueFull   = errors.New("job queue full")
	ErrPoolClosed  = errors.New("worker pool is shut down")
	errJobSkipped  = errors.New("batch cancelled before job started")
	defaultTimeout = 120 * time.Second
)

// WorkerPool runs jobs on a fixed number of goroutines with an optional
// pause after each job.
type WorkerPool struct {
	workerCount int
	jobDelay    time.Duration
	jobTimeout  time.Duration
	jobs        chan Job
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *slog.Logger
}

// NewWorkerPool creates a worker pool. workerCount below 1 is treated as 1.
func NewWorkerPool(workerCount int, jobDelay, jobTimeout time.Duration, queueSize int, logger *slog.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workerCount: workerCount,
		jobDelay:    jobDelay,
		jobTimeout:  jobTimeout,
		jobs:        make(chan Job, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "worker_pool"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	wp.logger.Info("starting worker pool", "workers", wp.workerCount, "job_delay", wp.jobDelay)

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return

		case job, ok := <-wp.jobs:
			if !ok {
				return
			}

			ran := wp.processJob(id, job)

			if ran && wp.jobDelay > 0 {
				select {
				case <-time.After(wp.jobDelay):
				case <-wp.ctx.Done():
					return
				}
			}
		}
	}
}

// processJob executes one job and reports whether it actually ran.
func (wp *WorkerPool) processJob(workerID int, job Job) bool {
	ctx, cancel := context.WithTimeout(wp.ctx, wp.jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.description", job.Description()),
			attribute.Int64("job.user_id", job.UserID()),
		),
	)
	defer span.End()

	start := time.Now()
	err := job.Execute(ctx)
	if errors.Is(err, errJobSkipped) {
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "skipped")))
		return false
	}
	jobDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		wp.logger.WarnContext(ctx, "job failed",
			"worker_id", workerID,
			"job", job.Description(),
			"user_id", job.UserID(),
			"error", err,
		)
		return true
	}

	jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	wp.logger.DebugContext(ctx, "job completed", "worker_id", workerID, "job", job.Description(), "user_id", job.UserID())
	return true
}

// Submit queues a job without blocking. Returns ErrQueueFull when the queue
// has no room.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	case wp.jobs <- job:
		return nil
	default:
		jobQueueDropped.Add(context.Background(), 1)
		wp.logger.Warn("job queue full, dropping job", "job", job.Description(), "user_id", job.UserID())
		return fmt.Errorf("%w: dropping %s for user %d", ErrQueueFull, job.Description(), job.UserID())
	}
}

// RunBatch feeds jobs to the pool and blocks until all of them have run or
// been skipped. Once ctx is cancelled no further job starts and the jobs
// already running see the cancellation. It returns how many jobs ran.
func (wp *WorkerPool) RunBatch(ctx context.Context, jobs []Job) int {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ran int
	)

	wp.mu.RLock()
	if wp.closed {
		wp.mu.RUnlock()
		return 0
	}
	for _, job := range jobs {
		wg.Add(1)
		bj := &batchJob{Job: job, batchCtx: ctx, done: func(executed bool) {
			if executed {
				mu.Lock()
				ran++
				mu.Unlock()
			}
			wg.Done()
		}}

		select {
		case wp.jobs <- bj:
		case <-ctx.Done():
			wg.Done()
		case <-wp.ctx.Done():
			wg.Done()
		}
	}
	wp.mu.RUnlock()

	wg.Wait()
	return ran
}

// batchJob ties a job to its batch. Cancelling the batch is checked before a
// job starts; a job already running finishes under its own timeout so one
// user's accounts are not left half-refreshed.
type batchJob struct {
	Job
	batchCtx context.Context
	done     func(executed bool)
}

func (b *batchJob) Execute(ctx context.Context) error {
	if b.batchCtx.Err() != nil {
		b.done(false)
		return errJobSkipped
	}
	defer b.done(true)
	return b.Job.Execute(ctx)
}

// Shutdown closes the queue and waits for the workers, cancelling running
// jobs when timeout passes first.
func (wp *WorkerPool) Shutdown(timeout time.Duration) {
	wp.logger.Info("worker pool shutting down", "timeout", timeout)

	wp.mu.Lock()
	wp.closed = true
	close(wp.jobs)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		wp.logger.Warn("worker pool shutdown timed out, cancelling jobs")
	}
	wp.cancel()
	<-done

	// release batches waiting on jobs that will never run
	for job := range wp.jobs {
		if bj, ok := job.(*batchJob); ok {
			bj.done(false)
		}
	}

	wp.logger.Info("worker pool stopped")
}
