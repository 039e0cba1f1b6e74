// Package jobs implements the Job Scheduler (C8): a bounded FIFO queue
// feeding a fixed worker pool that drives the Extraction Pipeline (C5) for
// completed conversations, with retry, graceful shutdown, and disk
// persistence of anything still queued at shutdown. Grounded on the
// teacher's internal/orchestrator.StartKafkaConsumer worker-pool idiom
// (bounded channel, per-worker goroutine loop, WaitGroup drain), adapted
// from a Kafka reader source to an in-process enqueue API.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
)

// DefaultWorkerPoolSize, DefaultQueueCapacity, and DefaultShutdownGrace
// mirror spec.md §4.8's defaults. DefaultMaxAttempts counts the initial
// attempt plus 3 retries, so every entry in DefaultRetryDelays gets used:
// attempt 1 fails -> wait 60s, attempt 2 fails -> wait 300s, attempt 3
// fails -> wait 1800s, attempt 4 fails terminally.
const (
	DefaultWorkerPoolSize = 10
	DefaultQueueCapacity  = 1000
	DefaultMaxAttempts    = 4
)

// DefaultRetryDelays is the 60s/300s/1800s backoff schedule from spec.md §4.8.
var DefaultRetryDelays = []time.Duration{60 * time.Second, 300 * time.Second, 1800 * time.Second}

// Job is one unit of extraction work: a completed Conversation waiting on
// the pipeline. The scheduler is deliberately ignorant of the pipeline's
// internals; Handler closes over whatever the caller wires in.
type Job struct {
	ID         string
	Payload    any
	Attempt    int
	EnqueuedAt time.Time
	DeferredAt time.Time
}

// Handler processes one Job. A transient error (per apperr.IsTransient)
// is retried per the configured backoff; any other error is terminal.
type Handler func(ctx context.Context, job Job) error

// PersistenceStore persists queued-but-unstarted jobs across a restart and
// records overflowed jobs for the recovery sweep, per spec.md §4.8.
type PersistenceStore interface {
	SaveQueued(jobs []Job) error
	LoadQueued() ([]Job, error)
	SaveDeferred(job Job) error
}

// Scheduler is the bounded-queue, fixed-worker-pool job runner.
type Scheduler struct {
	handler     Handler
	persistence PersistenceStore

	queue         chan Job
	workerCount   int
	maxAttempts   int
	retryDelays   []time.Duration
	shutdownGrace time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	mu    sync.Mutex
	depth int
}

// New builds a Scheduler. handler is invoked once per attempt; persistence
// may be nil, in which case overflow and restart-survival are disabled
// (acceptable for tests and single-shot tools).
func New(handler Handler, persistence PersistenceStore, workerCount, queueCapacity, maxAttempts int, retryDelays []time.Duration, shutdownGrace time.Duration) *Scheduler {
	if workerCount <= 0 {
		workerCount = DefaultWorkerPoolSize
	}
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if len(retryDelays) == 0 {
		retryDelays = DefaultRetryDelays
	}
	if shutdownGrace <= 0 {
		shutdownGrace = 30 * time.Second
	}
	return &Scheduler{
		handler:       handler,
		persistence:   persistence,
		queue:         make(chan Job, queueCapacity),
		workerCount:   workerCount,
		maxAttempts:   maxAttempts,
		retryDelays:   retryDelays,
		shutdownGrace: shutdownGrace,
		stopCh:        make(chan struct{}),
	}
}

// RegisterDepthMetric exports the queue depth as an OpenTelemetry
// observable gauge on the global Meter provider, per spec.md §4.8's
// requirement that queue depth be exported as a metric. Grounded on the
// teacher's internal/rag/obs.OtelMetrics instrument-registration idiom,
// adapted from a manually-recorded counter/histogram to a callback-driven
// gauge since depth is a live value rather than something the scheduler
// increments directly.
func (s *Scheduler) RegisterDepthMetric(meterName string) error {
	meter := otel.Meter(meterName)
	gauge, err := meter.Int64ObservableGauge(
		"extraction_queue_depth",
		metric.WithDescription("Number of extraction jobs currently queued, awaiting a worker."),
	)
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(s.Depth()))
		return nil
	}, gauge)
	return err
}

// Start launches the worker pool and, if a PersistenceStore is configured,
// requeues anything left over from a prior run.
func (s *Scheduler) Start(ctx context.Context) {
	if s.persistence != nil {
		if restored, err := s.persistence.LoadQueued(); err == nil {
			for _, j := range restored {
				s.queue <- j
				s.mu.Lock()
				s.depth++
				s.mu.Unlock()
			}
		}
	}
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.work(ctx)
	}
}

// Enqueue offers job to the queue without blocking. If the queue is at
// capacity, Enqueue returns false and persists an extraction_pending_
// deferred marker (if a PersistenceStore is configured) so a recovery
// sweep can retry it later; the caller still returns success to its own
// caller either way, per spec.md §4.8.
func (s *Scheduler) Enqueue(job Job) bool {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	select {
	case s.queue <- job:
		s.mu.Lock()
		s.depth++
		s.mu.Unlock()
		return true
	default:
		if s.persistence != nil {
			_ = s.persistence.SaveDeferred(job)
		}
		return false
	}
}

// Depth returns the current queue depth, for the required queue-depth metric.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

// Shutdown stops accepting new dequeues, lets in-flight jobs finish up to
// shutdownGrace, and persists anything still queued so it survives a
// restart.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace, cancel := context.WithTimeout(ctx, s.shutdownGrace)
	defer cancel()
	select {
	case <-done:
	case <-grace.Done():
	}

	if s.persistence != nil {
		remaining := s.drain()
		if len(remaining) > 0 {
			return s.persistence.SaveQueued(remaining)
		}
	}
	return nil
}

func (s *Scheduler) drain() []Job {
	var remaining []Job
	for {
		select {
		case j := <-s.queue:
			remaining = append(remaining, j)
		default:
			return remaining
		}
	}
}

func (s *Scheduler) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case job, ok := <-s.queue:
			if !ok {
				return
			}
			s.mu.Lock()
			s.depth--
			s.mu.Unlock()
			s.process(ctx, job)
		}
	}
}

func (s *Scheduler) process(ctx context.Context, job Job) {
	job.Attempt++
	err := s.handler(ctx, job)
	if err == nil {
		return
	}

	logger := observability.LoggerWithTrace(ctx)
	if !apperr.IsTransient(err) || job.Attempt >= s.maxAttempts {
		logger.Error().Err(err).Str("job_id", job.ID).Int("attempt", job.Attempt).Msg("extraction_job_failed_terminal")
		return
	}

	delay := s.retryDelays[min(job.Attempt-1, len(s.retryDelays)-1)]
	logger.Warn().Err(err).Str("job_id", job.ID).Int("attempt", job.Attempt).Dur("retry_delay", delay).Msg("extraction_job_retry_scheduled")

	go func() {
		select {
		case <-time.After(delay):
		case <-s.stopCh:
			return
		}
		s.Enqueue(job)
	}()
}
