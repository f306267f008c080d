package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"docbulk/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MAX_DEFAULT_THREADS caps the default worker count
const MAX_DEFAULT_THREADS = 32

// MAX_BUFFERED_ITEMS caps the channel buffers between the feeder, the workers
// and read results, independent of the configured batch size
const MAX_BUFFERED_ITEMS = 1000

// bufferSize is one batch per worker, capped at MAX_BUFFERED_ITEMS
func bufferSize(threadCount, batchSize int) int {
	if batchSize > MAX_BUFFERED_ITEMS/threadCount {
		return MAX_BUFFERED_ITEMS
	}
	return threadCount * batchSize
}

// DefaultThreadCount is min(32, CPUs + 4)
func DefaultThreadCount() int {
	return min(MAX_DEFAULT_THREADS, runtime.NumCPU()+4)
}

// batchFunc performs the client call for one batch
type batchFunc[T any] func(ctx context.Context, client DocumentClient, database string, batch []T) error

// workItem is a value accepted by the feeder together with its Status ID
type workItem[T any] struct {
	id    int
	value T
}

// Job is one run of the bulk engine over items of type T. It is configured,
// started once, and then runs every item to batch success or batch failure.
// There is no cancellation: cancelling the context passed to Start only makes
// the remaining client calls fail.
type Job[T any] struct {
	id          string
	kind        model.JobKind
	threadCount int
	batchSize   int
	database    string

	client        DocumentClient
	clientConfig  map[string]string
	clientFactory ClientFactory
	registry      *ClientRegistry
	registryName  string

	sources []Source[T]
	uriOf   func(T) string
	process batchFunc[T]

	progressSink     ProgressSink
	progressInterval time.Duration

	status  *Status
	batches atomic.Int64
	pull    sync.Mutex

	mu         sync.Mutex
	state      model.JobState
	wg         sync.WaitGroup
	done       chan struct{}
	onComplete []func()
}

// Option customises a job at construction
type Option func(*jobOptions)

type jobOptions struct {
	id               string
	threadCount      int
	batchSize        int
	progressSink     ProgressSink
	progressInterval time.Duration
}

// WithThreadCount sets the number of concurrent workers
func WithThreadCount(n int) Option {
	return func(o *jobOptions) { o.threadCount = n }
}

// WithBatchSize sets the number of items per client call
func WithBatchSize(n int) Option {
	return func(o *jobOptions) { o.batchSize = n }
}

// WithID overrides the generated job identifier
func WithID(id string) Option {
	return func(o *jobOptions) { o.id = id }
}

// WithProgressSink flushes metrics to sink every interval while the job runs
func WithProgressSink(sink ProgressSink, interval time.Duration) Option {
	return func(o *jobOptions) {
		o.progressSink = sink
		o.progressInterval = interval
	}
}

func newJob[T any](kind model.JobKind, defaultBatchSize int, uriOf func(T) string, process batchFunc[T], opts ...Option) (*Job[T], error) {
	o := jobOptions{
		threadCount: DefaultThreadCount(),
		batchSize:   defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.threadCount <= 0 {
		return nil, fmt.Errorf("%w: thread count must be positive, got %d", ErrInvalidConfig, o.threadCount)
	}
	if o.batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, o.batchSize)
	}
	if o.id == "" {
		o.id = uuid.New().String()
	}

	return &Job[T]{
		id:               o.id,
		kind:             kind,
		threadCount:      o.threadCount,
		batchSize:        o.batchSize,
		uriOf:            uriOf,
		process:          process,
		progressSink:     o.progressSink,
		progressInterval: o.progressInterval,
		status:           NewStatus(),
		state:            model.StateCreated,
		done:             make(chan struct{}),
	}, nil
}

// ID returns the job identifier
func (j *Job[T]) ID() string { return j.id }

// Kind returns the job kind
func (j *Job[T]) Kind() model.JobKind { return j.kind }

// ThreadCount returns the number of workers Start spawns
func (j *Job[T]) ThreadCount() int { return j.threadCount }

// BatchSize returns the maximum number of items per client call
func (j *Job[T]) BatchSize() int { return j.batchSize }

// Database returns the target database, empty for the store default
func (j *Job[T]) Database() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.database
}

// State returns the lifecycle state
func (j *Job[T]) State() model.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Status returns the live outcome aggregate
func (j *Job[T]) Status() *Status { return j.status }

// Report snapshots the status
func (j *Job[T]) Report() Report { return j.status.Report() }

// Batches returns the number of client calls made so far
func (j *Job[T]) Batches() int { return int(j.batches.Load()) }

// Metrics returns the status counts plus completed batches
func (j *Job[T]) Metrics() model.JobMetrics {
	metrics := j.status.Metrics()
	metrics.BatchesComplete = j.Batches()
	return metrics
}

// configure runs fn under the job lock while the job has not started
func (j *Job[T]) configure(fn func()) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == model.StateRunning || j.state == model.StateCompleted {
		return fmt.Errorf("%w: job %s is %s", ErrAlreadyStarted, j.id, j.state)
	}

	fn()
	if len(j.sources) > 0 {
		j.state = model.StateConfigured
	}
	return nil
}

// SetClient uses client for every batch. The caller keeps ownership of it.
func (j *Job[T]) SetClient(client DocumentClient) error {
	return j.configure(func() { j.client = client })
}

// SetClientConfig builds the client at Start by passing config verbatim to
// factory. The job closes that client when it completes.
func (j *Job[T]) SetClientConfig(config map[string]string, factory ClientFactory) error {
	copied := make(map[string]string, len(config))
	for k, v := range config {
		copied[k] = v
	}
	return j.configure(func() {
		j.clientConfig = copied
		j.clientFactory = factory
	})
}

// UseRegistry resolves the client by name from registry at Start. When a
// client config and factory are also set, a missing client is opened into the registry.
func (j *Job[T]) UseRegistry(registry *ClientRegistry, name string) error {
	return j.configure(func() {
		j.registry = registry
		j.registryName = name
	})
}

// SetDatabase targets a database other than the store default
func (j *Job[T]) SetDatabase(database string) error {
	return j.configure(func() { j.database = database })
}

// AddSource registers an input. Sources are drained in registration order.
func (j *Job[T]) AddSource(source Source[T]) error {
	if source == nil {
		return fmt.Errorf("%w: nil source", ErrInvalidConfig)
	}
	return j.configure(func() { j.sources = append(j.sources, source) })
}

// AddItems registers an in-memory input
func (j *Job[T]) AddItems(items ...T) error {
	return j.AddSource(NewSliceSource(items...))
}

// AddSeq registers a lazy input
func (j *Job[T]) AddSeq(seq iter.Seq[T]) error {
	if seq == nil {
		return fmt.Errorf("%w: nil sequence", ErrInvalidConfig)
	}
	return j.AddSource(NewSeqSource(seq))
}

// resolveClient returns the client for this run and whether the job owns it
func (j *Job[T]) resolveClient() (DocumentClient, bool, error) {
	switch {
	case j.client != nil:
		return j.client, false, nil
	case j.registry != nil:
		if client, ok := j.registry.Get(j.registryName); ok {
			return client, false, nil
		}
		if j.clientFactory != nil {
			client, err := j.registry.Open(j.registryName, j.clientConfig, j.clientFactory)
			return client, false, err
		}
		return nil, false, fmt.Errorf("%w: %q is not registered", ErrNoClient, j.registryName)
	case j.clientFactory != nil:
		client, err := j.clientFactory(j.clientConfig)
		if err != nil {
			return nil, false, fmt.Errorf("build client: %w", err)
		}
		return client, true, nil
	default:
		return nil, false, ErrNoClient
	}
}

// Start spawns the feeder and exactly ThreadCount workers and returns
// without waiting for them
func (j *Job[T]) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == model.StateRunning || j.state == model.StateCompleted {
		return fmt.Errorf("%w: job %s is %s", ErrAlreadyStarted, j.id, j.state)
	}
	if len(j.sources) == 0 {
		return fmt.Errorf("%w: job %s", ErrNoInput, j.id)
	}

	client, owned, err := j.resolveClient()
	if err != nil {
		return err
	}

	j.state = model.StateRunning

	logger := log.With().
		Str("jobID", j.id).
		Str("kind", string(j.kind)).
		Logger()

	logger.Info().
		Int("threads", j.threadCount).
		Int("batchSize", j.batchSize).
		Int("sources", len(j.sources)).
		Str("database", j.database).
		Msg("Starting bulk job")

	var flusher *progressFlusher
	if j.progressSink != nil {
		flusher = newProgressFlusher(j.id, j.progressSink, j.progressInterval, j.Metrics)
	}

	items := make(chan workItem[T], bufferSize(j.threadCount, j.batchSize))
	sources := append([]Source[T](nil), j.sources...)
	database := j.database

	go j.feed(ctx, sources, items)

	j.wg.Add(j.threadCount)
	for worker := range j.threadCount {
		go j.work(ctx, worker, client, database, items)
	}

	startedAt := time.Now()
	go func() {
		j.wg.Wait()

		if owned {
			if err := closeClient(client); err != nil {
				logger.Warn().Err(err).Msg("Failed to close document client")
			}
		}

		for _, fn := range j.onComplete {
			fn()
		}

		if flusher != nil {
			flusher.Close()
		}

		j.mu.Lock()
		j.state = model.StateCompleted
		j.mu.Unlock()

		metrics := j.Metrics()
		logger.Info().
			Int("total", metrics.TotalItems).
			Int("successful", metrics.SuccessCount).
			Int("failed", metrics.FailureCount).
			Int("batches", metrics.BatchesComplete).
			Dur("duration", time.Since(startedAt)).
			Msg("Bulk job completed")

		close(j.done)
	}()

	return nil
}

// Wait blocks until every worker has exited
func (j *Job[T]) Wait() error {
	if state := j.State(); state == model.StateCreated || state == model.StateConfigured {
		return fmt.Errorf("%w: job %s", ErrNotStarted, j.id)
	}
	<-j.done
	return nil
}

// Done is closed once the job has completed
func (j *Job[T]) Done() <-chan struct{} { return j.done }

// feed drains every source into items, registering each accepted item as
// pending, then closes items to signal end of stream to all workers
func (j *Job[T]) feed(ctx context.Context, sources []Source[T], items chan<- workItem[T]) {
	defer close(items)

	accepted := 0
	for index, source := range sources {
		for value, err := range source.Items(ctx) {
			if err != nil {
				log.Warn().
					Err(err).
					Str("jobID", j.id).
					Int("source", index).
					Msg("Skipping item that could not be produced")
				continue
			}

			id := j.status.AddPending(j.uriOf(value))
			items <- workItem[T]{id: id, value: value}
			accepted++
		}
	}

	log.Debug().
		Str("jobID", j.id).
		Int("accepted", accepted).
		Msg("Feeder exhausted all sources")
}

// work pulls batches until the channel is closed
func (j *Job[T]) work(ctx context.Context, worker int, client DocumentClient, database string, items <-chan workItem[T]) {
	defer j.wg.Done()

	for {
		batch, more := j.nextBatch(items)
		if len(batch) > 0 {
			j.processBatch(ctx, worker, client, database, batch)
		}
		if !more {
			log.Debug().
				Str("jobID", j.id).
				Int("worker", worker).
				Msg("Worker reached end of stream")
			return
		}
	}
}

// nextBatch receives until the batch is full or the channel is closed.
// more is false once the end of stream has been observed. One worker
// assembles at a time so only the final batch of a job can be short.
func (j *Job[T]) nextBatch(items <-chan workItem[T]) (batch []workItem[T], more bool) {
	j.pull.Lock()
	defer j.pull.Unlock()

	batch = make([]workItem[T], 0, min(j.batchSize, MAX_BUFFERED_ITEMS))
	for len(batch) < j.batchSize {
		item, ok := <-items
		if !ok {
			return batch, false
		}
		batch = append(batch, item)
	}
	return batch, true
}

// processBatch makes one client call and records the outcome for every item
// in the batch: all succeed or all fail
func (j *Job[T]) processBatch(ctx context.Context, worker int, client DocumentClient, database string, batch []workItem[T]) {
	values := make([]T, len(batch))
	for i, item := range batch {
		values[i] = item.value
	}

	start := time.Now()
	err := j.process(ctx, client, database, values)
	j.batches.Add(1)

	if err != nil {
		log.Error().
			Err(err).
			Str("jobID", j.id).
			Int("worker", worker).
			Int("size", len(batch)).
			Dur("duration", time.Since(start)).
			Msg("Batch failed")

		for _, item := range batch {
			if markErr := j.status.MarkFailed(item.id, err); markErr != nil {
				log.Error().Err(markErr).Str("jobID", j.id).Msg("Could not record batch failure")
			}
		}
		return
	}

	for _, item := range batch {
		if markErr := j.status.MarkSuccessful(item.id); markErr != nil {
			log.Error().Err(markErr).Str("jobID", j.id).Msg("Could not record batch success")
		}
	}

	log.Debug().
		Str("jobID", j.id).
		Int("worker", worker).
		Int("size", len(batch)).
		Dur("duration", time.Since(start)).
		Msg("Batch succeeded")
}
