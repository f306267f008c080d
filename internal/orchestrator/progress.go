package orchestrator

import (
	"context"
	"time"

	"docbulk/internal/model"

	"github.com/rs/zerolog/log"
)

const (
	// Default progress flush interval
	DEFAULT_PROGRESS_INTERVAL = 5 * time.Second
	// Upper bound for a single progress write
	progressWriteTimeout = 5 * time.Second
)

// ProgressSink receives periodic metric snapshots of a running job
type ProgressSink interface {
	UpdateProgress(ctx context.Context, jobID string, metrics model.JobMetrics) error
}

// progressFlusher pushes job metrics to a sink on a ticker and once more when closed
type progressFlusher struct {
	jobID    string
	sink     ProgressSink
	interval time.Duration
	metrics  func() model.JobMetrics
	last     *model.JobMetrics
	done     chan struct{}
	stopped  chan struct{}
}

func newProgressFlusher(jobID string, sink ProgressSink, interval time.Duration, metrics func() model.JobMetrics) *progressFlusher {
	if interval <= 0 {
		interval = DEFAULT_PROGRESS_INTERVAL
	}

	flusher := &progressFlusher{
		jobID:    jobID,
		sink:     sink,
		interval: interval,
		metrics:  metrics,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	// Start the flush loop
	go flusher.run()

	return flusher
}

// Close flushes the final snapshot and stops the loop
func (p *progressFlusher) Close() {
	close(p.done)
	<-p.stopped
}

func (p *progressFlusher) run() {
	defer close(p.stopped)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			// Final flush before exiting
			p.flush()
			return
		case <-ticker.C:
			p.flush()
		}
	}
}

// flush writes the current snapshot unless nothing changed since the last write
func (p *progressFlusher) flush() {
	metrics := p.metrics()
	if p.last != nil && *p.last == metrics {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), progressWriteTimeout)
	defer cancel()

	if err := p.sink.UpdateProgress(ctx, p.jobID, metrics); err != nil {
		log.Warn().
			Err(err).
			Str("jobID", p.jobID).
			Msg("Failed to flush job progress")
		return
	}

	p.last = &metrics
}
