package db

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/jitter.report/internal/vr"
)

// SampleFlusher buffers recorded samples in memory and writes them to the
// database in batches. Recording produces up to 90 rows per second per
// device; writing each row in its own transaction stalls the poll loop,
// so the pose handler enqueues and this worker flushes on an interval.
type SampleFlusher struct {
	DB       *DB
	Interval time.Duration

	mu      sync.Mutex
	pending []vr.RecordedSample

	flushed int64
	errors  int64
}

func NewSampleFlusher(db *DB, interval time.Duration) *SampleFlusher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SampleFlusher{
		DB:       db,
		Interval: interval,
	}
}

// Enqueue adds samples to the pending batch. Safe for concurrent use.
func (f *SampleFlusher) Enqueue(samples []vr.RecordedSample) {
	if len(samples) == 0 {
		return
	}
	f.mu.Lock()
	f.pending = append(f.pending, samples...)
	f.mu.Unlock()
}

// Pending reports how many samples are waiting to be written.
func (f *SampleFlusher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Flushed reports how many samples have been written so far.
func (f *SampleFlusher) Flushed() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushed
}

// Flush writes the pending batch now. The batch is taken off the queue
// before writing; on error it is put back at the front so a transient
// database failure does not lose samples.
func (f *SampleFlusher) Flush() error {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := f.DB.InsertSamples(batch); err != nil {
		f.mu.Lock()
		f.pending = append(batch, f.pending...)
		f.errors++
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	f.flushed += int64(len(batch))
	f.mu.Unlock()
	return nil
}

// Run flushes on the configured interval until the context is cancelled,
// then drains whatever is still pending.
func (f *SampleFlusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := f.Flush(); err != nil {
				log.Printf("sample flush failed (will retry): %v", err)
			}
		case <-ctx.Done():
			if err := f.Flush(); err != nil {
				log.Printf("final sample flush failed: %v", err)
				return err
			}
			return ctx.Err()
		}
	}
}
