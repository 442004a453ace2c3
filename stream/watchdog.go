package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrSlowToRespond means no frame arrived before the first-frame timeout.
	ErrSlowToRespond = errors.New("server slow to respond")
	// ErrStreamInterrupted means frames stopped arriving mid-stream.
	ErrStreamInterrupted = errors.New("stream interrupted")
)

// Watchdog supervises a stream with two thresholds against one progress
// timestamp: firstFrame until anything is observed, idle after that. When a
// threshold is exceeded the shared cancel is called exactly once, with the
// stall error as the cause.
type Watchdog struct {
	start      time.Time
	firstFrame time.Duration
	idle       time.Duration
	last       atomic.Int64 // unix nanos of last progress, 0 before the first frame
	cancel     context.CancelCauseFunc
	once       sync.Once
}

func NewWatchdog(start time.Time, firstFrame, idle time.Duration, cancel context.CancelCauseFunc) *Watchdog {
	return &Watchdog{
		start:      start,
		firstFrame: firstFrame,
		idle:       idle,
		cancel:     cancel,
	}
}

// Observe records progress at now.
func (w *Watchdog) Observe(now time.Time) {
	w.last.Store(now.UnixNano())
}

// Seen reports whether any progress has been observed.
func (w *Watchdog) Seen() bool {
	return w.last.Load() != 0
}

// Expired returns the stall error for now, or nil while within bounds.
func (w *Watchdog) Expired(now time.Time) error {
	last := w.last.Load()
	if last == 0 {
		if now.Sub(w.start) > w.firstFrame {
			return ErrSlowToRespond
		}
		return nil
	}
	if now.Sub(time.Unix(0, last)) > w.idle {
		return ErrStreamInterrupted
	}
	return nil
}

// Check cancels the stream if it has stalled and reports whether it did.
func (w *Watchdog) Check(now time.Time) bool {
	err := w.Expired(now)
	if err == nil {
		return false
	}
	w.once.Do(func() { w.cancel(err) })
	return true
}

// Run polls until ctx ends or the stream stalls.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration, nowTime func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.Check(nowTime()) {
				return
			}
		}
	}
}
