package wizard

import (
	"sync"
	"time"
)

// Progress is cosmetic: it advances on a fixed interval while the single
// batch call is outstanding, holds at the ceiling, and only reaches 100 when
// the call actually succeeds.
const (
	progressPeriod  = 250 * time.Millisecond
	progressStep    = 3
	progressCeiling = 90
)

type progressTicker struct {
	mu      sync.Mutex
	value   int
	stopped bool
	stop    chan struct{}
}

// startProgress launches the ticker goroutine. The caller must eventually
// call Stop or Finish; that is the one resource-leak hazard in the wizard.
func startProgress() *progressTicker {
	t := &progressTicker{stop: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(progressPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				t.mu.Lock()
				// A tick can already be in flight when Stop runs; the flag
				// keeps it from advancing the value after the fact
				if !t.stopped && t.value < progressCeiling {
					t.value += progressStep
					if t.value > progressCeiling {
						t.value = progressCeiling
					}
				}
				t.mu.Unlock()
			}
		}
	}()

	return t
}

// Value returns the current percentage.
func (t *progressTicker) Value() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// Stop halts the ticker without touching the value. Idempotent.
func (t *progressTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.stopped = true
		close(t.stop)
	}
}

// Finish stops the ticker and forces the value to 100. Called only on a
// successful submission.
func (t *progressTicker) Finish() {
	t.Stop()
	t.mu.Lock()
	t.value = 100
	t.mu.Unlock()
}
