package watch

import (
	"slices"
	"sync"
	"time"
)

// MaxPendingDirs bounds the pending set; reaching it flushes at once.
const MaxPendingDirs = 1000

// Debouncer collects changed directories and hands them to a callback as one
// sorted batch after a quiet window. A branch switch touching hundreds of
// grammars becomes a single rebuild.
type Debouncer struct {
	window  time.Duration
	onFlush func(dirs []string)

	mu     sync.Mutex
	dirs   map[string]struct{}
	timer  *time.Timer
	closed bool
}

// NewDebouncer returns a Debouncer that calls onFlush once window has passed
// since the last Add.
func NewDebouncer(window time.Duration, onFlush func(dirs []string)) *Debouncer {
	return &Debouncer{
		window:  window,
		onFlush: onFlush,
		dirs:    make(map[string]struct{}),
	}
}

// Add marks dir as changed and restarts the quiet window.
func (d *Debouncer) Add(dir string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.dirs[dir] = struct{}{}
	if len(d.dirs) >= MaxPendingDirs {
		batch := d.take()
		d.mu.Unlock()
		d.deliver(batch)
		return
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.FlushNow)
	} else {
		// A timer that fired concurrently may run once more and find
		// nothing or this newer batch.
		d.timer.Reset(d.window)
	}
	d.mu.Unlock()
}

// FlushNow delivers the pending batch without waiting.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	batch := d.take()
	d.mu.Unlock()
	d.deliver(batch)
}

// Stop delivers the pending batch and disables the Debouncer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.closed = true
	batch := d.take()
	d.mu.Unlock()
	d.deliver(batch)
}

// PendingCount returns how many directories wait for the next batch.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dirs)
}

// take empties the pending set and returns it sorted. d.mu must be held.
func (d *Debouncer) take() []string {
	if d.timer != nil {
		d.timer.Stop()
	}
	batch := make([]string, 0, len(d.dirs))
	for dir := range d.dirs {
		batch = append(batch, dir)
	}
	clear(d.dirs)
	slices.Sort(batch)
	return batch
}

// deliver calls onFlush without d.mu held so the callback may call Add.
func (d *Debouncer) deliver(batch []string) {
	if len(batch) > 0 && d.onFlush != nil {
		d.onFlush(batch)
	}
}
