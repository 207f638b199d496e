package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyExports is returned when no export slot frees up within the
// limiter's wait budget.
var ErrTooManyExports = errors.New("too many concurrent exports")

// ExportLimiter bounds how many reports are rendered at once. XLSX files
// are built in memory, so a burst of large exports can exhaust the heap.
type ExportLimiter struct {
	sem     *semaphore.Weighted
	max     int64
	maxWait time.Duration
	active  atomic.Int64
}

// NewExportLimiter allows up to maxConcurrent renders. A caller waits at
// most maxWait for a slot.
func NewExportLimiter(maxConcurrent int, maxWait time.Duration) *ExportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &ExportLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     int64(maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. It returns ErrTooManyExports when maxWait
// elapses first, or the context error when ctx ends.
func (l *ExportLimiter) Acquire(ctx context.Context) error {
	if l.sem.TryAcquire(1) {
		l.active.Add(1)
		return nil
	}
	if l.maxWait <= 0 {
		return ErrTooManyExports
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyExports
	}
	l.active.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (l *ExportLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Active returns the number of renders in progress.
func (l *ExportLimiter) Active() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the configured slot count.
func (l *ExportLimiter) MaxConcurrent() int {
	return int(l.max)
}

// ExportStatus is a point-in-time view of the export slots.
type ExportStatus struct {
	Active        int  `json:"active"`
	MaxConcurrent int  `json:"max_concurrent"`
	Limited       bool `json:"limited"`
}

// Status returns the current slot usage.
func (l *ExportLimiter) Status() ExportStatus {
	return ExportStatus{Active: l.Active(), MaxConcurrent: l.MaxConcurrent(), Limited: true}
}

// WaitForDrain blocks until no render is in progress or ctx ends. Used on
// shutdown so downloads are not cut mid-file.
func (l *ExportLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, l.max); err != nil {
		return err
	}
	l.sem.Release(l.max)
	return nil
}
