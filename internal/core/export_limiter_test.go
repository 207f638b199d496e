package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExportLimiter_AcquireRelease(t *testing.T) {
	l := NewExportLimiter(2, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i+1, err)
		}
	}
	if got := l.Active(); got != 2 {
		t.Errorf("Active() = %d, want 2", got)
	}

	l.Release()
	l.Release()
	if got := l.Active(); got != 0 {
		t.Errorf("Active() after release = %d, want 0", got)
	}
}

func TestExportLimiter_TimesOutWhenFull(t *testing.T) {
	l := NewExportLimiter(1, 50*time.Millisecond)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	start := time.Now()
	err := l.Acquire(ctx)
	if !errors.Is(err, ErrTooManyExports) {
		t.Fatalf("Acquire = %v, want ErrTooManyExports", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %v, want it to wait", elapsed)
	}
}

func TestExportLimiter_ContextCanceled(t *testing.T) {
	l := NewExportLimiter(1, time.Minute)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire = %v, want context.Canceled", err)
	}
}

func TestExportLimiter_WaitForDrain(t *testing.T) {
	l := NewExportLimiter(2, time.Second)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.WaitForDrain(ctx); err != nil {
		t.Fatalf("WaitForDrain = %v", err)
	}
	if l.Active() != 0 {
		t.Errorf("Active() = %d after drain", l.Active())
	}
}

func TestMapError_TooManyExports(t *testing.T) {
	if got := MapError(ErrTooManyExports).Code; got != "EXP002" {
		t.Errorf("code = %s, want EXP002", got)
	}
}
