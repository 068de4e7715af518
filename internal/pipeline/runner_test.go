package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunLimitedPreservesSubmissionOrder(t *testing.T) {
	// Later operations finish first; results must still come back in
	// submission order.
	delays := []time.Duration{50, 40, 30, 5, 10}
	ops := make([]func(context.Context) (int, error), len(delays))
	for i, d := range delays {
		i, d := i, d
		ops[i] = func(context.Context) (int, error) {
			time.Sleep(d * time.Millisecond)
			return i, nil
		}
	}

	got, err := RunLimited(context.Background(), 2, ops)
	if err != nil {
		t.Fatalf("RunLimited: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("result %d = %d, want %d (full: %v)", i, v, i, got)
		}
	}
}

func TestRunLimitedBoundsParallelism(t *testing.T) {
	var inFlight, peak int32
	var mu sync.Mutex

	ops := make([]func(context.Context) (struct{}, error), 8)
	for i := range ops {
		ops[i] = func(context.Context) (struct{}, error) {
			cur := atomic.AddInt32(&inFlight, 1)
			mu.Lock()
			if cur > peak {
				peak = cur
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return struct{}{}, nil
		}
	}

	if _, err := RunLimited(context.Background(), 3, ops); err != nil {
		t.Fatalf("RunLimited: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if peak > 3 {
		t.Fatalf("peak in-flight %d exceeds limit 3", peak)
	}
}

func TestRunLimitedFirstErrorWins(t *testing.T) {
	boom := errors.New("boom")
	ops := []func(context.Context) (int, error){
		func(context.Context) (int, error) { return 1, nil },
		func(context.Context) (int, error) { return 0, boom },
		func(context.Context) (int, error) {
			time.Sleep(10 * time.Millisecond)
			return 3, nil
		},
	}

	got, err := RunLimited(context.Background(), 2, ops)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if got != nil {
		t.Fatalf("expected no partial results, got %v", got)
	}
}

func TestRunLimitedUnbounded(t *testing.T) {
	ops := make([]func(context.Context) (int, error), 4)
	for i := range ops {
		i := i
		ops[i] = func(context.Context) (int, error) { return i * 2, nil }
	}
	got, err := RunLimited(context.Background(), 0, ops)
	if err != nil {
		t.Fatalf("RunLimited: %v", err)
	}
	for i, v := range got {
		if v != i*2 {
			t.Fatalf("result %d = %d, want %d", i, v, i*2)
		}
	}
}

func TestRunLimitedEmpty(t *testing.T) {
	got, err := RunLimited[int](context.Background(), 3, nil)
	if err != nil {
		t.Fatalf("RunLimited: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty results, got %v", got)
	}
}
