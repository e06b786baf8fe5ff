package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnqueue_RequiresHandler(t *testing.T) {
	q := New(Opts{})
	err := q.Enqueue("nope", 1)
	if err == nil || !strings.Contains(err.Error(), "no handler registered") {
		t.Errorf("err = %v", err)
	}
}

func TestEnqueue_ClosedQueue(t *testing.T) {
	q := New(Opts{})
	q.Register("job", func(ctx context.Context, taskID uint) error { return nil })
	q.Close()
	if err := q.Enqueue("job", 1); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Errorf("err = %v", err)
	}
}

func TestEnqueue_Saturation(t *testing.T) {
	q := New(Opts{Buffer: 1})
	q.Register("job", func(ctx context.Context, taskID uint) error { return nil })
	// Workers never started, so the single buffer slot fills and stays full.
	if err := q.Enqueue("job", 1); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.Enqueue("job", 2); err == nil || !strings.Contains(err.Error(), "full") {
		t.Errorf("err = %v", err)
	}
}

func TestRun_DeliversToHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []uint
	q := New(Opts{Workers: 2})
	q.Register("job", func(ctx context.Context, taskID uint) error {
		mu.Lock()
		got = append(got, taskID)
		mu.Unlock()
		return nil
	})
	q.Start(ctx)

	for _, id := range []uint{10, 11, 12} {
		if err := q.Enqueue("job", id); err != nil {
			t.Fatal(err)
		}
	}
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Errorf("delivered %d jobs, want 3: %v", len(got), got)
	}
	seen := map[uint]bool{}
	for _, id := range got {
		seen[id] = true
	}
	for _, id := range []uint{10, 11, 12} {
		if !seen[id] {
			t.Errorf("task %d never delivered", id)
		}
	}
}

func TestRun_RetriesUntilSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	q := New(Opts{Workers: 1, MaxAttempts: 3, Backoff: time.Millisecond})
	q.Register("job", func(ctx context.Context, taskID uint) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	q.Start(ctx)

	if err := q.Enqueue("job", 1); err != nil {
		t.Fatal(err)
	}
	q.Wait()

	if n := attempts.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestRun_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	q := New(Opts{Workers: 1, MaxAttempts: 2, Backoff: time.Millisecond})
	q.Register("job", func(ctx context.Context, taskID uint) error {
		attempts.Add(1)
		return errors.New("permanent")
	})
	q.Start(ctx)

	if err := q.Enqueue("job", 1); err != nil {
		t.Fatal(err)
	}
	q.Wait()

	if n := attempts.Load(); n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
}

func TestRun_PanicRetriesLikeError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	q := New(Opts{Workers: 1, MaxAttempts: 2, Backoff: time.Millisecond})
	q.Register("job", func(ctx context.Context, taskID uint) error {
		if attempts.Add(1) == 1 {
			panic("handler blew up")
		}
		return nil
	})
	q.Start(ctx)

	if err := q.Enqueue("job", 1); err != nil {
		t.Fatal(err)
	}
	q.Wait()

	if n := attempts.Load(); n != 2 {
		t.Errorf("attempts = %d, want panic attempt plus one retry", n)
	}
}

func TestRun_IndependentHandlers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dispatched, merged atomic.Int32
	q := New(Opts{Workers: 2})
	q.Register(JobDispatch, func(ctx context.Context, taskID uint) error {
		dispatched.Add(1)
		return nil
	})
	q.Register(JobMerge, func(ctx context.Context, taskID uint) error {
		merged.Add(1)
		return nil
	})
	q.Start(ctx)

	if err := q.Enqueue(JobDispatch, 1); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(JobMerge, 1); err != nil {
		t.Fatal(err)
	}
	q.Wait()

	if dispatched.Load() != 1 || merged.Load() != 1 {
		t.Errorf("dispatched = %d, merged = %d", dispatched.Load(), merged.Load())
	}
}
