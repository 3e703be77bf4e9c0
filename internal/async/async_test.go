package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWaitReturnsResult(t *testing.T) {
	w := NewWriter(2, 4, nil)
	defer w.Close()

	f := Submit(context.Background(), w, "sale.create", func(context.Context) (int, error) {
		return 42, nil
	})
	got, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	status, ok := w.Status(f.ID())
	if !ok || status.State != StateDone {
		t.Fatalf("expected done status, got %+v", status)
	}
}

func TestDetachedFailureReachesHandler(t *testing.T) {
	var mu sync.Mutex
	var reported []Status
	handled := make(chan struct{}, 1)
	w := NewWriter(1, 1, func(_ context.Context, status Status) {
		mu.Lock()
		reported = append(reported, status)
		mu.Unlock()
		handled <- struct{}{}
	})
	defer w.Close()

	release := make(chan struct{})
	f := Submit(context.Background(), w, "sale.create", func(context.Context) (string, error) {
		<-release
		return "", errors.New("disk full")
	})
	f.Detach()
	close(release)

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatalf("error handler was not called")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 1 || reported[0].ID != f.ID() || reported[0].Err == nil {
		t.Fatalf("unexpected reports: %+v", reported)
	}
	status, _ := w.Status(f.ID())
	if status.State != StateFailed {
		t.Fatalf("expected failed status, got %s", status.State)
	}
}

func TestDetachAfterFailureStillReports(t *testing.T) {
	handled := make(chan Status, 2)
	w := NewWriter(1, 1, func(_ context.Context, status Status) { handled <- status })
	defer w.Close()

	f := Submit(context.Background(), w, "debt.create", func(context.Context) (int, error) {
		return 0, errors.New("constraint")
	})
	if _, err := f.Wait(context.Background()); err == nil {
		t.Fatalf("expected failure")
	}
	f.Detach()
	f.Detach()

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatalf("expected report after detach")
	}
	select {
	case extra := <-handled:
		t.Fatalf("failure reported twice: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWaitHonoursContextWithoutCancellingWrite(t *testing.T) {
	w := NewWriter(1, 1, nil)
	release := make(chan struct{})
	finished := make(chan struct{})
	f := Submit(context.Background(), w, "slow", func(ctx context.Context) (bool, error) {
		<-release
		close(finished)
		return true, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	close(release)
	<-finished
	got, err := f.Wait(context.Background())
	if err != nil || !got {
		t.Fatalf("expected write to complete, got %v %v", got, err)
	}
	w.Close()
}

func TestSubmitAfterCloseFails(t *testing.T) {
	w := NewWriter(1, 0, nil)
	w.Close()
	f := Submit(context.Background(), w, "late", func(context.Context) (int, error) { return 1, nil })
	if _, err := f.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseDrainsQueuedWrites(t *testing.T) {
	w := NewWriter(1, 0, nil)
	var mu sync.Mutex
	done := 0
	futures := make([]*Future[int], 0, 5)
	for i := 0; i < 5; i++ {
		futures = append(futures, Submit(context.Background(), w, "bulk", func(context.Context) (int, error) {
			mu.Lock()
			done++
			mu.Unlock()
			return 1, nil
		}))
	}
	w.Close()
	for _, f := range futures {
		if _, err := f.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if done != 5 {
		t.Fatalf("expected 5 writes, got %d", done)
	}
}

func TestDetachedWriteSurvivesCancelledRequestWhileQueueIsFull(t *testing.T) {
	var mu sync.Mutex
	var reported []Status
	w := NewWriter(1, 0, func(_ context.Context, status Status) {
		mu.Lock()
		reported = append(reported, status)
		mu.Unlock()
	})

	release := make(chan struct{})
	started := make(chan struct{})
	first := Submit(context.Background(), w, "sale.create", func(context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	<-started

	reqCtx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	second := Submit(reqCtx, w, "sale.create", func(ctx context.Context) (int, error) {
		close(ran)
		return 2, ctx.Err()
	})
	second.Detach()
	cancel()

	close(release)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("detached write never ran")
	}
	got, err := second.Wait(context.Background())
	if err != nil || got != 2 {
		t.Fatalf("expected detached write to succeed, got %d %v", got, err)
	}
	if _, err := first.Wait(context.Background()); err != nil {
		t.Fatalf("first write: %v", err)
	}
	w.Close()

	status, ok := w.Status(second.ID())
	if !ok || status.State != StateDone {
		t.Fatalf("expected done status, got %+v", status)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 0 {
		t.Fatalf("unexpected failure reports: %+v", reported)
	}
}
