package sendqueue_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kodeflow-oss/wsrpc/internal/sendqueue"
)

func TestEnqueueOrdersStrictly(t *testing.T) {
	t.Parallel()

	q := sendqueue.New()

	var mu sync.Mutex
	var order []int

	const n = 50
	results := make([]<-chan error, n)
	for i := 0; i < n; i++ {
		i := i
		results[i] = q.Enqueue(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}

	for i := 0; i < n; i++ {
		select {
		case err := <-results[i]:
			if err != nil {
				t.Fatalf("action %d: unexpected error %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("action %d: timed out waiting for result", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("order[%d] = %d, want %d", i, got, i)
		}
	}
}

func TestEnqueuePropagatesActionError(t *testing.T) {
	t.Parallel()

	q := sendqueue.New()
	wantErr := errors.New("write failed")

	result := <-q.Enqueue(func() error { return wantErr })
	if !errors.Is(result, wantErr) {
		t.Errorf("result = %v, want %v", result, wantErr)
	}
}

func TestEnqueueAfterCloseReturnsErrClosed(t *testing.T) {
	t.Parallel()

	q := sendqueue.New()
	q.Close()

	result := <-q.Enqueue(func() error {
		t.Fatal("action should not run after Close")
		return nil
	})

	if !errors.Is(result, sendqueue.ErrClosed) {
		t.Errorf("result = %v, want ErrClosed", result)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	q := sendqueue.New()
	q.Close()
	q.Close() // must not panic
}
