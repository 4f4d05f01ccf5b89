package govern

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGovernor_Acquire_BoundsConcurrency(t *testing.T) {
	g := New(4)
	var current, max atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer release()

			n := current.Add(1)
			for {
				m := max.Load()
				if n <= m || max.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	if got := max.Load(); got > 4 {
		t.Fatalf("observed %d concurrent permits, want <= 4", got)
	}
}

func TestGovernor_Fail_ReleasesWaiters(t *testing.T) {
	g := New(1)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	waiting := make(chan error, 1)
	go func() {
		_, err := g.Acquire(context.Background())
		waiting <- err
	}()

	time.Sleep(10 * time.Millisecond)
	g.Fail("boom")

	select {
	case err := <-waiting:
		if err == nil {
			t.Fatal("expected waiter to observe failure, got nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not released after Fail")
	}

	release()
	if !g.Failed() {
		t.Fatal("Failed() = false after Fail")
	}
}

func TestGovernor_Acquire_AfterFail(t *testing.T) {
	g := New(2)
	g.Fail("boom")
	if _, err := g.Acquire(context.Background()); err == nil {
		t.Fatal("expected Acquire to fail immediately once latch has tripped")
	}
}
