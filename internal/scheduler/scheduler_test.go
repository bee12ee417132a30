package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

type memStore struct {
	mu   sync.Mutex
	runs []domain.Run
}

func (m *memStore) ListRuns(ctx context.Context, status domain.RunStatus, limit int) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Run
	for _, r := range m.runs {
		if r.Status == status && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ClaimRun(ctx context.Context, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].RunID == runID && m.runs[i].Status == domain.RunStatusQueued {
			m.runs[i].Status = domain.RunStatusRunning
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) finish(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].RunID == runID {
			m.runs[i].Status = domain.RunStatusCompleted
		}
	}
}

type recordingRunner struct {
	store   *memStore
	release chan struct{}

	mu      sync.Mutex
	ran     []string
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (r *recordingRunner) Run(ctx context.Context, runID string) error {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		cur := r.maxSeen.Load()
		if n <= cur || r.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	r.ran = append(r.ran, runID)
	r.mu.Unlock()
	r.store.finish(runID)
	return nil
}

func (r *recordingRunner) done() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.ran...)
	sort.Strings(out)
	return out
}

func queuedStore(n int) *memStore {
	s := &memStore{}
	for i := 0; i < n; i++ {
		s.runs = append(s.runs, domain.Run{RunID: fmt.Sprintf("run_%d", i), Status: domain.RunStatusQueued})
	}
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSchedulerRunsEveryQueuedRunOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := queuedStore(5)
	runner := &recordingRunner{store: store}
	s := New(store, runner, 2, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	waitFor(t, func() bool { return len(runner.done()) == 5 })
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	want := []string{"run_0", "run_1", "run_2", "run_3", "run_4"}
	got := runner.done()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("ran %v, want %v", got, want)
	}
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := queuedStore(4)
	runner := &recordingRunner{store: store, release: make(chan struct{})}
	s := New(store, runner, 2, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	waitFor(t, func() bool { return runner.active.Load() == 2 })
	// a few more sweeps must not start a third run
	time.Sleep(30 * time.Millisecond)
	if got := runner.maxSeen.Load(); got != 2 {
		t.Fatalf("max concurrent runs = %d, want 2", got)
	}

	close(runner.release)
	waitFor(t, func() bool { return len(runner.done()) == 4 })
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestSchedulerWaitsForInFlightRunsOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := queuedStore(1)
	runner := &recordingRunner{store: store, release: make(chan struct{})}
	s := New(store, runner, 1, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	waitFor(t, func() bool { return runner.active.Load() == 1 })
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if got := runner.done(); len(got) != 1 {
		t.Fatalf("in-flight run not awaited: %v", got)
	}
}
