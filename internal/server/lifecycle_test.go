package server

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubService struct {
	started atomic.Bool
	stopped atomic.Bool
	stopFn  func()
}

func (m *stubService) Start() error {
	m.started.Store(true)
	for !m.stopped.Load() {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (m *stubService) Stop() {
	if m.stopFn != nil {
		m.stopFn()
	}
	m.stopped.Store(true)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestLifecycleStartsAndStopsServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	relay := &stubService{}
	console := &stubService{}
	lc.Add("relay", relay)
	lc.Add("console", console)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	waitFor(t, func() bool { return relay.started.Load() && console.started.Load() },
		"services did not start in time")

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, relay.stopped.Load())
	assert.True(t, console.stopped.Load())
}

func TestLifecycleStopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	relay := &stubService{stopFn: record("relay")}
	console := &stubService{stopFn: record("console")}
	lc.Add("relay", relay)
	lc.Add("console", console)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	waitFor(t, func() bool { return console.started.Load() }, "services did not start in time")
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"console", "relay"}, order,
		"later services must stop before earlier ones")
}

func TestLifecycleAbandonsWedgedStop(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	lc.stopTimeout = 50 * time.Millisecond

	wedged := &stubService{stopFn: func() { time.Sleep(10 * time.Second) }}
	healthy := &stubService{}
	lc.Add("wedged", wedged)
	lc.Add("healthy", healthy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	waitFor(t, func() bool { return wedged.started.Load() && healthy.started.Load() },
		"services did not start in time")
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("a wedged Stop must not hang the whole teardown")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	require.NoError(t, svc.Start())
	assert.True(t, started)

	svc.Stop()
	assert.True(t, stopped)
}
