package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/licenseiq/licenseiq/internal/types"
)

// mockStatsStore implements StatsStore for testing
type mockStatsStore struct {
	mu    sync.Mutex
	calls int
	stats *types.StoreStats
	err   error
}

func (m *mockStatsStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

func (m *mockStatsStore) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("read gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestStatsWorker_PublishesImmediately(t *testing.T) {
	store := &mockStatsStore{stats: &types.StoreStats{RuleCount: 7, PendingRuleCount: 3, ConfirmedTermsCount: 2}}
	worker := NewStatsWorker(store, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for store.getCalls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if store.getCalls() != 1 {
		t.Fatalf("GetStats calls = %d, want 1", store.getCalls())
	}
	if got := gaugeValue(t, rulesGauge); got != 7 {
		t.Errorf("rules gauge = %v, want 7", got)
	}
	if got := gaugeValue(t, pendingRulesGauge); got != 3 {
		t.Errorf("pending rules gauge = %v, want 3", got)
	}
	if got := gaugeValue(t, confirmedTermsGauge); got != 2 {
		t.Errorf("confirmed terms gauge = %v, want 2", got)
	}
}

func TestStatsWorker_RunsOnSchedule(t *testing.T) {
	store := &mockStatsStore{stats: &types.StoreStats{}}
	worker := NewStatsWorker(store, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	time.Sleep(110 * time.Millisecond)
	cancel()

	// One immediate publish plus at least two ticks
	if calls := store.getCalls(); calls < 3 {
		t.Errorf("GetStats calls = %d, want at least 3", calls)
	}
}

func TestStatsWorker_ContinuesAfterError(t *testing.T) {
	store := &mockStatsStore{err: errors.New("database is locked")}
	worker := NewStatsWorker(store, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	time.Sleep(70 * time.Millisecond)
	cancel()

	if calls := store.getCalls(); calls < 2 {
		t.Errorf("GetStats calls = %d, want worker to keep polling after errors", calls)
	}
}

func TestStatsWorker_StopsOnCancel(t *testing.T) {
	store := &mockStatsStore{stats: &types.StoreStats{}}
	worker := NewStatsWorker(store, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
