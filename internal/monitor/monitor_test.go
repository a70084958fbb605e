package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/config"
	"github.com/cascade-rentals/opsdash/internal/model"
)

type stubEngine struct {
	calls atomic.Int64
	err   error
}

func (s *stubEngine) Comprehensive(ctx context.Context, scope model.Scope) (*model.ComprehensiveReport, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &model.ComprehensiveReport{
		Period:      scope,
		Domains:     map[model.Domain]model.DomainReport{},
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	engine := &stubEngine{}
	checker := NewChecker(engine, config.MonitorConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
		MinHealthScore:      60,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	// Let it tick once then cancel.
	time.Sleep(1100 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Good — Run returned.
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}

	assert.GreaterOrEqual(t, engine.calls.Load(), int64(1))
}

func TestChecker_DefaultInterval(t *testing.T) {
	// Zero interval should default to 5 minutes.
	checker := NewChecker(&stubEngine{}, config.MonitorConfig{
		CheckIntervalSecs: 0,
	})
	assert.NotNil(t, checker)

	// Start and immediately cancel to verify it doesn't panic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_EngineFailureDoesNotStopLoop(t *testing.T) {
	engine := &stubEngine{err: assert.AnError}
	checker := NewChecker(engine, config.MonitorConfig{CheckIntervalSecs: 60})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	checker.check(ctx, zap.NewNop())
	checker.check(ctx, zap.NewNop())
	assert.Equal(t, int64(2), engine.calls.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_ScopeWindow(t *testing.T) {
	checker := NewChecker(&stubEngine{}, config.MonitorConfig{
		LookbackWindowHours: 48,
		Location:            "PDX",
	})
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	checker.now = func() time.Time { return fixed }

	scope := checker.scope()
	assert.Equal(t, fixed, scope.End)
	assert.Equal(t, fixed.Add(-48*time.Hour), scope.Start)
	assert.Equal(t, "PDX", scope.LocationCode)

	// Zero lookback defaults to a trailing week.
	checker.cfg.LookbackWindowHours = 0
	scope = checker.scope()
	assert.Equal(t, fixed.Add(-7*24*time.Hour), scope.Start)
}
