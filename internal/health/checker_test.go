package health

import (
	"context"
	"testing"
	"time"
)

type staticChecker struct {
	result CheckResult
}

func (c staticChecker) Check(context.Context) CheckResult { return c.result }

func TestProbeRunnerReady(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		runner := NewProbeRunner(200*time.Millisecond, 0,
			staticChecker{result: CheckResult{Name: "db", Healthy: true}},
			staticChecker{result: CheckResult{Name: "redis", Healthy: true}},
		)
		ready, results := runner.Ready(t.Context())
		if !ready {
			t.Fatal("expected ready")
		}
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2", len(results))
		}
	})

	t.Run("one dependency down", func(t *testing.T) {
		runner := NewProbeRunner(200*time.Millisecond, 0,
			staticChecker{result: CheckResult{Name: "db", Healthy: true}},
			staticChecker{result: CheckResult{Name: "redis", Healthy: false, Error: "connection refused"}},
		)
		ready, results := runner.Ready(t.Context())
		if ready {
			t.Fatal("expected unready")
		}
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2", len(results))
		}
	})

	t.Run("nil runner is always ready", func(t *testing.T) {
		var runner *ProbeRunner
		ready, results := runner.Ready(t.Context())
		if !ready || results != nil {
			t.Fatalf("nil runner: ready=%v results=%v", ready, results)
		}
	})
}

func TestProbeRunnerStartupGrace(t *testing.T) {
	runner := NewProbeRunner(200*time.Millisecond, 2*time.Second,
		staticChecker{result: CheckResult{Name: "db", Healthy: true}},
	)
	ready, results := runner.Ready(t.Context())
	if ready {
		t.Fatal("expected unready during grace period")
	}
	if len(results) != 1 || results[0].Name != "startup_grace" {
		t.Fatalf("unexpected grace results: %+v", results)
	}
}
