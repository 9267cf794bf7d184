package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type checkableFunc func(ctx context.Context) error

func (f checkableFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestRegistryAllHealthy(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewPingChecker("liveness"))
	registry.Register(NewAdapterChecker("backend", checkableFunc(func(ctx context.Context) error {
		return nil
	}), time.Second))

	result := registry.Check(context.Background())
	if !result.IsHealthy() {
		t.Fatalf("expected healthy aggregate, got %s", result.Status)
	}
	if len(result.Checks) != 2 {
		t.Fatalf("expected 2 check results, got %d", len(result.Checks))
	}
}

func TestRegistryUnhealthyPropagates(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewPingChecker("liveness"))
	registry.Register(NewAdapterChecker("backend", checkableFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	}), time.Second))

	result := registry.Check(context.Background())
	if result.IsHealthy() {
		t.Fatal("expected unhealthy aggregate")
	}
}

func TestRegistryCheckOne(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewPingChecker("liveness"))

	result, err := registry.CheckOne(context.Background(), "liveness")
	if err != nil {
		t.Fatalf("CheckOne() error = %v", err)
	}
	if result.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", result.Status)
	}

	if _, err := registry.CheckOne(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown check")
	}
}

func TestRegistryUnregister(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewPingChecker("liveness"))
	registry.Unregister("liveness")

	if names := registry.List(); len(names) != 0 {
		t.Fatalf("expected empty registry, got %v", names)
	}
}

func TestAdapterCheckerTimeout(t *testing.T) {
	checker := NewAdapterChecker("slow", checkableFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), 10*time.Millisecond)

	result := checker.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy on timeout, got %s", result.Status)
	}
}
