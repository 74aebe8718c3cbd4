package shared

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.StoreDriver != "redis" || c.HTTPAddr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.ReconcileTimeout != 10*time.Second || c.UpcomingWindow != 7*24*time.Hour {
		t.Fatalf("unexpected durations: %+v", c)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HOTELOPS_STORE_DRIVER", "Memory")
	t.Setenv("HOTELOPS_RECONCILE_TIMEOUT", "250ms")
	t.Setenv("HOTELOPS_MUTATION_RPS", "20")
	t.Setenv("HOTELOPS_REVENUE_POLICY", "realized")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.StoreDriver != "memory" || c.ReconcileTimeout != 250*time.Millisecond || c.MutationRPS != 20 || c.RevenuePolicy != "realized" {
		t.Fatalf("overrides not applied: %+v", c)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("HOTELOPS_STORE_DRIVER", "cassandra")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}
