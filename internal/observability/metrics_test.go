package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegister_OnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	Holds.WithLabelValues("created").Inc()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "scheduler_holds_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("scheduler_holds_total not registered")
	}
}
