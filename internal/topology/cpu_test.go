package topology

import (
	"testing"

	"github.com/janaflow/core/internal/config"
)

func TestDiscoverNeverEmpty(t *testing.T) {
	slots, err := Discover()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected at least one CPU slot")
	}
}

func TestOrderMemoryBoundGroupsByNuma(t *testing.T) {
	slots := []Slot{
		{CPU: 0, Core: 0, Socket: 0, Numa: 0},
		{CPU: 1, Core: 1, Socket: 1, Numa: 1},
		{CPU: 2, Core: 2, Socket: 0, Numa: 0},
	}
	ordered := Order(slots, config.AffinityMemoryBound, config.LocalityGlobal)
	if ordered[0].Numa != 0 || ordered[1].Numa != 0 || ordered[2].Numa != 1 {
		t.Fatalf("expected numa-0 slots grouped first, got %+v", ordered)
	}
}

func TestOrderComputeBoundSortsByCPU(t *testing.T) {
	slots := []Slot{
		{CPU: 2, Core: 2, Socket: 0, Numa: 0},
		{CPU: 0, Core: 0, Socket: 0, Numa: 0},
		{CPU: 1, Core: 1, Socket: 0, Numa: 0},
	}
	ordered := Order(slots, config.AffinityComputeBound, config.LocalityGlobal)
	for i, s := range ordered {
		if s.CPU != i {
			t.Fatalf("expected CPU order 0,1,2, got %+v", ordered)
		}
	}
}
