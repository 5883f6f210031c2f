// Package topology discovers CPU layout and builds the worker affinity
// ordering the engine uses to pin workers to cores/sockets.
package topology

import (
	"sort"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/janaflow/core/internal/config"
)

// Slot describes one logical CPU's placement in the host's topology.
type Slot struct {
	CPU    int
	Core   int
	Socket int
	// Numa defaults to Socket when the OS does not expose NUMA domains
	// separately from sockets (gopsutil does not report NUMA nodes on
	// most platforms).
	Numa int
}

// Discover reads the host's CPU topology via gopsutil. It never returns
// zero slots: if the underlying platform call fails, a single slot
// (cpu=0/core=0/socket=0) is returned so callers can still run with
// NWorkers=1.
func Discover() ([]Slot, error) {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return []Slot{{CPU: 0, Core: 0, Socket: 0, Numa: 0}}, nil //nolint:nilerr
	}

	slots := make([]Slot, 0, len(infos))
	for i, info := range infos {
		core := 0
		if n, convErr := physicalIDToInt(info.CoreID); convErr == nil {
			core = n
		}
		socket := 0
		if n, convErr := physicalIDToInt(info.PhysicalID); convErr == nil {
			socket = n
		}
		slots = append(slots, Slot{CPU: i, Core: core, Socket: socket, Numa: socket})
	}
	return slots, nil
}

// Order returns slots arranged for the given affinity/locality pair:
//   - ComputeBound sorts by CPU index, giving workers tight-packed,
//     low-migration placement.
//   - MemoryBound fills one NUMA node before crossing into the next,
//     keeping a worker's memory traffic local as long as possible.
//   - None/Global returns the slots in discovery order.
func Order(slots []Slot, affinity config.Affinity, locality config.Locality) []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)

	switch affinity {
	case config.AffinityComputeBound:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CPU < out[j].CPU })
	case config.AffinityMemoryBound:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Numa != out[j].Numa {
				return out[i].Numa < out[j].Numa
			}
			return out[i].CPU < out[j].CPU
		})
	case config.AffinityNone:
		// discovery order
	}

	if locality == config.LocalitySocket {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Socket != out[j].Socket {
				return out[i].Socket < out[j].Socket
			}
			return out[i].CPU < out[j].CPU
		})
	}
	return out
}

func physicalIDToInt(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, errEmptyPhysicalID
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errEmptyPhysicalID
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

type topologyError string

func (e topologyError) Error() string { return string(e) }

const errEmptyPhysicalID = topologyError("topology: empty physical id")
