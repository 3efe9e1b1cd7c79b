package httpapi

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// CoreStatus describes one logical CPU core.
type CoreStatus struct {
	Mhz        float64 `json:"mhz"`
	CPUPercent float64 `json:"cpu_percent"`
}

// MemoryStatus mirrors the host's virtual memory figures.
type MemoryStatus struct {
	Total     uint64  `json:"total"`
	Available uint64  `json:"available"`
	Percent   float64 `json:"percent"`
	Used      uint64  `json:"used"`
	Free      uint64  `json:"free"`
	Active    uint64  `json:"active"`
	Inactive  uint64  `json:"inactive"`
	Buffers   uint64  `json:"buffers"`
	Cached    uint64  `json:"cached"`
	Shared    uint64  `json:"shared"`
	Slab      uint64  `json:"slab"`
}

// StatusReport is the full payload served by the status endpoint.
type StatusReport struct {
	NumberOfCores int          `json:"number_of_cores"`
	CPUPercent    float64      `json:"cpu_percent"`
	Cores         []CoreStatus `json:"cores"`
	Memory        MemoryStatus `json:"memory"`
}

// StatusCollector gathers host metrics for the status endpoint.
type StatusCollector interface {
	Collect(ctx context.Context) (*StatusReport, error)
}

// HostCollector reads CPU and memory figures from the local machine.
type HostCollector struct{}

// Collect implements StatusCollector.
func (HostCollector) Collect(ctx context.Context) (*StatusReport, error) {
	//1.- Core inventory and frequencies come from the static CPU info.
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("count cpu cores: %w", err)
	}
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read cpu info: %w", err)
	}
	//2.- Zero-interval sampling compares against the previous call instead of blocking.
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, fmt.Errorf("sample per-core usage: %w", err)
	}
	overall, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("sample cpu usage: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read virtual memory: %w", err)
	}
	report := &StatusReport{
		NumberOfCores: cores,
		Cores: lo.Map(perCore, func(percent float64, index int) CoreStatus {
			status := CoreStatus{CPUPercent: percent}
			if index < len(infos) {
				status.Mhz = infos[index].Mhz
			}
			return status
		}),
		Memory: MemoryStatus{
			Total:     vm.Total,
			Available: vm.Available,
			Percent:   vm.UsedPercent,
			Used:      vm.Used,
			Free:      vm.Free,
			Active:    vm.Active,
			Inactive:  vm.Inactive,
			Buffers:   vm.Buffers,
			Cached:    vm.Cached,
			Shared:    vm.Shared,
			Slab:      vm.Slab,
		},
	}
	if len(overall) > 0 {
		report.CPUPercent = overall[0]
	}
	return report, nil
}
