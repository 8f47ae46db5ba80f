package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const mib = 1024 * 1024

// Snapshot is a raw reading of host metrics, in bytes and percent.
type Snapshot struct {
	CPUPercent    float64
	MemoryTotal   uint64
	MemoryUsed    uint64
	MemoryPercent float64
	// HasSwap is false when swap could not be read.
	HasSwap     bool
	SwapTotal   uint64
	SwapUsed    uint64
	SwapPercent float64
}

// Sampler reads a Snapshot.
type Sampler interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// HostSampler reads the local host through gopsutil.
type HostSampler struct {
	// Interval is the CPU measurement window. Defaults to one second.
	Interval time.Duration
}

func (s HostSampler) Sample(ctx context.Context) (Snapshot, error) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}

	percents, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read memory usage: %w", err)
	}

	snap := Snapshot{
		MemoryTotal:   vm.Total,
		MemoryUsed:    vm.Used,
		MemoryPercent: vm.UsedPercent,
	}
	if len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		snap.HasSwap = true
		snap.SwapTotal = sw.Total
		snap.SwapUsed = sw.Used
		snap.SwapPercent = sw.UsedPercent
	}
	return snap, nil
}

// SystemInfo holds basic system metrics.
type SystemInfo struct {
	CPUPercent    float64 `json:"cpu_percent" jsonschema:"description=The current CPU utilization percentage"`
	MemoryTotalMB int64   `json:"memory_total_mb" jsonschema:"description=Total physical memory in megabytes"`
	MemoryUsedMB  int64   `json:"memory_used_mb" jsonschema:"description=Amount of memory currently used in megabytes"`
}

// ExtendedSystemInfo adds memory and swap percentages. Swap fields are nil
// when swap could not be read.
type ExtendedSystemInfo struct {
	SystemInfo
	MemoryPercent float64  `json:"memory_percent"`
	SwapTotalMB   *int64   `json:"swap_total_mb,omitempty"`
	SwapUsedMB    *int64   `json:"swap_used_mb,omitempty"`
	SwapPercent   *float64 `json:"swap_percent,omitempty"`
}

// Validate checks the invariants of the payload.
func (s SystemInfo) Validate() error {
	if s.CPUPercent < 0 || s.CPUPercent > 100 {
		return fmt.Errorf("cpu_percent %v out of range [0, 100]", s.CPUPercent)
	}
	if s.MemoryTotalMB < 0 || s.MemoryUsedMB < 0 {
		return fmt.Errorf("memory values must be non-negative")
	}
	return nil
}

// Validate checks the invariants of the payload.
func (s ExtendedSystemInfo) Validate() error {
	if err := s.SystemInfo.Validate(); err != nil {
		return err
	}
	if s.MemoryPercent < 0 || s.MemoryPercent > 100 {
		return fmt.Errorf("memory_percent %v out of range [0, 100]", s.MemoryPercent)
	}
	if s.SwapPercent != nil && (*s.SwapPercent < 0 || *s.SwapPercent > 100) {
		return fmt.Errorf("swap_percent %v out of range [0, 100]", *s.SwapPercent)
	}
	return nil
}

// NewSystemInfo converts a snapshot: bytes are floored to MiB and
// percentages clamped to [0, 100].
func NewSystemInfo(snap Snapshot) SystemInfo {
	return SystemInfo{
		CPUPercent:    clampPercent(snap.CPUPercent),
		MemoryTotalMB: toMiB(snap.MemoryTotal),
		MemoryUsedMB:  toMiB(snap.MemoryUsed),
	}
}

// NewExtendedSystemInfo converts a snapshot like NewSystemInfo and adds the
// memory and swap percentages.
func NewExtendedSystemInfo(snap Snapshot) ExtendedSystemInfo {
	info := ExtendedSystemInfo{
		SystemInfo:    NewSystemInfo(snap),
		MemoryPercent: clampPercent(snap.MemoryPercent),
	}
	if snap.HasSwap {
		total, used, pct := toMiB(snap.SwapTotal), toMiB(snap.SwapUsed), clampPercent(snap.SwapPercent)
		info.SwapTotalMB = &total
		info.SwapUsedMB = &used
		info.SwapPercent = &pct
	}
	return info
}

func toMiB(b uint64) int64 {
	return int64(b / mib)
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0 || math.IsNaN(p):
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// SystemInfoName is the name of the system metrics tools.
const SystemInfoName = "get_system_info"

// NewSystemInfoTool returns get_system_info, producing a validated SystemInfo.
func NewSystemInfoTool(sampler Sampler) *FuncTool {
	if sampler == nil {
		sampler = HostSampler{}
	}
	return New(
		SystemInfoName,
		"Collects basic system metrics. Returns an object with cpu_percent, memory_total_mb and memory_used_mb.",
		Inputs(),
		"object",
		func(ctx context.Context, args map[string]any) (any, error) {
			snap, err := sampler.Sample(ctx)
			if err != nil {
				return nil, err
			}
			info := NewSystemInfo(snap)
			if err := info.Validate(); err != nil {
				return nil, err
			}
			return info, nil
		},
	)
}

// NewExtendedSystemInfoTool returns get_system_info with memory and swap
// percentages in its result.
func NewExtendedSystemInfoTool(sampler Sampler) *FuncTool {
	if sampler == nil {
		sampler = HostSampler{}
	}
	return New(
		SystemInfoName,
		"Collects basic system metrics. Returns an object with cpu_percent, memory_total_mb, memory_used_mb, "+
			"memory_percent, swap_total_mb, swap_used_mb and swap_percent. Sizes are in MiB, rounded down.",
		Inputs(),
		"object",
		func(ctx context.Context, args map[string]any) (any, error) {
			snap, err := sampler.Sample(ctx)
			if err != nil {
				return nil, err
			}
			info := NewExtendedSystemInfo(snap)
			if err := info.Validate(); err != nil {
				return nil, err
			}
			return info, nil
		},
	)
}

// NewSystemInfoStringTool returns system_info_tool, which reports the
// metrics as a sentence.
func NewSystemInfoStringTool(sampler Sampler) *FuncTool {
	inner := NewSystemInfoTool(sampler)
	return New(
		"system_info_tool",
		"Gets system information",
		Inputs(),
		"string",
		func(ctx context.Context, args map[string]any) (any, error) {
			info, err := inner.Forward(ctx, nil)
			if err != nil {
				return nil, err
			}
			data, err := json.Marshal(info)
			if err != nil {
				return nil, err
			}
			return "The system information is: " + string(data), nil
		},
	)
}
