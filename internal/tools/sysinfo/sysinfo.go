// Package sysinfo implements the system information tool.
//
// Collection and rendering are split: Collect takes a best-effort Snapshot of
// the host, and Snapshot.Report renders it. Values the host does not expose are
// reported as "<unknown>" (strings) or zero (sizes) rather than failing the call.
package sysinfo

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"sysutils-mcp/internal/tools"
)

// Name is the tool name.
const Name = "get_system_info"

// Description is advertised to callers.
const Description = "Get a detailed system information report including kernel, cores, memory, and disk usage."

// Report section headers, in output order.
const (
	HeaderReport = "System Information Report"
	HeaderCPU    = "CPU Information"
	HeaderMemory = "Memory Information"
	HeaderDisk   = "Disk Information"
)

const unknown = "<unknown>"

const (
	mb = 1024 * 1024
	gb = 1024 * mb
)

// Request is the (empty) tool input.
type Request struct{}

// Disk describes one mounted disk.
type Disk struct {
	Name       string
	FileSystem string
	Total      uint64
	Available  uint64
}

// Snapshot is a point-in-time view of the host.
type Snapshot struct {
	SystemName    string
	KernelVersion string
	OSVersion     string
	HostName      string
	Cores         int
	TotalMemory   uint64
	UsedMemory    uint64
	TotalSwap     uint64
	UsedSwap      uint64
	Disks         []Disk
}

// Collector gathers snapshots.
type Collector struct {
	logger zerolog.Logger
}

// NewCollector creates a collector
func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger.With().Str("component", "sysinfo").Logger(),
	}
}

// Collect takes a snapshot. It only fails when ctx is done.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		SystemName:    unknown,
		KernelVersion: unknown,
		OSVersion:     unknown,
		HostName:      unknown,
	}

	if info, err := host.InfoWithContext(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Host information unavailable")
	} else {
		snap.SystemName = orUnknown(info.Platform)
		snap.KernelVersion = orUnknown(info.KernelVersion)
		snap.OSVersion = orUnknown(info.PlatformVersion)
		snap.HostName = orUnknown(info.Hostname)
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err != nil {
		c.logger.Debug().Err(err).Msg("CPU count unavailable")
	} else {
		snap.Cores = cores
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Memory statistics unavailable")
	} else {
		snap.TotalMemory = vm.Total
		snap.UsedMemory = usedMemory(vm)
	}

	if swap, err := mem.SwapMemoryWithContext(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Swap statistics unavailable")
	} else {
		snap.TotalSwap = swap.Total
		snap.UsedSwap = swap.Used
	}

	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Disk partitions unavailable")
	}
	for _, p := range partitions {
		d := Disk{Name: p.Device, FileSystem: p.Fstype}
		if usage, err := disk.UsageWithContext(ctx, p.Mountpoint); err != nil {
			c.logger.Debug().Err(err).Str("mountpoint", p.Mountpoint).Msg("Disk usage unavailable")
		} else {
			d.Total = usage.Total
			d.Available = usage.Free
		}
		snap.Disks = append(snap.Disks, d)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

// usedMemory counts everything that is not available to new allocations.
func usedMemory(vm *mem.VirtualMemoryStat) uint64 {
	if vm.Available > vm.Total {
		return 0
	}
	return vm.Total - vm.Available
}

// Run is the tool handler.
func (c *Collector) Run(ctx context.Context, _ Request) (string, error) {
	snap, err := c.Collect(ctx)
	if err != nil {
		return "", err
	}
	return snap.Report(), nil
}

// Report renders the snapshot as text.
func (s *Snapshot) Report() string {
	var b strings.Builder

	section(&b, HeaderReport, "=")
	b.WriteString("\n")
	line(&b, "System Name:", s.SystemName)
	line(&b, "Kernel Version:", s.KernelVersion)
	line(&b, "OS Version:", s.OSVersion)
	line(&b, "Host Name:", s.HostName)

	b.WriteString("\n")
	section(&b, HeaderCPU, "-")
	line(&b, "Number of Cores:", fmt.Sprint(s.Cores))

	b.WriteString("\n")
	section(&b, HeaderMemory, "-")
	line(&b, "Total Memory:", fmt.Sprintf("%d MB", s.TotalMemory/mb))
	line(&b, "Used Memory:", fmt.Sprintf("%d MB", s.UsedMemory/mb))
	line(&b, "Total Swap:", fmt.Sprintf("%d MB", s.TotalSwap/mb))
	line(&b, "Used Swap:", fmt.Sprintf("%d MB", s.UsedSwap/mb))

	b.WriteString("\n")
	section(&b, HeaderDisk, "-")
	for _, d := range s.Disks {
		line(&b, "Name:", fmt.Sprintf("%q", d.Name))
		line(&b, "File System:", fmt.Sprintf("%q", d.FileSystem))
		line(&b, "Total Space:", fmt.Sprintf("%d GB", d.Total/gb))
		line(&b, "Available Space:", fmt.Sprintf("%d GB", d.Available/gb))
		b.WriteString("---\n")
	}

	return b.String()
}

// Register adds the system information tool to r.
func Register(r *tools.Registry, c *Collector) error {
	return tools.Add(r, Name, Description, c.Run)
}

func section(b *strings.Builder, title, underline string) {
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat(underline, len(title)))
	b.WriteString("\n")
}

func line(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%-18s%s\n", label, value)
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
