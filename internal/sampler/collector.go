package sampler

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"benchq/internal/config"
)

const bytesPerMB = 1024 * 1024

// HostStats is one reading of host-wide counters.
type HostStats struct {
	CPUPercent   float64
	MemoryMB     float64
	NetBytesSent uint64
	NetBytesRecv uint64
}

// ProcessStats is one reading of the target process.
type ProcessStats struct {
	CPUPercent float64
	MemoryMB   float64
}

// ProcessReader reads counters of one located process.
type ProcessReader interface {
	Read(ctx context.Context) (ProcessStats, error)
}

// Collector is the source of raw counters. SystemCollector is the real one.
type Collector interface {
	Host(ctx context.Context) (HostStats, error)
	Locate(ctx context.Context, target config.TargetProcess) (ProcessReader, error)
}

// ErrProcessNotFound is returned by Locate when no process matches.
var ErrProcessNotFound = errors.New("target process not found")

// SystemCollector reads host and process counters through gopsutil.
type SystemCollector struct{}

// Host returns CPU percent since the previous call, used memory and
// cumulative network counters.
func (SystemCollector) Host(ctx context.Context) (HostStats, error) {
	var hs HostStats

	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return hs, errors.Wrap(err, "cpu percent")
	}
	if len(pct) > 0 {
		hs.CPUPercent = pct[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return hs, errors.Wrap(err, "virtual memory")
	}
	hs.MemoryMB = float64(vm.Used) / bytesPerMB

	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return hs, errors.Wrap(err, "net io counters")
	}
	if len(counters) > 0 {
		hs.NetBytesSent = counters[0].BytesSent
		hs.NetBytesRecv = counters[0].BytesRecv
	}
	return hs, nil
}

// Locate finds the target by PID, or by exact executable name when no PID
// is set. The returned reader is primed so its first Read covers only the
// time since Locate.
func (SystemCollector) Locate(ctx context.Context, target config.TargetProcess) (ProcessReader, error) {
	var p *process.Process

	switch {
	case target.PID > 0:
		found, err := process.NewProcessWithContext(ctx, target.PID)
		if err != nil {
			return nil, errors.Wrapf(err, "pid %d", target.PID)
		}
		p = found
	case target.Name != "":
		procs, err := process.ProcessesWithContext(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "list processes")
		}
		for _, candidate := range procs {
			name, err := candidate.NameWithContext(ctx)
			if err != nil {
				continue
			}
			if name == target.Name {
				p = candidate
				break
			}
		}
		if p == nil {
			return nil, errors.Wrapf(ErrProcessNotFound, "name %q", target.Name)
		}
	default:
		return nil, ErrProcessNotFound
	}

	if _, err := p.PercentWithContext(ctx, 0); err != nil {
		return nil, errors.Wrap(err, "read process cpu")
	}
	return &gopsProcess{p: p}, nil
}

type gopsProcess struct {
	p *process.Process
}

func (g *gopsProcess) Read(ctx context.Context) (ProcessStats, error) {
	var ps ProcessStats

	pct, err := g.p.PercentWithContext(ctx, 0)
	if err != nil {
		return ps, errors.Wrap(err, "process cpu percent")
	}
	ps.CPUPercent = pct

	mi, err := g.p.MemoryInfoWithContext(ctx)
	if err != nil {
		return ps, errors.Wrap(err, "process memory info")
	}
	ps.MemoryMB = float64(mi.RSS) / bytesPerMB
	return ps, nil
}
