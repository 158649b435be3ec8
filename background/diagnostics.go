package background

import (
	"fmt"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang-module/carbon"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

// Snapshot is a point-in-time process/host diagnostics reading. Adapted
// from a MessageBody/HostInfo/VirtualMemory/IoCounter field set, stripped
// of its etcd-push/MQ-push transport (no observability backend is wired
// into this module) and turned into a plain synchronous collector any
// caller can poll.
type Snapshot struct {
	Hostname        string
	HostID          string
	PlatformVersion string
	KernelArch      string
	Procs           uint64
	MachineID       string
	CPUPercent      float64
	Memory          VirtualMemory
	IO              IOCounters
	Time            time.Time
}

type VirtualMemory struct {
	Total       uint64
	Available   uint64
	Used        uint64
	UsedPercent float64
}

type IOCounters struct {
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
}

// CollectSnapshot gathers host identity, CPU, memory, and network-I/O
// counters via gopsutil, and a stable machine id via machineid. A failure
// reading any one gopsutil facet doesn't fail the whole snapshot — it
// leaves that facet zero-valued, matching monitor.go's `if err == nil`
// best-effort field population.
func CollectSnapshot() (Snapshot, error) {
	snap := Snapshot{Time: time.Now()}

	if hostInfo, err := host.Info(); err == nil {
		snap.Hostname = hostInfo.Hostname
		snap.HostID = hostInfo.HostID
		snap.PlatformVersion = hostInfo.PlatformVersion
		snap.KernelArch = hostInfo.KernelArch
		snap.Procs = hostInfo.Procs
	}

	if id, err := machineid.ID(); err == nil {
		snap.MachineID = id
	}

	if percents, err := cpu.Percent(time.Second, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.Memory = VirtualMemory{
			Total:       vm.Total,
			Available:   vm.Available,
			Used:        vm.Used,
			UsedPercent: vm.UsedPercent,
		}
	}

	if counters, err := gnet.IOCounters(false); err == nil && len(counters) > 0 {
		snap.IO = IOCounters{
			BytesSent:   counters[0].BytesSent,
			BytesRecv:   counters[0].BytesRecv,
			PacketsSent: counters[0].PacketsSent,
			PacketsRecv: counters[0].PacketsRecv,
		}
	}

	return snap, nil
}

// String renders the snapshot for log lines, formatting its timestamp
// with carbon rather than time.Format's layout-string spelling.
func (s Snapshot) String() string {
	at := carbon.CreateFromStdTime(s.Time).ToDateTimeString()
	return fmt.Sprintf("%s (%s) cpu=%.1f%% mem=%.1f%% at=%s", s.Hostname, s.MachineID, s.CPUPercent, s.Memory.UsedPercent, at)
}
