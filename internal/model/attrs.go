package model

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Disk requirements scale with the total size of a task's inputs. The
// multiplier leaves room for decompressed intermediates, the overhead covers
// reference data and tool scratch space.
const (
	diskScaleFactor = 3.5
	diskOverheadGB  = 20
)

// RuntimeAttributes is the resource and retry policy shared by every task in
// a run. It is treated as an immutable value: the With* methods return
// modified copies and never touch the receiver, so a single RuntimeAttributes
// can safely back all tasks of a run.
type RuntimeAttributes struct {
	// PreemptibleTries is the number of times a task may be restarted after
	// the execution substrate reclaims its worker. Preemptions do not count
	// against MaxRetries.
	PreemptibleTries int
	// MaxRetries is the number of times a task is re-run after a tool
	// exits nonzero.
	MaxRetries int
	// QueueARN identifies the batch queue jobs are submitted to.
	QueueARN string
	// Zones is the ordered list of placement zones.
	Zones []string
	// ContainerRegistry prefixes every tool image reference.
	ContainerRegistry string
	// CPU is the vCPU count. Overridable per task.
	CPU int
	// Memory is a human-readable size such as "16 GB".
	Memory string
	// DiskGB is the scratch disk size. Computed per task before dispatch,
	// never set by hand.
	DiskGB int
}

// Validate reports the first violated constraint, if any.
func (a RuntimeAttributes) Validate() error {
	if a.CPU <= 0 {
		return fmt.Errorf("runtime attributes: cpu must be > 0, got %d", a.CPU)
	}
	if a.PreemptibleTries < 0 {
		return fmt.Errorf("runtime attributes: preemptible_tries must be >= 0, got %d", a.PreemptibleTries)
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("runtime attributes: max_retries must be >= 0, got %d", a.MaxRetries)
	}
	if a.Memory != "" {
		if _, err := a.MemoryMiB(); err != nil {
			return err
		}
	}
	return nil
}

// WithCPU returns a copy with the vCPU count replaced. CPU and disk are the
// only per-task overridable attributes.
func (a RuntimeAttributes) WithCPU(cpu int) RuntimeAttributes {
	a.Zones = slices.Clone(a.Zones)
	a.CPU = cpu
	return a
}

// WithDiskGB returns a copy with the scratch disk size replaced.
func (a RuntimeAttributes) WithDiskGB(gb int) RuntimeAttributes {
	a.Zones = slices.Clone(a.Zones)
	a.DiskGB = gb
	return a
}

// MemoryMiB parses the Memory string into mebibytes.
func (a RuntimeAttributes) MemoryMiB() (int, error) {
	fields := strings.Fields(strings.TrimSpace(a.Memory))
	var num, unit string
	switch len(fields) {
	case 1:
		s := fields[0]
		i := strings.IndexFunc(s, func(r rune) bool {
			return (r < '0' || r > '9') && r != '.'
		})
		if i < 0 {
			return 0, fmt.Errorf("memory %q: missing unit", a.Memory)
		}
		num, unit = s[:i], s[i:]
	case 2:
		num, unit = fields[0], fields[1]
	default:
		return 0, fmt.Errorf("memory %q: expected a size and a unit", a.Memory)
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("memory %q: %w", a.Memory, err)
	}

	var mib float64
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "MB", "MIB", "M":
		mib = v
	case "GB", "GIB", "G":
		mib = v * 1024
	case "TB", "TIB", "T":
		mib = v * 1024 * 1024
	default:
		return 0, fmt.Errorf("memory %q: unsupported unit %q", a.Memory, unit)
	}
	return int(math.Ceil(mib)), nil
}

// DiskSizeGB computes the scratch disk size for a task from the total size of
// its input files in bytes.
func DiskSizeGB(totalInputBytes int64) int {
	return diskSizeFromGB(float64(totalInputBytes) / float64(1<<30))
}

func diskSizeFromGB(sizeGB float64) int {
	return int(math.Ceil(sizeGB*diskScaleFactor + diskOverheadGB))
}
