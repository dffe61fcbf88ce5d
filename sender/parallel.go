package sender

// ParallelMode selects whether frames are packed on a worker pool.
type ParallelMode uint8

const (
	// ParallelAuto packs in parallel when more devices than the parallel
	// threshold of the datagram are addressed.
	ParallelAuto ParallelMode = iota
	// ParallelOn always packs in parallel.
	ParallelOn
	// ParallelOff always packs sequentially.
	ParallelOff
)

func (m ParallelMode) valid() bool { return m <= ParallelOff }

// IsParallel decides the packing mode for numDevices addressed devices.
func (m ParallelMode) IsParallel(numDevices, threshold int) bool {
	switch m {
	case ParallelOn:
		return true
	case ParallelOff:
		return false
	default:
		return numDevices > threshold
	}
}

func (m ParallelMode) String() string {
	switch m {
	case ParallelAuto:
		return "auto"
	case ParallelOn:
		return "on"
	case ParallelOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseParallelMode parses "auto", "on" or "off".
func ParseParallelMode(s string) (ParallelMode, bool) {
	switch s {
	case "auto", "":
		return ParallelAuto, true
	case "on":
		return ParallelOn, true
	case "off":
		return ParallelOff, true
	default:
		return ParallelAuto, false
	}
}
