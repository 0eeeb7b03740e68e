package transfer

// Mode names a download strategy
type Mode string

const (
	ModeNone       Mode = ""
	ModeSingle     Mode = "single"
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

func (m Mode) String() string {
	if m == ModeNone {
		return "none"
	}
	return string(m)
}

// SelectMode resolves the bulk strategy from the command-line switches.
// A positive worker count selects the parallel pool; the cooperative switch
// selects the sequential session. When both are given the pool wins and
// conflict is true.
func SelectMode(cpus int, coroutines bool) (mode Mode, conflict bool) {
	switch {
	case cpus > 0:
		return ModeParallel, coroutines
	case coroutines:
		return ModeSequential, false
	default:
		return ModeNone, false
	}
}
