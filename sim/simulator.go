// Package sim aggregates the four cores, the bus, and main memory into
// one cycle-stepped machine, and defines the exact per-cycle order:
// trace, then commit writeback, then advance every core's pipeline,
// then resolve the bus.
package sim

import (
	"fmt"
	"io"

	"github.com/sarchlab/msim/bus"
	"github.com/sarchlab/msim/cache"
	"github.com/sarchlab/msim/core"
	"github.com/sarchlab/msim/memory"
	"github.com/sarchlab/msim/trace"
)

// debugBranchCoreID is the only core the reference simulator's
// SIM_DEBUG_BRANCH diagnostic instruments.
const debugBranchCoreID = 3

// Simulator owns the four cores, the shared bus, and main memory, and
// drives them one cycle at a time.
type Simulator struct {
	Cores [bus.NumCores]*core.Core
	Bus   *bus.Bus
	Mem   *memory.Memory
	Cfg   Config
	Cycle uint64

	coreTrace [bus.NumCores]*trace.CoreWriter
	busTrace  *trace.BusWriter

	// pendingRequests is each core's bus mailbox. It must persist
	// across Step calls, not be rebuilt fresh every cycle: a core
	// posts Active=true once when it first stalls and the bus does
	// not consume it until the arbiter picks it, which can be many
	// cycles later while other cores' transactions are in flight.
	pendingRequests [bus.NumCores]bus.Request
}

// New builds a simulator with each core's instruction memory already
// loaded and main memory preloaded from meminWords.
func New(imem [bus.NumCores][core.IMemWords]uint32, meminWords []uint32, cfg Config) *Simulator {
	s := &Simulator{Mem: memory.New(), Bus: bus.New(), Cfg: cfg}
	s.Mem.LoadWords(meminWords)
	for i := range s.Cores {
		s.Cores[i] = core.New(i, imem[i], cache.New())
	}
	if cfg.DebugBranch {
		s.Cores[debugBranchCoreID].DebugBranch = debugBranchLogger(io.Discard, debugBranchCoreID)
	}
	return s
}

// SetCoreTrace wires w as core i's per-cycle pipeline trace sink.
func (s *Simulator) SetCoreTrace(i int, w io.Writer) {
	s.coreTrace[i] = trace.NewCoreWriter(w)
}

// SetBusTrace wires w as the shared bus trace sink.
func (s *Simulator) SetBusTrace(w io.Writer) {
	s.busTrace = trace.NewBusWriter(w)
}

// SetDebugBranchSink redirects core 3's branch-resolution diagnostic
// to w instead of the default io.Discard from New; a no-op if the
// simulator was not built with Config.DebugBranch set.
func (s *Simulator) SetDebugBranchSink(w io.Writer) {
	if !s.Cfg.DebugBranch {
		return
	}
	s.Cores[debugBranchCoreID].DebugBranch = debugBranchLogger(w, debugBranchCoreID)
}

// debugBranchLogger renders one SIM_DEBUG_BRANCH diagnostic line per
// resolved branch, matching sim.c's format exactly: cycle, core, pc,
// rs, rt, taken, target.
func debugBranchLogger(w io.Writer, coreID int) func(core.BranchEvent) {
	return func(ev core.BranchEvent) {
		fmt.Fprintf(w, "cycle %d core%d branch pc %03X rs=%08X rt=%08X taken=%d target=%03X\n",
			ev.Cycle, coreID, ev.PC, uint32(ev.Rs), uint32(ev.Rt), b2i(ev.Taken), ev.Target)
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AllDone reports whether every core has drained to completion:
// halted and with every latch empty.
func (s *Simulator) AllDone() bool {
	for _, c := range s.Cores {
		if !c.Done {
			return false
		}
	}
	return true
}

// Step runs exactly one cycle: emits trace lines for the state at the
// start of the cycle, commits every core's writeback, advances every
// core's pipeline (collecting any new bus requests), then resolves the
// bus for this cycle and clears any core whose transaction completed.
// Cycle numbering matches the reference simulator's: the first cycle
// ever traced is cycle 0, and s.Cycle only advances once all of that
// cycle's work — trace, commit, advance, bus — has run.
func (s *Simulator) Step() {
	for i, c := range s.Cores {
		if s.coreTrace[i] != nil {
			s.coreTrace[i].Write(s.Cycle, c.Snapshot())
		}
	}

	for _, c := range s.Cores {
		c.CommitWriteback()
	}

	for i, c := range s.Cores {
		c.Advance(s.Cycle, &s.pendingRequests[i])
	}

	var caches [bus.NumCores]*cache.Cache
	for i, c := range s.Cores {
		caches[i] = c.Cache
	}
	out := s.Bus.Tick(&s.pendingRequests, caches, s.Mem)
	if s.busTrace != nil {
		s.busTrace.Write(s.Cycle, out)
	}
	if completed, origin := s.Bus.Advance(caches, s.Mem); completed {
		s.Cores[origin].ResolveBusCompletion()
	}

	s.Cycle++
}

// Run steps the simulator until every core is done or, if
// Cfg.MaxCycles is positive, until that cycle number has been
// processed. Matching the reference simulator, the cap is checked
// after a cycle's work runs, not before: SIM_MAX_CYCLES=5 processes
// cycles 0 through 5 inclusive (six cycles of work), stopping only
// once the cycle just finished is itself >= the cap. It returns the
// number of cycles actually simulated.
func (s *Simulator) Run() uint64 {
	for !s.AllDone() {
		cycle := s.Cycle
		s.Step()
		if s.Cfg.MaxCycles > 0 && cycle >= uint64(s.Cfg.MaxCycles) {
			break
		}
	}
	return s.Cycle
}
