package core

import (
	"github.com/sarchlab/msim/bus"
	"github.com/sarchlab/msim/cache"
	"github.com/sarchlab/msim/isa"
)

// IMemWords is the fixed instruction memory size in words; PC wraps
// modulo this size.
const IMemWords = 1024

// pcMask wraps a program counter into the instruction memory's range.
const pcMask = IMemWords - 1

// Statistics accumulates the per-core counters written to the stats
// output file: total cycles the core was active, instructions
// retired, cache hit/miss counts split by access kind, and the two
// stall categories a cycle can be lost to.
type Statistics struct {
	Cycles       uint64
	Instructions uint64
	ReadHits     uint64
	ReadMisses   uint64
	WriteHits    uint64
	WriteMisses  uint64
	DecodeStalls uint64
	MemStalls    uint64
}

// BranchEvent describes one resolved conditional branch, reported to
// an optional debug sink.
type BranchEvent struct {
	Cycle  uint64
	CoreID int
	PC     uint16
	Rs     int32
	Rt     int32
	Taken  bool
	Target uint16
}

// Snapshot is a read-only view of one core's latches and registers at
// the start of a cycle, used for pipeline tracing before the cycle's
// commit and advance run.
type Snapshot struct {
	CoreID int
	FValid bool
	FPC    uint16
	DValid bool
	DPC    uint16
	EValid bool
	EPC    uint16
	MValid bool
	MPC    uint16
	WValid bool
	WPC    uint16
	Regs   [14]uint32 // R2..R15
}

// AnyValid reports whether at least one latch in the snapshot holds an
// instruction, the condition under which a pipeline trace line for
// this cycle is emitted at all.
func (s Snapshot) AnyValid() bool {
	return s.FValid || s.DValid || s.EValid || s.MValid || s.WValid
}

// Core is one five-stage in-order pipeline plus its private cache and
// register file. It advances synchronously: Snapshot, CommitWriteback,
// and Advance are called once per cycle, in that order, for every core
// before the bus resolves this cycle's transaction.
type Core struct {
	ID   int
	IMem [IMemWords]uint32
	Regs RegisterFile

	pc              uint16
	redirectPending bool
	redirectPC      uint16
	stopFetch       bool
	Halted          bool
	Done            bool

	F Fetch
	D Decode
	E Exec
	M Mem
	W Wb

	Cache *cache.Cache
	Stats Statistics

	// DebugBranch, when non-nil, is invoked for every resolved
	// conditional branch this core decodes. It is left nil for every
	// core except the one the simulator wires debug output to.
	DebugBranch func(BranchEvent)
}

// New builds a core with imem already loaded and its Fetch stage
// primed with the instruction at address 0, mirroring the reference
// simulator's startup sequence exactly: the first fetch happens before
// the cycle loop begins, not during cycle 1's Advance.
func New(id int, imem [IMemWords]uint32, c *cache.Cache) *Core {
	co := &Core{ID: id, IMem: imem, Cache: c}
	first := isa.Decode(co.IMem[0], 0)
	co.F = Fetch{Valid: true, Inst: first}
	if first.Op == isa.HALT {
		co.stopFetch = true
	}
	co.pc = 1 & pcMask
	return co
}

// Snapshot captures the current cycle's latch and register state
// before CommitWriteback or Advance mutate anything.
func (c *Core) Snapshot() Snapshot {
	return Snapshot{
		CoreID: c.ID,
		FValid: c.F.Valid, FPC: c.F.Inst.PC,
		DValid: c.D.Valid, DPC: c.D.Inst.PC,
		EValid: c.E.Valid, EPC: c.E.Inst.PC,
		MValid: c.M.Valid, MPC: c.M.Inst.PC,
		WValid: c.W.Valid, WPC: c.W.Inst.PC,
		Regs: c.Regs.Snapshot2to15(),
	}
}

// CommitWriteback retires the instruction currently in Wb, if any,
// writing its result to the register file and marking the core halted
// once a HALT instruction retires. It must run before Advance so a
// same-cycle decode hazard check against W sees the instruction that
// is retiring this very cycle.
func (c *Core) CommitWriteback() {
	if !c.W.Valid {
		return
	}
	if dst := isa.DestReg(c.W.Inst); dst >= 0 {
		c.Regs.Write(uint8(dst), c.W.Value)
	}
	c.Stats.Instructions++
	if c.W.Inst.Op == isa.HALT {
		c.Halted = true
	}
}

// Advance runs one cycle of Mem, Exec, Decode, and Fetch stage logic,
// in that order, matching the reference simulator's dependency order:
// each stage's "can I move forward" decision depends only on the
// downstream stage's decision computed earlier in the same call. If
// this core's Mem stage needs to start a new bus transaction, it is
// written into *req for the bus to arbitrate this same cycle.
func (c *Core) Advance(cycle uint64, req *bus.Request) {
	if !c.Done {
		c.Stats.Cycles++
	}

	nextW := Wb{}
	nextM := c.M
	nextE := c.E
	nextD := c.D
	nextF := c.F

	memAdvances := c.advanceMem(&nextM, &nextW)
	memFreeNext := !c.M.Valid || memAdvances

	execCanMove := c.E.Valid && memFreeNext
	if execCanMove {
		c.advanceExec(&nextM)
		nextE.Valid = false
	}
	execFreeNext := !c.E.Valid || execCanMove

	decodeMoves, decodeFreeNext := c.advanceDecode(cycle, &nextE, execFreeNext)
	if decodeMoves || !c.D.Valid {
		nextD.Valid = false
	}

	fetchMoves := c.F.Valid && decodeFreeNext
	if fetchMoves {
		nextD = Decode{Valid: true, Inst: c.F.Inst}
	}

	c.advanceFetch(&nextF, fetchMoves, decodeFreeNext)

	if nextM.Valid && nextM.Waiting {
		c.postMemRequest(&nextM, req)
	}

	c.W, c.M, c.E, c.D, c.F = nextW, nextM, nextE, nextD, nextF

	if c.Halted && !(c.F.Valid || c.D.Valid || c.E.Valid || c.M.Valid || c.W.Valid) {
		c.Done = true
	}
}

// advanceMem runs the Mem stage: a plain ALU result passes straight to
// Wb, while a load or store must resolve against the private cache and
// possibly stall behind a bus transaction. It returns whether the Mem
// stage advances (frees up) this cycle.
func (c *Core) advanceMem(nextM *Mem, nextW *Wb) bool {
	if !c.M.Valid {
		return false
	}
	if c.M.Waiting {
		c.Stats.MemStalls++
		return false
	}

	inst := c.M.Inst
	if inst.Op != isa.LW && inst.Op != isa.SW {
		*nextW = Wb{Valid: true, Inst: inst, Value: c.M.ALUResult}
		nextM.Valid = false
		return true
	}

	state, hit := c.Cache.Lookup(c.M.Addr)
	needsBus := !hit || (inst.Op == isa.SW && state == cache.Shared)
	if !c.M.MissCounted {
		c.countAccess(inst.Op, needsBus)
	}

	if needsBus {
		nextM.MissCounted = true
		nextM.Waiting = true
		c.Stats.MemStalls++
		return false
	}

	if inst.Op == isa.LW {
		*nextW = Wb{Valid: true, Inst: inst, Value: c.Cache.Read(c.M.Addr)}
	} else {
		c.Cache.Write(c.M.Addr, c.M.StoreData)
		*nextW = Wb{Valid: true, Inst: inst}
	}
	nextM.Valid = false
	return true
}

// countAccess records a hit or miss for the access that just resolved.
// needsBus already folds in the store-to-Shared upgrade case: a store
// that hits a Shared line still counts as a write miss, since it
// cannot complete without first invalidating every other copy.
func (c *Core) countAccess(op isa.Opcode, needsBus bool) {
	switch {
	case op == isa.LW && !needsBus:
		c.Stats.ReadHits++
	case op == isa.LW && needsBus:
		c.Stats.ReadMisses++
	case op == isa.SW && !needsBus:
		c.Stats.WriteHits++
	default:
		c.Stats.WriteMisses++
	}
}

// postMemRequest posts this core's outstanding cache miss or upgrade
// as a bus request, once, on the cycle it first stalls; it stays
// posted (Active) until the arbiter picks it up.
func (c *Core) postMemRequest(m *Mem, req *bus.Request) {
	if m.RequestQueued {
		return
	}
	cmd := cache.BusRD
	if m.Inst.Op == isa.SW {
		cmd = cache.BusRDX
	}
	*req = bus.Request{Active: true, Cmd: cmd, Addr: m.Addr, Origin: c.ID}
	m.RequestQueued = true
}

// ResolveBusCompletion clears a stalled Mem stage once the bus reports
// this core's transaction finished flushing into its cache this cycle.
func (c *Core) ResolveBusCompletion() {
	c.M.Waiting = false
}

// advanceExec computes the Exec-stage result: an effective address for
// a load/store, or an ALU result for everything else.
func (c *Core) advanceExec(nextM *Mem) {
	inst := c.E.Inst
	*nextM = Mem{Valid: true, Inst: inst}
	if inst.Op == isa.LW || inst.Op == isa.SW {
		nextM.Addr = (c.E.RsVal + c.E.RtVal) & cache.AddrMask
		nextM.StoreData = c.E.RdVal
	} else {
		nextM.ALUResult = alu(inst, c.E.RsVal, c.E.RtVal)
	}
}

// advanceDecode runs the hazard check and, if clear, reads operands
// and resolves branches/JAL. It returns whether Decode moved to Exec
// this cycle and whether Decode will be free for Fetch to move into
// next cycle.
func (c *Core) advanceDecode(cycle uint64, nextE *Exec, execFreeNext bool) (moves bool, freeNext bool) {
	if !c.D.Valid {
		return false, true
	}

	inst := c.D.Inst
	c.Regs.SetImmediateMirror(inst.Imm)

	stall := !execFreeNext
	for _, s := range isa.SourceRegs(inst) {
		if s <= 1 {
			continue
		}
		if c.E.Valid && isa.DestReg(c.E.Inst) == int(s) {
			stall = true
		}
		if c.M.Valid && isa.DestReg(c.M.Inst) == int(s) {
			stall = true
		}
		if c.W.Valid && isa.DestReg(c.W.Inst) == int(s) {
			stall = true
		}
	}

	if stall {
		c.Stats.DecodeStalls++
		return false, false
	}

	rs := c.Regs.Read(inst.Rs)
	rt := c.Regs.Read(inst.Rt)
	rd := c.Regs.Read(inst.Rd)
	*nextE = Exec{Valid: true, Inst: inst, RsVal: rs, RtVal: rt, RdVal: rd}

	switch {
	case inst.Op.IsBranch():
		taken := compare(inst.Op, int32(rs), int32(rt))
		target := uint16(rd & 0x3FF)
		if c.DebugBranch != nil {
			c.DebugBranch(BranchEvent{
				Cycle: cycle, CoreID: c.ID, PC: inst.PC,
				Rs: int32(rs), Rt: int32(rt),
				Taken: taken, Target: target,
			})
		}
		if taken {
			c.redirectPending = true
			c.redirectPC = target
		}
	case inst.Op == isa.JAL:
		c.redirectPending = true
		c.redirectPC = uint16(rd & 0x3FF)
	}

	return true, true
}

// advanceFetch fetches the next instruction, honoring a pending branch
// or JAL redirect computed this same cycle by Decode: the instruction
// already latched in Fetch when the redirect was decided is the delay
// slot and has already been (or is being) forwarded to Decode above,
// untouched by the redirect.
func (c *Core) advanceFetch(nextF *Fetch, fetchMoves, decodeFreeNext bool) {
	if c.stopFetch || !decodeFreeNext {
		if fetchMoves {
			nextF.Valid = false
		}
		return
	}

	pc := c.pc
	if c.redirectPending {
		pc = c.redirectPC
		c.redirectPending = false
	}
	inst := isa.Decode(c.IMem[pc&pcMask], pc&pcMask)
	*nextF = Fetch{Valid: true, Inst: inst}
	if inst.Op == isa.HALT {
		c.stopFetch = true
	}
	c.pc = (pc + 1) & pcMask
}

// Active reports whether any latch currently holds an instruction.
func (c *Core) Active() bool {
	return c.F.Valid || c.D.Valid || c.E.Valid || c.M.Valid || c.W.Valid
}
