package core

import "github.com/sarchlab/msim/isa"

// Fetch is the F latch: the instruction word fetched this cycle,
// already decoded so later stages never touch raw memory again.
type Fetch struct {
	Valid bool
	Inst  isa.Instruction
}

// Decode is the D latch: an instruction waiting for its hazard check
// and, if clear, for register operands to be read.
type Decode struct {
	Valid bool
	Inst  isa.Instruction
}

// Exec is the E latch: an instruction with its operands already
// latched from the register file at the moment it left Decode.
type Exec struct {
	Valid bool
	Inst  isa.Instruction
	RsVal uint32
	RtVal uint32
	RdVal uint32
}

// Mem is the M latch: either an ALU result riding through to
// writeback, or a load/store address waiting on the cache and,
// possibly, the bus.
type Mem struct {
	Valid         bool
	Inst          isa.Instruction
	Addr          uint32 // word address, masked to 20 bits; LW/SW only
	StoreData     uint32
	ALUResult     uint32
	Waiting       bool // blocked on an outstanding bus transaction
	RequestQueued bool // this stall's bus request has already been posted
	MissCounted   bool // the hit/miss statistic for this access was already counted
}

// Wb is the W latch: a value ready to commit to the register file on
// the next cycle boundary.
type Wb struct {
	Valid bool
	Inst  isa.Instruction
	Value uint32
}
