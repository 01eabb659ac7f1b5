// Package bus implements the single shared snooping bus: round-robin
// arbitration among the four cores' pending miss/upgrade requests, the
// MESI snoop reaction across all caches at transaction start, and the
// fixed-latency-then-8-cycle-flush transaction state machine.
package bus

import "github.com/sarchlab/msim/cache"

// NumCores is the fixed core count this bus arbitrates among.
const NumCores = 4

// MemoryLatency is the fixed number of wait cycles before a
// memory-sourced transaction begins its flush.
const MemoryLatency = 16

// MemoryProvider is the provider sentinel meaning "sourced from main
// memory" rather than from one of the four cache ids 0..3.
const MemoryProvider = 4

// Phase is the transaction state machine's current phase.
type Phase uint8

// Bus phases.
const (
	Idle Phase = iota
	Wait
	Flush
)

// Command is the wire-encoded command a bus cycle drives, matching the
// bustrace numeric encoding in spec.md section 6 exactly.
type Command uint8

// Bus commands, matching the 1-hex-digit bustrace field.
const (
	CmdNone  Command = 0
	CmdRD    Command = 1
	CmdRDX   Command = 2
	CmdFlush Command = 3
)

// fromCoherence maps a cache-level RD/RDX request into the bus's wire
// command numbering.
func fromCoherence(cmd cache.BusCommand) Command {
	if cmd == cache.BusRDX {
		return CmdRDX
	}
	return CmdRD
}

// Memory is the backing store the bus sources a block from on a miss
// with no provider cache, and commits a flushed block to on completion.
type Memory interface {
	cache.BackingStore
	ReadBlock(baseAddr uint32) cache.Block
}

// Request is a single core's mailbox: at most one outstanding miss or
// upgrade request at a time, since a core's pipeline is fully stalled
// behind it.
type Request struct {
	Active bool
	Cmd    cache.BusCommand
	Addr   uint32 // word address, masked to 20 bits
	Origin int
}

// Output is what the bus drives on the wire during one cycle. Cmd ==
// CmdNone means nothing is driven and no trace line should be emitted.
type Output struct {
	Cmd    Command
	Origin int
	Addr   uint32
	Data   uint32
	Shared bool
}

// Bus is the transaction engine and its round-robin arbiter state.
type Bus struct {
	Phase  Phase
	Cmd    cache.BusCommand
	Origin int
	Addr   uint32 // requested word address
	Shared bool
	Provider int // 0..3 cache id, or MemoryProvider
	Block  cache.Block
	Delay  int
	Index  int

	rrNext int
	Out    Output
}

// New returns an idle bus with round-robin arbitration starting at
// core 0.
func New() *Bus {
	return &Bus{}
}

// Tick runs one full cycle of bus behavior: arbitrate a new transaction
// if idle, determine this cycle's driven output, and return it for
// tracing. Call Advance afterward to step the transaction's timing. A
// transaction in its Wait phase drives the same RD/RDX command every
// cycle, not just the cycle it started on: the reference simulator
// never resets its bus-command output between cycles, only at
// transaction start, so an in-flight miss is visible on the trace for
// its entire wait, not just its first cycle.
func (b *Bus) Tick(requests *[NumCores]Request, caches [NumCores]*cache.Cache, mem Memory) Output {
	started := false
	if b.Phase == Idle {
		started = b.tryStart(requests, caches, mem)
	}

	switch {
	case b.Phase == Idle:
		b.Out = Output{}
	case b.Phase == Flush:
		b.driveFlush()
	case b.Phase == Wait && b.Delay == 0 && !started:
		b.Phase = Flush
		b.Index = 0
		b.driveFlush()
	case b.Phase == Wait:
		b.driveWait()
	}

	return b.Out
}

// tryStart picks the next request in round-robin order and, if one is
// pending, snoops every other cache and decides the data provider. It
// reports whether a transaction was started this cycle.
func (b *Bus) tryStart(requests *[NumCores]Request, caches [NumCores]*cache.Cache, mem Memory) bool {
	chosen := -1
	for k := 0; k < NumCores; k++ {
		idx := (b.rrNext + k) % NumCores
		if requests[idx].Active {
			chosen = idx
			break
		}
	}
	if chosen == -1 {
		return false
	}

	req := requests[chosen]
	requests[chosen].Active = false
	b.rrNext = (chosen + 1) % NumCores

	b.start(req, caches, mem)
	return true
}

// start performs the atomic snoop-and-decide step of transaction
// initiation: every peer cache reacts to the request before the
// requester sees the current cycle's bus command.
func (b *Bus) start(req Request, caches [NumCores]*cache.Cache, mem Memory) {
	b.Cmd = req.Cmd
	b.Origin = req.Origin
	b.Addr = req.Addr
	b.Shared = false
	b.Provider = -1
	b.Index = 0

	var providerBlock cache.Block
	for id, c := range caches {
		if id == req.Origin {
			continue
		}
		res := c.Snoop(req.Addr, req.Cmd)
		if !res.Matched {
			continue
		}
		b.Shared = true
		if res.Provided {
			b.Provider = id
			providerBlock = res.Block
		}
	}

	if b.Provider == -1 {
		b.Provider = MemoryProvider
		b.Delay = MemoryLatency
		b.Block = mem.ReadBlock(cache.BlockBase(req.Addr))
	} else {
		b.Block = providerBlock
		b.Delay = 0
	}
	b.Phase = Wait

	b.driveWait()
}

// driveWait renders the RD/RDX command for the transaction currently
// in its Wait phase. Called every Wait cycle, including the cycle the
// transaction starts on, so the driven output is identical throughout
// the wait rather than only appearing once.
func (b *Bus) driveWait() {
	b.Out = Output{
		Cmd:    fromCoherence(b.Cmd),
		Origin: b.Origin,
		Addr:   b.Addr & cache.AddrMask,
		Shared: b.Shared,
	}
}

// driveFlush drives the current flush-index word onto the bus.
func (b *Bus) driveFlush() {
	base := cache.BlockBase(b.Addr)
	b.Out = Output{
		Cmd:    CmdFlush,
		Origin: b.Provider,
		Addr:   base + uint32(b.Index),
		Data:   b.Block[b.Index],
		Shared: b.Shared,
	}
}

// Advance steps the transaction's internal timing after this cycle's
// output has been observed: the memory-latency countdown, or the
// 8-word flush index. It commits the flushed block to memory and fills
// the originator's cache when the 8th flush word completes. It reports
// whether a transaction completed this cycle and, if so, which core
// originated it, so the pipeline can clear that core's stalled MEM
// stage.
func (b *Bus) Advance(caches [NumCores]*cache.Cache, mem Memory) (completed bool, originID int) {
	switch {
	case b.Phase == Wait && b.Delay > 0:
		b.Delay--
	case b.Phase == Flush && b.Out.Cmd == CmdFlush:
		b.Index++
		if b.Index >= cache.BlockWords {
			originID = b.Origin
			b.complete(caches, mem)
			completed = true
			b.Phase = Idle
		}
	}
	return completed, originID
}

// complete writes the flushed block to memory and fills the
// originator's cache line, evicting and writing back any dirty victim.
func (b *Bus) complete(caches [NumCores]*cache.Cache, mem Memory) {
	base := cache.BlockBase(b.Addr)
	mem.WriteBlock(base, b.Block)

	newState := cache.Modified
	if b.Cmd == cache.BusRD {
		if b.Shared {
			newState = cache.Shared
		} else {
			newState = cache.Exclusive
		}
	}
	caches[b.Origin].Fill(base, b.Block, newState, mem)
}
