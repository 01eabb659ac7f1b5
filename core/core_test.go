package core_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/msim/bus"
	"github.com/sarchlab/msim/cache"
	"github.com/sarchlab/msim/core"
	"github.com/sarchlab/msim/isa"
)

func enc(op isa.Opcode, rd, rs, rt uint8, imm int32) uint32 {
	return uint32(op)<<24 | uint32(rd)<<20 | uint32(rs)<<16 | uint32(rt)<<12 | uint32(imm)&0xFFF
}

// tick runs one full cycle on a single core with no bus traffic:
// snapshot, commit, advance, exactly the order the simulator uses.
func tick(c *core.Core) core.Snapshot {
	snap := c.Snapshot()
	c.CommitWriteback()
	var req bus.Request
	c.Advance(0, &req)
	return snap
}

var _ = Describe("Core", func() {
	It("primes Fetch with instruction 0 before any cycle runs", func() {
		imem := [core.IMemWords]uint32{}
		imem[0] = enc(isa.HALT, 0, 0, 0, 0)
		c := core.New(0, imem, cache.New())
		Expect(c.F.Valid).To(BeTrue())
		Expect(c.F.Inst.Op).To(Equal(isa.HALT))
	})

	It("drains to Done a fixed number of cycles after HALT retires", func() {
		imem := [core.IMemWords]uint32{}
		imem[0] = enc(isa.HALT, 0, 0, 0, 0)
		c := core.New(0, imem, cache.New())

		for i := 0; i < 10 && !c.Done; i++ {
			tick(c)
		}
		Expect(c.Done).To(BeTrue())
		Expect(c.Halted).To(BeTrue())
		Expect(c.Stats.Instructions).To(Equal(uint64(1)))
	})

	It("stalls decode on a RAW hazard against the instruction ahead", func() {
		imem := [core.IMemWords]uint32{}
		imem[0] = enc(isa.ADD, 2, 0, 0, 5) // R2 = R0 + R0 (imm unused by ADD)
		imem[1] = enc(isa.ADD, 3, 2, 0, 0) // R3 = R2 + R0, hazard on R2
		imem[2] = enc(isa.HALT, 0, 0, 0, 0)
		c := core.New(0, imem, cache.New())

		sawStall := false
		for i := 0; i < 20 && !c.Done; i++ {
			tick(c)
			if c.Stats.DecodeStalls > 0 {
				sawStall = true
			}
		}
		Expect(sawStall).To(BeTrue())
		Expect(c.Done).To(BeTrue())
	})

	It("executes the delay slot instruction after a taken branch", func() {
		imem := [core.IMemWords]uint32{}
		// R15 = 3 (branch target); R0 == R0 so BEQ is taken, delay slot ADD executes, HALT at target
		imem[0] = enc(isa.ADD, 15, 0, 1, 3) // R15 = R0 + R1 (imm 3), used as branch target = imem[3]
		imem[1] = enc(isa.BEQ, 15, 0, 0, 0) // if R0==R0 jump to R15 (=3)
		imem[2] = enc(isa.ADD, 4, 0, 0, 0)  // delay slot: R4 = 0 + 0, must still execute
		imem[3] = enc(isa.HALT, 0, 0, 0, 0)
		c := core.New(0, imem, cache.New())

		for i := 0; i < 30 && !c.Done; i++ {
			tick(c)
		}
		Expect(c.Done).To(BeTrue())
		Expect(c.Stats.Instructions).To(Equal(uint64(4)))
	})

	It("stalls Mem and posts a bus request on a cache miss", func() {
		imem := [core.IMemWords]uint32{}
		imem[0] = enc(isa.LW, 2, 0, 0, 0) // R2 = mem[R0+R0] = mem[0]
		imem[1] = enc(isa.HALT, 0, 0, 0, 0)
		c := core.New(0, imem, cache.New())

		tick(c) // fetch LW into D
		tick(c) // LW into E
		tick(c) // LW into M, EXEC computes addr

		var req bus.Request
		c.Advance(0, &req)
		Expect(req.Active).To(BeTrue())
		Expect(req.Cmd).To(Equal(cache.BusRD))
		Expect(c.M.Waiting).To(BeTrue())
	})
})
