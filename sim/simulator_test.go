package sim_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/msim/bus"
	"github.com/sarchlab/msim/cache"
	"github.com/sarchlab/msim/core"
	"github.com/sarchlab/msim/isa"
	"github.com/sarchlab/msim/sim"
)

func enc(op isa.Opcode, rd, rs, rt uint8, imm int32) uint32 {
	return uint32(op)<<24 | uint32(rd)<<20 | uint32(rs)<<16 | uint32(rt)<<12 | uint32(imm)&0xFFF
}

func imemFrom(words ...uint32) [core.IMemWords]uint32 {
	var im [core.IMemWords]uint32
	copy(im[:], words)
	return im
}

func haltOnly() [core.IMemWords]uint32 {
	return imemFrom(enc(isa.HALT, 0, 0, 0, 0))
}

var _ = Describe("Simulator scenarios", func() {
	Describe("S2: HALT only on every core", func() {
		It("terminates immediately with one retired instruction per core and no cache activity", func() {
			imem := [bus.NumCores][core.IMemWords]uint32{haltOnly(), haltOnly(), haltOnly(), haltOnly()}
			s := sim.New(imem, make([]uint32, 16), sim.Config{})

			cycles := s.Run()
			Expect(cycles).To(BeNumerically("<", 20))
			Expect(s.AllDone()).To(BeTrue())

			for _, c := range s.Cores {
				Expect(c.Stats.Instructions).To(Equal(uint64(1)))
				for _, st := range c.Cache.State {
					Expect(st).To(Equal(cache.Invalid))
				}
			}
			Expect(s.Mem.Read(0)).To(Equal(uint32(0)))
		})
	})

	Describe("S3: self load-hit", func() {
		It("loads memin[0] into R2 as a compulsory miss and fills the line", func() {
			imem0 := imemFrom(enc(isa.LW, 2, 0, 0, 0), enc(isa.HALT, 0, 0, 0, 0))
			imem := [bus.NumCores][core.IMemWords]uint32{imem0, haltOnly(), haltOnly(), haltOnly()}

			memin := make([]uint32, 16)
			memin[0] = 0xDEADBEEF
			for i := 1; i < 8; i++ {
				memin[i] = uint32(i)
			}

			s := sim.New(imem, memin, sim.Config{})
			s.Run()

			Expect(s.Cores[0].Regs.Read(2)).To(Equal(uint32(0xDEADBEEF)))
			Expect(s.Cores[0].Stats.ReadMisses).To(Equal(uint64(1)))
			Expect(s.Cores[0].Stats.ReadHits).To(Equal(uint64(0)))
			Expect(s.Cores[0].Cache.Data[0:8]).To(Equal(memin[0:8]))
		})
	})

	Describe("S4: write then read the same block from another core", func() {
		It("leaves both caches Shared and memory updated, synchronized by a flag word", func() {
			const dataAddr = 0x10
			const flagAddr = 0x20

			imem0 := imemFrom(
				enc(isa.ADD, 4, 0, 1, 0x111), // R4 = 0x111
				enc(isa.ADD, 5, 0, 1, 12),    // R5 = 12
				enc(isa.SLL, 4, 4, 5, 0),     // R4 <<= 12
				enc(isa.ADD, 6, 0, 1, 0x111), // R6 = 0x111
				enc(isa.OR, 4, 4, 6, 0),      // R4 |= R6
				enc(isa.ADD, 5, 0, 1, 8),     // R5 = 8
				enc(isa.SLL, 4, 4, 5, 0),     // R4 <<= 8
				enc(isa.ADD, 6, 0, 1, 0x11),  // R6 = 0x11
				enc(isa.OR, 4, 4, 6, 0),      // R4 |= R6 -> R4 == 0x11111111
				enc(isa.ADD, 3, 0, 1, dataAddr),
				enc(isa.SW, 4, 3, 0, 0), // mem[dataAddr] = 0x11111111
				enc(isa.ADD, 7, 0, 1, 1),
				enc(isa.ADD, 8, 0, 1, flagAddr),
				enc(isa.SW, 7, 8, 0, 0), // mem[flagAddr] = 1
				enc(isa.HALT, 0, 0, 0, 0),
			)

			imem1 := imemFrom(
				enc(isa.ADD, 3, 0, 1, flagAddr), // R3 = flag addr
				enc(isa.LW, 4, 3, 0, 0),         // spin: R4 = mem[flag]     <- addr 1
				enc(isa.ADD, 5, 0, 1, 1),        // R5 = 1
				enc(isa.ADD, 6, 0, 1, 1),        // R6 = loop target (addr 1)
				enc(isa.BNE, 6, 4, 5, 0),        // if R4 != R5 jump to R6
				enc(isa.ADD, 0, 0, 0, 0),        // delay slot NOP
				enc(isa.ADD, 7, 0, 1, dataAddr), // R7 = data addr
				enc(isa.LW, 2, 7, 0, 0),         // R2 = mem[dataAddr]
				enc(isa.HALT, 0, 0, 0, 0),
			)

			imem := [bus.NumCores][core.IMemWords]uint32{imem0, imem1, haltOnly(), haltOnly()}
			s := sim.New(imem, make([]uint32, 64), sim.Config{})
			s.Run()

			Expect(s.Mem.Read(dataAddr)).To(Equal(uint32(0x11111111)))

			state0, hit0 := s.Cores[0].Cache.Lookup(dataAddr)
			Expect(hit0).To(BeTrue())
			Expect(state0).To(Equal(cache.Shared))

			state1, hit1 := s.Cores[1].Cache.Lookup(dataAddr)
			Expect(hit1).To(BeTrue())
			Expect(state1).To(Equal(cache.Shared))
			Expect(s.Cores[1].Regs.Read(2)).To(Equal(uint32(0x11111111)))
		})
	})

	Describe("S5: branch (JAL) with delay slot", func() {
		It("executes the delay slot and lands on the preloaded target", func() {
			imem0 := imemFrom(
				enc(isa.JAL, 5, 0, 0, 0), // target register is R5
				enc(isa.ADD, 2, 0, 1, 7), // delay slot: R2 = 7
				enc(isa.ADD, 0, 0, 0, 0),
				enc(isa.ADD, 0, 0, 0, 0),
				enc(isa.ADD, 0, 0, 0, 0),
				enc(isa.HALT, 0, 0, 0, 0),
			)
			imem := [bus.NumCores][core.IMemWords]uint32{imem0, haltOnly(), haltOnly(), haltOnly()}
			s := sim.New(imem, make([]uint32, 8), sim.Config{})
			s.Cores[0].Regs.Write(5, 5)

			s.Run()

			Expect(s.Cores[0].Regs.Read(2)).To(Equal(uint32(7)))
			Expect(s.Cores[0].Regs.Read(15)).To(Equal(uint32(2)))
			Expect(s.Cores[0].Stats.Instructions).To(Equal(uint64(3)))
		})
	})

	Describe("S6: MESI upgrade from Shared to Modified", func() {
		It("invalidates the peer and increments write_miss on the requester", func() {
			const addr = 0x40
			imem0 := imemFrom(
				enc(isa.ADD, 3, 0, 1, addr),
				enc(isa.ADD, 4, 0, 1, 7),
				enc(isa.SW, 4, 3, 0, 0),
				enc(isa.HALT, 0, 0, 0, 0),
			)
			imem := [bus.NumCores][core.IMemWords]uint32{imem0, haltOnly(), haltOnly(), haltOnly()}
			s := sim.New(imem, make([]uint32, 32), sim.Config{})

			var block cache.Block
			s.Cores[0].Cache.Fill(addr, block, cache.Shared, s.Mem)
			s.Cores[1].Cache.Fill(addr, block, cache.Shared, s.Mem)

			s.Run()

			state0, hit0 := s.Cores[0].Cache.Lookup(addr)
			Expect(hit0).To(BeTrue())
			Expect(state0).To(Equal(cache.Modified))

			_, hit1 := s.Cores[1].Cache.Lookup(addr)
			Expect(hit1).To(BeFalse())

			Expect(s.Cores[0].Stats.WriteMisses).To(Equal(uint64(1)))
		})
	})

	Describe("S1: four-core token round robin counter", func() {
		It("increments the shared counter exactly 512 times", func() {
			const counterAddr = 0
			const tokenAddr = 1
			const rounds = 128
			const mask = 3 // NumCores - 1, valid since NumCores is a power of two

			build := func(id uint32) [core.IMemWords]uint32 {
				return imemFrom(
					enc(isa.ADD, 2, 0, 1, int32(id)), // R2 = my id
					enc(isa.ADD, 3, 0, 0, 0),         // R3 = 0 (counter addr)
					enc(isa.ADD, 4, 0, 1, tokenAddr), // R4 = token addr
					enc(isa.ADD, 7, 0, 1, 1),         // R7 = 1
					enc(isa.ADD, 9, 0, 1, rounds),    // R9 = rounds target
					enc(isa.ADD, 10, 0, 0, 0),        // R10 = 0 (my round count)
					enc(isa.ADD, 11, 0, 1, mask),     // R11 = mask
					enc(isa.ADD, 13, 0, 1, 9),        // R13 = loop-check address
					enc(isa.ADD, 14, 0, 1, 23),       // R14 = HALT address
					enc(isa.LW, 5, 4, 0, 0),          // 9: LOOP: R5 = mem[token]
					enc(isa.BNE, 13, 5, 2, 0),        // 10: if R5 != R2 jump to R13
					enc(isa.ADD, 0, 0, 0, 0),         // 11: delay slot NOP
					enc(isa.LW, 6, 3, 0, 0),          // 12: R6 = mem[counter]
					enc(isa.ADD, 6, 6, 7, 0),         // 13: R6 += 1
					enc(isa.SW, 6, 3, 0, 0),          // 14: mem[counter] = R6
					enc(isa.ADD, 10, 10, 7, 0),       // 15: my round count += 1
					enc(isa.ADD, 8, 2, 7, 0),         // 16: R8 = my id + 1
					enc(isa.AND, 8, 8, 11, 0),        // 17: R8 &= mask
					enc(isa.SW, 8, 4, 0, 0),          // 18: mem[token] = R8
					enc(isa.BEQ, 14, 10, 9, 0),       // 19: if round count == rounds jump to R14
					enc(isa.ADD, 0, 0, 0, 0),         // 20: delay slot NOP
					enc(isa.JAL, 13, 0, 0, 0),        // 21: jump back to R13
					enc(isa.ADD, 0, 0, 0, 0),         // 22: delay slot NOP
					enc(isa.HALT, 0, 0, 0, 0),        // 23
				)
			}

			imem := [bus.NumCores][core.IMemWords]uint32{build(0), build(1), build(2), build(3)}
			s := sim.New(imem, make([]uint32, 16), sim.Config{})
			s.Run()

			Expect(s.Mem.Read(counterAddr)).To(Equal(uint32(rounds * bus.NumCores)))
		})
	})
})
