package core

import "github.com/sarchlab/msim/isa"

// alu evaluates the Exec-stage result for every opcode that reaches
// Mem as a plain register value rather than a memory address. JAL's
// result is the return address, PC+1, not an operand combination.
func alu(inst isa.Instruction, rs, rt uint32) uint32 {
	switch inst.Op {
	case isa.ADD:
		return rs + rt
	case isa.SUB:
		return rs - rt
	case isa.AND:
		return rs & rt
	case isa.OR:
		return rs | rt
	case isa.XOR:
		return rs ^ rt
	case isa.MUL:
		return rs * rt
	case isa.SLL:
		return rs << (rt & 0x1F)
	case isa.SRA:
		return uint32(int32(rs) >> (rt & 0x1F))
	case isa.SRL:
		return rs >> (rt & 0x1F)
	case isa.JAL:
		return uint32(inst.PC+1) & 0x3FF
	default:
		return 0
	}
}

// compare evaluates a branch's taken/not-taken condition. rs and rt
// are the branch's own Rs/Rt operands read as signed values.
func compare(op isa.Opcode, rs, rt int32) bool {
	switch op {
	case isa.BEQ:
		return rs == rt
	case isa.BNE:
		return rs != rt
	case isa.BLT:
		return rs < rt
	case isa.BGT:
		return rs > rt
	case isa.BLE:
		return rs <= rt
	case isa.BGE:
		return rs >= rt
	default:
		return false
	}
}
