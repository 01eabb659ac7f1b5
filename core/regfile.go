// Package core implements a single processor core: its 16-word
// register file, the five pipeline latches, and the per-cycle advance
// rule that ties decode-time hazard stalls, delay-slot branches, and
// the private cache together with no forwarding.
package core

// RegisterFile holds the 16 architectural registers of one core. R0
// always reads as zero and ignores writes. R1 is not an ordinary
// register: it mirrors the decode-stage instruction's immediate and is
// never a legal write target through the normal commit path.
type RegisterFile struct {
	regs [16]uint32
}

// Read returns the value of register r, or 0 for R0.
func (rf *RegisterFile) Read(r uint8) uint32 {
	if r == 0 {
		return 0
	}
	return rf.regs[r]
}

// Write commits a value to register r. Writes to R0 or R1 are ignored;
// callers only reach this path via isa.DestReg, which already excludes
// both, but the guard is kept so a misuse fails safe rather than
// silently corrupting R1's immediate mirror.
func (rf *RegisterFile) Write(r uint8, val uint32) {
	if r <= 1 {
		return
	}
	rf.regs[r] = val
}

// SetImmediateMirror updates R1 to the decode-stage instruction's
// immediate. It bypasses the R1 write guard because this is the one
// legitimate way R1 ever changes, and happens unconditionally every
// cycle a decode-stage instruction is present, independent of stalls.
func (rf *RegisterFile) SetImmediateMirror(imm int32) {
	rf.regs[1] = uint32(imm)
}

// Snapshot2to15 returns R2..R15 in order, the slice written to
// regout/coretrace output.
func (rf *RegisterFile) Snapshot2to15() [14]uint32 {
	var out [14]uint32
	copy(out[:], rf.regs[2:16])
	return out
}
