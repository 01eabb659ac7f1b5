// Package trace formats the per-cycle pipeline and bus trace lines
// written to each core's coretrace file and the shared bustrace file.
// A line is only ever emitted for a cycle that actually did something:
// a coretrace line requires at least one valid latch, a bustrace line
// requires the bus to be driving a command.
package trace

import (
	"fmt"
	"io"

	"github.com/sarchlab/msim/bus"
	"github.com/sarchlab/msim/core"
)

// CoreWriter formats and writes coretrace lines for one core.
type CoreWriter struct {
	w io.Writer
}

// NewCoreWriter wraps w as a coretrace destination.
func NewCoreWriter(w io.Writer) *CoreWriter {
	return &CoreWriter{w: w}
}

// stageField renders a pipeline stage's PC as a 3-hex-digit field, or
// "---" when the stage holds no instruction.
func stageField(valid bool, pc uint16) string {
	if !valid {
		return "---"
	}
	return fmt.Sprintf("%03X", pc&0x3FF)
}

// Write emits one coretrace line for cycle if the snapshot has at
// least one valid latch; it is a no-op otherwise.
func (cw *CoreWriter) Write(cycle uint64, snap core.Snapshot) error {
	if !snap.AnyValid() {
		return nil
	}
	line := fmt.Sprintf("%d %s %s %s %s %s",
		cycle,
		stageField(snap.FValid, snap.FPC),
		stageField(snap.DValid, snap.DPC),
		stageField(snap.EValid, snap.EPC),
		stageField(snap.MValid, snap.MPC),
		stageField(snap.WValid, snap.WPC),
	)
	for _, r := range snap.Regs {
		line += fmt.Sprintf(" %08X", r)
	}
	_, err := fmt.Fprintln(cw.w, line)
	return err
}

// BusWriter formats and writes bustrace lines shared by all cores.
type BusWriter struct {
	w io.Writer
}

// NewBusWriter wraps w as the bustrace destination.
func NewBusWriter(w io.Writer) *BusWriter {
	return &BusWriter{w: w}
}

// Write emits one bustrace line for cycle if the bus drove a command
// this cycle; it is a no-op when out.Cmd is bus.CmdNone.
func (bw *BusWriter) Write(cycle uint64, out bus.Output) error {
	if out.Cmd == bus.CmdNone {
		return nil
	}
	shared := 0
	if out.Shared {
		shared = 1
	}
	_, err := fmt.Fprintf(bw.w, "%d %01X %01X %05X %08X %01X\n",
		cycle, out.Origin, out.Cmd, out.Addr&cache20Mask, out.Data, shared)
	return err
}

// cache20Mask keeps the address field within the bus's 20-bit word
// address space when formatting bustrace lines.
const cache20Mask = (1 << 20) - 1
