package sim

import (
	"fmt"
	"os"

	"github.com/sarchlab/msim/bus"
	"github.com/sarchlab/msim/core"
	"github.com/sarchlab/msim/memory"
)

// FileSet names the 27 files the CLI wires, in the exact positional
// order the driver's usage message lists them: imem0..3, memin,
// memout, regout0..3, coretrace0..3, bustrace, dsram0..3, tsram0..3,
// stats0..3.
type FileSet struct {
	Imem      [bus.NumCores]string
	Memin     string
	Memout    string
	Regout    [bus.NumCores]string
	Coretrace [bus.NumCores]string
	Bustrace  string
	Dsram     [bus.NumCores]string
	Tsram     [bus.NumCores]string
	Stats     [bus.NumCores]string
}

// DefaultFileSet is the filenames the driver falls back to when
// invoked with no arguments.
func DefaultFileSet() FileSet {
	return FileSet{
		Imem:      [bus.NumCores]string{"imem0.txt", "imem1.txt", "imem2.txt", "imem3.txt"},
		Memin:     "memin.txt",
		Memout:    "memout.txt",
		Regout:    [bus.NumCores]string{"regout0.txt", "regout1.txt", "regout2.txt", "regout3.txt"},
		Coretrace: [bus.NumCores]string{"core0trace.txt", "core1trace.txt", "core2trace.txt", "core3trace.txt"},
		Bustrace:  "bustrace.txt",
		Dsram:     [bus.NumCores]string{"dsram0.txt", "dsram1.txt", "dsram2.txt", "dsram3.txt"},
		Tsram:     [bus.NumCores]string{"tsram0.txt", "tsram1.txt", "tsram2.txt", "tsram3.txt"},
		Stats:     [bus.NumCores]string{"stats0.txt", "stats1.txt", "stats2.txt", "stats3.txt"},
	}
}

// FileSetFromArgs builds a FileSet from exactly 27 positional
// filenames, in FileSet's field order. The caller is responsible for
// having already checked len(args) == 27.
func FileSetFromArgs(args []string) FileSet {
	var fs FileSet
	i := 0
	next := func() string {
		v := args[i]
		i++
		return v
	}
	for k := range fs.Imem {
		fs.Imem[k] = next()
	}
	fs.Memin = next()
	fs.Memout = next()
	for k := range fs.Regout {
		fs.Regout[k] = next()
	}
	for k := range fs.Coretrace {
		fs.Coretrace[k] = next()
	}
	fs.Bustrace = next()
	for k := range fs.Dsram {
		fs.Dsram[k] = next()
	}
	for k := range fs.Tsram {
		fs.Tsram[k] = next()
	}
	for k := range fs.Stats {
		fs.Stats[k] = next()
	}
	return fs
}

// Load builds a Simulator by reading the four instruction images and
// the memin data image named in fs.
func Load(fs FileSet, cfg Config) (*Simulator, error) {
	var imem [bus.NumCores][core.IMemWords]uint32
	for i := range imem {
		if err := memory.Load(fs.Imem[i], imem[i][:]); err != nil {
			return nil, fmt.Errorf("loading %s: %w", fs.Imem[i], err)
		}
	}
	s := New(imem, nil, cfg)
	if err := s.Mem.LoadInto(fs.Memin); err != nil {
		return nil, fmt.Errorf("loading %s: %w", fs.Memin, err)
	}
	return s, nil
}

// OpenTraces opens every trace output file named in fs and wires them
// into s. On success the caller owns the returned files and must
// close them once the run finishes; on failure any files already
// opened are closed before the error is returned.
func (s *Simulator) OpenTraces(fs FileSet) ([]*os.File, error) {
	var opened []*os.File
	fail := func(err error) ([]*os.File, error) {
		for _, f := range opened {
			f.Close()
		}
		return nil, err
	}

	for i := range s.Cores {
		f, err := os.Create(fs.Coretrace[i])
		if err != nil {
			return fail(fmt.Errorf("create %s: %w", fs.Coretrace[i], err))
		}
		opened = append(opened, f)
		s.SetCoreTrace(i, f)
	}

	f, err := os.Create(fs.Bustrace)
	if err != nil {
		return fail(fmt.Errorf("create %s: %w", fs.Bustrace, err))
	}
	opened = append(opened, f)
	s.SetBusTrace(f)

	return opened, nil
}

// WriteOutputs writes memout, regout{i}, dsram{i}, tsram{i}, and
// stats{i} for every core after a run has finished.
func (s *Simulator) WriteOutputs(fs FileSet) error {
	if err := s.Mem.SaveTrimmed(fs.Memout); err != nil {
		return fmt.Errorf("writing %s: %w", fs.Memout, err)
	}

	for i, c := range s.Cores {
		regs := c.Regs.Snapshot2to15()
		if err := memory.WriteFull(fs.Regout[i], regs[:]); err != nil {
			return fmt.Errorf("writing %s: %w", fs.Regout[i], err)
		}
		if err := memory.WriteFull(fs.Dsram[i], c.Cache.Data[:]); err != nil {
			return fmt.Errorf("writing %s: %w", fs.Dsram[i], err)
		}
		if err := memory.WriteFull(fs.Tsram[i], tsramWords(c)); err != nil {
			return fmt.Errorf("writing %s: %w", fs.Tsram[i], err)
		}
		if err := writeStats(fs.Stats[i], c.Stats); err != nil {
			return err
		}
	}
	return nil
}

// tsramWords packs each line's state and tag into the dump encoding
// spec.md section 6 defines: (state << 12) | (tag & 0xFFF).
func tsramWords(c *core.Core) []uint32 {
	words := make([]uint32, len(c.Cache.Tag))
	for i := range words {
		words[i] = uint32(c.Cache.State[i])<<12 | uint32(c.Cache.Tag[i]&0xFFF)
	}
	return words
}

// writeStats writes the eight labeled counter lines the reference
// driver produces per core.
func writeStats(path string, st core.Statistics) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f,
		"cycles %d\ninstructions %d\nread_hit %d\nwrite_hit %d\nread_miss %d\nwrite_miss %d\ndecode_stall %d\nmem_stall %d\n",
		st.Cycles, st.Instructions, st.ReadHits, st.WriteHits,
		st.ReadMisses, st.WriteMisses, st.DecodeStalls, st.MemStalls)
	return err
}
