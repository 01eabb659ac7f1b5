// Command msim runs the four-core cache-coherent pipeline simulator
// against a set of instruction and data memory images, producing
// trace, dump, and statistics files.
package main

import (
	"fmt"
	"os"

	"github.com/sarchlab/msim/sim"
)

const usage = "usage: msim imem0.txt imem1.txt imem2.txt imem3.txt memin.txt memout.txt " +
	"regout0.txt regout1.txt regout2.txt regout3.txt " +
	"core0trace.txt core1trace.txt core2trace.txt core3trace.txt bustrace.txt " +
	"dsram0.txt dsram1.txt dsram2.txt dsram3.txt tsram0.txt tsram1.txt tsram2.txt tsram3.txt " +
	"stats0.txt stats1.txt stats2.txt stats3.txt\n"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var fs sim.FileSet
	switch len(args) {
	case 0:
		fs = sim.DefaultFileSet()
	case 27:
		fs = sim.FileSetFromArgs(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
		return nil
	}

	cfg := sim.LoadConfig()

	s, err := sim.Load(fs, cfg)
	if err != nil {
		return err
	}

	if cfg.DebugBranch {
		s.SetDebugBranchSink(os.Stderr)
	}

	traceFiles, err := s.OpenTraces(fs)
	if err != nil {
		return err
	}
	defer func() {
		for _, f := range traceFiles {
			f.Close()
		}
	}()

	s.Run()

	return s.WriteOutputs(fs)
}
