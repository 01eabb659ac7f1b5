package sim

import (
	"os"
	"strconv"
)

// Config holds the two environment-variable-sourced knobs the
// reference simulator exposes: an optional cycle cap and an optional
// per-cycle branch-resolution debug trace.
type Config struct {
	MaxCycles   int // <= 0 means uncapped
	DebugBranch bool
}

// LoadConfig reads SIM_MAX_CYCLES and SIM_DEBUG_BRANCH from the
// process environment. An absent or unparseable SIM_MAX_CYCLES means
// uncapped; the original C source's atoi treats "0" and "not a
// number" identically (both come back as 0), which would silently cap
// a simulation to zero cycles. This port only treats a valid, present
// positive integer as a real cap; zero, a negative value, and a
// present-but-invalid value are all treated the same as absent.
func LoadConfig() Config {
	var cfg Config
	if v, ok := os.LookupEnv("SIM_MAX_CYCLES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxCycles = n
		}
	}
	_, cfg.DebugBranch = os.LookupEnv("SIM_DEBUG_BRANCH")
	return cfg
}
