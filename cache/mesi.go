// Package cache implements the private, direct-mapped, write-back cache
// each core owns. Coherence transitions are driven from outside by the
// bus package during snoop and fill; this package only knows how to
// look up, read, write, and fill a single cache's own lines.
package cache

// MESIState is a cache line's coherence state.
type MESIState uint8

// MESI states, matching the tsram encoding in section 6 of the spec
// exactly: state occupies bits [13:12] of the dumped word.
const (
	Invalid   MESIState = 0
	Shared    MESIState = 1
	Exclusive MESIState = 2
	Modified  MESIState = 3
)

// String names a MESI state for trace and debug output.
func (s MESIState) String() string {
	switch s {
	case Invalid:
		return "I"
	case Shared:
		return "S"
	case Exclusive:
		return "E"
	case Modified:
		return "M"
	default:
		return "?"
	}
}
