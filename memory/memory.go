// Package memory implements the flat main-memory backing store shared
// by all four cores' caches, plus the hex-text file format the CLI
// driver uses to load and dump it.
package memory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sarchlab/msim/cache"
)

// Words is the largest main memory this simulator ever allocates: 2^20
// 32-bit words, the Non-goal cap named in spec.md section 1.
const Words = 1 << 20

// Memory is a flat array of words, addressed modulo Words.
type Memory struct {
	words []uint32
}

// New allocates a zeroed memory of the maximum size.
func New() *Memory {
	return &Memory{words: make([]uint32, Words)}
}

// Read returns the word at addr (masked to 20 bits internally by every
// caller before it reaches here; Read itself also masks defensively).
func (m *Memory) Read(addr uint32) uint32 {
	return m.words[addr&(Words-1)]
}

// Write stores a word at addr.
func (m *Memory) Write(addr uint32, val uint32) {
	m.words[addr&(Words-1)] = val
}

// ReadBlock returns the BlockWords-word block starting at a block-aligned
// baseAddr, wrapping addresses modulo Words.
func (m *Memory) ReadBlock(baseAddr uint32) cache.Block {
	var b cache.Block
	for i := 0; i < cache.BlockWords; i++ {
		b[i] = m.Read(baseAddr + uint32(i))
	}
	return b
}

// WriteBlock stores an 8-word block at a block-aligned baseAddr. This is
// the method that satisfies cache.BackingStore, used on eviction of a
// dirty line and on transaction-completion flush.
func (m *Memory) WriteBlock(baseAddr uint32, block cache.Block) {
	for i := 0; i < cache.BlockWords; i++ {
		m.Write(baseAddr+uint32(i), block[i])
	}
}

// Load populates memory from a hex-text file: one 8-hex-digit word per
// line, up to len(dst) lines; any word beyond the file's length stays
// zero. Every input file in this simulator (instruction and data
// memory images) shares this exact format. A line that fails to parse
// as hex leaves that word at zero rather than aborting the load,
// matching the reference loader's sscanf-into-a-zeroed-variable
// behavior.
func Load(path string, dst []uint32) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	idx := 0
	for idx < len(dst) && scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			idx++
			continue
		}
		val, err := strconv.ParseUint(line, 16, 32)
		if err != nil {
			idx++
			continue
		}
		dst[idx] = uint32(val)
		idx++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// LoadInto reads a hex-text file into this memory's backing array.
func (m *Memory) LoadInto(path string) error {
	return Load(path, m.words)
}

// LoadWords copies words into memory starting at address 0, for
// callers that already have a memory image in hand rather than a file
// path (tests, and any future embedder of this simulator).
func (m *Memory) LoadWords(words []uint32) {
	copy(m.words, words)
}

// WriteFull dumps every word, one 8-hex-digit uppercase word per line,
// with no trimming. Used for dsram/tsram dumps.
func WriteFull(path string, words []uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return writeWords(f, words)
}

// WriteTrimmed dumps words, dropping any trailing run of zero
// words before writing. Used for the memout dump.
func WriteTrimmed(path string, words []uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	last := len(words) - 1
	for last >= 0 && words[last] == 0 {
		last--
	}
	return writeWords(f, words[:last+1])
}

// SaveTrimmed dumps this memory's contents, trailing zero words dropped.
func (m *Memory) SaveTrimmed(path string) error {
	return WriteTrimmed(path, m.words)
}

func writeWords(w io.Writer, words []uint32) error {
	bw := bufio.NewWriter(w)
	for _, v := range words {
		if _, err := fmt.Fprintf(bw, "%08X\n", v); err != nil {
			return err
		}
	}
	return bw.Flush()
}
