package emu

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// EntryType tags a sync stack entry with the instruction that pushed it.
type EntryType uint8

// Sync stack entry types.
const (
	EntryNotControl   EntryType = iota
	EntryBranch                 // BRA divergence
	EntrySync                   // SSY
	EntryLoopBreak              // PBK
	EntryLoopContinue           // PCNT
)

func (t EntryType) String() string {
	switch t {
	case EntryBranch:
		return "BRA"
	case EntrySync:
		return "SSY"
	case EntryLoopBreak:
		return "PBK"
	case EntryLoopContinue:
		return "PCNT"
	default:
		return "NONE"
	}
}

// MaskType selects how Mask walks the stack.
type MaskType uint8

// Mask types.
const (
	MaskBreak MaskType = iota
	MaskContinue
	MaskExit
)

func (t MaskType) String() string {
	switch t {
	case MaskBreak:
		return "BRK"
	case MaskContinue:
		return "CONT"
	default:
		return "EXIT"
	}
}

// SyncEntry is one pending reconvergence point.
type SyncEntry struct {
	Addr uint32    // Reconvergence address
	Mask uint32    // Lanes that resume at Addr
	Type EntryType // Instruction that created the entry
}

// SyncStack tracks the pending reconvergence points of one warp.
//
// The entries slice, oldest first, is the only record of the stack. The
// pending map counts entries per address so the per-instruction Pop check
// does not scan; only push and removeIf touch it.
type SyncStack struct {
	entries []SyncEntry
	pending map[uint32]int
}

// NewSyncStack creates an empty sync stack.
func NewSyncStack() *SyncStack {
	return &SyncStack{
		pending: make(map[uint32]int),
	}
}

// Len returns the number of pending entries.
func (s *SyncStack) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries, oldest first.
func (s *SyncStack) Entries() []SyncEntry {
	return append([]SyncEntry(nil), s.entries...)
}

// Has reports whether any entry waits at addr.
func (s *SyncStack) Has(addr uint32) bool {
	return s.pending[addr] > 0
}

// Push records a new reconvergence point. Only Branch entries may share an
// address with another entry of a different type; two structured entries
// at one address are an error.
func (s *SyncStack) Push(addr, mask uint32, t EntryType) error {
	if t != EntryBranch && s.pending[addr] > 0 {
		for _, e := range s.entries {
			if e.Addr == addr && e.Type != EntryBranch {
				return fmt.Errorf("%w: %s at 0x%X already pending as %s",
					ErrStackInconsistency, t, addr, e.Type)
			}
		}
	}

	s.push(SyncEntry{Addr: addr, Mask: mask, Type: t})
	return nil
}

// Pop removes every entry waiting at addr and returns the union of their
// masks.
func (s *SyncStack) Pop(addr uint32) (bool, uint32) {
	if s.pending[addr] == 0 {
		return false, 0
	}

	mask, _ := s.removeIf(func(e SyncEntry) bool {
		return e.Addr == addr
	})
	return true, mask
}

// Mask removes a lane from the entries it leaves when it breaks, continues
// or exits. The walk goes from the most recent entry down:
//
//   - MaskBreak stops at the nearest PBK without touching it.
//   - MaskContinue sets the lane in the nearest PCNT and stops.
//   - MaskExit clears the lane everywhere.
//
// Entries visited before the stop lose the lane. A break or continue with
// no enclosing boundary is an error.
func (s *SyncStack) Mask(lane int, t MaskType) error {
	bit := uint32(1) << uint(lane)

	for i := len(s.entries) - 1; i >= 0; i-- {
		e := &s.entries[i]

		if t == MaskBreak && e.Type == EntryLoopBreak {
			return nil
		}
		if t == MaskContinue && e.Type == EntryLoopContinue {
			e.Mask |= bit
			return nil
		}

		e.Mask &^= bit
	}

	switch t {
	case MaskBreak:
		return fmt.Errorf("%w: BRK by lane %d without enclosing PBK",
			ErrStackInconsistency, lane)
	case MaskContinue:
		return fmt.Errorf("%w: CONT by lane %d without enclosing PCNT",
			ErrStackInconsistency, lane)
	}

	return nil
}

// PopTillTarget discards the entries whose address lies strictly between
// pc and target. It reports whether any were discarded.
func (s *SyncStack) PopTillTarget(target, pc uint32) bool {
	lo, hi := pc, target
	if lo > hi {
		lo, hi = hi, lo
	}

	_, n := s.removeIf(func(e SyncEntry) bool {
		return e.Addr > lo && e.Addr < hi
	})
	return n > 0
}

// CheckBreak returns the address of the nearest PBK entry. ok is true only
// if a PBK exists and no lane is still parked in an entry above it.
func (s *SyncStack) CheckBreak() (addr uint32, ok bool) {
	return s.checkBoundary(EntryLoopBreak)
}

// CheckContinue returns the address of the nearest PCNT entry. ok is true
// only if a PCNT exists and no lane is still parked in an entry above it.
func (s *SyncStack) CheckContinue() (addr uint32, ok bool) {
	return s.checkBoundary(EntryLoopContinue)
}

func (s *SyncStack) checkBoundary(t EntryType) (uint32, bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.Type == t {
			return e.Addr, true
		}
		if e.Mask != 0 {
			return 0, false
		}
	}
	return 0, false
}

// Dump renders the stack, most recent entry first.
func (s *SyncStack) Dump(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Sync Stack")
	t.AppendHeader(table.Row{"#", "Addr", "Mask", "Type"})

	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		t.AppendRow(table.Row{
			i,
			fmt.Sprintf("0x%04X", e.Addr),
			fmt.Sprintf("0x%08X", e.Mask),
			e.Type.String(),
		})
	}

	t.Render()
}

func (s *SyncStack) push(e SyncEntry) {
	s.entries = append(s.entries, e)
	s.pending[e.Addr]++
}

func (s *SyncStack) removeIf(match func(SyncEntry) bool) (uint32, int) {
	var mask uint32
	removed := 0

	kept := s.entries[:0]
	for _, e := range s.entries {
		if !match(e) {
			kept = append(kept, e)
			continue
		}

		mask |= e.Mask
		removed++
		if s.pending[e.Addr]--; s.pending[e.Addr] == 0 {
			delete(s.pending, e.Addr)
		}
	}
	s.entries = kept

	return mask, removed
}
