// ═══════════════════════════════════════════════════════════════════════════
// PMP32: Machine-Mode Physical Memory Protection - System Model
// ═══════════════════════════════════════════════════════════════════════════
//
// WHAT THIS IS:
// The top-level integration model: a 16-entry PMP unit behind its CSR
// register file, plus the programming helpers machine-mode firmware actually
// uses. The building blocks live in proto/pmp (entry bank, region decoder,
// recompute sequencer) and proto/csr (CSR-number decode); this file wires
// them together the way a hart's CSR plumbing does and exposes the two
// idiomatic programming patterns:
//
//   1. GrantRegion - an arbitrary [start, end) window as a TOR entry pair:
//      a permissionless TOR entry holds the lower bound, the TOR entry
//      above it carries the permissions and the upper bound. In this entry
//      bank a disabled entry contributes no bound to the TOR chain, so the
//      lower bound must come from an active entry.
//
//   2. ProtectNAPOT - a naturally aligned power-of-two region in a single
//      entry, size encoded in the address word's trailing ones.
//
// Boot firmware chains these: open windows over the peripheral space, then
// a locked, no-access region sealing the security monitor until reset.
//
// HARDWARE MODEL:
// Everything here is CSR traffic. Each helper issues plain pmpaddr/pmpcfg
// writes through the bank, address word first, configuration byte second -
// the configuration write is what (re)arms the region recompute, and a
// locking configuration byte must land after the address it freezes.
//
// ═══════════════════════════════════════════════════════════════════════════

package pmp32

import (
	"fmt"
	"strings"

	"pmp32/proto/csr"
	"pmp32/proto/pmp"
)

// Entries is the reference sizing of the system model.
const Entries = pmp.MaxEntries

// System is a hart's PMP complex: the entry bank behind its CSR file.
type System struct {
	unit *pmp.Unit
	bank *csr.Bank
}

// NewSystem builds the reference configuration: 16 entries, all OFF,
// unlocked, regions settled.
func NewSystem() *System {
	u := pmp.NewUnit(Entries)
	return &System{unit: u, bank: csr.NewBank(u)}
}

// Bank exposes the CSR front-end for raw register traffic.
func (s *System) Bank() *csr.Bank { return s.bank }

// Entry returns entry i's unpacked stored state.
func (s *System) Entry(i int) pmp.Entry { return s.unit.EntryAt(i) }

// Region returns entry i's decoded region.
func (s *System) Region(i int) pmp.Region { return s.unit.RegionAt(i) }

// Reset returns the whole complex to power-on state, clearing lock bits.
func (s *System) Reset() { s.unit.Reset() }

// WritePMP programs one entry: address word first, then its configuration
// byte via read-modify-write of the owning pmpcfg word.
//
// Writes against a locked entry succeed and change nothing, as architected.
// A locking TOR byte implicitly locks entry i-1 (see proto/pmp).
func (s *System) WritePMP(i int, addr uint32, r, w, x bool, mode pmp.Mode, lock bool) error {
	if i < 0 || i >= Entries {
		return fmt.Errorf("pmp32: entry %d out of range [0, %d)", i, Entries)
	}

	if err := s.bank.Write(csr.Pmpaddr0+uint16(i), addr); err != nil {
		return err
	}

	group := csr.Pmpcfg0 + uint16(i/pmp.EntriesPerWord)
	lane := uint(i % pmp.EntriesPerWord)

	word, err := s.bank.Read(group)
	if err != nil {
		return err
	}
	word &^= uint32(0xFF) << (8 * lane)
	word |= uint32(pmp.ConfigByte(r, w, x, mode, lock)) << (8 * lane)

	return s.bank.Write(group, word)
}

// GrantRegion opens the window [start, end) with the given permissions,
// spending entries i (permissionless TOR bound holder) and i+1 (TOR with
// the permissions and upper bound).
//
// An OFF entry cannot hold the lower bound here: disabled entries
// contribute 0 to the TOR chain. The bound holder is an active TOR entry
// with no permissions; it spans [previous bound, start) granting nothing.
//
// With lock set the window seals until reset: locking the upper TOR entry
// implicitly locks the bound holder below it.
func (s *System) GrantRegion(i int, start, end uint32, r, w, x bool, lock bool) error {
	if i+1 >= Entries {
		return fmt.Errorf("pmp32: entry pair %d,%d out of range [0, %d)", i, i+1, Entries)
	}
	if end < start {
		return fmt.Errorf("pmp32: window [%#x, %#x) is inverted", start, end)
	}

	// Bound holder first: the upper entry must land second so its chain
	// input sees the settled bound, and last so its lock (if any) freezes
	// an already-written pair.
	if err := s.WritePMP(i, start, false, false, false, pmp.ModeTOR, false); err != nil {
		return err
	}
	return s.WritePMP(i+1, end, r, w, x, pmp.ModeTOR, lock)
}

// ProtectNAPOT programs entry i as a naturally aligned power-of-two region.
// size must be a power of two of at least 8 bytes and base aligned to it.
func (s *System) ProtectNAPOT(i int, base, size uint32, r, w, x bool, lock bool) error {
	if size < 8 || size&(size-1) != 0 {
		return fmt.Errorf("pmp32: NAPOT size %#x must be a power of two >= 8", size)
	}
	if base%size != 0 {
		return fmt.Errorf("pmp32: base %#x not aligned to size %#x", base, size)
	}
	return s.WritePMP(i, base|(size/2-1), r, w, x, pmp.ModeNAPOT, lock)
}

// Describe renders the decoded protection map, one line per active entry.
// Diagnostic only; OFF entries are elided.
func (s *System) Describe() string {
	var sb strings.Builder
	for i := 0; i < Entries; i++ {
		e := s.Entry(i)
		if e.Mode == pmp.ModeOff && !e.Locked {
			continue
		}
		r := s.Region(i)
		fmt.Fprintf(&sb, "%2d %-5s %c%c%c%c %s\n",
			i, e.Mode, flag(e.R, 'r'), flag(e.W, 'w'), flag(e.X, 'x'),
			flag(e.Locked, 'l'), r)
	}
	return sb.String()
}

func flag(on bool, c byte) byte {
	if on {
		return c
	}
	return '-'
}
