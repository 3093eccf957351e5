// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PMP32 CSR Register Bank Front-End
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// OVERVIEW:
// ─────────
// The PMP entry bank is software-visible through the machine-mode CSR file:
//
//	pmpcfg0..pmpcfg3    0x3A0-0x3A3   one packed word per 4 entries
//	pmpaddr0..pmpaddr15 0x3B0-0x3BF   one raw address word per entry
//
// This package is the bus-side decoder: it turns a CSR number into the
// select line (configuration space vs address space) and index that the
// entry bank consumes, and routes reads and writes accordingly.
//
// Error model differs from the core on purpose. Inside the unit an
// out-of-range index is a caller bug and panics; here the "index" is an
// arbitrary CSR number chosen by guest software, so decode failure is a
// runtime condition reported as ErrUnknownCSR (the hardware would raise an
// illegal-instruction exception at this boundary).
//
// HARDWARE MODEL:
// ───────────────
// Address decoder + two strobe fans. Writes drive the unit's recompute pass
// to completion before the call returns, modeling the bus stall while the
// unit walks the region table.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package csr

import (
	"errors"
	"fmt"

	"pmp32/proto/pmp"
)

// Machine-mode CSR numbers for the PMP register group.
//
// SystemVerilog equivalent:
//   parameter CSR_PMPCFG0  = 12'h3A0;
//   parameter CSR_PMPADDR0 = 12'h3B0;
const (
	Pmpcfg0  uint16 = 0x3A0
	Pmpaddr0 uint16 = 0x3B0
)

// ErrUnknownCSR reports a CSR number outside the PMP windows implemented by
// the attached unit.
var ErrUnknownCSR = errors.New("csr: unknown PMP CSR")

// Bank decodes PMP CSR accesses onto a unit.
type Bank struct {
	unit *pmp.Unit
}

// NewBank wraps u with the CSR-number decode.
func NewBank(u *pmp.Unit) *Bank {
	return &Bank{unit: u}
}

// Write stores v through CSR number csr.
//
// Configuration-word and address writes drain the unit's recompute pass
// before returning. If the unit is mid-pass when the write arrives (a caller
// mixing in the step-level API), pmp.ErrBusy is surfaced and nothing is
// stored; locked-entry drops inside the unit remain silent, as architected.
func (b *Bank) Write(csr uint16, v uint32) error {
	space, index, err := b.decode(csr)
	if err != nil {
		return err
	}

	if space == spaceConfig {
		err = b.unit.RequestConfigWrite(index, v)
	} else {
		err = b.unit.RequestAddressWrite(index, v)
	}
	if err != nil {
		return fmt.Errorf("csr %#03x: %w", csr, err)
	}

	// Bus stall: hold until the region table settles.
	for !b.unit.Step() {
	}
	return nil
}

// Read returns the value behind CSR number csr, from settled unit state.
func (b *Bank) Read(csr uint16) (uint32, error) {
	space, index, err := b.decode(csr)
	if err != nil {
		return 0, err
	}
	if space == spaceConfig {
		return b.unit.ReadConfigWord(index), nil
	}
	return b.unit.ReadAddress(index), nil
}

type space uint8

const (
	spaceConfig space = iota
	spaceAddress
)

// decode maps a CSR number to (select, index) against the unit's configured
// size. Hardware: the CSR address comparator pair.
func (b *Bank) decode(csr uint16) (space, int, error) {
	switch {
	case csr >= Pmpcfg0 && int(csr-Pmpcfg0) < b.unit.Groups():
		return spaceConfig, int(csr - Pmpcfg0), nil
	case csr >= Pmpaddr0 && int(csr-Pmpaddr0) < b.unit.Entries():
		return spaceAddress, int(csr - Pmpaddr0), nil
	}
	return 0, 0, fmt.Errorf("%w: %#03x", ErrUnknownCSR, csr)
}
