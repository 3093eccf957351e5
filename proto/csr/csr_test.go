package csr

import (
	"errors"
	"testing"

	"pmp32/proto/pmp"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PMP32 CSR Front-End - Test Suite
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Verifies the CSR-number decode (select line + index) and the bus-side
// error model against a live unit. Entry-bank semantics themselves are
// covered in proto/pmp.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestBank_ConfigWindowDecode(t *testing.T) {
	// WHAT: 0x3A0+g selects configuration group g
	// WHY: The cfg window is the select line's first leg
	// HARDWARE: csr[11:4] == 0x3A comparator, low bits index the group

	b := NewBank(pmp.NewUnit(16))

	for g := uint16(0); g < 4; g++ {
		word := uint32(pmp.ConfigByte(true, false, false, pmp.ModeNA4, false)) << (8 * (g % 4))
		if err := b.Write(Pmpcfg0+g, word); err != nil {
			t.Fatalf("write pmpcfg%d: %v", g, err)
		}
		got, err := b.Read(Pmpcfg0 + g)
		if err != nil {
			t.Fatalf("read pmpcfg%d: %v", g, err)
		}
		if got != word {
			t.Errorf("pmpcfg%d = %#08x, want %#08x", g, got, word)
		}
	}
}

func TestBank_AddressWindowDecode(t *testing.T) {
	// WHAT: 0x3B0+i selects address entry i
	// WHY: The addr window is the select line's second leg
	// HARDWARE: csr[11:4] == 0x3B comparator, low bits index the entry

	b := NewBank(pmp.NewUnit(16))

	for i := uint16(0); i < 16; i++ {
		v := uint32(0x1000) * uint32(i+1)
		if err := b.Write(Pmpaddr0+i, v); err != nil {
			t.Fatalf("write pmpaddr%d: %v", i, err)
		}
		got, err := b.Read(Pmpaddr0 + i)
		if err != nil {
			t.Fatalf("read pmpaddr%d: %v", i, err)
		}
		if got != v {
			t.Errorf("pmpaddr%d = %#x, want %#x", i, got, v)
		}
	}
}

func TestBank_UnknownCSR(t *testing.T) {
	// WHAT: CSR numbers outside both windows fail with ErrUnknownCSR
	// WHY: Bus-level decode failure is a runtime condition, not a panic
	// HARDWARE: Illegal-instruction exception at the CSR file

	b := NewBank(pmp.NewUnit(16))

	for _, csr := range []uint16{0x000, 0x300, 0x39F, 0x3A4, 0x3AF, 0x3C0, 0xFFF} {
		if err := b.Write(csr, 0); !errors.Is(err, ErrUnknownCSR) {
			t.Errorf("write %#03x: err = %v, want ErrUnknownCSR", csr, err)
		}
		if _, err := b.Read(csr); !errors.Is(err, ErrUnknownCSR) {
			t.Errorf("read %#03x: err = %v, want ErrUnknownCSR", csr, err)
		}
	}
}

func TestBank_WindowsShrinkWithUnitSize(t *testing.T) {
	// WHAT: With an 8-entry unit, pmpcfg2+ and pmpaddr8+ are unmapped
	// WHY: The decode windows track the build-time entry count
	// HARDWARE: Comparator width derives from the N parameter

	b := NewBank(pmp.NewUnit(8))

	if err := b.Write(Pmpcfg0+1, 0); err != nil {
		t.Errorf("pmpcfg1 should be mapped: %v", err)
	}
	if err := b.Write(Pmpcfg0+2, 0); !errors.Is(err, ErrUnknownCSR) {
		t.Errorf("pmpcfg2 on 8-entry unit: err = %v, want ErrUnknownCSR", err)
	}
	if err := b.Write(Pmpaddr0+7, 0x40); err != nil {
		t.Errorf("pmpaddr7 should be mapped: %v", err)
	}
	if _, err := b.Read(Pmpaddr0 + 8); !errors.Is(err, ErrUnknownCSR) {
		t.Errorf("pmpaddr8 on 8-entry unit: err = %v, want ErrUnknownCSR", err)
	}
}

func TestBank_WriteSettlesRegionTable(t *testing.T) {
	// WHAT: After a Bank.Write returns, the region table is fully settled
	// WHY: The bus stalls through the recompute pass; callers never see BUSY
	// HARDWARE: Write strobe held until the FSM parks

	u := pmp.NewUnit(4)
	b := NewBank(u)

	if err := b.Write(Pmpaddr0, 0x3); err != nil { // NAPOT [0, 2)
		t.Fatal(err)
	}
	if err := b.Write(Pmpaddr0+1, 0x40); err != nil {
		t.Fatal(err)
	}
	word := uint32(pmp.ConfigByte(true, false, false, pmp.ModeNAPOT, false)) |
		uint32(pmp.ConfigByte(true, false, false, pmp.ModeTOR, false))<<8
	if err := b.Write(Pmpcfg0, word); err != nil {
		t.Fatal(err)
	}

	if u.Busy() {
		t.Error("unit still BUSY after Bank.Write returned")
	}
	if r := u.RegionAt(1); r.Low != 2 || r.High != 0x10 {
		t.Errorf("entry 1 = [%#x, %#x), want [2, 0x10)", r.Low, r.High)
	}
}

func TestBank_BusySurfacedFromStepLevelAPI(t *testing.T) {
	// WHAT: A CSR write racing an externally driven pass reports ErrBusy
	// WHY: The bank refuses rather than interleaving into a walking FSM
	// HARDWARE: CSR write strobe ignored while busy; software retries

	u := pmp.NewUnit(4)
	b := NewBank(u)

	if err := u.RequestConfigWrite(0, 0); err != nil {
		t.Fatal(err)
	}
	// Pass in flight, no steps taken yet.
	if err := b.Write(Pmpaddr0, 0x40); !errors.Is(err, pmp.ErrBusy) {
		t.Errorf("write during pass: err = %v, want pmp.ErrBusy", err)
	}

	for !u.Step() {
	}
	if err := b.Write(Pmpaddr0, 0x40); err != nil {
		t.Errorf("write after pass settled: %v", err)
	}
}

func TestBank_LockedLaneDropSilent(t *testing.T) {
	// WHAT: A CSR write hitting a locked entry succeeds at the bus level
	//       and simply leaves the entry unchanged
	// WHY: Locked drops are architecturally silent; only decode failures err
	// HARDWARE: No bus fault from the lock gate

	u := pmp.NewUnit(4)
	b := NewBank(u)

	if err := b.Write(Pmpaddr0, 0x1000); err != nil {
		t.Fatal(err)
	}
	if err := b.Write(Pmpcfg0, uint32(pmp.ConfigByte(true, false, false, pmp.ModeNAPOT, true))); err != nil {
		t.Fatal(err)
	}

	if err := b.Write(Pmpaddr0, 0xFFFF); err != nil {
		t.Errorf("locked-entry write should succeed silently: %v", err)
	}
	got, _ := b.Read(Pmpaddr0)
	if got != 0x1000 {
		t.Errorf("locked pmpaddr0 = %#x, want 0x1000", got)
	}
}
