// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PMP32 Physical Memory Protection Unit - Go Reference Model
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// OVERVIEW:
// ─────────
// This file implements the RISC-V PMP (Physical Memory Protection) entry bank:
// the machine-mode register file that stores per-region access-control
// configuration and decodes each entry into an inclusive address range.
//
// The unit owns three pieces of state:
//
//   1. Configuration bank: N entry bytes packed 4-per-word (pmpcfg registers)
//   2. Address bank:       N raw 32-bit address words (pmpaddr registers)
//   3. Region table:       N decoded [low, high) bounds in word units
//
// Every configuration or address write is followed by a recompute pass that
// walks the region table in ascending entry order. The walk must be ascending
// because TOR (top-of-range) entries chain: a TOR entry's lower bound is the
// previous entry's upper bound, so entry i cannot settle before entry i-1.
//
// Access checking (matching a load/store/fetch address against the decoded
// regions) lives outside this unit; so does trap delivery. This model covers
// storage, locking, and bound decoding only - the part worth verifying
// against RTL cycle by cycle.
//
// HARDWARE MODEL:
// ───────────────
// This Go code is a reference model for the RTL entry bank. The register file
// maps to flip-flop arrays, the region decoder to combinational logic, and
// the recompute pass to a small FSM that retires one entry per cycle while
// holding off new CSR writes. Run the test vectors in pmp_test.go against the
// RTL; identical outputs mean the hardware is correct.
//
// STYLE GUIDELINES FOR HARDWARE MAPPING:
// ──────────────────────────────────────
//   1. Bitwise operations instead of boolean conditionals where possible
//   2. Intermediate wires explicitly named
//   3. Loops represent generate blocks or FSM steps (noted per function)
//   4. Constants are parameters (synthesizable)
//
// SYSTEMVERILOG MAPPING:
// ──────────────────────
//   Go function       → SV always_comb block or module
//   Go struct fields  → SV packed struct or register banks
//   Go method w/ ptr  → SV always_ff (sequential, modifies state)
//   Go method w/o ptr → SV always_comb (combinational, pure function)
//   Step()            → one clock edge of the recompute FSM
//
// KEY CONCEPTS:
// ─────────────
//
// ADDRESSING MODES:
//   OFF   - entry disabled, decodes to an invalid region
//   TOR   - top-of-range: [previous entry's high, this address >> 2)
//   NA4   - naturally aligned 4-byte region at this address
//   NAPOT - naturally aligned power-of-two region; the trailing-ones run of
//           the raw address encodes the size
//
// LOCK BIT:
//   Once an entry's L bit is set, its configuration byte and address word are
//   frozen until full reset. Writes to a locked entry are silently dropped,
//   never faulted. Locking a TOR entry additionally freezes the previous
//   entry's address (it forms the locked range's lower bound), modeled by
//   forcing the predecessor's L bit.
//
// RECOMPUTE ASYMMETRY:
//   A configuration-word write recomputes all N regions (a mode change at any
//   entry can move every later TOR bound). An address write recomputes only
//   the written entry. The single-entry pass does NOT cascade into later TOR
//   entries whose lower bound derives from this entry's high - a preserved
//   limitation of the modeled hardware, pinned by test, not silently fixed.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package pmp

import (
	"errors"
	"fmt"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PARAMETERS
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// SystemVerilog equivalent:
//   parameter MAX_ENTRIES      = 16;
//   parameter ENTRIES_PER_WORD = 4;
//   parameter CFG_WORD_WIDTH   = 32;
//   parameter ADDR_WIDTH       = 32;
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

const (
	// MaxEntries: upper bound on the entry count. The RISC-V privileged
	// architecture allows up to 64 PMP entries; this core is sized for 16.
	// Hardware: 16 × (8-bit cfg + 32-bit addr) register slices.
	MaxEntries = 16

	// EntriesPerWord: cfg bytes packed into one 32-bit pmpcfg word.
	// Hardware: 4 byte lanes per cfg register.
	EntriesPerWord = 4
)

// Configuration byte layout (one byte per entry, 4 per cfg word):
//
//	bit 0    R  read permission
//	bit 1    W  write permission
//	bit 2    X  execute permission
//	bits 3-4 A  addressing mode (00 OFF, 01 TOR, 10 NA4, 11 NAPOT)
//	bits 5-6    reserved, read as zero
//	bit 7    L  lock
//
// Hardware: the reserved lanes have no flip-flops; writes to them are masked.
const (
	cfgR = 1 << 0
	cfgW = 1 << 1
	cfgX = 1 << 2

	cfgModeShift = 3
	cfgModeMask  = 0x3 << cfgModeShift

	cfgL = 1 << 7

	// cfgWriteMask: bits that exist in the register. Reserved bits 5-6 are
	// dropped on store so reads always return them as zero.
	cfgWriteMask = cfgR | cfgW | cfgX | cfgModeMask | cfgL
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ADDRESSING MODE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Mode is an entry's addressing mode, decoded from cfg bits 3-4.
//
// Modeled as a first-class enum rather than a bare 2-bit field so the region
// decoder's mode switch is exhaustive and compiler-visible.
//
// Hardware: 2-bit field, one hot-decoded select per mode in the decoder mux.
type Mode uint8

const (
	ModeOff   Mode = 0 // entry disabled
	ModeTOR   Mode = 1 // top-of-range, chains off previous entry
	ModeNA4   Mode = 2 // fixed 4-byte region
	ModeNAPOT Mode = 3 // power-of-two region, size in trailing ones
)

// ModeFromBits extracts the mode field from a configuration byte.
//
//go:inline
func ModeFromBits(b uint8) Mode {
	// HARDWARE: 2-bit slice of the cfg byte
	return Mode((b & cfgModeMask) >> cfgModeShift)
}

// Bits returns the mode's 2-bit encoding positioned in a configuration byte.
//
//go:inline
func (m Mode) Bits() uint8 {
	return uint8(m) << cfgModeShift
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "OFF"
	case ModeTOR:
		return "TOR"
	case ModeNA4:
		return "NA4"
	case ModeNAPOT:
		return "NAPOT"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// REGION DECODER (Combinational)
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Region is one entry's decoded address range.
//
// Bounds are in word units (byte address ÷ 4): [Low, High) covers byte
// addresses [Low*4, High*4). Bounds are 64-bit so the maximal NAPOT region
// (all-ones address word) is representable without wraparound.
//
// Valid is false for OFF entries; their bounds are don't-care and held at the
// shifted raw address for determinism.
//
// Hardware: per-entry bound registers feeding the access-check comparators.
type Region struct {
	Low   uint64
	High  uint64
	Valid bool
}

func (r Region) String() string {
	if !r.Valid {
		return "region(off)"
	}
	return fmt.Sprintf("region[%#x, %#x)", r.Low, r.High)
}

// DecodeRegion computes one entry's region from its mode, raw address word,
// and the previous entry's settled upper bound.
//
// prevHigh is the chaining input for TOR: the caller supplies the previous
// entry's recomputed High, or 0 when there is no usable predecessor (entry 0,
// or a predecessor whose region is invalid).
//
// Decode rules, per mode:
//
//	OFF:   invalid; Low = High = raw >> 2 (deterministic don't-care)
//	TOR:   Low = prevHigh, High = raw >> 2
//	NA4:   Low = raw >> 2, High = Low + 1
//	NAPOT: mask = raw & ~(raw + 1)     isolates the trailing-ones run
//	       Low  = (raw ^ mask) >> 2    clears the size bits off the base
//	       High = Low + (mask+1)/2     2^k trailing ones → 2^(k+1)-byte region
//
// The NAPOT math runs in 64 bits: raw = 0xFFFFFFFF must decode to the
// maximal region (High = 1<<31), which overflows 32-bit arithmetic.
//
// Total over all inputs - no mode/raw combination is an error.
//
// Hardware: pure combinational mux over the mode field. The NAPOT mask is a
// trailing-ones isolator (increment + invert + AND), same depth as a 32-bit
// adder.
//
// Verilog equivalent:
//
//	wire [32:0] mask = raw & ~(raw + 33'd1);
//	always_comb unique case (mode)
//	  OFF:   {valid, lo, hi} = {1'b0, raw[31:2], raw[31:2]};
//	  TOR:   {valid, lo, hi} = {1'b1, prev_hi, raw[31:2]};
//	  NA4:   {valid, lo, hi} = {1'b1, raw[31:2], raw[31:2] + 30'd1};
//	  NAPOT: {valid, lo, hi} = {1'b1, (raw ^ mask) >> 2,
//	                            ((raw ^ mask) >> 2) + ((mask + 1) >> 1)};
//	endcase
func DecodeRegion(mode Mode, raw uint32, prevHigh uint64) Region {
	addr := uint64(raw)

	switch mode {
	case ModeOff:
		// Disabled entry. Bounds pinned to the shifted address so repeated
		// decodes of identical state stay bit-identical.
		return Region{Low: addr >> 2, High: addr >> 2, Valid: false}

	case ModeTOR:
		// Lower bound chains off the predecessor; upper bound is this
		// entry's own address.
		return Region{Low: prevHigh, High: addr >> 2, Valid: true}

	case ModeNA4:
		// Single 4-byte region: one word unit wide.
		lo := addr >> 2
		return Region{Low: lo, High: lo + 1, Valid: true}

	case ModeNAPOT:
		// HARDWARE: mask = addr & ~(addr+1) keeps exactly the trailing-ones
		// run. k trailing ones encode a 2^(k+1)-byte region; XORing the mask
		// off the address leaves the naturally aligned base.
		mask := addr & ^(addr + 1)
		lo := (addr ^ mask) >> 2
		return Region{Low: lo, High: lo + ((mask + 1) >> 1), Valid: true}
	}

	// Unreachable: Mode is a 2-bit field.
	panic(fmt.Sprintf("pmp: undecodable mode %d", uint8(mode)))
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONFIGURATION BANK
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// ConfigStore holds N entry configuration bytes packed 4-per-word, mirroring
// the pmpcfg register group.
//
// Hardware: N/4 × 32-bit registers with independent byte-lane write enables.
// Each lane's enable is gated by that entry's current L bit, so one word
// write can land on some lanes and be dropped on others.
type ConfigStore struct {
	n     int
	words []uint32
}

// NewConfigStore sizes the bank for n entries. n must be a positive multiple
// of EntriesPerWord and at most MaxEntries.
func NewConfigStore(n int) *ConfigStore {
	checkEntryCount(n)
	return &ConfigStore{n: n, words: make([]uint32, n/EntriesPerWord)}
}

// EntryByte returns entry i's live configuration byte.
//
//go:inline
func (s *ConfigStore) EntryByte(i int) uint8 {
	s.checkEntry(i)
	// HARDWARE: byte-lane read mux
	return uint8(s.words[i/EntriesPerWord] >> (8 * (i % EntriesPerWord)))
}

// Locked reports entry i's lock bit.
//
//go:inline
func (s *ConfigStore) Locked(i int) bool {
	return s.EntryByte(i)&cfgL != 0
}

// ModeOf returns entry i's decoded addressing mode.
//
//go:inline
func (s *ConfigStore) ModeOf(i int) Mode {
	return ModeFromBits(s.EntryByte(i))
}

// setEntryByte overwrites entry i's byte lane unconditionally. Only the
// write path below and the implicit-lock path use it.
func (s *ConfigStore) setEntryByte(i int, b uint8) {
	w := i / EntriesPerWord
	shift := 8 * (i % EntriesPerWord)
	s.words[w] = s.words[w]&^(uint32(0xFF)<<shift) | uint32(b)<<shift
}

// WriteConfigWord applies one packed configuration word to the 4 entries of
// group g, byte lane by byte lane in ascending entry order.
//
// Per lane:
//
//	1. If the entry's current L bit is set, the lane write is dropped.
//	   Partial word writes are legal and expected.
//	2. Otherwise the new byte lands with reserved bits 5-6 masked to zero.
//	3. If the byte that just landed has L=1 and mode TOR, the previous
//	   entry's L bit is forced set - a locked TOR range's lower bound is the
//	   predecessor's address, which must freeze with it. Global entry 0 has
//	   no predecessor; the rule does not apply there. The forced lock may
//	   cross a word boundary (entry 4 locking entry 3).
//
// Ascending lane order reproduces the hardware's simultaneous-write
// semantics: the lock gates sample the pre-write L bits, and implicit locks
// land after the gated writes of the same word.
//
// Hardware: 4 byte-lane write enables (lane_en = we & ~locked[i]) plus a
// predecessor lock-set line per lane.
func (s *ConfigStore) WriteConfigWord(g int, word uint32) {
	s.checkGroup(g)

	for lane := 0; lane < EntriesPerWord; lane++ {
		i := g*EntriesPerWord + lane

		if s.Locked(i) {
			continue // lane write dropped, not an error
		}

		b := uint8(word>>(8*lane)) & cfgWriteMask
		s.setEntryByte(i, b)

		// Implicit TOR lock: freeze the lower bound's address source.
		if b&cfgL != 0 && ModeFromBits(b) == ModeTOR && i > 0 {
			s.setEntryByte(i-1, s.EntryByte(i-1)|cfgL)
		}
	}
}

// ReadConfigWord returns group g's live packed word. Reserved bits are
// masked on store, so they always read back zero.
func (s *ConfigStore) ReadConfigWord(g int) uint32 {
	s.checkGroup(g)
	return s.words[g]
}

// Reset clears every entry to OFF, unlocked, no permissions. The only path
// that clears L bits.
func (s *ConfigStore) Reset() {
	for w := range s.words {
		s.words[w] = 0
	}
}

func (s *ConfigStore) checkEntry(i int) {
	if i < 0 || i >= s.n {
		panic(fmt.Sprintf("pmp: entry index %d out of range [0, %d)", i, s.n))
	}
}

func (s *ConfigStore) checkGroup(g int) {
	if g < 0 || g >= s.n/EntriesPerWord {
		panic(fmt.Sprintf("pmp: cfg group %d out of range [0, %d)", g, s.n/EntriesPerWord))
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ADDRESS BANK
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// AddressStore holds N raw address words, mirroring the pmpaddr register
// group. The per-entry write enable is the inverted lock line from the
// configuration bank.
//
// Hardware: N × 32-bit registers, write enable = we & ~cfg.locked[i].
type AddressStore struct {
	cfg   *ConfigStore
	words []uint32
}

// NewAddressStore sizes the bank for n entries and wires the lock lines
// from cfg.
func NewAddressStore(n int, cfg *ConfigStore) *AddressStore {
	checkEntryCount(n)
	return &AddressStore{cfg: cfg, words: make([]uint32, n)}
}

// WriteAddress stores v into entry i unless the entry is locked; a locked
// write is silently dropped.
func (s *AddressStore) WriteAddress(i int, v uint32) {
	s.checkEntry(i)
	if s.cfg.Locked(i) {
		return
	}
	s.words[i] = v
}

// ReadAddress returns entry i's stored word. Lock state never affects reads.
func (s *AddressStore) ReadAddress(i int) uint32 {
	s.checkEntry(i)
	return s.words[i]
}

// Reset clears all address words.
func (s *AddressStore) Reset() {
	for i := range s.words {
		s.words[i] = 0
	}
}

func (s *AddressStore) checkEntry(i int) {
	if i < 0 || i >= len(s.words) {
		panic(fmt.Sprintf("pmp: address index %d out of range [0, %d)", i, len(s.words)))
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// RECOMPUTE SEQUENCER + UNIT FSM
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// The unit is a two-state machine:
//
//	IDLE ──request accepted──▶ BUSY ──pass complete──▶ IDLE
//
// A write request stores its data immediately (the register banks update in
// the write cycle) and arms a recompute pass:
//
//	config word write:  pass over all N entries, ascending
//	address write:      pass over exactly the written entry
//
// Each Step retires one entry: it re-decodes that entry's region using the
// immediately preceding entry's already-recomputed High (0 when the
// predecessor is absent or invalid). Ascending order makes the TOR chain a
// single left-to-right sweep - the dependency structure is a line, never a
// graph, so no second pass and no cycle detection.
//
// While BUSY the unit refuses new requests and no region read observes the
// half-updated table: read accessors drain the pending pass before
// returning (the stalling read behavior).
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// State is the unit FSM state.
type State uint8

const (
	StateIdle State = 0
	StateBusy State = 1
)

func (s State) String() string {
	if s == StateBusy {
		return "BUSY"
	}
	return "IDLE"
}

// ErrBusy is returned for a write request that arrives while a recompute
// pass is still in flight.
var ErrBusy = errors.New("pmp: unit busy, recompute pass in flight")

// Entry is a read-only unpacked view of one entry's stored state.
type Entry struct {
	R, W, X    bool
	Mode       Mode
	Locked     bool
	RawAddress uint32
}

// Unit is the PMP entry bank: configuration and address storage plus the
// region table the recompute sequencer keeps consistent.
//
// Single-writer: one request at a time, driven to completion before the
// next. The zero value is not usable; construct with NewUnit.
type Unit struct {
	n    int
	cfg  *ConfigStore
	addr *AddressStore

	regions []Region

	state  State
	cursor int // next entry the pass will retire
	limit  int // one past the last entry of the pass
}

// NewUnit builds a unit with n entries, all OFF/unlocked/zero, regions
// settled. n must be a positive multiple of 4, at most MaxEntries.
func NewUnit(n int) *Unit {
	checkEntryCount(n)
	cfg := NewConfigStore(n)
	u := &Unit{
		n:       n,
		cfg:     cfg,
		addr:    NewAddressStore(n, cfg),
		regions: make([]Region, n),
	}
	u.recomputeAll()
	return u
}

// Entries returns the configured entry count.
func (u *Unit) Entries() int { return u.n }

// Groups returns the configuration word count (entries / 4).
func (u *Unit) Groups() int { return u.n / EntriesPerWord }

// Busy reports whether a recompute pass is in flight.
func (u *Unit) Busy() bool { return u.state == StateBusy }

// ─────────────────────────────────────────────────────────────────────────────
// Write requests (step-level API)
// ─────────────────────────────────────────────────────────────────────────────

// RequestConfigWrite stores one packed configuration word into group g and
// arms a full recompute pass over all entries. Returns ErrBusy (storing
// nothing) if a pass is already in flight.
//
// The full pass is required: any lane of the word can change a mode, and a
// mode change at entry i moves the lower bound of every later TOR entry.
func (u *Unit) RequestConfigWrite(g int, word uint32) error {
	if u.state == StateBusy {
		return ErrBusy
	}
	u.cfg.WriteConfigWord(g, word)
	u.state = StateBusy
	u.cursor = 0
	u.limit = u.n
	return nil
}

// RequestAddressWrite stores v into entry i's address word (lock-gated) and
// arms a single-entry recompute pass. Returns ErrBusy (storing nothing) if a
// pass is already in flight.
//
// Only entry i is recomputed. A later TOR entry whose lower bound derives
// from entry i's High keeps its stale bound until the next configuration
// write - preserved hardware behavior, see the package comment.
func (u *Unit) RequestAddressWrite(i int, v uint32) error {
	if u.state == StateBusy {
		return ErrBusy
	}
	u.addr.WriteAddress(i, v)
	u.state = StateBusy
	u.cursor = i
	u.limit = i + 1
	return nil
}

// Step retires one entry of the in-flight pass and reports whether the unit
// is IDLE afterwards. Step on an idle unit is a no-op returning true.
//
// Hardware: one clock edge of the recompute FSM.
func (u *Unit) Step() bool {
	if u.state != StateBusy {
		return true
	}

	u.regions[u.cursor] = DecodeRegion(
		u.cfg.ModeOf(u.cursor),
		u.addr.ReadAddress(u.cursor),
		u.chainHigh(u.cursor),
	)

	u.cursor++
	if u.cursor == u.limit {
		u.state = StateIdle
	}
	return u.state == StateIdle
}

// chainHigh is the TOR chaining input for entry i: the predecessor's settled
// High, or 0 when entry i is first or the predecessor region is invalid (an
// OFF predecessor contributes no bound).
//
//go:inline
func (u *Unit) chainHigh(i int) uint64 {
	if i == 0 || !u.regions[i-1].Valid {
		return 0
	}
	return u.regions[i-1].High
}

// settle drains any in-flight pass. Read accessors call it so a caller never
// observes a half-recomputed region table; this models the stalling read
// behavior (a read issued while BUSY waits for IDLE).
func (u *Unit) settle() {
	for u.state == StateBusy {
		u.Step()
	}
}

func (u *Unit) recomputeAll() {
	u.state = StateBusy
	u.cursor = 0
	u.limit = u.n
	u.settle()
}

// ─────────────────────────────────────────────────────────────────────────────
// Synchronous façade
// ─────────────────────────────────────────────────────────────────────────────

// WriteConfigWord performs a configuration-word write and drives the
// recompute pass to completion. Any pending pass is drained first, so the
// call never fails: it models a bus write that stalls while the unit is
// BUSY.
func (u *Unit) WriteConfigWord(g int, word uint32) {
	u.settle()
	if err := u.RequestConfigWrite(g, word); err != nil {
		panic(err) // unreachable after settle
	}
	u.settle()
}

// WriteAddress performs an address write and drives its single-entry
// recompute step to completion, draining any pending pass first.
func (u *Unit) WriteAddress(i int, v uint32) {
	u.settle()
	if err := u.RequestAddressWrite(i, v); err != nil {
		panic(err) // unreachable after settle
	}
	u.settle()
}

// ReadConfigWord returns group g's packed configuration word from settled
// state.
func (u *Unit) ReadConfigWord(g int) uint32 {
	u.settle()
	return u.cfg.ReadConfigWord(g)
}

// ReadAddress returns entry i's stored address word from settled state.
func (u *Unit) ReadAddress(i int) uint32 {
	u.settle()
	return u.addr.ReadAddress(i)
}

// RegionAt returns entry i's decoded region from settled state.
func (u *Unit) RegionAt(i int) Region {
	u.settle()
	u.cfg.checkEntry(i)
	return u.regions[i]
}

// EntryAt returns a read-only unpacked view of entry i from settled state.
func (u *Unit) EntryAt(i int) Entry {
	u.settle()
	b := u.cfg.EntryByte(i)
	return Entry{
		R:          b&cfgR != 0,
		W:          b&cfgW != 0,
		X:          b&cfgX != 0,
		Mode:       ModeFromBits(b),
		Locked:     b&cfgL != 0,
		RawAddress: u.addr.ReadAddress(i),
	}
}

// Reset returns every entry to the power-on state: OFF, unlocked, zero
// address, regions resettled. The only operation that clears lock bits.
func (u *Unit) Reset() {
	u.cfg.Reset()
	u.addr.Reset()
	u.recomputeAll()
}

// ─────────────────────────────────────────────────────────────────────────────

// ConfigByte assembles an entry configuration byte from its fields. Reserved
// bits are never set.
func ConfigByte(r, w, x bool, mode Mode, locked bool) uint8 {
	var b uint8
	if r {
		b |= cfgR
	}
	if w {
		b |= cfgW
	}
	if x {
		b |= cfgX
	}
	b |= mode.Bits()
	if locked {
		b |= cfgL
	}
	return b
}

func checkEntryCount(n int) {
	if n <= 0 || n > MaxEntries || n%EntriesPerWord != 0 {
		panic(fmt.Sprintf("pmp: entry count %d must be a positive multiple of %d, at most %d",
			n, EntriesPerWord, MaxEntries))
	}
}
