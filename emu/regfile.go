package emu

import "github.com/sarchlab/kplsim/insts"

// NumGPRs is the number of general-purpose registers visible to a thread.
// The last one, RZ, reads as zero and ignores writes.
const NumGPRs = 256

// NumPreds is the number of predicate registers. P7 is PT and always true.
const NumPreds = 8

// CC holds the condition-code flags written by the .CC instruction forms.
type CC struct {
	// ZF is the zero flag.
	ZF bool
	// SF is the sign flag.
	SF bool
	// CF is the carry flag.
	CF bool
	// OF is the overflow flag.
	OF bool
}

// RegFile represents the per-thread Kepler register file.
type RegFile struct {
	// GPR holds R0-R254. GPR[255] is RZ and always reads as 0.
	GPR [NumGPRs]uint32

	// Pred holds P0-P6. Pred[7] is PT and always reads as true.
	Pred [NumPreds]bool

	// CC holds the condition-code flags.
	CC CC
}

// ReadGPR reads a general-purpose register. RZ returns 0.
func (r *RegFile) ReadGPR(reg uint8) uint32 {
	if reg == insts.RegZero {
		return 0
	}
	return r.GPR[reg]
}

// WriteGPR writes a general-purpose register. Writes to RZ are ignored.
func (r *RegFile) WriteGPR(reg uint8, value uint32) {
	if reg == insts.RegZero {
		return
	}
	r.GPR[reg] = value
}

// ReadPred reads a 4-bit predicate selector. Selectors 8-15 read the
// negation of predicates 0-7.
func (r *RegFile) ReadPred(sel uint8) bool {
	negate := sel&insts.PredNegate != 0
	id := sel &^ insts.PredNegate

	v := id == insts.PredTrue || r.Pred[id&7]
	return v != negate
}

// WritePred writes a predicate register. Writes to PT are ignored.
func (r *RegFile) WritePred(id uint8, value bool) {
	if id >= insts.PredTrue {
		return
	}
	r.Pred[id] = value
}

// SpecialReg identifies a special register read by S2R.
type SpecialReg uint32

// Special registers.
const (
	SRLaneID   SpecialReg = 0
	SRClock    SpecialReg = 1
	SRVirtCfg  SpecialReg = 2
	SRVirtID   SpecialReg = 3
	SRTID      SpecialReg = 32
	SRTIDX     SpecialReg = 33
	SRTIDY     SpecialReg = 34
	SRTIDZ     SpecialReg = 35
	SRCTAIDX   SpecialReg = 37
	SRCTAIDY   SpecialReg = 38
	SRCTAIDZ   SpecialReg = 39
	SRNTID     SpecialReg = 40
	SRNTIDX    SpecialReg = 41
	SRNTIDY    SpecialReg = 42
	SRNTIDZ    SpecialReg = 43
	SRNCTAIDX  SpecialReg = 45
	SRNCTAIDY  SpecialReg = 46
	SRNCTAIDZ  SpecialReg = 47
	SRSMemSize SpecialReg = 50
	SREqMask   SpecialReg = 56
	SRLtMask   SpecialReg = 57
	SRLeMask   SpecialReg = 58
	SRGtMask   SpecialReg = 59
	SRGeMask   SpecialReg = 60
	SRClockLo  SpecialReg = 80
	SRClockHi  SpecialReg = 81
)

var specialRegNames = map[SpecialReg]string{
	SRLaneID:   "SR_LANEID",
	SRClock:    "SR_CLOCK",
	SRVirtCfg:  "SR_VIRTCFG",
	SRVirtID:   "SR_VIRTID",
	SRTID:      "SR_TID",
	SRTIDX:     "SR_TID.X",
	SRTIDY:     "SR_TID.Y",
	SRTIDZ:     "SR_TID.Z",
	SRCTAIDX:   "SR_CTAID.X",
	SRCTAIDY:   "SR_CTAID.Y",
	SRCTAIDZ:   "SR_CTAID.Z",
	SRNTID:     "SR_NTID",
	SRNTIDX:    "SR_NTID.X",
	SRNTIDY:    "SR_NTID.Y",
	SRNTIDZ:    "SR_NTID.Z",
	SRNCTAIDX:  "SR_NCTAID.X",
	SRNCTAIDY:  "SR_NCTAID.Y",
	SRNCTAIDZ:  "SR_NCTAID.Z",
	SRSMemSize: "SR_SMEMSZ",
	SREqMask:   "SR_EQMASK",
	SRLtMask:   "SR_LTMASK",
	SRLeMask:   "SR_LEMASK",
	SRGtMask:   "SR_GTMASK",
	SRGeMask:   "SR_GEMASK",
	SRClockLo:  "SR_CLOCKLO",
	SRClockHi:  "SR_CLOCKHI",
}

func (sr SpecialReg) String() string {
	if name, ok := specialRegNames[sr]; ok {
		return name
	}
	return "SR_UNKNOWN"
}
