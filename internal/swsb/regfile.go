// Package swsb computes software scoreboard annotations: for every
// instruction, the in-order distance and out-of-order token waits that make
// it safe to issue without a hardware dependency check.
package swsb

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/xyproto/swsb/internal/engine"
)

// Capabilities is the platform query interface the engine needs.
// *engine.Platform implements it.
type Capabilities interface {
	NumGRF() int
	RegBytes() int
	NumAcc() int
	NumFlag() int
	DistPipes() int
	TokenCount() int
	MaxDist() int
	InFlightWindow(engine.LatencyClass) int
	HasByteDstErratum() bool
	MacroLimits() (maxSteps, selfAccumDepth int)
	MaxMessage(engine.MessageClass) engine.MessageLimits
}

const (
	flagBitsPerReg = 32
	flagBitsPerSub = 16
	addrSubBytes   = 2
)

// Layout linearizes every tracked register file into one byte space:
//
//	[ GRF | accumulators | flags | address | special ]
//
// Flags are scaled so each flag bit covers RegBytes/16 bytes, which keeps
// every file a whole number of buckets. One extra bucket with no bytes
// collects live out-of-order footprints.
type Layout struct {
	RegBytes int

	grfEnd      int
	accBase     int
	flagBase    int
	addrBase    int
	specialBase int
	total       int

	flagBitBytes int

	// SpecialBucket is probed by every instruction
	SpecialBucket int
	// LongBucket holds every live out-of-order footprint
	LongBucket int
	NumBuckets int
}

// NewLayout derives the byte space from the platform register file sizes
func NewLayout(caps Capabilities) *Layout {
	rb := caps.RegBytes()
	l := &Layout{RegBytes: rb}
	l.grfEnd = caps.NumGRF() * rb
	l.accBase = l.grfEnd
	l.flagBase = l.accBase + caps.NumAcc()*rb
	l.flagBitBytes = rb / flagBitsPerSub
	if l.flagBitBytes == 0 {
		l.flagBitBytes = 1
	}
	l.addrBase = l.flagBase + roundUp(caps.NumFlag()*flagBitsPerReg*l.flagBitBytes, rb)
	l.specialBase = l.addrBase + rb
	l.total = l.specialBase + rb

	l.SpecialBucket = l.specialBase / rb
	l.LongBucket = l.total / rb
	l.NumBuckets = l.LongBucket + 1
	return l
}

func roundUp(n, to int) int {
	return (n + to - 1) / to * to
}

// Size is the number of tracked bytes
func (l *Layout) Size() int {
	return l.total
}

// NewSet returns an empty bitset spanning the whole byte space
func (l *Layout) NewSet() *bitset.BitSet {
	return bitset.New(uint(l.total))
}

// BucketOf returns the bucket that owns a byte
func (l *Layout) BucketOf(b int) int {
	return b / l.RegBytes
}

// BucketRange returns the bytes owned by a bucket as [lo, hi)
func (l *Layout) BucketRange(bucket int) (int, int) {
	lo := bucket * l.RegBytes
	hi := lo + l.RegBytes
	if hi > l.total {
		hi = l.total
	}
	if lo > l.total {
		lo = l.total
	}
	return lo, hi
}

// setRange sets [lo, hi) clipped to [floor, ceil)
func setRange(set *bitset.BitSet, lo, hi, floor, ceil int) {
	if lo < floor {
		lo = floor
	}
	if hi > ceil {
		hi = ceil
	}
	for i := lo; i < hi; i++ {
		set.Set(uint(i))
	}
}

// AddGRF marks [off, off+n) of the GRF, offsets relative to r0
func (l *Layout) AddGRF(set *bitset.BitSet, off, n int) {
	setRange(set, off, off+n, 0, l.grfEnd)
}

// AddAcc marks [off, off+n) of the accumulator file, offsets relative to acc0
func (l *Layout) AddAcc(set *bitset.BitSet, off, n int) {
	setRange(set, l.accBase+off, l.accBase+off+n, l.accBase, l.flagBase)
}

// AddFlagBits marks flag bits [bit, bit+n), bits numbered f0.0 lane 0 upward
func (l *Layout) AddFlagBits(set *bitset.BitSet, bit, n int) {
	setRange(set, l.flagBase+bit*l.flagBitBytes, l.flagBase+(bit+n)*l.flagBitBytes, l.flagBase, l.addrBase)
}

// AddAddr marks [off, off+n) of the address register
func (l *Layout) AddAddr(set *bitset.BitSet, off, n int) {
	setRange(set, l.addrBase+off, l.addrBase+off+n, l.addrBase, l.specialBase)
}

// AddSpecial marks the whole special region
func (l *Layout) AddSpecial(set *bitset.BitSet) {
	setRange(set, l.specialBase, l.total, l.specialBase, l.total)
}

// IsGRF reports whether a byte belongs to the general register file
func (l *Layout) IsGRF(b int) bool {
	return b < l.grfEnd
}

// OnlyAccOrFlag reports whether every set bit lies in the accumulator or flag files
func (l *Layout) OnlyAccOrFlag(set *bitset.BitSet) bool {
	first, ok := set.NextSet(0)
	if !ok {
		return true
	}
	if int(first) < l.accBase {
		return false
	}
	if next, ok := set.NextSet(uint(l.addrBase)); ok && int(next) < l.total {
		return false
	}
	return true
}

// TouchesSpecial reports whether the set covers any special-region byte
func (l *Layout) TouchesSpecial(set *bitset.BitSet) bool {
	next, ok := set.NextSet(uint(l.specialBase))
	return ok && int(next) < l.total
}
