package swsb

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/xyproto/swsb/internal/ir"
)

// Polarity says whether a footprint is read or written
type Polarity int

const (
	Read Polarity = iota
	Write
)

func (p Polarity) String() string {
	if p == Write {
		return "write"
	}
	return "read"
}

// Handle indexes a footprint in the arena
type Handle int32

// NoHandle marks an absent footprint
const NoHandle Handle = -1

// Footprint is the set of register-file bytes one instruction (or one
// systolic macro) reads or writes, plus the bookkeeping the resolver needs
// while it is live.
type Footprint struct {
	Polarity Polarity
	Bits     *bitset.BitSet

	// AlwaysConflicts is set for indirect accesses and special registers:
	// the footprint conflicts with every later access until it is cleared
	AlwaysConflicts bool

	Inst  *ir.Instruction // first instruction of the node
	Node  int             // node index within the block
	Pipe  Pipe
	Class Class
	Stamp Stamp
	Token int // -1 when no token is held

	Companion Handle

	buckets []int
	live    bool
}

// Empty reports whether the footprint touches nothing
func (fp *Footprint) Empty() bool {
	return fp.Bits == nil || fp.Bits.None()
}

// Live reports whether the footprint is registered in the bucket index
func (fp *Footprint) Live() bool {
	return fp.live
}

// Arena owns every footprint of the block being analyzed. Buckets and
// companions refer to footprints by handle; Reset drops them all at once.
type Arena struct {
	fps []*Footprint
}

// New stores a footprint and returns its handle
func (a *Arena) New(fp *Footprint) Handle {
	a.fps = append(a.fps, fp)
	return Handle(len(a.fps) - 1)
}

// Get returns the footprint for a handle, or nil for NoHandle
func (a *Arena) Get(h Handle) *Footprint {
	if h < 0 || int(h) >= len(a.fps) {
		return nil
	}
	return a.fps[h]
}

// Len returns the number of footprints allocated since the last reset
func (a *Arena) Len() int {
	return len(a.fps)
}

// Reset frees every footprint
func (a *Arena) Reset() {
	clear(a.fps)
	a.fps = a.fps[:0]
}

// Builder computes read and write footprints of instructions
type Builder struct {
	layout *Layout
	caps   Capabilities
}

// NewBuilder returns a footprint builder for a platform
func NewBuilder(caps Capabilities, layout *Layout) *Builder {
	return &Builder{layout: layout, caps: caps}
}

// ReadFootprint returns everything inst reads: sources, predicate, implicit
// accumulator, address registers of indirect operands and send descriptors
func (b *Builder) ReadFootprint(inst *ir.Instruction) *Footprint {
	fp := &Footprint{Polarity: Read, Bits: b.layout.NewSet(), Inst: inst, Token: -1, Companion: NoHandle}
	l := b.layout

	if inst.Pred != nil {
		b.addFlag(fp, inst.Pred.Flag, inst.ChanOff, inst.ExecSize)
	}

	switch inst.Op.Family() {
	case ir.FamSend:
		b.addSendSources(fp, inst)
	case ir.FamSystolic:
		b.addSystolicSources(fp, inst)
	default:
		for _, src := range inst.Srcs {
			b.addOperand(fp, src, inst, false)
		}
	}

	if inst.Info().AccRead {
		l.AddAcc(fp.Bits, inst.ChanOff*accElemSize(inst), inst.ExecSize*accElemSize(inst))
	}

	// Reading the address of an indirect destination is a read too
	if ind, ok := inst.Dst.(ir.Indirect); ok {
		l.AddAddr(fp.Bits, ind.AddrSub*addrSubBytes, addrSubBytes)
	}

	if fp.Empty() && !b.hasWrites(inst) {
		// Nothing to order against except special-register traffic
		l.AddSpecial(fp.Bits)
	}
	return fp
}

// WriteFootprint returns everything inst writes: destination, condition
// modifier flag and implicit accumulator
func (b *Builder) WriteFootprint(inst *ir.Instruction) *Footprint {
	fp := &Footprint{Polarity: Write, Bits: b.layout.NewSet(), Inst: inst, Token: -1, Companion: NoHandle}
	l := b.layout

	if inst.Cond != nil {
		b.addFlag(fp, inst.Cond.Flag, inst.ChanOff, inst.ExecSize)
	}

	switch inst.Op.Family() {
	case ir.FamSend:
		b.addSendDestination(fp, inst)
	case ir.FamSystolic:
		b.addSystolicDestination(fp, inst)
	default:
		if inst.Dst != nil {
			b.addOperand(fp, inst.Dst, inst, true)
		}
	}

	if inst.Info().AccWrite {
		l.AddAcc(fp.Bits, inst.ChanOff*accElemSize(inst), inst.ExecSize*accElemSize(inst))
	}
	return fp
}

func (b *Builder) hasWrites(inst *ir.Instruction) bool {
	if inst.Cond != nil || inst.Info().AccWrite {
		return true
	}
	if inst.Dst == nil {
		return false
	}
	if d, ok := inst.Dst.(ir.Direct); ok && d.Reg.File == ir.FileNull {
		return false
	}
	return true
}

func accElemSize(inst *ir.Instruction) int {
	if inst.Dst != nil {
		if t := ir.OperandType(inst.Dst); t != ir.TypeUndef {
			return t.Size()
		}
	}
	return 4
}

// addFlag marks the flag bits of the execution mask window starting at chanOff
func (b *Builder) addFlag(fp *Footprint, f ir.FlagRef, chanOff, execSize int) {
	bit := f.Reg*flagBitsPerReg + f.Sub*flagBitsPerSub + chanOff
	b.layout.AddFlagBits(fp.Bits, bit, execSize)
}

// regionBytes calls mark for every element byte range of a region operand
func regionBytes(base, elem int, region ir.Region, execSize int, dst bool, mark func(off, n int)) {
	if dst {
		hs := region.HStride
		if hs <= 0 {
			hs = 1
		}
		for lane := 0; lane < execSize; lane++ {
			mark(base+lane*hs*elem, elem)
		}
		return
	}
	for _, e := range region.ElementOffsets(execSize) {
		mark(base+e*elem, elem)
	}
}

// addOperand adds one operand of a regular instruction
func (b *Builder) addOperand(fp *Footprint, op ir.Operand, inst *ir.Instruction, dst bool) {
	l := b.layout
	switch o := op.(type) {
	case ir.Direct:
		b.addDirect(fp, o.Reg, o.Region, inst, dst)
	case ir.Indirect:
		// The address is read; the register it points at is unknown
		if !dst {
			l.AddAddr(fp.Bits, o.AddrSub*addrSubBytes, addrSubBytes)
		}
		fp.AlwaysConflicts = true
		l.AddSpecial(fp.Bits)
	case ir.MacroPaired:
		b.addDirect(fp, o.Reg, o.Region, inst, dst)
		elem := o.Reg.Type.Size()
		acc := o.Acc % max(b.caps.NumAcc(), 1)
		rb := l.RegBytes
		regionBytes(o.Reg.Sub*elem, elem, o.Region, inst.ExecSize, dst, func(off, n int) {
			// the paired accumulator wraps within its register
			off %= rb
			l.AddAcc(fp.Bits, acc*rb+off, min(n, rb-off))
		})
	case ir.Immediate, ir.Label:
	}
}

func (b *Builder) addDirect(fp *Footprint, reg ir.RegRef, region ir.Region, inst *ir.Instruction, dst bool) {
	l := b.layout
	rb := l.RegBytes
	elem := reg.Type.Size()
	switch reg.File {
	case ir.FileNull:
	case ir.FileGRF:
		base := reg.Num*rb + reg.Sub*elem
		if dst && elem == 1 && b.caps.HasByteDstErratum() {
			// byte writes are widened to whole registers on parts with the erratum
			lo, hi := base, base
			regionBytes(base, elem, region, inst.ExecSize, dst, func(off, n int) {
				lo, hi = min(lo, off), max(hi, off+n)
			})
			lo = lo / rb * rb
			hi = roundUp(hi, rb)
			l.AddGRF(fp.Bits, lo, hi-lo)
			return
		}
		regionBytes(base, elem, region, inst.ExecSize, dst, func(off, n int) {
			l.AddGRF(fp.Bits, off, n)
		})
	case ir.FileAcc:
		regionBytes(reg.Num*rb+reg.Sub*elem, elem, region, inst.ExecSize, dst, func(off, n int) {
			l.AddAcc(fp.Bits, off, n)
		})
	case ir.FileFlag:
		// flag registers as data: 4 bytes per register, 8 flag bits per byte
		regionBytes(reg.Num*4+reg.Sub*elem, elem, region, inst.ExecSize, dst, func(off, n int) {
			l.AddFlagBits(fp.Bits, off*8, n*8)
		})
	case ir.FileAddress:
		regionBytes(reg.Sub*elem, elem, region, inst.ExecSize, dst, func(off, n int) {
			l.AddAddr(fp.Bits, off, n)
		})
	default:
		// state, control, notification, ip, timestamp
		fp.AlwaysConflicts = true
		l.AddSpecial(fp.Bits)
	}
}

// addWholeRegs marks count whole registers starting at the register of op
func (b *Builder) addWholeRegs(fp *Footprint, op ir.Operand, count int) {
	if count <= 0 || op == nil {
		return
	}
	d, ok := op.(ir.Direct)
	if !ok {
		b.addOperand(fp, op, &ir.Instruction{ExecSize: 1}, fp.Polarity == Write)
		return
	}
	if d.Reg.File != ir.FileGRF {
		return
	}
	rb := b.layout.RegBytes
	b.layout.AddGRF(fp.Bits, d.Reg.Num*rb, count*rb)
}

// messageLimits returns the payload lengths of a send, assuming the largest
// legal message when the descriptor is only known at run time
func (b *Builder) messageLimits(inst *ir.Instruction) (src0, src1, dst int) {
	m := inst.Msg
	if m == nil {
		return 1, 0, 0
	}
	if m.Dynamic {
		lim := b.caps.MaxMessage(m.Class)
		return lim.Src0, lim.Src1, lim.Dst
	}
	return m.Src0Len, m.Src1Len, m.DstLen
}

func (b *Builder) addSendSources(fp *Footprint, inst *ir.Instruction) {
	src0, src1, _ := b.messageLimits(inst)
	if len(inst.Srcs) > 0 {
		b.addWholeRegs(fp, inst.Srcs[0], src0)
	}
	if len(inst.Srcs) > 1 {
		b.addWholeRegs(fp, inst.Srcs[1], src1)
	}
	if inst.Msg != nil && inst.Msg.Dynamic {
		// the descriptor itself is a dword in a0
		b.layout.AddAddr(fp.Bits, inst.Msg.DescSub*4, 4)
	}
}

func (b *Builder) addSendDestination(fp *Footprint, inst *ir.Instruction) {
	_, _, dst := b.messageLimits(inst)
	b.addWholeRegs(fp, inst.Dst, dst)
}

// systolic operand sizes in bytes for one dpas step:
// src0/dst hold Repeat rows of ExecSize elements, src1 holds Depth dwords
// per lane, src2 holds Repeat rows of Depth dwords
func systolicBytes(inst *ir.Instruction, operand int) int {
	sd := inst.Systolic
	if sd == nil {
		return 0
	}
	switch operand {
	case 0:
		return sd.Repeat * inst.ExecSize * ir.OperandType(inst.Dst).Size()
	case 1:
		return sd.Depth * inst.ExecSize * 4
	default:
		return sd.Repeat * sd.Depth * 4
	}
}

func (b *Builder) addSystolicRange(fp *Footprint, op ir.Operand, n int) {
	d, ok := op.(ir.Direct)
	if !ok || d.Reg.File != ir.FileGRF || n <= 0 {
		if op != nil {
			b.addOperand(fp, op, &ir.Instruction{ExecSize: 1}, false)
		}
		return
	}
	rb := b.layout.RegBytes
	base := d.Reg.Num*rb + d.Reg.Sub*d.Reg.Type.Size()
	lo := base / rb * rb
	hi := roundUp(base+n, rb)
	b.layout.AddGRF(fp.Bits, lo, hi-lo)
}

func (b *Builder) addSystolicSources(fp *Footprint, inst *ir.Instruction) {
	for i, src := range inst.Srcs {
		b.addSystolicRange(fp, src, systolicBytes(inst, min(i, 2)))
	}
}

// systolicSource0 is the accumulator input of one dpas step
func (b *Builder) systolicSource0(inst *ir.Instruction) *bitset.BitSet {
	fp := &Footprint{Bits: b.layout.NewSet()}
	if len(inst.Srcs) > 0 {
		b.addSystolicRange(fp, inst.Srcs[0], systolicBytes(inst, 0))
	}
	return fp.Bits
}

func (b *Builder) addSystolicDestination(fp *Footprint, inst *ir.Instruction) {
	if inst.Dst != nil {
		b.addSystolicRange(fp, inst.Dst, systolicBytes(inst, 0))
	}
}
