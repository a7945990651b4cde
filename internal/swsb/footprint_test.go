package swsb

import (
	"math/rand/v2"
	"testing"

	"github.com/bits-and-blooms/bitset"

	"github.com/xyproto/swsb/internal/engine"
	"github.com/xyproto/swsb/internal/ir"
)

// referenceBytes walks a direct GRF operand lane by lane, independently of
// the builder's region helpers
func referenceBytes(set *bitset.BitSet, rb int, d ir.Direct, exec int, dst bool) {
	size := d.Reg.Type.Size()
	base := d.Reg.Num*rb + d.Reg.Sub*size
	mark := func(off int) {
		for i := 0; i < size; i++ {
			set.Set(uint(off + i))
		}
	}
	if dst {
		hs := max(d.Region.HStride, 1)
		for lane := 0; lane < exec; lane++ {
			mark(base + lane*hs*size)
		}
		return
	}
	vs, w, hs := d.Region.VStride, d.Region.Width, d.Region.HStride
	if w == 0 && vs == 0 && hs == 0 {
		vs, w, hs = exec, exec, 1
	}
	lane := 0
	for row := 0; lane < exec; row++ {
		for col := 0; col < w && lane < exec; col++ {
			mark(base + (row*vs+col*hs)*size)
			lane++
		}
	}
}

func randomRegion(rng *rand.Rand, exec int) ir.Region {
	if rng.IntN(4) == 0 {
		return ir.Region{}
	}
	widths := []int{}
	for w := 1; w <= exec; w *= 2 {
		widths = append(widths, w)
	}
	w := widths[rng.IntN(len(widths))]
	hs := []int{0, 1, 2, 4}[rng.IntN(4)]
	vs := w * hs * rng.IntN(3)
	if w == 1 {
		hs = 0
	}
	return ir.Region{VStride: vs, Width: w, HStride: hs}
}

func TestFootprintMatchesReference(t *testing.T) {
	caps := platform(t, engine.XeHPG)
	layout := NewLayout(caps)
	b := NewBuilder(caps, layout)
	types := []ir.Type{ir.TypeUB, ir.TypeB, ir.TypeUW, ir.TypeW, ir.TypeUD, ir.TypeD, ir.TypeF, ir.TypeHF, ir.TypeQ, ir.TypeDF}
	rng := rand.New(rand.NewPCG(42, 7))

	for i := 0; i < 2000; i++ {
		exec := []int{1, 2, 4, 8, 16}[rng.IntN(5)]
		operand := func() ir.Direct {
			ty := types[rng.IntN(len(types))]
			return grfSub(ty, rng.IntN(64), rng.IntN(4), randomRegion(rng, exec))
		}
		dst, src0, src1 := operand(), operand(), operand()
		dst.Region = ir.Region{HStride: []int{1, 2, 4}[rng.IntN(3)]}
		inst := op([]string{"add", "mov", "mul", "and"}[rng.IntN(4)], exec, dst, src0, src1)

		wantRead, wantWrite := layout.NewSet(), layout.NewSet()
		referenceBytes(wantRead, layout.RegBytes, src0, exec, false)
		referenceBytes(wantRead, layout.RegBytes, src1, exec, false)
		referenceBytes(wantWrite, layout.RegBytes, dst, exec, true)

		if got := b.ReadFootprint(inst).Bits; !got.Equal(wantRead) {
			t.Fatalf("case %d: read footprint of %s\ngot  %v\nwant %v", i, inst, got, wantRead)
		}
		if got := b.WriteFootprint(inst).Bits; !got.Equal(wantWrite) {
			t.Fatalf("case %d: write footprint of %s\ngot  %v\nwant %v", i, inst, got, wantWrite)
		}
	}
}

func TestPredicateAndCondModUseFlagBits(t *testing.T) {
	caps := platform(t, engine.XeHPG)
	layout := NewLayout(caps)
	b := NewBuilder(caps, layout)

	inst := op("add", 8, grf(ir.TypeD, 1), grf(ir.TypeD, 2), imm(1, ir.TypeD))
	inst.ChanOff = 8
	inst.Pred = &ir.Predicate{Flag: ir.FlagRef{Reg: 1, Sub: 1}}
	inst.Cond = &ir.CondMod{Cond: "ne", Flag: ir.FlagRef{Reg: 0, Sub: 0}}

	want := layout.NewSet()
	layout.AddGRF(want, 2*32, 32)
	layout.AddFlagBits(want, 32+16+8, 8)
	if got := b.ReadFootprint(inst).Bits; !got.Equal(want) {
		t.Errorf("read footprint: got %v, want %v", got, want)
	}

	want = layout.NewSet()
	layout.AddGRF(want, 1*32, 32)
	layout.AddFlagBits(want, 8, 8)
	if got := b.WriteFootprint(inst).Bits; !got.Equal(want) {
		t.Errorf("write footprint: got %v, want %v", got, want)
	}
}

func TestImplicitAccumulator(t *testing.T) {
	caps := platform(t, engine.XeHPG)
	layout := NewLayout(caps)
	b := NewBuilder(caps, layout)

	mac := op("mac", 8, grf(ir.TypeF, 1), grf(ir.TypeF, 2), grf(ir.TypeF, 3))
	read := b.ReadFootprint(mac).Bits
	acc := layout.NewSet()
	layout.AddAcc(acc, 0, 32)
	if !read.IsSuperSet(acc) {
		t.Error("mac should read acc0")
	}
	if b.WriteFootprint(mac).Bits.IntersectionCardinality(acc) != 0 {
		t.Error("mac should not write the accumulator")
	}

	addc := op("addc", 8, grf(ir.TypeUD, 1), grf(ir.TypeUD, 2), grf(ir.TypeUD, 3))
	if !b.WriteFootprint(addc).Bits.IsSuperSet(acc) {
		t.Error("addc should write acc0")
	}
}

func TestMacroPairedOperand(t *testing.T) {
	caps := platform(t, engine.XeHPG)
	layout := NewLayout(caps)
	b := NewBuilder(caps, layout)

	src := ir.MacroPaired{Reg: ir.RegRef{File: ir.FileGRF, Num: 4, Type: ir.TypeF}, Acc: 5}
	inst := op("madm", 8, grf(ir.TypeF, 1), src)
	read := b.ReadFootprint(inst).Bits

	want := layout.NewSet()
	layout.AddGRF(want, 4*32, 32)
	layout.AddAcc(want, 1*32, 32) // acc index wraps modulo the accumulator count
	if !read.Equal(want) {
		t.Errorf("got %v, want %v", read, want)
	}
}

func TestIndirectOperandAlwaysConflicts(t *testing.T) {
	caps := platform(t, engine.XeHPG)
	layout := NewLayout(caps)
	b := NewBuilder(caps, layout)

	inst := op("mov", 8, grf(ir.TypeUD, 1), ir.Indirect{AddrSub: 2, Type: ir.TypeUD})
	read := b.ReadFootprint(inst)
	if !read.AlwaysConflicts {
		t.Error("indirect source should always conflict")
	}
	addr := layout.NewSet()
	layout.AddAddr(addr, 4, 2)
	if !read.Bits.IsSuperSet(addr) {
		t.Error("indirect source should read a0.2")
	}
	if !layout.TouchesSpecial(read.Bits) {
		t.Error("indirect source should touch the special region")
	}
	if b.WriteFootprint(inst).AlwaysConflicts {
		t.Error("direct destination should not always conflict")
	}
}

func TestEmptyInstructionTouchesSpecial(t *testing.T) {
	caps := platform(t, engine.XeHPG)
	layout := NewLayout(caps)
	b := NewBuilder(caps, layout)

	nop := &ir.Instruction{Op: "nop", ExecSize: 1}
	read := b.ReadFootprint(nop)
	if read.Empty() || !layout.TouchesSpecial(read.Bits) {
		t.Errorf("nop should touch only the special region, got %v", read.Bits)
	}
	if read.AlwaysConflicts {
		t.Error("nop should not always conflict")
	}
	if !b.WriteFootprint(nop).Empty() {
		t.Error("nop writes nothing")
	}
}

func TestSendLengths(t *testing.T) {
	caps := platform(t, engine.XeHPG)
	layout := NewLayout(caps)
	b := NewBuilder(caps, layout)

	static := load(10, 2, 4, 2)
	want := layout.NewSet()
	layout.AddGRF(want, 10*32, 4*32)
	if got := b.WriteFootprint(static).Bits; !got.Equal(want) {
		t.Errorf("static send destination: got %v, want %v", got, want)
	}

	dynamic := load(10, 2, 0, 0)
	dynamic.Msg = &ir.MessageDesc{Class: engine.MsgSampler, Dynamic: true, DescSub: 1}
	lim := caps.MaxMessage(engine.MsgSampler)
	want = layout.NewSet()
	layout.AddGRF(want, 10*32, lim.Dst*32)
	if got := b.WriteFootprint(dynamic).Bits; !got.Equal(want) {
		t.Errorf("dynamic send destination: got %v, want %v", got, want)
	}
	want = layout.NewSet()
	layout.AddGRF(want, 2*32, lim.Src0*32)
	layout.AddAddr(want, 4, 4)
	if got := b.ReadFootprint(dynamic).Bits; !got.Equal(want) {
		t.Errorf("dynamic send sources: got %v, want %v", got, want)
	}
}

func TestByteDestinationErratum(t *testing.T) {
	inst := op("mov", 8, grfSub(ir.TypeUB, 3, 4, ir.Region{HStride: 2}), grf(ir.TypeUB, 5))

	caps := platform(t, engine.XeHP)
	layout := NewLayout(caps)
	want := layout.NewSet()
	layout.AddGRF(want, 3*32, 32)
	if got := NewBuilder(caps, layout).WriteFootprint(inst).Bits; !got.Equal(want) {
		t.Errorf("byte write with the erratum should cover r3, got %v", got)
	}

	caps = platform(t, engine.XeHPG)
	layout = NewLayout(caps)
	if got := NewBuilder(caps, layout).WriteFootprint(inst).Bits.Count(); got != 8 {
		t.Errorf("byte write without the erratum should touch 8 bytes, got %d", got)
	}
}

func TestSystolicSizes(t *testing.T) {
	caps := platform(t, engine.XeHPG)
	layout := NewLayout(caps)
	b := NewBuilder(caps, layout)

	inst := dpas(10, 20, 40, 50)
	want := layout.NewSet()
	layout.AddGRF(want, 20*32, 32)
	layout.AddGRF(want, 40*32, 8*32)
	layout.AddGRF(want, 50*32, 32)
	if got := b.ReadFootprint(inst).Bits; !got.Equal(want) {
		t.Errorf("dpas sources: got %v, want %v", got, want)
	}
	if got := b.systolicSource0(inst); got.Count() != 32 {
		t.Errorf("dpas src0 should cover one register, got %d bytes", got.Count())
	}
}

func TestLayoutBuckets(t *testing.T) {
	caps := platform(t, engine.XeHPG)
	l := NewLayout(caps)
	if l.Size() != 4416 {
		t.Errorf("expected 4416 tracked bytes, got %d", l.Size())
	}
	if l.SpecialBucket != 137 || l.LongBucket != 138 || l.NumBuckets != 139 {
		t.Errorf("unexpected buckets: special %d, long %d, total %d", l.SpecialBucket, l.LongBucket, l.NumBuckets)
	}
	set := l.NewSet()
	l.AddFlagBits(set, 0, 16)
	l.AddAcc(set, 0, 4)
	if !l.OnlyAccOrFlag(set) {
		t.Error("flag and accumulator bytes only")
	}
	l.AddGRF(set, 0, 1)
	if l.OnlyAccOrFlag(set) {
		t.Error("a GRF byte is not accumulator or flag")
	}
	// out-of-range bytes are clipped to their file
	clip := l.NewSet()
	l.AddAcc(clip, 4*32-2, 10)
	if clip.Count() != 2 {
		t.Errorf("expected clipping to the accumulator file, got %d bytes", clip.Count())
	}
}
