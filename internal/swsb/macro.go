package swsb

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/xyproto/swsb/internal/ir"
)

// Consecutive dpas steps of the same shape are issued as one macro and
// tracked as one node: one read footprint, one write footprint, distance on
// the first step and token on the last.

func sameMacroShape(a, b *ir.Instruction) bool {
	if a.Op != b.Op || a.ExecSize != b.ExecSize || a.Systolic == nil || b.Systolic == nil {
		return false
	}
	if *a.Systolic != *b.Systolic || b.Cond != nil {
		return false
	}
	if ir.OperandType(a.Dst) != ir.OperandType(b.Dst) {
		return false
	}
	switch {
	case a.Pred == nil && b.Pred == nil:
		return true
	case a.Pred != nil && b.Pred != nil:
		return *a.Pred == *b.Pred
	}
	return false
}

// macroLength returns how many instructions starting at insts[i] form one
// macro, and whether the macro was cut short by an internal dependency
func (bs *blockState) macroLength(insts []*ir.Instruction, i int) (int, bool) {
	first := insts[i]
	maxSteps, selfAccumDepth := bs.caps.MacroLimits()
	if first.Op.Family() != ir.FamSystolic || first.Systolic == nil || maxSteps <= 1 {
		return 1, false
	}

	stepWrites := []*bitset.BitSet{bs.builder.WriteFootprint(first).Bits}
	written := stepWrites[0].Clone()
	n := 1
	for i+n < len(insts) && n < maxSteps {
		next := insts[i+n]
		if !sameMacroShape(first, next) {
			break
		}
		read := bs.builder.ReadFootprint(next).Bits
		if read.IntersectionCardinality(written) > 0 {
			if next.Systolic.Depth != selfAccumDepth || !selfAccumulates(bs.builder.systolicSource0(next), read, written, stepWrites) {
				return n, true
			}
		}
		w := bs.builder.WriteFootprint(next).Bits
		stepWrites = append(stepWrites, w)
		written.InPlaceUnion(w)
		n++
	}
	return n, false
}

// selfAccumulates reports whether the only overlap between a step's reads
// and the macro's earlier writes is its accumulator input, and that input
// is exactly the destination of one earlier step
func selfAccumulates(src0, read, written *bitset.BitSet, stepWrites []*bitset.BitSet) bool {
	rest := read.Difference(src0)
	if rest.IntersectionCardinality(written) > 0 {
		return false
	}
	for _, w := range stepWrites {
		if w.Equal(src0) {
			return true
		}
	}
	return false
}
