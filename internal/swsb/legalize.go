package swsb

import (
	"math/bits"

	"github.com/xyproto/swsb/internal/ir"
)

// Requirement is everything an instruction must wait for before it issues,
// plus the token it allocates. Legalize turns it into encodable annotations.
type Requirement struct {
	Distance int
	Pipe     ir.DistPipe
	Set      int    // token to allocate, -1 for none
	WaitDst  uint64 // tokens whose owners must finish writing
	WaitSrc  uint64 // tokens whose owners must finish reading
}

// NoRequirement waits for nothing and allocates nothing
func NoRequirement() Requirement {
	return Requirement{Set: -1}
}

// RequirementOf converts an annotation back into a requirement
func RequirementOf(ann ir.SWSB) Requirement {
	req := NoRequirement()
	if ann.HasDistance() {
		req.Distance, req.Pipe = ann.Distance, ann.Pipe
	}
	switch ann.Mode {
	case ir.TokenSet:
		req.Set = ann.Token
	case ir.TokenDst:
		req.WaitDst = 1 << uint(ann.Token)
	case ir.TokenSrc:
		req.WaitSrc = 1 << uint(ann.Token)
	}
	return req
}

// IsZero reports whether the requirement needs no annotation at all
func (r Requirement) IsZero() bool {
	return r.Distance == 0 && r.Set < 0 && r.WaitDst == 0 && r.WaitSrc == 0
}

// ValidAnnotation is the encoding predicate: one distance and one token at
// most, and both together only on a send that allocates its token
func ValidAnnotation(sendFamily bool, ann ir.SWSB) bool {
	if ann.Distance < 0 || (ann.HasToken() && ann.Token < 0) {
		return false
	}
	if ann.HasDistance() && ann.HasToken() {
		return sendFamily && ann.Mode == ir.TokenSet
	}
	return true
}

// Legalize splits a requirement into the annotation of the instruction and
// the sync instructions that must be inserted right before it.
// A send keeps its allocated token and its distance; any other instruction
// keeps one component and moves the rest onto syncs. Several waits of one
// kind become a single sync.allwr / sync.allrd.
func Legalize(sendFamily bool, req Requirement) (ir.SWSB, []*ir.Instruction) {
	var ann ir.SWSB
	var syncs []*ir.Instruction

	waitDst := req.WaitDst
	waitSrc := req.WaitSrc &^ req.WaitDst

	switch {
	case req.Set >= 0:
		ann.Token, ann.Mode = req.Set, ir.TokenSet
		if req.Distance > 0 {
			if sendFamily {
				ann.Distance, ann.Pipe = req.Distance, req.Pipe
			} else {
				syncs = append(syncs, ir.NewSync(ir.SyncNop, ir.SWSB{Distance: req.Distance, Pipe: req.Pipe}, 0))
			}
		}
	case req.Distance > 0:
		ann.Distance, ann.Pipe = req.Distance, req.Pipe
	case bits.OnesCount64(waitDst)+bits.OnesCount64(waitSrc) == 1:
		if waitDst != 0 {
			ann.Token, ann.Mode = bits.TrailingZeros64(waitDst), ir.TokenDst
		} else {
			ann.Token, ann.Mode = bits.TrailingZeros64(waitSrc), ir.TokenSrc
		}
		waitDst, waitSrc = 0, 0
	}

	syncs = append(syncs, waitSyncs(waitDst, ir.TokenDst)...)
	syncs = append(syncs, waitSyncs(waitSrc, ir.TokenSrc)...)
	return ann, syncs
}

func waitSyncs(mask uint64, mode ir.TokenMode) []*ir.Instruction {
	switch bits.OnesCount64(mask) {
	case 0:
		return nil
	case 1:
		return []*ir.Instruction{ir.NewSync(ir.SyncNop, ir.SWSB{Token: bits.TrailingZeros64(mask), Mode: mode}, 0)}
	}
	kind := ir.SyncAllWr
	if mode == ir.TokenSrc {
		kind = ir.SyncAllRd
	}
	return []*ir.Instruction{ir.NewSync(kind, ir.SWSB{}, uint32(mask))}
}

// FlushSync waits for every token in mask to finish writing, which implies
// the owners have also finished reading
func FlushSync(mask uint64) *ir.Instruction {
	return ir.NewSync(ir.SyncAllWr, ir.SWSB{}, uint32(mask))
}
