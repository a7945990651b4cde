package swsb

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/xyproto/swsb/internal/ir"
)

// blockState is the resolver of one kernel. Counters, buckets, tokens and
// the footprint arena are reset at every block boundary.
type blockState struct {
	caps    Capabilities
	layout  *Layout
	policy  Policy
	builder *Builder
	arena   *Arena
	index   *BucketIndex
	tokens  *TokenAllocator
	opts    Options

	kernel string
	block  string

	counters Stamp
	// followDistOne forces a distance of 1 on all pipes for the next
	// instruction after an always-conflicting access
	followDistOne bool

	seen  map[Handle]bool
	stats Stats
}

func newBlockState(caps Capabilities, opts Options) *blockState {
	layout := NewLayout(caps)
	arena := &Arena{}
	return &blockState{
		caps:    caps,
		layout:  layout,
		policy:  NewPolicy(caps),
		builder: NewBuilder(caps, layout),
		arena:   arena,
		index:   NewBucketIndex(layout, arena),
		tokens:  NewTokenAllocator(caps.TokenCount()),
		opts:    opts,
		seen:    make(map[Handle]bool),
	}
}

func (bs *blockState) logf(format string, args ...any) {
	if bs.opts.Logf != nil {
		bs.opts.Logf(format, args...)
	}
}

func (bs *blockState) fail(inst *ir.Instruction, format string, args ...any) error {
	return &InternalError{
		Kernel:   bs.kernel,
		Block:    bs.block,
		Position: inst.Pos,
		Opcode:   inst.Mnemonic(),
		Msg:      fmt.Sprintf(format, args...),
	}
}

func (bs *blockState) reset() {
	bs.index.Reset()
	bs.arena.Reset()
	bs.tokens.Reset()
	bs.counters = Stamp{}
}

// allPipes is the qualifier that waits on every in-order pipe
func (bs *blockState) allPipes() ir.DistPipe {
	if bs.policy.SinglePipe() {
		return ir.DistSingle
	}
	return ir.DistAll
}

func (bs *blockState) window(pipe Pipe) int {
	return bs.caps.InFlightWindow(latencyClass(pipe))
}

// retired reports whether enough instructions issued on an in-order
// footprint's pipe that it must have completed
func (bs *blockState) retired(fp *Footprint) bool {
	c := bs.policy.counter(fp.Pipe)
	return bs.counters[c]-fp.Stamp[c] > bs.window(fp.Pipe)
}

// distances collects the in-order waits of one node
type distances struct {
	perCounter [numCounters]int // 0 when the counter is not implicated
	forced     bool
}

func (d *distances) add(c, dist int) {
	if d.perCounter[c] == 0 || dist < d.perCounter[c] {
		d.perCounter[c] = dist
	}
}

// settle picks the single distance the node waits on. One implicated pipe
// keeps its qualifier. Several widen to all pipes, and since A@n waits n
// back in every pipe, the nearest producer sets n.
func (bs *blockState) settle(d *distances) (int, ir.DistPipe) {
	if d.forced {
		return 1, bs.allPipes()
	}
	implicated, only, nearest := 0, 0, 0
	for c, n := range d.perCounter {
		if n == 0 {
			continue
		}
		implicated++
		only = c
		if nearest == 0 || n < nearest {
			nearest = n
		}
	}
	var pipe ir.DistPipe
	switch implicated {
	case 0:
		return 0, ir.DistSingle
	case 1:
		pipe = bs.policy.distPipe(only)
	default:
		pipe = bs.allPipes()
	}
	return min(nearest, bs.caps.MaxDist()), pipe
}

func (bs *blockState) drop(h Handle) {
	bs.index.Remove(h)
}

// dropPair clears a satisfied write and its read companion. An in-order
// always-conflicting companion stays live.
func (bs *blockState) dropPair(h Handle, fp *Footprint) {
	bs.index.Remove(h)
	comp := bs.arena.Get(fp.Companion)
	if comp == nil {
		return
	}
	if comp.AlwaysConflicts && comp.Class == ClassInOrder {
		return
	}
	bs.index.Remove(fp.Companion)
}

// flushAll clears every live footprint and frees every token
func (bs *blockState) flushAll() error {
	for _, h := range bs.index.All() {
		bs.index.Remove(h)
	}
	for mask := bs.tokens.InUse(); mask != 0; mask &= mask - 1 {
		if err := bs.tokens.Free(bits.TrailingZeros64(mask)); err != nil {
			return err
		}
	}
	return nil
}

// evict drops the footprints of a token's previous owner
func (bs *blockState) evict(ev *Eviction) {
	for _, h := range []Handle{ev.Owner.Write, ev.Owner.Read} {
		if fp := bs.arena.Get(h); fp != nil {
			bs.index.Remove(h)
			fp.Token = -1
		}
	}
}

// probe checks cur against every live footprint sharing a bucket with one
// of its byte runs. The special bucket is always visited.
func (bs *blockState) probe(cur *Footprint, req *Requirement, d *distances) error {
	if cur.Empty() {
		return nil
	}
	clear(bs.seen)
	lo, hi := bs.layout.BucketRange(bs.layout.SpecialBucket)
	for _, r := range append(runs(cur), span{lo, hi}) {
		for _, h := range bs.index.QueryRange(r.lo, r.hi) {
			if bs.seen[h] {
				continue
			}
			bs.seen[h] = true
			prior := bs.arena.Get(h)
			if prior == nil || !prior.live {
				continue
			}
			if err := bs.check(h, prior, cur, req, d); err != nil {
				return err
			}
		}
	}
	return nil
}

// check classifies the hazard between a live prior footprint and cur
func (bs *blockState) check(h Handle, prior, cur *Footprint, req *Requirement, d *distances) error {
	if prior.Class == ClassInOrder && bs.retired(prior) {
		bs.drop(h)
		return nil
	}
	inter := prior.Bits.Intersection(cur.Bits)
	if inter.None() && !prior.AlwaysConflicts {
		return nil
	}

	inOrder := prior.Class == ClassInOrder && cur.Class == ClassInOrder
	samePipe := bs.policy.effective(prior.Pipe, prior.Class) == bs.policy.effective(cur.Pipe, cur.Class)

	switch {
	case prior.Polarity == Write && cur.Polarity == Read:
		// flag and accumulator forwarding within one pipe is resolved by hardware
		if inOrder && samePipe && !prior.AlwaysConflicts && bs.layout.OnlyAccOrFlag(inter) {
			return nil
		}
		return bs.depend(h, prior, req, d)

	case prior.Polarity == Write:
		if inOrder && !prior.AlwaysConflicts {
			if samePipe {
				if cur.Bits.IsSuperSet(prior.Bits) {
					bs.drop(h)
				}
				return nil
			}
		}
		return bs.depend(h, prior, req, d)

	case cur.Polarity == Write:
		// the read stays live: a later writer in another pipe still needs it
		if prior.Class == ClassInOrder && samePipe && !prior.AlwaysConflicts {
			return nil
		}
		return bs.depend(h, prior, req, d)
	}

	if inOrder && samePipe && cur.Bits.IsSuperSet(prior.Bits) {
		bs.drop(h)
	}
	return nil
}

// depend records that the current node waits for prior, and clears what the
// wait resolves: a write with its companion, or a read alone
func (bs *blockState) depend(h Handle, prior *Footprint, req *Requirement, d *distances) error {
	if prior.Class == ClassInOrder {
		c := bs.policy.counter(prior.Pipe)
		d.add(c, bs.counters[c]-prior.Stamp[c])
		if prior.Polarity == Write {
			bs.dropPair(h, prior)
		} else {
			bs.drop(h)
		}
		return nil
	}

	tok := prior.Token
	if tok < 0 {
		return fmt.Errorf("live out-of-order %s footprint %d holds no token", prior.Polarity, h)
	}
	if prior.Polarity == Write {
		req.WaitDst |= 1 << uint(tok)
		bs.dropPair(h, prior)
		return bs.tokens.Free(tok)
	}
	req.WaitSrc |= 1 << uint(tok)
	bs.drop(h)
	if bs.tokens.ReleaseRead(tok) {
		return bs.tokens.Free(tok)
	}
	return nil
}

// visit analyzes one node, a single instruction or a systolic macro, and
// returns it preceded by the syncs its requirement needs
func (bs *blockState) visit(steps []*ir.Instruction, node int) ([]*ir.Instruction, error) {
	first, last := steps[0], steps[len(steps)-1]
	pipe, class := bs.policy.Classify(first)

	read, write := bs.builder.ReadFootprint(first), bs.builder.WriteFootprint(first)
	for _, s := range steps[1:] {
		r, w := bs.builder.ReadFootprint(s), bs.builder.WriteFootprint(s)
		read.Bits.InPlaceUnion(r.Bits)
		write.Bits.InPlaceUnion(w.Bits)
		read.AlwaysConflicts = read.AlwaysConflicts || r.AlwaysConflicts
		write.AlwaysConflicts = write.AlwaysConflicts || w.AlwaysConflicts
	}
	for _, fp := range []*Footprint{read, write} {
		fp.Node, fp.Pipe, fp.Class, fp.Stamp = node, pipe, class, bs.counters
	}
	rh, wh := bs.arena.New(read), bs.arena.New(write)
	read.Companion, write.Companion = wh, rh

	req := NoRequirement()
	var d distances
	if bs.followDistOne {
		d.forced = true
		bs.followDistOne = false
	}

	if read.AlwaysConflicts || write.AlwaysConflicts {
		d.forced = true
		req.WaitDst |= bs.tokens.InUse()
		if err := bs.flushAll(); err != nil {
			return nil, bs.fail(first, "%v", err)
		}
		bs.followDistOne = true
		bs.stats.ForcedFlushes++
	} else {
		if err := bs.probe(read, &req, &d); err != nil {
			return nil, bs.fail(first, "%v", err)
		}
		if err := bs.probe(write, &req, &d); err != nil {
			return nil, bs.fail(first, "%v", err)
		}
	}
	req.Distance, req.Pipe = bs.settle(&d)

	eot := last.IsEOT()
	if class == ClassOutOfOrder && !eot {
		owner := Pair{Write: NoHandle, Read: NoHandle}
		if !write.Empty() {
			owner.Write = wh
		}
		if !read.Empty() {
			owner.Read = rh
		}
		tok, ev := bs.tokens.Allocate(owner)
		if ev != nil {
			req.WaitDst |= 1 << uint(ev.Token)
			bs.evict(ev)
			if err := bs.tokens.Recycled(tok); err != nil {
				return nil, bs.fail(first, "%v", err)
			}
			bs.stats.Evictions++
			bs.logf("%s: token $%d recycled for %s at %d", bs.kernel, tok, first.Mnemonic(), first.Pos)
		}
		read.Token, write.Token = tok, tok
		req.Set = tok
	}

	syncs, err := bs.annotate(steps, req)
	if err != nil {
		return nil, err
	}

	if !eot {
		for _, h := range []Handle{rh, wh} {
			if bs.arena.Get(h).Empty() {
				continue
			}
			if err := bs.index.Register(h); err != nil {
				return nil, bs.fail(first, "%v", err)
			}
		}
	}
	if bs.opts.Verify {
		if err := bs.index.Check(); err != nil {
			return nil, bs.fail(first, "%v", err)
		}
		if mask := bs.tokens.Recycling(); mask != 0 {
			return nil, bs.fail(first, "tokens %#x left mid-recycle", mask)
		}
	}

	if class == ClassInOrder {
		c := bs.policy.counter(pipe)
		bs.counters[c]++
		if c != cntGlobal {
			bs.counters[cntGlobal]++
		}
	}
	return append(syncs, steps...), nil
}

// annotate legalizes a requirement onto a node. A macro carries its waits
// on the first step and its token on the last.
func (bs *blockState) annotate(steps []*ir.Instruction, req Requirement) ([]*ir.Instruction, error) {
	first, last := steps[0], steps[len(steps)-1]
	sendFamily := first.Op.Family() == ir.FamSend

	var syncs []*ir.Instruction
	if len(steps) == 1 {
		first.SWSB, syncs = Legalize(sendFamily, req)
	} else {
		head := req
		head.Set = -1
		first.SWSB, syncs = Legalize(false, head)
		for _, s := range steps[1:] {
			s.SWSB = ir.SWSB{}
		}
		if req.Set >= 0 {
			last.SWSB = ir.SWSB{Token: req.Set, Mode: ir.TokenSet}
		}
	}

	for _, s := range steps {
		if !ValidAnnotation(sendFamily && len(steps) == 1, s.SWSB) {
			return nil, bs.fail(s, "illegal annotation {%s} after legalization", s.SWSB)
		}
	}
	for _, s := range syncs {
		if !ValidAnnotation(false, s.SWSB) {
			return nil, bs.fail(first, "illegal sync annotation {%s}", s.SWSB)
		}
		s.Pos = first.Pos
		bs.logf("%s: %s before %s at %d", bs.kernel, s, first.Mnemonic(), first.Pos)
	}
	bs.count(steps, syncs)
	return syncs, nil
}

func (bs *blockState) count(steps, syncs []*ir.Instruction) {
	bs.stats.Syncs += len(syncs)
	for _, inst := range slices.Concat(syncs, steps) {
		a := inst.SWSB
		if a.HasDistance() {
			bs.stats.Distances++
		}
		switch a.Mode {
		case ir.TokenSet:
			bs.stats.TokenSets++
		case ir.TokenDst, ir.TokenSrc:
			bs.stats.TokenWaits++
		}
		bs.stats.TokenWaits += bits.OnesCount32(inst.SyncMask)
	}
}

// runBlock analyzes one block in place
func (bs *blockState) runBlock(bb *ir.Block) error {
	bs.block = bb.Label
	bs.reset()

	insts := bb.Insts
	out := make([]*ir.Instruction, 0, len(insts)+4)
	node := 0
	for i := 0; i < len(insts); {
		if insts[i].IsSync() {
			out = append(out, insts[i])
			i++
			continue
		}
		n, split := bs.macroLength(insts, i)
		if n > 1 {
			bs.stats.Macros++
		}
		if split {
			bs.logf("%s: macro at %d split after %d steps by an internal dependency", bs.kernel, insts[i].Pos, n)
		}
		nodeOut, err := bs.visit(insts[i:i+n], node)
		if err != nil {
			return err
		}
		out = append(out, nodeOut...)
		bs.stats.Instructions += n
		node++
		i += n
	}

	out, err := bs.sweep(out)
	if err != nil {
		return err
	}
	bb.Insts = out
	return nil
}

// sweep waits for every token still in use at the end of a block, unless
// the block ends the thread. The sync goes before a trailing branch.
func (bs *blockState) sweep(out []*ir.Instruction) ([]*ir.Instruction, error) {
	mask := bs.tokens.InUse()
	if mask == 0 || len(out) == 0 {
		return out, nil
	}
	last := out[len(out)-1]
	if last.IsEOT() {
		return out, nil
	}
	flush := FlushSync(mask)
	flush.Pos = last.Pos
	bs.stats.Syncs++
	bs.stats.ForcedFlushes++
	bs.stats.TokenWaits += bits.OnesCount64(mask)
	bs.logf("%s: %s at end of block %s", bs.kernel, flush, bs.block)
	if err := bs.flushAll(); err != nil {
		return nil, bs.fail(last, "%v", err)
	}
	if last.Op.Family() == ir.FamControl {
		return slices.Insert(out, len(out)-1, flush), nil
	}
	return append(out, flush), nil
}

// runKernel analyzes every block of a kernel and appends the trailing
// all-pipes sync
func (bs *blockState) runKernel(k *ir.Kernel) error {
	bs.kernel = k.Name
	k.Renumber()
	for _, bb := range k.Blocks {
		if err := bs.runBlock(bb); err != nil {
			return err
		}
	}
	if n := len(k.Blocks); n > 0 {
		bb := k.Blocks[n-1]
		bb.Insts = append(bb.Insts, ir.NewSync(ir.SyncNop, ir.SWSB{Distance: 1, Pipe: bs.allPipes()}, 0))
		bs.stats.Syncs++
		bs.stats.Distances++
	}
	k.Renumber()
	return nil
}
