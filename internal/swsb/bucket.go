package swsb

import (
	"fmt"
	"slices"
)

// BucketIndex maps register-sized slots of the byte space to the live
// footprints overlapping them, so a hazard probe only visits footprints
// that share a register with the instruction being analyzed.
type BucketIndex struct {
	layout *Layout
	arena  *Arena
	lists  [][]Handle
}

// NewBucketIndex creates an empty index over the layout's buckets
func NewBucketIndex(layout *Layout, arena *Arena) *BucketIndex {
	return &BucketIndex{
		layout: layout,
		arena:  arena,
		lists:  make([][]Handle, layout.NumBuckets),
	}
}

// bucketsOf lists the buckets a footprint's bits touch, in ascending order
func (bi *BucketIndex) bucketsOf(fp *Footprint) []int {
	var out []int
	rb := uint(bi.layout.RegBytes)
	i, ok := fp.Bits.NextSet(0)
	for ok {
		b := int(i / rb)
		out = append(out, b)
		i, ok = fp.Bits.NextSet(uint(b+1) * rb)
	}
	return out
}

// span is a byte range [lo, hi)
type span struct{ lo, hi int }

// runs splits a footprint into its contiguous byte ranges
func runs(fp *Footprint) []span {
	var out []span
	lo, ok := fp.Bits.NextSet(0)
	for ok {
		hi, more := fp.Bits.NextClear(lo)
		if !more {
			hi = fp.Bits.Len()
		}
		out = append(out, span{int(lo), int(hi)})
		lo, ok = fp.Bits.NextSet(hi)
	}
	return out
}

// Register inserts a footprint into every bucket it overlaps. Out-of-order
// footprints also go into the long-latency bucket.
func (bi *BucketIndex) Register(h Handle) error {
	fp := bi.arena.Get(h)
	if fp == nil {
		return fmt.Errorf("register of unknown footprint handle %d", h)
	}
	if fp.Empty() {
		return fmt.Errorf("register of empty %s footprint", fp.Polarity)
	}
	if fp.live {
		return fmt.Errorf("footprint %d registered twice", h)
	}
	fp.buckets = bi.bucketsOf(fp)
	if fp.Class == ClassOutOfOrder {
		fp.buckets = append(fp.buckets, bi.layout.LongBucket)
	}
	for _, b := range fp.buckets {
		bi.lists[b] = append(bi.lists[b], h)
	}
	fp.live = true
	return nil
}

// Remove clears a footprint from every bucket it occupies
func (bi *BucketIndex) Remove(h Handle) {
	fp := bi.arena.Get(h)
	if fp == nil || !fp.live {
		return
	}
	for _, b := range fp.buckets {
		bi.lists[b] = slices.DeleteFunc(bi.lists[b], func(x Handle) bool { return x == h })
	}
	fp.buckets = nil
	fp.live = false
}

// Query returns the live footprints in one bucket, oldest first.
// The slice is a copy and stays valid while the index changes.
func (bi *BucketIndex) Query(bucket int) []Handle {
	if bucket < 0 || bucket >= len(bi.lists) {
		return nil
	}
	return slices.Clone(bi.lists[bucket])
}

// QueryRange returns the live footprints overlapping bytes [lo, hi), each
// once, in first-seen order
func (bi *BucketIndex) QueryRange(lo, hi int) []Handle {
	if hi <= lo {
		return nil
	}
	seen := make(map[Handle]bool)
	var out []Handle
	for b := bi.layout.BucketOf(lo); b <= bi.layout.BucketOf(hi-1) && b < len(bi.lists); b++ {
		for _, h := range bi.lists[b] {
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
		}
	}
	return out
}

// All returns every live footprint once
func (bi *BucketIndex) All() []Handle {
	seen := make(map[Handle]bool)
	var out []Handle
	for _, list := range bi.lists {
		for _, h := range list {
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
		}
	}
	return out
}

// Reset empties every bucket
func (bi *BucketIndex) Reset() {
	for i := range bi.lists {
		bi.lists[i] = bi.lists[i][:0]
	}
}

// Check verifies that a footprint is in bucket b exactly when its bits touch b
func (bi *BucketIndex) Check() error {
	for b, list := range bi.lists {
		lo, hi := bi.layout.BucketRange(b)
		for _, h := range list {
			fp := bi.arena.Get(h)
			if fp == nil || !fp.live {
				return fmt.Errorf("bucket %d holds dead footprint %d", b, h)
			}
			if fp.Empty() {
				return fmt.Errorf("bucket %d holds empty footprint %d", b, h)
			}
			if b == bi.layout.LongBucket {
				if fp.Class != ClassOutOfOrder {
					return fmt.Errorf("long-latency bucket holds in-order footprint %d", h)
				}
				continue
			}
			next, ok := fp.Bits.NextSet(uint(lo))
			if !ok || int(next) >= hi {
				return fmt.Errorf("bucket %d holds footprint %d that does not touch it", b, h)
			}
		}
	}
	for _, h := range bi.All() {
		for _, b := range bi.bucketsOf(bi.arena.Get(h)) {
			if !slices.Contains(bi.lists[b], h) {
				return fmt.Errorf("footprint %d touches bucket %d but is missing from it", h, b)
			}
		}
	}
	return nil
}
