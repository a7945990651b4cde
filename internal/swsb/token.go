package swsb

import (
	"fmt"
	"math/bits"
)

// TokenState is the lifecycle state of one scoreboard token
type TokenState int

const (
	TokenFree TokenState = iota
	TokenInUse
	// TokenRecycling marks a token taken from its owner by round-robin
	// eviction; it becomes TokenInUse again once the new owner is recorded
	TokenRecycling
)

// Pair is the write/read footprint pair that owns a token
type Pair struct {
	Write Handle
	Read  Handle
}

type tokenSlot struct {
	state TokenState
	owner Pair
}

// Eviction describes the previous owner of a recycled token
type Eviction struct {
	Token int
	Owner Pair
}

// TokenAllocator hands out the fixed pool of hardware scoreboard tokens.
// When the pool is exhausted the next token in round-robin order is taken
// from its owner; the caller must flush that owner.
type TokenAllocator struct {
	slots []tokenSlot
	next  int
}

// maxTokens is the width of the sync.allrd/allwr token mask
const maxTokens = 32

// NewTokenAllocator creates a pool of n tokens, all free
func NewTokenAllocator(n int) *TokenAllocator {
	if n <= 0 {
		n = 1
	}
	if n > maxTokens {
		n = maxTokens
	}
	ta := &TokenAllocator{slots: make([]tokenSlot, n)}
	ta.Reset()
	return ta
}

// Size returns the pool size
func (ta *TokenAllocator) Size() int {
	return len(ta.slots)
}

// Allocate assigns a token to an out-of-order footprint pair. A free token
// is preferred, searched in round-robin order; otherwise the round-robin
// token is recycled and its previous owner returned.
func (ta *TokenAllocator) Allocate(owner Pair) (int, *Eviction) {
	n := len(ta.slots)
	for i := 0; i < n; i++ {
		tok := (ta.next + i) % n
		if ta.slots[tok].state == TokenFree {
			ta.slots[tok] = tokenSlot{state: TokenInUse, owner: owner}
			ta.next = (tok + 1) % n
			return tok, nil
		}
	}

	tok := ta.next
	ev := &Eviction{Token: tok, Owner: ta.slots[tok].owner}
	ta.slots[tok] = tokenSlot{state: TokenRecycling, owner: owner}
	ta.next = (tok + 1) % n
	return tok, ev
}

// Recycled completes an eviction once the previous owner has been flushed
func (ta *TokenAllocator) Recycled(tok int) error {
	if ta.State(tok) != TokenRecycling {
		return fmt.Errorf("token %d is not being recycled", tok)
	}
	ta.slots[tok].state = TokenInUse
	return nil
}

// Recycling returns a mask of tokens whose eviction has not completed
func (ta *TokenAllocator) Recycling() uint64 {
	var mask uint64
	for i, s := range ta.slots {
		if s.state == TokenRecycling {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// Free returns a token to the pool
func (ta *TokenAllocator) Free(tok int) error {
	if tok < 0 || tok >= len(ta.slots) {
		return fmt.Errorf("free of token %d outside pool of %d", tok, len(ta.slots))
	}
	if ta.slots[tok].state == TokenFree {
		return fmt.Errorf("double free of token %d", tok)
	}
	ta.slots[tok] = tokenSlot{owner: Pair{Write: NoHandle, Read: NoHandle}}
	return nil
}

// State returns the state of a token
func (ta *TokenAllocator) State(tok int) TokenState {
	if tok < 0 || tok >= len(ta.slots) {
		return TokenFree
	}
	return ta.slots[tok].state
}

// ReleaseRead drops the read side of a token owner, keeping the token
// allocated. It reports whether the owner has no write side left, in which
// case the caller should free the token.
func (ta *TokenAllocator) ReleaseRead(tok int) bool {
	if ta.State(tok) == TokenFree {
		return false
	}
	ta.slots[tok].owner.Read = NoHandle
	return ta.slots[tok].owner.Write == NoHandle
}

// InUse returns a bit mask of allocated tokens
func (ta *TokenAllocator) InUse() uint64 {
	var mask uint64
	for i, s := range ta.slots {
		if s.state != TokenFree {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// NumInUse counts allocated tokens
func (ta *TokenAllocator) NumInUse() int {
	return bits.OnesCount64(ta.InUse())
}

// Reset frees every token and rewinds the round-robin pointer
func (ta *TokenAllocator) Reset() {
	for i := range ta.slots {
		ta.slots[i] = tokenSlot{owner: Pair{Write: NoHandle, Read: NoHandle}}
	}
	ta.next = 0
}
