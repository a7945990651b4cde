package swsb

import "testing"

func TestTokenAllocatorRoundRobin(t *testing.T) {
	ta := NewTokenAllocator(2)
	a := Pair{Write: 0, Read: 1}
	b := Pair{Write: 2, Read: 3}
	c := Pair{Write: 4, Read: 5}

	if tok, ev := ta.Allocate(a); tok != 0 || ev != nil {
		t.Fatalf("expected free token 0, got %d (%v)", tok, ev)
	}
	if tok, ev := ta.Allocate(b); tok != 1 || ev != nil {
		t.Fatalf("expected free token 1, got %d (%v)", tok, ev)
	}

	tok, ev := ta.Allocate(c)
	if tok != 0 || ev == nil {
		t.Fatalf("expected token 0 to be recycled, got %d (%v)", tok, ev)
	}
	if ev.Owner != a {
		t.Errorf("evicted owner should be %v, got %v", a, ev.Owner)
	}
	if ta.State(0) != TokenRecycling || ta.Recycling() != 0x1 {
		t.Errorf("token 0 should be recycling, state %v", ta.State(0))
	}
	if err := ta.Recycled(0); err != nil {
		t.Fatal(err)
	}
	if ta.State(0) != TokenInUse || ta.Recycling() != 0 {
		t.Errorf("token 0 should be in use by %v, state %v", c, ta.State(0))
	}
	if err := ta.Recycled(0); err == nil {
		t.Error("recycling an in-use token twice should fail")
	}
}

func TestTokenAllocatorPrefersFree(t *testing.T) {
	ta := NewTokenAllocator(4)
	for i := 0; i < 4; i++ {
		ta.Allocate(Pair{Write: Handle(i), Read: NoHandle})
	}
	if err := ta.Free(2); err != nil {
		t.Fatal(err)
	}
	if tok, ev := ta.Allocate(Pair{Write: 9, Read: NoHandle}); tok != 2 || ev != nil {
		t.Errorf("expected the freed token 2, got %d (%v)", tok, ev)
	}
	if ta.NumInUse() != 4 || ta.InUse() != 0xf {
		t.Errorf("expected all tokens in use, mask 0x%x", ta.InUse())
	}
}

func TestTokenAllocatorFree(t *testing.T) {
	ta := NewTokenAllocator(16)
	tok, _ := ta.Allocate(Pair{Write: 1, Read: 2})
	if err := ta.Free(tok); err != nil {
		t.Fatal(err)
	}
	if err := ta.Free(tok); err == nil {
		t.Error("double free should fail")
	}
	if err := ta.Free(99); err == nil {
		t.Error("free outside the pool should fail")
	}
	if ta.State(tok) != TokenFree {
		t.Errorf("token %d should be free, state %v", tok, ta.State(tok))
	}
}

func TestTokenReleaseRead(t *testing.T) {
	ta := NewTokenAllocator(16)
	withWrite, _ := ta.Allocate(Pair{Write: 1, Read: 2})
	readOnly, _ := ta.Allocate(Pair{Write: NoHandle, Read: 3})

	if ta.ReleaseRead(withWrite) {
		t.Error("the write side is still pending")
	}
	if ta.State(withWrite) != TokenInUse {
		t.Error("releasing the read side must keep the token")
	}
	if !ta.ReleaseRead(readOnly) {
		t.Error("an owner without a write side is finished once its reads are")
	}
}

func TestTokenPoolClamp(t *testing.T) {
	if n := NewTokenAllocator(0).Size(); n != 1 {
		t.Errorf("expected a pool of at least 1, got %d", n)
	}
	if n := NewTokenAllocator(64).Size(); n != maxTokens {
		t.Errorf("expected the pool clamped to %d, got %d", maxTokens, n)
	}
}
