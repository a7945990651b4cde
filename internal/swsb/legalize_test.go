package swsb

import (
	"fmt"
	"testing"

	"github.com/xyproto/swsb/internal/ir"
)

func TestLegalize(t *testing.T) {
	tests := []struct {
		name  string
		send  bool
		req   Requirement
		want  string
		syncs []string
	}{
		{"nothing", false, NoRequirement(), "", nil},
		{"distance only", false, Requirement{Distance: 2, Pipe: ir.DistFloat, Set: -1}, "F@2", nil},
		{"one dst wait", false, Requirement{Set: -1, WaitDst: 1 << 3}, "$3.dst", nil},
		{"one src wait", false, Requirement{Set: -1, WaitSrc: 1 << 5}, "$5.src", nil},
		{"distance and wait", false, Requirement{Distance: 1, Pipe: ir.DistInt, Set: -1, WaitDst: 1 << 2}, "I@1", []string{"sync.nop $2.dst"}},
		{"send keeps distance and set", true, Requirement{Distance: 3, Pipe: ir.DistAll, Set: 4}, "A@3 $4", nil},
		{"other keeps set", false, Requirement{Distance: 3, Pipe: ir.DistAll, Set: 4}, "$4", []string{"sync.nop A@3"}},
		{"several dst waits", false, Requirement{Set: -1, WaitDst: 0b1011}, "", []string{"sync.allwr 0xb"}},
		{"several src waits", true, Requirement{Set: 0, WaitSrc: 0b110}, "$0", []string{"sync.allrd 0x6"}},
		{"dst supersedes src", false, Requirement{Set: -1, WaitDst: 1, WaitSrc: 1}, "$0.dst", nil},
		{"mixed waits", false, Requirement{Set: -1, WaitDst: 1, WaitSrc: 2}, "", []string{"sync.nop $0.dst", "sync.nop $1.src"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, syncs := Legalize(tt.send, tt.req)
			if got.String() != tt.want {
				t.Errorf("annotation: got %q, want %q", got, tt.want)
			}
			if !ValidAnnotation(tt.send, got) {
				t.Errorf("annotation %q is not encodable", got)
			}
			if len(syncs) != len(tt.syncs) {
				t.Fatalf("got %d syncs, want %d", len(syncs), len(tt.syncs))
			}
			for i, s := range syncs {
				if !s.Synthetic || !s.IsSync() {
					t.Errorf("sync %d is not a synthesized sync", i)
				}
				if !ValidAnnotation(false, s.SWSB) {
					t.Errorf("sync %d carries an unencodable annotation {%s}", i, s.SWSB)
				}
				line := s.Mnemonic()
				if s.SyncMask != 0 {
					line += fmt.Sprintf(" %#x", s.SyncMask)
				} else if !s.SWSB.IsZero() {
					line += " " + s.SWSB.String()
				}
				if line != tt.syncs[i] {
					t.Errorf("sync %d: got %q, want %q", i, line, tt.syncs[i])
				}
			}
		})
	}
}

func TestLegalizeIsIdempotent(t *testing.T) {
	for _, send := range []bool{false, true} {
		for tok := 0; tok < 4; tok++ {
			for d := 0; d <= 7; d++ {
				for _, mode := range []ir.TokenMode{ir.TokenNone, ir.TokenSet, ir.TokenDst, ir.TokenSrc} {
					in := ir.SWSB{Distance: d, Pipe: ir.DistLong, Token: tok, Mode: mode}
					if d == 0 {
						in.Pipe = ir.DistSingle
					}
					if mode == ir.TokenNone {
						in.Token = 0
					}
					if !ValidAnnotation(send, in) {
						continue
					}
					out, syncs := Legalize(send, RequirementOf(in))
					if out != in || len(syncs) != 0 {
						t.Errorf("send=%v: legalizing {%s} gave {%s} and %d syncs", send, in, out, len(syncs))
					}
				}
			}
		}
	}
}

func TestValidAnnotation(t *testing.T) {
	if ValidAnnotation(false, ann("F@1 $2.dst")) {
		t.Error("distance with a token wait is never encodable")
	}
	if ValidAnnotation(false, ann("F@1 $2")) {
		t.Error("distance with a token set is only encodable on sends")
	}
	if !ValidAnnotation(true, ann("F@1 $2")) {
		t.Error("a send may set a token and wait on a distance")
	}
	if ValidAnnotation(true, ann("F@1 $2.src")) {
		t.Error("a send may not wait on a token and a distance")
	}
}
