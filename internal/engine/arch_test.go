package engine

import (
	"slices"
	"testing"
)

func TestParseGeneration(t *testing.T) {
	tests := map[string]Generation{
		"gen12lp": Gen12LP,
		"TGL":     Gen12LP,
		"xehp":    XeHP,
		"dg2":     XeHPG,
		" pvc ":   XeHPC,
		"xe2":     Xe2,
		"lnl":     Xe2,
	}
	for in, want := range tests {
		got, err := ParseGeneration(in)
		if err != nil {
			t.Errorf("ParseGeneration(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseGeneration(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseGeneration("gen9"); err == nil {
		t.Error("expected an error for an unsupported platform")
	}
}

func TestPlatformTable(t *testing.T) {
	names := GenerationNames()
	if !slices.IsSorted(names) || len(names) != 5 {
		t.Fatalf("unexpected generation names: %v", names)
	}
	for _, name := range names {
		g, err := ParseGeneration(name)
		if err != nil {
			t.Fatal(err)
		}
		p, err := LookupPlatform(g)
		if err != nil {
			t.Fatal(err)
		}
		if p.Generation() != g {
			t.Errorf("%s: table entry is for %s", name, p.Generation())
		}
		if p.RegBytes()%16 != 0 || p.NumGRF() == 0 || p.TokenCount() == 0 {
			t.Errorf("%s: implausible register file or token pool: %s", name, p)
		}
		if p.MaxDist() < 1 || p.InFlightWindow(LatencyALU) < p.MaxDist() {
			t.Errorf("%s: in-flight window shorter than the encodable distance", name)
		}
	}
	if _, err := LookupPlatform(GenUnknown); err == nil {
		t.Error("expected no table for an unknown generation")
	}
}

func TestPlatformCapabilities(t *testing.T) {
	legacy, _ := LookupPlatform(Gen12LP)
	if legacy.DistPipes() != 1 {
		t.Error("gen12lp has a single distance pipe")
	}
	if steps, _ := legacy.MacroLimits(); steps != 1 {
		t.Error("gen12lp has no systolic macros")
	}

	xehp, _ := LookupPlatform(XeHP)
	if !xehp.HasByteDstErratum() {
		t.Error("xehp carries the byte destination erratum")
	}

	xe2, _ := LookupPlatform(Xe2)
	if xe2.DistPipes() != 5 || xe2.TokenCount() != 32 || xe2.RegBytes() != 64 {
		t.Errorf("unexpected xe2 table: %s", xe2)
	}
	if xe2.InFlightWindow(LatencyMath) <= xe2.InFlightWindow(LatencyALU) {
		t.Error("math latency should exceed the ALU latency")
	}
	if lim := xe2.MaxMessage(MsgGateway); lim.Dst != 1 {
		t.Errorf("unexpected gateway limits: %+v", lim)
	}
	if lim := xe2.MaxMessage(MessageClass(99)); lim != (MessageLimits{}) {
		t.Error("unknown message classes have no payload")
	}
}

func TestPlatformOverrides(t *testing.T) {
	p, _ := LookupPlatform(XeHPG)
	small := p.WithTokens(2)
	if small.TokenCount() != 2 || p.TokenCount() != 16 {
		t.Error("WithTokens must copy the table")
	}
	if p.WithTokens(0).TokenCount() != 16 {
		t.Error("a zero override keeps the default")
	}
	if p.WithGRF(256).NumGRF() != 256 || p.NumGRF() != 128 {
		t.Error("WithGRF must copy the table")
	}
	again, _ := LookupPlatform(XeHPG)
	if again.TokenCount() != 16 {
		t.Error("LookupPlatform must return a fresh copy")
	}
}

func TestParseMessageClass(t *testing.T) {
	for _, name := range []string{"mem", "smpl", "slm", "rt", "gtwy"} {
		m, err := ParseMessageClass(name)
		if err != nil || m.String() != name {
			t.Errorf("ParseMessageClass(%q) = %s, %v", name, m, err)
		}
	}
	if _, err := ParseMessageClass("dc9"); err == nil {
		t.Error("expected an error for an unknown message class")
	}
}

func TestSuggestSimilar(t *testing.T) {
	got := SuggestSimilar("ad", []string{"add", "and", "mad", "mov", "sendc"}, 2)
	if !slices.Equal(got, []string{"add", "and"}) {
		t.Errorf("got %v", got)
	}
	if got := SuggestSimilar("add", []string{"add"}, 3); len(got) != 0 {
		t.Errorf("an exact match is not a suggestion: %v", got)
	}
	if EditDistance("kitten", "sitting") != 3 {
		t.Error("EditDistance is wrong")
	}
	if base, suffix := SplitSuffix("send.mem"); base != "send" || suffix != "mem" {
		t.Errorf("SplitSuffix: %q %q", base, suffix)
	}
}
