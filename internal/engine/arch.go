// Completion: 100% - Platform table complete for all supported generations
package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Generation identifies a GPU architecture generation
type Generation int

const (
	GenUnknown Generation = iota
	Gen12LP
	XeHP
	XeHPG
	XeHPC
	Xe2
)

func (g Generation) String() string {
	switch g {
	case Gen12LP:
		return "gen12lp"
	case XeHP:
		return "xehp"
	case XeHPG:
		return "xehpg"
	case XeHPC:
		return "xehpc"
	case Xe2:
		return "xe2"
	default:
		return "unknown"
	}
}

// ParseGeneration parses a generation name, accepting the common product aliases
func ParseGeneration(s string) (Generation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gen12lp", "gen12", "tgl", "tgllp", "rkl", "adl":
		return Gen12LP, nil
	case "xehp", "xe_hp", "ats":
		return XeHP, nil
	case "xehpg", "xe_hpg", "dg2", "acm", "mtl":
		return XeHPG, nil
	case "xehpc", "xe_hpc", "pvc":
		return XeHPC, nil
	case "xe2", "lnl", "bmg":
		return Xe2, nil
	default:
		return GenUnknown, fmt.Errorf("unsupported platform: %s (supported: %s)", s, strings.Join(GenerationNames(), ", "))
	}
}

// GenerationNames returns the canonical names of all known generations, sorted
func GenerationNames() []string {
	names := make([]string, 0, len(platforms))
	for g := range platforms {
		names = append(names, g.String())
	}
	sort.Strings(names)
	return names
}

// LatencyClass selects one of the in-order in-flight windows
type LatencyClass int

const (
	LatencyALU LatencyClass = iota
	LatencyLong
	LatencyMath
	LatencyControl
)

// MessageClass is the shared-function family a send message is routed to
type MessageClass int

const (
	MsgMemory MessageClass = iota
	MsgSampler
	MsgSLM
	MsgRenderTarget
	MsgGateway
	numMessageClasses
)

func (m MessageClass) String() string {
	switch m {
	case MsgMemory:
		return "mem"
	case MsgSampler:
		return "smpl"
	case MsgSLM:
		return "slm"
	case MsgRenderTarget:
		return "rt"
	case MsgGateway:
		return "gtwy"
	default:
		return "unknown"
	}
}

// ParseMessageClass parses the suffix of a send opcode (send.mem, send.smpl, ...)
func ParseMessageClass(s string) (MessageClass, error) {
	for m := MsgMemory; m < numMessageClasses; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown message class: %s", s)
}

// MessageLimits holds the largest legal payload and response lengths, in registers
type MessageLimits struct {
	Src0 int
	Src1 int
	Dst  int
}

// Platform is the capability table for one generation.
// Everything the dependency engine treats as hardware-specific lives here,
// including the numbers that are tuned per generation rather than derived.
type Platform struct {
	Gen Generation

	GRFCount  int
	GRFBytes  int
	AccCount  int // accumulator registers, GRF-sized
	FlagCount int // flag registers, 32 bits each

	// Number of in-order distance pipes: 1 means a single combined pipe
	Pipes int

	Tokens      int
	MaxDistance int

	ALUWindow     int
	LongWindow    int
	MathWindow    int
	ControlWindow int

	MacroMaxSteps       int
	MacroSelfAccumDepth int

	ByteDstErratum bool

	Messages [numMessageClasses]MessageLimits
}

var defaultMessages = [numMessageClasses]MessageLimits{
	MsgMemory:       {Src0: 15, Src1: 15, Dst: 16},
	MsgSampler:      {Src0: 15, Src1: 15, Dst: 16},
	MsgSLM:          {Src0: 15, Src1: 15, Dst: 16},
	MsgRenderTarget: {Src0: 15, Src1: 15, Dst: 0},
	MsgGateway:      {Src0: 1, Src1: 0, Dst: 1},
}

var platforms = map[Generation]Platform{
	Gen12LP: {
		Gen: Gen12LP, GRFCount: 128, GRFBytes: 32, AccCount: 4, FlagCount: 2,
		Pipes: 1, Tokens: 16, MaxDistance: 7,
		ALUWindow: 11, LongWindow: 15, MathWindow: 18, ControlWindow: 11,
		MacroMaxSteps: 1, MacroSelfAccumDepth: 0,
		Messages: defaultMessages,
	},
	XeHP: {
		Gen: XeHP, GRFCount: 128, GRFBytes: 32, AccCount: 4, FlagCount: 2,
		Pipes: 3, Tokens: 16, MaxDistance: 7,
		ALUWindow: 11, LongWindow: 15, MathWindow: 18, ControlWindow: 11,
		MacroMaxSteps: 8, MacroSelfAccumDepth: 8,
		ByteDstErratum: true,
		Messages:       defaultMessages,
	},
	XeHPG: {
		Gen: XeHPG, GRFCount: 128, GRFBytes: 32, AccCount: 4, FlagCount: 2,
		Pipes: 3, Tokens: 16, MaxDistance: 7,
		ALUWindow: 11, LongWindow: 15, MathWindow: 18, ControlWindow: 11,
		MacroMaxSteps: 8, MacroSelfAccumDepth: 8,
		Messages: defaultMessages,
	},
	XeHPC: {
		Gen: XeHPC, GRFCount: 128, GRFBytes: 64, AccCount: 4, FlagCount: 4,
		Pipes: 4, Tokens: 32, MaxDistance: 7,
		ALUWindow: 11, LongWindow: 15, MathWindow: 18, ControlWindow: 11,
		MacroMaxSteps: 8, MacroSelfAccumDepth: 8,
		Messages: defaultMessages,
	},
	Xe2: {
		Gen: Xe2, GRFCount: 128, GRFBytes: 64, AccCount: 4, FlagCount: 4,
		Pipes: 5, Tokens: 32, MaxDistance: 7,
		ALUWindow: 11, LongWindow: 15, MathWindow: 18, ControlWindow: 11,
		MacroMaxSteps: 8, MacroSelfAccumDepth: 8,
		Messages: defaultMessages,
	},
}

// LookupPlatform returns a copy of the capability table for a generation
func LookupPlatform(g Generation) (*Platform, error) {
	p, ok := platforms[g]
	if !ok {
		return nil, fmt.Errorf("no capability table for platform %s", g)
	}
	return &p, nil
}

// WithTokens returns a copy of the platform with a different token pool size.
// Used for experiments and for tests that need a tiny pool.
func (p *Platform) WithTokens(n int) *Platform {
	c := *p
	if n > 0 {
		c.Tokens = n
	}
	return &c
}

// WithGRF returns a copy of the platform with a different GRF count (large GRF mode)
func (p *Platform) WithGRF(count int) *Platform {
	c := *p
	if count > 0 {
		c.GRFCount = count
	}
	return &c
}

// The accessors below form the capability query interface used by the engine.

func (p *Platform) Generation() Generation { return p.Gen }
func (p *Platform) NumGRF() int            { return p.GRFCount }
func (p *Platform) RegBytes() int          { return p.GRFBytes }
func (p *Platform) NumAcc() int            { return p.AccCount }
func (p *Platform) NumFlag() int           { return p.FlagCount }
func (p *Platform) DistPipes() int         { return p.Pipes }
func (p *Platform) TokenCount() int        { return p.Tokens }
func (p *Platform) MaxDist() int           { return p.MaxDistance }
func (p *Platform) HasByteDstErratum() bool {
	return p.ByteDstErratum
}

// InFlightWindow returns how many younger instructions of the same in-order
// pipe must issue before an instruction is known to have completed
func (p *Platform) InFlightWindow(c LatencyClass) int {
	switch c {
	case LatencyLong:
		return p.LongWindow
	case LatencyMath:
		return p.MathWindow
	case LatencyControl:
		return p.ControlWindow
	default:
		return p.ALUWindow
	}
}

// MacroLimits returns the longest systolic macro and the systolic depth at
// which a step may accumulate into the register an earlier step wrote
func (p *Platform) MacroLimits() (maxSteps, selfAccumDepth int) {
	return p.MacroMaxSteps, p.MacroSelfAccumDepth
}

// MaxMessage returns the message length limits for a message class
func (p *Platform) MaxMessage(c MessageClass) MessageLimits {
	if c < 0 || c >= numMessageClasses {
		return MessageLimits{}
	}
	return p.Messages[c]
}

// String returns a human-readable platform summary
func (p *Platform) String() string {
	return fmt.Sprintf("%s (%d x %dB GRF, %d distance pipe(s), %d tokens)", p.Gen, p.GRFCount, p.GRFBytes, p.Pipes, p.Tokens)
}
