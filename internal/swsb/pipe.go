package swsb

import (
	"github.com/xyproto/swsb/internal/engine"
	"github.com/xyproto/swsb/internal/ir"
)

// Pipe is the execution pipe an instruction is routed to for hazard purposes
type Pipe int

const (
	PipeNone Pipe = iota
	PipeFloat
	PipeInt
	PipeLong
	PipeMath
	PipeSend
	PipeSystolic
	PipeControl
)

func (p Pipe) String() string {
	switch p {
	case PipeFloat:
		return "float"
	case PipeInt:
		return "int"
	case PipeLong:
		return "long"
	case PipeMath:
		return "math"
	case PipeSend:
		return "send"
	case PipeSystolic:
		return "systolic"
	case PipeControl:
		return "control"
	default:
		return "none"
	}
}

// Class says how an instruction's completion is tracked
type Class int

const (
	ClassInOrder    Class = iota // tracked with distances
	ClassOutOfOrder              // tracked with tokens
	ClassExempt                  // sync instructions, never tracked
)

func (c Class) String() string {
	switch c {
	case ClassInOrder:
		return "in-order"
	case ClassOutOfOrder:
		return "out-of-order"
	default:
		return "exempt"
	}
}

// In-order counters. cntGlobal counts every in-order instruction; the rest
// count one distance pipe each.
const (
	cntGlobal = iota
	cntFloat
	cntInt
	cntLong
	cntMath
	cntControl
	numCounters
)

// Stamp is the value of every in-order counter when an instruction was visited
type Stamp [numCounters]int

// Policy is the platform-versioned classification policy
type Policy struct {
	pipes int
}

// NewPolicy picks the policy for the platform's number of distance pipes:
// 1 is the single combined pipe, 3 splits float/int/long, 4 adds an
// in-order math pipe and 5 adds a control-flow pipe.
func NewPolicy(caps Capabilities) Policy {
	return Policy{pipes: caps.DistPipes()}
}

// SinglePipe reports whether all in-order traffic shares one counter
func (p Policy) SinglePipe() bool {
	return p.pipes <= 1
}

// Classify routes an instruction to a pipe and a tracking class
func (p Policy) Classify(inst *ir.Instruction) (Pipe, Class) {
	switch inst.Op.Family() {
	case ir.FamSync:
		return PipeNone, ClassExempt
	case ir.FamControl:
		return PipeControl, ClassInOrder
	case ir.FamMath:
		if p.pipes >= 4 {
			return PipeMath, ClassInOrder
		}
		return PipeMath, ClassOutOfOrder
	case ir.FamSend:
		return PipeSend, ClassOutOfOrder
	case ir.FamSystolic:
		return PipeSystolic, ClassOutOfOrder
	}
	if has64BitOperand(inst) {
		return PipeLong, ClassInOrder
	}
	if inst.Dst != nil && ir.OperandType(inst.Dst).IsFloat() {
		return PipeFloat, ClassInOrder
	}
	return PipeInt, ClassInOrder
}

func has64BitOperand(inst *ir.Instruction) bool {
	if inst.Dst != nil && ir.OperandType(inst.Dst).Is64() {
		return true
	}
	for _, src := range inst.Srcs {
		if _, imm := src.(ir.Immediate); imm {
			continue
		}
		if ir.OperandType(src).Is64() {
			return true
		}
	}
	return false
}

// counter returns the in-order counter a pipe advances. Pipes the platform
// lacks fall back: everything shares cntGlobal on single-pipe platforms,
// control flow shares the integer pipe below five pipes.
func (p Policy) counter(pipe Pipe) int {
	if p.SinglePipe() {
		return cntGlobal
	}
	switch pipe {
	case PipeFloat:
		return cntFloat
	case PipeInt:
		return cntInt
	case PipeLong:
		return cntLong
	case PipeMath:
		if p.pipes >= 4 {
			return cntMath
		}
	case PipeControl:
		if p.pipes >= 5 {
			return cntControl
		}
		return cntInt
	}
	return cntGlobal
}

// effective returns the pipe that really orders an instruction: in-order
// pipes that share a counter are the same pipe
func (p Policy) effective(pipe Pipe, class Class) int {
	if class != ClassInOrder {
		return numCounters + int(pipe)
	}
	return p.counter(pipe)
}

// distPipe is the qualifier printed for a distance counted in counter c
func (p Policy) distPipe(c int) ir.DistPipe {
	if p.SinglePipe() {
		return ir.DistSingle
	}
	switch c {
	case cntFloat:
		return ir.DistFloat
	case cntInt:
		return ir.DistInt
	case cntLong:
		return ir.DistLong
	case cntMath:
		return ir.DistMath
	case cntControl:
		return ir.DistControl
	}
	return ir.DistAll
}

// latencyClass selects the in-flight window of a pipe
func latencyClass(pipe Pipe) engine.LatencyClass {
	switch pipe {
	case PipeLong:
		return engine.LatencyLong
	case PipeMath:
		return engine.LatencyMath
	case PipeControl:
		return engine.LatencyControl
	default:
		return engine.LatencyALU
	}
}
