package ir

import (
	"fmt"
	"strings"

	"github.com/xyproto/swsb/internal/engine"
)

// MessageDesc describes the payload and response of a send
type MessageDesc struct {
	Class   engine.MessageClass
	Src0Len int // registers
	Src1Len int // registers, split sends only
	DstLen  int // registers
	Dynamic bool // descriptor comes from a0.DescAddr, lengths unknown
	DescSub int
	EOT     bool
}

// SystolicDesc describes one dpas step
type SystolicDesc struct {
	Depth  int
	Repeat int
}

// SyncKind is the flavour of a sync instruction
type SyncKind string

const (
	SyncNop   SyncKind = "nop"
	SyncAllRd SyncKind = "allrd"
	SyncAllWr SyncKind = "allwr"
	SyncBar   SyncKind = "bar"
)

// Instruction is one machine instruction after register allocation.
// The dependency engine only writes SWSB; everything else is owned by the
// code that built the instruction.
type Instruction struct {
	Op       Opcode
	Func     string // math function, send message class or sync kind
	ExecSize int
	ChanOff  int // first channel of the execution mask (M0, M8, ...)

	Pred *Predicate
	Cond *CondMod
	Dst  Operand
	Srcs []Operand

	Msg      *MessageDesc
	Systolic *SystolicDesc
	SyncMask uint32

	Pos       int // position in program order within the kernel
	Line      int // source line, 0 when synthesized
	Synthetic bool

	SWSB SWSB
}

// Info returns the static opcode description
func (inst *Instruction) Info() OpInfo {
	return inst.Op.Info()
}

// IsEOT reports whether the instruction is an end-of-thread send
func (inst *Instruction) IsEOT() bool {
	return inst.Msg != nil && inst.Msg.EOT
}

// IsSync reports whether the instruction is a sync
func (inst *Instruction) IsSync() bool {
	return inst.Op.Family() == FamSync
}

// NewSync builds a synthesized sync instruction
func NewSync(kind SyncKind, ann SWSB, mask uint32) *Instruction {
	return &Instruction{
		Op:        "sync",
		Func:      string(kind),
		ExecSize:  1,
		Dst:       Direct{Reg: RegRef{File: FileNull, Type: TypeUD}},
		SyncMask:  mask,
		Synthetic: true,
		SWSB:      ann,
	}
}

// Mnemonic returns the opcode with its function suffix
func (inst *Instruction) Mnemonic() string {
	var sb strings.Builder
	sb.WriteString(string(inst.Op))
	switch {
	case inst.Func != "":
		sb.WriteString(".")
		sb.WriteString(inst.Func)
	case inst.Systolic != nil:
		fmt.Fprintf(&sb, ".%dx%d", inst.Systolic.Depth, inst.Systolic.Repeat)
	}
	return sb.String()
}

// String renders the instruction in listing syntax
func (inst *Instruction) String() string {
	var sb strings.Builder
	if inst.Pred != nil {
		sb.WriteString(inst.Pred.String())
		sb.WriteString(" ")
	}
	sb.WriteString(inst.Mnemonic())

	if inst.IsSync() && (inst.Func == string(SyncAllRd) || inst.Func == string(SyncAllWr)) {
		fmt.Fprintf(&sb, " 0x%x", inst.SyncMask)
	} else {
		fmt.Fprintf(&sb, " (%d|M%d)", inst.ExecSize, inst.ChanOff)
		if inst.Cond != nil {
			sb.WriteString(" ")
			sb.WriteString(inst.Cond.String())
		}
		if inst.Dst != nil {
			sb.WriteString(" ")
			sb.WriteString(FormatOperand(inst.Dst, true))
		}
		for _, src := range inst.Srcs {
			sb.WriteString(" ")
			sb.WriteString(FormatOperand(src, false))
		}
	}

	if m := inst.Msg; m != nil {
		var fields []string
		if m.Dynamic {
			fields = append(fields, fmt.Sprintf("a0.%d", m.DescSub))
		} else {
			fields = append(fields, fmt.Sprintf("mlen=%d", m.Src0Len))
			if m.Src1Len > 0 {
				fields = append(fields, fmt.Sprintf("xlen=%d", m.Src1Len))
			}
			fields = append(fields, fmt.Sprintf("rlen=%d", m.DstLen))
		}
		if m.EOT {
			fields = append(fields, "eot")
		}
		fmt.Fprintf(&sb, " desc(%s)", strings.Join(fields, ","))
	}

	if !inst.SWSB.IsZero() {
		fmt.Fprintf(&sb, " {%s}", inst.SWSB)
	}
	return sb.String()
}

// Block is a straight-line run of instructions
type Block struct {
	Label string
	Insts []*Instruction
}

// Kernel is one compilation unit: an ordered list of blocks
type Kernel struct {
	Name   string
	Blocks []*Block
}

// Renumber assigns program-order positions to every instruction
func (k *Kernel) Renumber() {
	pos := 0
	for _, bb := range k.Blocks {
		for _, inst := range bb.Insts {
			inst.Pos = pos
			pos++
		}
	}
}

// NumInstructions counts instructions across all blocks
func (k *Kernel) NumInstructions() int {
	n := 0
	for _, bb := range k.Blocks {
		n += len(bb.Insts)
	}
	return n
}

// String renders the kernel as a listing
func (k *Kernel) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, ".kernel %s\n", k.Name)
	for _, bb := range k.Blocks {
		fmt.Fprintf(&sb, ".block %s\n", bb.Label)
		for _, inst := range bb.Insts {
			sb.WriteString("    ")
			sb.WriteString(inst.String())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
