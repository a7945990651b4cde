package ir

import (
	"fmt"
	"strings"
)

// Operand is a closed sum type: Direct, Indirect, MacroPaired, Immediate or Label.
// Consumers switch on the concrete type.
type Operand interface {
	isOperand()
}

// RegRef names one sub-register of one register file
type RegRef struct {
	File RegFile
	Num  int
	Sub  int // in elements of Type
	Type Type
}

func (r RegRef) String() string {
	switch r.File {
	case FileNull:
		return "null"
	case FileIP:
		return "ip"
	}
	return fmt.Sprintf("%s%d.%d", r.File, r.Num, r.Sub)
}

// Direct is a register operand addressed by number
type Direct struct {
	Reg    RegRef
	Region Region
}

// Indirect is a GRF operand addressed through an address sub-register
type Indirect struct {
	AddrSub int // a0.AddrSub holds the byte address
	Offset  int // immediate byte offset added to the address
	Type    Type
	Region  Region
}

// MacroPaired is a register operand paired with an implicit accumulator
// (the mme operands of macro math sequences)
type MacroPaired struct {
	Reg    RegRef
	Region Region
	Acc    int // implicit accumulator index, acc2..acc9 map to 0..7
}

// Immediate is a constant operand
type Immediate struct {
	Value int64
	Type  Type
}

// Label is a branch target
type Label struct {
	Name string
}

func (Direct) isOperand()      {}
func (Indirect) isOperand()    {}
func (MacroPaired) isOperand() {}
func (Immediate) isOperand()   {}
func (Label) isOperand()       {}

// OperandType returns the element type of an operand, or TypeUndef for labels
func OperandType(op Operand) Type {
	switch o := op.(type) {
	case Direct:
		return o.Reg.Type
	case Indirect:
		return o.Type
	case MacroPaired:
		return o.Reg.Type
	case Immediate:
		return o.Type
	}
	return TypeUndef
}

// FlagRef names a 16-bit flag sub-register, f<Reg>.<Sub>
type FlagRef struct {
	Reg int
	Sub int
}

func (f FlagRef) String() string {
	return fmt.Sprintf("f%d.%d", f.Reg, f.Sub)
}

// Predicate guards an instruction with a flag
type Predicate struct {
	Flag   FlagRef
	Invert bool
}

func (p Predicate) String() string {
	if p.Invert {
		return "(~" + p.Flag.String() + ")"
	}
	return "(" + p.Flag.String() + ")"
}

// CondMod writes a comparison result into a flag
type CondMod struct {
	Cond string // eq, ne, lt, le, gt, ge, ov, un
	Flag FlagRef
}

func (c CondMod) String() string {
	return fmt.Sprintf("(%s)%s", c.Cond, c.Flag)
}

// FormatOperand renders an operand in listing syntax. Destinations print only
// their horizontal stride.
func FormatOperand(op Operand, dst bool) string {
	var sb strings.Builder
	switch o := op.(type) {
	case Direct:
		if o.Reg.File == FileNull {
			sb.WriteString("null")
		} else {
			sb.WriteString(o.Reg.String())
			writeRegion(&sb, o.Region, dst)
		}
		writeType(&sb, o.Reg.Type)
	case Indirect:
		fmt.Fprintf(&sb, "r[a0.%d,%d]", o.AddrSub, o.Offset)
		writeRegion(&sb, o.Region, dst)
		writeType(&sb, o.Type)
	case MacroPaired:
		fmt.Fprintf(&sb, "%s%d.mme%d", o.Reg.File, o.Reg.Num, o.Acc)
		writeRegion(&sb, o.Region, dst)
		writeType(&sb, o.Reg.Type)
	case Immediate:
		if o.Value < 0 {
			fmt.Fprintf(&sb, "%d", o.Value)
		} else {
			fmt.Fprintf(&sb, "0x%x", o.Value)
		}
		writeType(&sb, o.Type)
	case Label:
		sb.WriteString(o.Name)
	}
	return sb.String()
}

func writeRegion(sb *strings.Builder, r Region, dst bool) {
	if r.IsZero() {
		return
	}
	if dst {
		fmt.Fprintf(sb, "<%d>", r.HStride)
		return
	}
	sb.WriteString(r.String())
}

func writeType(sb *strings.Builder, t Type) {
	if t != TypeUndef {
		sb.WriteString(":")
		sb.WriteString(t.String())
	}
}
