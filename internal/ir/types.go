// Package ir holds the instruction representation consumed by the
// dependency engine: operands, instructions, blocks and kernels, plus the
// scoreboard annotation the engine attaches to each instruction.
package ir

import (
	"fmt"
	"strings"
)

// Type is an operand element type
type Type int

const (
	TypeUndef Type = iota
	TypeUB
	TypeB
	TypeUW
	TypeW
	TypeUD
	TypeD
	TypeUQ
	TypeQ
	TypeHF
	TypeBF
	TypeF
	TypeDF
)

var typeNames = [...]string{
	TypeUndef: "",
	TypeUB:    "ub",
	TypeB:     "b",
	TypeUW:    "uw",
	TypeW:     "w",
	TypeUD:    "ud",
	TypeD:     "d",
	TypeUQ:    "uq",
	TypeQ:     "q",
	TypeHF:    "hf",
	TypeBF:    "bf",
	TypeF:     "f",
	TypeDF:    "df",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "?"
	}
	return typeNames[t]
}

// Size returns the element size in bytes
func (t Type) Size() int {
	switch t {
	case TypeUB, TypeB:
		return 1
	case TypeUW, TypeW, TypeHF, TypeBF:
		return 2
	case TypeUD, TypeD, TypeF:
		return 4
	case TypeUQ, TypeQ, TypeDF:
		return 8
	default:
		return 1
	}
}

// IsFloat reports whether the type is a floating-point type
func (t Type) IsFloat() bool {
	return t == TypeHF || t == TypeBF || t == TypeF || t == TypeDF
}

// Is64 reports whether the type is 64 bits wide
func (t Type) Is64() bool {
	return t.Size() == 8
}

// ParseType parses a type suffix such as "f" or "ud"
func ParseType(s string) (Type, error) {
	s = strings.ToLower(s)
	for i, name := range typeNames {
		if name != "" && name == s {
			return Type(i), nil
		}
	}
	return TypeUndef, fmt.Errorf("unknown type: %s", s)
}

// RegFile is the register file an operand lives in
type RegFile int

const (
	FileNull RegFile = iota
	FileGRF
	FileAddress
	FileAcc
	FileFlag
	FileState
	FileControl
	FileNotify
	FileIP
	FileTimestamp
)

var fileNames = [...]string{
	FileNull:      "null",
	FileGRF:       "r",
	FileAddress:   "a",
	FileAcc:       "acc",
	FileFlag:      "f",
	FileState:     "sr",
	FileControl:   "cr",
	FileNotify:    "n",
	FileIP:        "ip",
	FileTimestamp: "tm",
}

func (f RegFile) String() string {
	if f < 0 || int(f) >= len(fileNames) {
		return "?"
	}
	return fileNames[f]
}

// IsSpecial reports whether the file is a state/control register file that the
// hardware does not scoreboard
func (f RegFile) IsSpecial() bool {
	switch f {
	case FileState, FileControl, FileNotify, FileIP, FileTimestamp:
		return true
	}
	return false
}

// RegFileByPrefix maps a register name prefix to its file
func RegFileByPrefix(prefix string) (RegFile, bool) {
	for i, name := range fileNames {
		if name == prefix {
			return RegFile(i), true
		}
	}
	return FileNull, false
}

// Region describes how a multi-lane operand walks its register:
// Width elements per row, HStride elements between columns and VStride
// elements between rows. A destination only uses HStride.
type Region struct {
	VStride int
	Width   int
	HStride int
}

// Scalar is the <0;1,0> region
var Scalar = Region{VStride: 0, Width: 1, HStride: 0}

// Contiguous returns the packed region for execSize lanes
func Contiguous(execSize int) Region {
	return Region{VStride: execSize, Width: execSize, HStride: 1}
}

// IsZero reports whether no region was given
func (r Region) IsZero() bool {
	return r.VStride == 0 && r.Width == 0 && r.HStride == 0
}

// Normalize fills in an unspecified region as a packed one
func (r Region) Normalize(execSize int) Region {
	if r.IsZero() {
		return Contiguous(execSize)
	}
	if r.Width <= 0 {
		r.Width = 1
	}
	if r.Width > execSize {
		r.Width = execSize
	}
	return r
}

// ElementOffsets returns the element index (relative to the operand base) of
// every lane, row by row
func (r Region) ElementOffsets(execSize int) []int {
	r = r.Normalize(execSize)
	offsets := make([]int, 0, execSize)
	rows := execSize / r.Width
	if rows == 0 {
		rows = 1
	}
	for row := 0; row < rows; row++ {
		for col := 0; col < r.Width; col++ {
			offsets = append(offsets, row*r.VStride+col*r.HStride)
		}
	}
	return offsets
}

func (r Region) String() string {
	return fmt.Sprintf("<%d;%d,%d>", r.VStride, r.Width, r.HStride)
}
