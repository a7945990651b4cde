package ir

import "sort"

// Family groups opcodes by the execution unit they are dispatched to
type Family int

const (
	FamALU Family = iota
	FamMath
	FamSend
	FamSystolic
	FamControl
	FamSync
	FamNop
)

func (f Family) String() string {
	switch f {
	case FamALU:
		return "alu"
	case FamMath:
		return "math"
	case FamSend:
		return "send"
	case FamSystolic:
		return "systolic"
	case FamControl:
		return "control"
	case FamSync:
		return "sync"
	case FamNop:
		return "nop"
	default:
		return "unknown"
	}
}

// Opcode is an instruction mnemonic without its function suffix
type Opcode string

// OpInfo is the static description of an opcode
type OpInfo struct {
	Family   Family
	AccRead  bool // reads the accumulator implicitly
	AccWrite bool // writes the accumulator implicitly
}

var opcodes = map[Opcode]OpInfo{
	"mov":   {Family: FamALU},
	"movi":  {Family: FamALU},
	"sel":   {Family: FamALU},
	"csel":  {Family: FamALU},
	"not":   {Family: FamALU},
	"and":   {Family: FamALU},
	"or":    {Family: FamALU},
	"xor":   {Family: FamALU},
	"shr":   {Family: FamALU},
	"shl":   {Family: FamALU},
	"asr":   {Family: FamALU},
	"ror":   {Family: FamALU},
	"rol":   {Family: FamALU},
	"bfrev": {Family: FamALU},
	"bfn":   {Family: FamALU},
	"cmp":   {Family: FamALU},
	"cmpn":  {Family: FamALU},
	"add":   {Family: FamALU},
	"add3":  {Family: FamALU},
	"mul":   {Family: FamALU},
	"avg":   {Family: FamALU},
	"frc":   {Family: FamALU},
	"rndu":  {Family: FamALU},
	"rndd":  {Family: FamALU},
	"rnde":  {Family: FamALU},
	"rndz":  {Family: FamALU},
	"lzd":   {Family: FamALU},
	"fbh":   {Family: FamALU},
	"fbl":   {Family: FamALU},
	"cbit":  {Family: FamALU},
	"mad":   {Family: FamALU},
	"lrp":   {Family: FamALU},
	"dp4":   {Family: FamALU},
	"dph":   {Family: FamALU},
	"dp4a":  {Family: FamALU},
	"pln":   {Family: FamALU},
	"mac":   {Family: FamALU, AccRead: true},
	"mach":  {Family: FamALU, AccRead: true, AccWrite: true},
	"addc":  {Family: FamALU, AccWrite: true},
	"subb":  {Family: FamALU, AccWrite: true},
	"madm":  {Family: FamALU},

	"math": {Family: FamMath},

	"send":  {Family: FamSend},
	"sendc": {Family: FamSend},

	"dpas":  {Family: FamSystolic},
	"dpasw": {Family: FamSystolic},

	"jmpi":  {Family: FamControl},
	"brd":   {Family: FamControl},
	"brc":   {Family: FamControl},
	"if":    {Family: FamControl},
	"else":  {Family: FamControl},
	"endif": {Family: FamControl},
	"while": {Family: FamControl},
	"break": {Family: FamControl},
	"cont":  {Family: FamControl},
	"halt":  {Family: FamControl},
	"call":  {Family: FamControl},
	"calla": {Family: FamControl},
	"ret":   {Family: FamControl},
	"goto":  {Family: FamControl},
	"join":  {Family: FamControl},

	"sync": {Family: FamSync},

	"nop":     {Family: FamNop},
	"wait":    {Family: FamNop},
	"illegal": {Family: FamNop},
}

// Info returns the opcode description; unknown opcodes are treated as ALU
func (o Opcode) Info() OpInfo {
	if info, ok := opcodes[o]; ok {
		return info
	}
	return OpInfo{Family: FamALU}
}

// Family returns the execution family of the opcode
func (o Opcode) Family() Family {
	return o.Info().Family
}

// Known reports whether the opcode is in the table
func (o Opcode) Known() bool {
	_, ok := opcodes[o]
	return ok
}

// OpcodeNames returns every known mnemonic, sorted
func OpcodeNames() []string {
	names := make([]string, 0, len(opcodes))
	for op := range opcodes {
		names = append(names, string(op))
	}
	sort.Strings(names)
	return names
}
