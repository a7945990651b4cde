package swsb

import (
	"testing"

	"github.com/xyproto/swsb/internal/engine"
	"github.com/xyproto/swsb/internal/ir"
)

func platform(t testing.TB, g engine.Generation) *engine.Platform {
	t.Helper()
	p, err := engine.LookupPlatform(g)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func grf(ty ir.Type, num int) ir.Direct {
	return ir.Direct{Reg: ir.RegRef{File: ir.FileGRF, Num: num, Type: ty}}
}

func grfSub(ty ir.Type, num, sub int, region ir.Region) ir.Direct {
	return ir.Direct{Reg: ir.RegRef{File: ir.FileGRF, Num: num, Sub: sub, Type: ty}, Region: region}
}

func imm(v int64, ty ir.Type) ir.Immediate {
	return ir.Immediate{Value: v, Type: ty}
}

func op(name string, exec int, dst ir.Operand, srcs ...ir.Operand) *ir.Instruction {
	return &ir.Instruction{Op: ir.Opcode(name), ExecSize: exec, Dst: dst, Srcs: srcs}
}

func mathOp(fn string, exec int, dst ir.Operand, srcs ...ir.Operand) *ir.Instruction {
	inst := op("math", exec, dst, srcs...)
	inst.Func = fn
	return inst
}

// load is a send reading mlen registers from r<src> and writing rlen registers at r<dst>
func load(dst, src, rlen, mlen int) *ir.Instruction {
	inst := op("send", 8, grf(ir.TypeUD, dst), grf(ir.TypeUD, src))
	inst.Func = "mem"
	inst.Msg = &ir.MessageDesc{Class: engine.MsgMemory, Src0Len: mlen, DstLen: rlen}
	return inst
}

func eot(src int) *ir.Instruction {
	inst := op("send", 8, ir.Direct{Reg: ir.RegRef{File: ir.FileNull, Type: ir.TypeUD}}, grf(ir.TypeUD, src))
	inst.Func = "gtwy"
	inst.Msg = &ir.MessageDesc{Class: engine.MsgGateway, Src0Len: 1, EOT: true}
	return inst
}

func dpas(dst, src0, src1, src2 int) *ir.Instruction {
	inst := op("dpas", 8, grf(ir.TypeF, dst), grf(ir.TypeF, src0), grf(ir.TypeHF, src1), grf(ir.TypeHF, src2))
	inst.Systolic = &ir.SystolicDesc{Depth: 8, Repeat: 1}
	return inst
}

func kernel(insts ...*ir.Instruction) *ir.Kernel {
	return &ir.Kernel{Name: "k", Blocks: []*ir.Block{{Label: "entry", Insts: insts}}}
}

func run(t testing.TB, caps Capabilities, k *ir.Kernel) Stats {
	t.Helper()
	st, err := NewAnalyzer(caps, Options{Verify: true}).Run(k)
	if err != nil {
		t.Fatalf("analysis failed: %v\n%s", err, k)
	}
	return st
}

func ann(s string) ir.SWSB {
	a, err := ir.ParseSWSB(s)
	if err != nil {
		panic(err)
	}
	return a
}
