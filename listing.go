// Completion: 100% - Listing parser complete, round-trips the annotated output
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xyproto/swsb/internal/engine"
	"github.com/xyproto/swsb/internal/ir"
)

// listing.go - the line-oriented kernel listing read by `swsb analyze`
//
//	.kernel <name>
//	.block <label>
//	[(~f0.0)] op[.func] (exec|Mn) [(cond)f0.0] dst src... [desc(...)] [{swsb}]
//	// comment
//
// The syntax is exactly what ir.Instruction.String prints, so an annotated
// listing can be fed back in.

const defaultBlockLabel = "entry"

type listingParser struct {
	file    string
	ec      *ErrorCollector
	kernels []*ir.Kernel
	kernel  *ir.Kernel
	block   *ir.Block

	// per line
	lineNo int
	raw    string
}

// ParseListing parses every kernel in source. Problems are reported to ec;
// the kernels parsed so far are returned either way.
func ParseListing(file, source string, ec *ErrorCollector) []*ir.Kernel {
	ec.SetSourceCode(source)
	p := &listingParser{file: file, ec: ec}
	for i, line := range strings.Split(source, "\n") {
		if ec.ShouldStop() {
			break
		}
		p.lineNo = i + 1
		p.raw = strings.TrimRight(line, "\r")
		p.parseLine()
	}
	return p.kernels
}

// loc points at the first occurrence of tok on the current line
func (p *listingParser) loc(tok string) SourceLocation {
	col := strings.Index(p.raw, tok) + 1
	if col <= 0 || tok == "" {
		col, tok = 1, strings.TrimSpace(p.raw)
	}
	return SourceLocation{File: p.file, Line: p.lineNo, Column: col, Length: len(tok)}
}

func (p *listingParser) syntaxf(tok, format string, args ...any) {
	p.ec.AddError(SyntaxError(fmt.Sprintf(format, args...), p.loc(tok)))
}

func (p *listingParser) semanticf(tok, format string, args ...any) {
	p.ec.AddError(SemanticError(fmt.Sprintf(format, args...), p.loc(tok)))
}

func (p *listingParser) parseLine() {
	text := p.raw
	if idx := strings.Index(text, "//"); idx != -1 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, ".") {
		p.parseDirective(text)
		return
	}

	if p.kernel == nil {
		p.syntaxf("", "instruction outside of a .kernel")
		return
	}
	if p.block == nil {
		p.block = &ir.Block{Label: defaultBlockLabel}
		p.kernel.Blocks = append(p.kernel.Blocks, p.block)
	}
	if inst, ok := p.parseInstruction(text); ok {
		inst.Line = p.lineNo
		p.block.Insts = append(p.block.Insts, inst)
	}
}

func (p *listingParser) parseDirective(text string) {
	fields := strings.Fields(text)
	switch fields[0] {
	case ".kernel":
		if len(fields) != 2 {
			p.syntaxf(fields[0], "expected .kernel <name>")
			return
		}
		for _, k := range p.kernels {
			if k.Name == fields[1] {
				p.semanticf(fields[1], "kernel %s is defined twice", fields[1])
				return
			}
		}
		p.kernel = &ir.Kernel{Name: fields[1]}
		p.kernels = append(p.kernels, p.kernel)
		p.block = nil
	case ".block":
		if len(fields) != 2 {
			p.syntaxf(fields[0], "expected .block <label>")
			return
		}
		if p.kernel == nil {
			p.syntaxf(fields[0], ".block outside of a .kernel")
			return
		}
		p.block = &ir.Block{Label: fields[1]}
		p.kernel.Blocks = append(p.kernel.Blocks, p.block)
	default:
		p.syntaxf(fields[0], "unknown directive %s", fields[0])
	}
}

// cutTrailer removes a trailing "open...)" or "{...}" group from s
func cutTrailer(s, open string, close byte) (rest, inner string, found bool) {
	idx := strings.LastIndex(s, open)
	if idx == -1 {
		return s, "", false
	}
	tail := strings.TrimSpace(s[idx:])
	if tail[len(tail)-1] != close {
		return s, "", false
	}
	return strings.TrimSpace(s[:idx]), tail[len(open) : len(tail)-1], true
}

func (p *listingParser) parseInstruction(text string) (*ir.Instruction, bool) {
	inst := &ir.Instruction{}

	text, annText, hasAnn := cutTrailer(text, "{", '}')
	if hasAnn {
		ann, err := ir.ParseSWSB(annText)
		if err != nil {
			p.syntaxf(annText, "%v", err)
			return nil, false
		}
		inst.SWSB = ann
	}
	text, descText, hasDesc := cutTrailer(text, "desc(", ')')

	fields := strings.Fields(text)
	if len(fields) > 0 && strings.HasPrefix(fields[0], "(") {
		pred, ok := p.parsePredicate(fields[0])
		if !ok {
			return nil, false
		}
		inst.Pred = pred
		fields = fields[1:]
	}
	if len(fields) == 0 {
		p.syntaxf("", "missing opcode")
		return nil, false
	}

	mnemonic := fields[0]
	fields = fields[1:]
	if !p.parseMnemonic(inst, mnemonic) {
		return nil, false
	}

	fam := inst.Op.Family()
	switch {
	case hasDesc && fam != ir.FamSend:
		p.semanticf("desc(", "%s takes no message descriptor", mnemonic)
		return nil, false
	case fam == ir.FamSend && !hasDesc:
		p.semanticf(mnemonic, "%s needs a desc(...) message descriptor", mnemonic)
		return nil, false
	case hasDesc:
		if !p.parseDesc(inst.Msg, descText) {
			return nil, false
		}
	}

	if fam == ir.FamSync && (inst.Func == string(ir.SyncAllRd) || inst.Func == string(ir.SyncAllWr)) {
		return p.parseSyncMask(inst, mnemonic, fields)
	}

	if len(fields) == 0 || !p.parseExec(inst, fields[0]) {
		if len(fields) == 0 {
			p.syntaxf(mnemonic, "expected an execution size like (8|M0) after %s", mnemonic)
		}
		return nil, false
	}
	fields = fields[1:]

	if len(fields) > 0 && strings.HasPrefix(fields[0], "(") {
		cond, ok := p.parseCondMod(fields[0])
		if !ok {
			return nil, false
		}
		inst.Cond = cond
		fields = fields[1:]
	}

	// control flow has no destination, everything else names it first
	for i, tok := range fields {
		dst := i == 0 && fam != ir.FamControl
		op, ok := p.parseOperand(tok, dst)
		if !ok {
			return nil, false
		}
		if dst {
			inst.Dst = op
		} else {
			inst.Srcs = append(inst.Srcs, op)
		}
	}
	return inst, true
}

func (p *listingParser) parseMnemonic(inst *ir.Instruction, mnemonic string) bool {
	base, suffix := engine.SplitSuffix(mnemonic)
	inst.Op = ir.Opcode(base)
	if !inst.Op.Known() {
		p.ec.AddError(UnknownOpcodeError(base, engine.SuggestSimilar(base, ir.OpcodeNames(), 3), p.loc(base)))
		return false
	}

	switch inst.Op.Family() {
	case ir.FamSystolic:
		var depth, repeat int
		if _, err := fmt.Sscanf(suffix, "%dx%d", &depth, &repeat); err != nil || depth <= 0 || repeat <= 0 {
			p.syntaxf(mnemonic, "%s needs a <depth>x<repeat> suffix, as in %s.8x8", base, base)
			return false
		}
		inst.Systolic = &ir.SystolicDesc{Depth: depth, Repeat: repeat}
	case ir.FamSend:
		class, err := engine.ParseMessageClass(suffix)
		if err != nil {
			p.semanticf(mnemonic, "%v", err)
			return false
		}
		inst.Func = suffix
		inst.Msg = &ir.MessageDesc{Class: class}
	case ir.FamMath:
		if suffix == "" {
			p.syntaxf(mnemonic, "math needs a function, as in math.inv")
			return false
		}
		inst.Func = suffix
	case ir.FamSync:
		switch ir.SyncKind(suffix) {
		case ir.SyncNop, ir.SyncAllRd, ir.SyncAllWr, ir.SyncBar:
		default:
			p.semanticf(mnemonic, "unknown sync kind %q", suffix)
			return false
		}
		inst.Func = suffix
	default:
		if suffix != "" {
			p.syntaxf(mnemonic, "%s takes no suffix", base)
			return false
		}
	}
	return true
}

func (p *listingParser) parsePredicate(tok string) (*ir.Predicate, bool) {
	body, ok := strings.CutPrefix(tok, "(")
	if body, ok = strings.CutSuffix(body, ")"); !ok {
		p.syntaxf(tok, "malformed predicate %s", tok)
		return nil, false
	}
	pred := &ir.Predicate{}
	body, pred.Invert = strings.CutPrefix(body, "~")
	flag, ok := parseFlag(body)
	if !ok {
		p.syntaxf(tok, "malformed predicate %s, expected (f0.0) or (~f0.0)", tok)
		return nil, false
	}
	pred.Flag = flag
	return pred, true
}

func (p *listingParser) parseCondMod(tok string) (*ir.CondMod, bool) {
	end := strings.IndexByte(tok, ')')
	if end == -1 {
		p.syntaxf(tok, "malformed condition modifier %s", tok)
		return nil, false
	}
	cond := tok[1:end]
	switch cond {
	case "eq", "ne", "lt", "le", "gt", "ge", "ov", "un", "z", "nz":
	default:
		p.semanticf(tok, "unknown condition %q", cond)
		return nil, false
	}
	flag, ok := parseFlag(tok[end+1:])
	if !ok {
		p.syntaxf(tok, "condition modifier %s names no flag register", tok)
		return nil, false
	}
	return &ir.CondMod{Cond: cond, Flag: flag}, true
}

func parseFlag(s string) (ir.FlagRef, bool) {
	var f ir.FlagRef
	rest, ok := strings.CutPrefix(s, "f")
	if !ok {
		return f, false
	}
	reg, sub, ok := strings.Cut(rest, ".")
	if !ok {
		return f, false
	}
	var err1, err2 error
	f.Reg, err1 = strconv.Atoi(reg)
	f.Sub, err2 = strconv.Atoi(sub)
	return f, err1 == nil && err2 == nil
}

func (p *listingParser) parseExec(inst *ir.Instruction, tok string) bool {
	var exec, chanOff int
	if _, err := fmt.Sscanf(tok, "(%d|M%d)", &exec, &chanOff); err != nil || !strings.HasSuffix(tok, ")") {
		p.syntaxf(tok, "malformed execution size %s, expected (8|M0)", tok)
		return false
	}
	switch exec {
	case 1, 2, 4, 8, 16, 32:
	default:
		p.semanticf(tok, "execution size %d is not a power of two up to 32", exec)
		return false
	}
	inst.ExecSize, inst.ChanOff = exec, chanOff
	return true
}

func (p *listingParser) parseSyncMask(inst *ir.Instruction, mnemonic string, fields []string) (*ir.Instruction, bool) {
	if len(fields) != 1 {
		p.syntaxf(mnemonic, "%s takes exactly one token mask", mnemonic)
		return nil, false
	}
	mask, err := strconv.ParseUint(fields[0], 0, 32)
	if err != nil {
		p.syntaxf(fields[0], "malformed token mask %s", fields[0])
		return nil, false
	}
	sync := ir.NewSync(ir.SyncKind(inst.Func), inst.SWSB, uint32(mask))
	sync.Pred = inst.Pred
	sync.Synthetic = false
	return sync, true
}

func (p *listingParser) parseDesc(msg *ir.MessageDesc, text string) bool {
	for _, field := range strings.Split(text, ",") {
		field = strings.TrimSpace(field)
		if field == "eot" {
			msg.EOT = true
			continue
		}
		if rest, ok := strings.CutPrefix(field, "a0."); ok {
			sub, err := strconv.Atoi(rest)
			if err != nil {
				p.syntaxf(field, "malformed descriptor register %s", field)
				return false
			}
			msg.Dynamic, msg.DescSub = true, sub
			continue
		}
		key, value, ok := strings.Cut(field, "=")
		n, err := strconv.Atoi(value)
		if !ok || err != nil || n < 0 {
			p.syntaxf(field, "malformed descriptor field %q", field)
			return false
		}
		switch key {
		case "mlen":
			msg.Src0Len = n
		case "xlen":
			msg.Src1Len = n
		case "rlen":
			msg.DstLen = n
		default:
			p.syntaxf(field, "unknown descriptor field %q, expected mlen, xlen, rlen, eot or a0.<n>", key)
			return false
		}
	}
	return true
}

func (p *listingParser) parseOperand(tok string, dst bool) (ir.Operand, bool) {
	body, typeName, hasType := strings.Cut(tok, ":")
	ty := ir.TypeUndef
	if hasType {
		var err error
		if ty, err = ir.ParseType(typeName); err != nil {
			p.semanticf(tok, "%v", err)
			return nil, false
		}
	}

	var region ir.Region
	if idx := strings.IndexByte(body, '<'); idx != -1 {
		var ok bool
		if region, ok = parseRegion(body[idx:], dst); !ok {
			p.syntaxf(tok, "malformed region %s", body[idx:])
			return nil, false
		}
		body = body[:idx]
	}

	switch {
	case body == "null":
		return ir.Direct{Reg: ir.RegRef{File: ir.FileNull, Type: ty}}, true
	case body == "ip":
		return ir.Direct{Reg: ir.RegRef{File: ir.FileIP, Type: ty}, Region: region}, true
	case body != "" && (body[0] == '-' || body[0] >= '0' && body[0] <= '9'):
		v, err := strconv.ParseInt(body, 0, 64)
		if err != nil {
			p.syntaxf(tok, "malformed immediate %s", body)
			return nil, false
		}
		return ir.Immediate{Value: v, Type: ty}, true
	case strings.HasPrefix(body, "r["):
		var in ir.Indirect
		if _, err := fmt.Sscanf(body, "r[a0.%d,%d]", &in.AddrSub, &in.Offset); err != nil || !strings.HasSuffix(body, "]") {
			p.syntaxf(tok, "malformed indirect operand %s, expected r[a0.<n>,<offset>]", body)
			return nil, false
		}
		in.Type, in.Region = ty, region
		return in, true
	}

	if op, ok := parseRegister(body, ty, region); ok {
		return op, true
	}
	if !dst && !hasType && region.IsZero() && isIdent(body) {
		return ir.Label{Name: body}, true
	}
	p.syntaxf(tok, "malformed operand %s", tok)
	return nil, false
}

// parseRegister handles <file><num>.<sub> and <file><num>.mme<acc>
func parseRegister(body string, ty ir.Type, region ir.Region) (ir.Operand, bool) {
	i := 0
	for i < len(body) && body[i] >= 'a' && body[i] <= 'z' {
		i++
	}
	file, ok := ir.RegFileByPrefix(body[:i])
	if !ok || file == ir.FileNull || file == ir.FileIP {
		return nil, false
	}
	num, sub, ok := strings.Cut(body[i:], ".")
	if !ok {
		return nil, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return nil, false
	}
	reg := ir.RegRef{File: file, Num: n, Type: ty}
	if acc, ok := strings.CutPrefix(sub, "mme"); ok {
		a, err := strconv.Atoi(acc)
		if err != nil || a < 0 || a > 7 {
			return nil, false
		}
		return ir.MacroPaired{Reg: reg, Region: region, Acc: a}, true
	}
	if reg.Sub, err = strconv.Atoi(sub); err != nil || reg.Sub < 0 {
		return nil, false
	}
	return ir.Direct{Reg: reg, Region: region}, true
}

func parseRegion(s string, dst bool) (ir.Region, bool) {
	var r ir.Region
	if !strings.HasSuffix(s, ">") {
		return r, false
	}
	if dst {
		_, err := fmt.Sscanf(s, "<%d>", &r.HStride)
		return r, err == nil
	}
	_, err := fmt.Sscanf(s, "<%d;%d,%d>", &r.VStride, &r.Width, &r.HStride)
	return r, err == nil && r.Width > 0
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
