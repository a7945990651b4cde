package ir

import (
	"fmt"
	"strings"
)

// DistPipe qualifies which in-order pipe a distance counts in
type DistPipe int

const (
	DistSingle DistPipe = iota // the only pipe of a single-pipe platform
	DistAll
	DistFloat
	DistInt
	DistLong
	DistMath
	DistControl
)

func (p DistPipe) String() string {
	switch p {
	case DistSingle:
		return ""
	case DistAll:
		return "A"
	case DistFloat:
		return "F"
	case DistInt:
		return "I"
	case DistLong:
		return "L"
	case DistMath:
		return "M"
	case DistControl:
		return "C"
	default:
		return "?"
	}
}

// ParseDistPipe parses a distance qualifier letter; the empty string is DistSingle
func ParseDistPipe(s string) (DistPipe, error) {
	for p := DistSingle; p <= DistControl; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return DistSingle, fmt.Errorf("unknown distance pipe: %q", s)
}

// TokenMode says what an instruction does with its scoreboard token
type TokenMode int

const (
	TokenNone TokenMode = iota
	TokenSet            // allocate the token for this instruction
	TokenDst            // wait until the token owner has written its results
	TokenSrc            // wait until the token owner has read its sources
)

// SWSB is the software scoreboard annotation of one instruction: at most one
// distance component and at most one token component. The zero value means
// no synchronization.
type SWSB struct {
	Distance int
	Pipe     DistPipe
	Token    int
	Mode     TokenMode
}

// HasDistance reports whether the distance component is present
func (s SWSB) HasDistance() bool {
	return s.Distance > 0
}

// HasToken reports whether the token component is present
func (s SWSB) HasToken() bool {
	return s.Mode != TokenNone
}

// IsZero reports whether the annotation is empty
func (s SWSB) IsZero() bool {
	return !s.HasDistance() && !s.HasToken()
}

func (s SWSB) String() string {
	var parts []string
	if s.HasDistance() {
		parts = append(parts, fmt.Sprintf("%s@%d", s.Pipe, s.Distance))
	}
	switch s.Mode {
	case TokenSet:
		parts = append(parts, fmt.Sprintf("$%d", s.Token))
	case TokenDst:
		parts = append(parts, fmt.Sprintf("$%d.dst", s.Token))
	case TokenSrc:
		parts = append(parts, fmt.Sprintf("$%d.src", s.Token))
	}
	return strings.Join(parts, " ")
}

// ParseSWSB parses the inside of an annotation such as "F@2 $3.dst"
func ParseSWSB(s string) (SWSB, error) {
	var out SWSB
	for _, field := range strings.Fields(s) {
		if idx := strings.IndexByte(field, '@'); idx != -1 {
			pipe, err := ParseDistPipe(field[:idx])
			if err != nil {
				return out, err
			}
			var d int
			if _, err := fmt.Sscanf(field[idx+1:], "%d", &d); err != nil || d <= 0 {
				return out, fmt.Errorf("bad distance: %s", field)
			}
			if out.HasDistance() {
				return out, fmt.Errorf("more than one distance in %q", s)
			}
			out.Distance, out.Pipe = d, pipe
			continue
		}
		if !strings.HasPrefix(field, "$") {
			return out, fmt.Errorf("bad annotation: %s", field)
		}
		if out.HasToken() {
			return out, fmt.Errorf("more than one token in %q", s)
		}
		body := field[1:]
		mode := TokenSet
		switch {
		case strings.HasSuffix(body, ".dst"):
			mode, body = TokenDst, strings.TrimSuffix(body, ".dst")
		case strings.HasSuffix(body, ".src"):
			mode, body = TokenSrc, strings.TrimSuffix(body, ".src")
		}
		var tok int
		if _, err := fmt.Sscanf(body, "%d", &tok); err != nil || tok < 0 {
			return out, fmt.Errorf("bad token: %s", field)
		}
		out.Token, out.Mode = tok, mode
	}
	return out, nil
}
