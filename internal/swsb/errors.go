package swsb

import (
	"errors"
	"fmt"
)

// ErrInvariant is wrapped by every InternalError
var ErrInvariant = errors.New("internal invariant violated")

// InternalError reports a defect in the analysis itself, never malformed
// input. Position is the instruction's program-order index in the kernel.
type InternalError struct {
	Kernel   string
	Block    string
	Position int
	Opcode   string
	Msg      string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: kernel %s, block %s, instruction %d (%s): %s",
		ErrInvariant, e.Kernel, e.Block, e.Position, e.Opcode, e.Msg)
}

func (e *InternalError) Unwrap() error {
	return ErrInvariant
}
