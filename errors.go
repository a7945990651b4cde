// Completion: 100% - Diagnostics complete, listing errors carry source context
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xyproto/swsb/internal/swsb"
)

// ErrorLevel is how bad a diagnostic is. A fatal one comes from the engine
// rather than the listing.
type ErrorLevel int

const (
	LevelError ErrorLevel = iota
	LevelFatal
)

func (l ErrorLevel) String() string {
	if l == LevelFatal {
		return "fatal error"
	}
	return "error"
}

// ErrorCategory says which stage rejected the listing
type ErrorCategory int

const (
	CategorySyntax   ErrorCategory = iota // malformed listing line
	CategorySemantic                      // well formed, but not a valid instruction
	CategoryInternal                      // the dependency engine gave up
)

// SourceLocation is a position in a listing
type SourceLocation struct {
	File   string
	Line   int
	Column int
	Length int // caret width
}

func (loc SourceLocation) String() string {
	if loc.File == "" {
		return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
	}
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
}

// ErrorContext is printed under the message
type ErrorContext struct {
	SourceLine string
	Suggestion string
	HelpText   string
}

// ListingError is one diagnostic about an input listing
type ListingError struct {
	Level    ErrorLevel
	Category ErrorCategory
	Message  string
	Location SourceLocation
	Context  ErrorContext
}

func (e ListingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

const (
	colorReset = "\033[0m"
	colorRed   = "\033[1;31m"
	colorGreen = "\033[1;32m"
	colorBlue  = "\033[1;34m"
	colorCyan  = "\033[1;36m"
)

func paint(sb *strings.Builder, useColor bool, color, text string) {
	if !useColor {
		sb.WriteString(text)
		return
	}
	sb.WriteString(color + text + colorReset)
}

// Format renders the diagnostic, quoting the source line with a caret under
// the offending token when the line is known
func (e ListingError) Format(useColor bool) string {
	var sb strings.Builder
	paint(&sb, useColor, colorRed, e.Level.String()+": ")
	sb.WriteString(e.Message + "\n")
	paint(&sb, useColor, colorBlue, "  --> "+e.Location.String())
	sb.WriteString("\n")

	if e.Context.SourceLine != "" {
		num := fmt.Sprint(e.Location.Line)
		gutter := strings.Repeat(" ", len(num)+1)
		fmt.Fprintf(&sb, "%s|\n%s | %s\n%s| ", gutter, num, e.Context.SourceLine, gutter)
		if e.Location.Column > 0 {
			sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
			paint(&sb, useColor, colorRed, strings.Repeat("^", max(e.Location.Length, 1)))
		}
		sb.WriteString("\n")
	}

	for _, note := range []struct{ color, label, text string }{
		{colorGreen, "   help: ", e.Context.Suggestion},
		{colorCyan, "   note: ", e.Context.HelpText},
	} {
		if note.text != "" {
			paint(&sb, useColor, note.color, note.label)
			sb.WriteString(note.text + "\n")
		}
	}
	return sb.String()
}

// ErrorCollector accumulates the diagnostics of one listing
type ErrorCollector struct {
	errors    []ListingError
	maxErrors int
	lines     []string
}

// NewErrorCollector creates a collector that asks the parser to stop after
// maxErrors errors, 10 when maxErrors is not positive
func NewErrorCollector(maxErrors int) *ErrorCollector {
	if maxErrors <= 0 {
		maxErrors = 10
	}
	return &ErrorCollector{maxErrors: maxErrors}
}

// SetSourceCode keeps the listing so diagnostics can quote it
func (ec *ErrorCollector) SetSourceCode(source string) {
	ec.lines = strings.Split(source, "\n")
}

// AddError records a diagnostic, filling in its source line
func (ec *ErrorCollector) AddError(err ListingError) {
	if n := err.Location.Line; err.Context.SourceLine == "" && n > 0 && n <= len(ec.lines) {
		err.Context.SourceLine = strings.TrimRight(ec.lines[n-1], "\r")
	}
	ec.errors = append(ec.errors, err)
}

func (ec *ErrorCollector) HasErrors() bool { return len(ec.errors) > 0 }
func (ec *ErrorCollector) ErrorCount() int { return len(ec.errors) }

// Errors returns the diagnostics in the order they were added
func (ec *ErrorCollector) Errors() []ListingError {
	return ec.errors
}

// ShouldStop reports whether the error limit is reached
func (ec *ErrorCollector) ShouldStop() bool {
	return len(ec.errors) >= ec.maxErrors
}

// Report formats every diagnostic followed by a count, or returns "" when
// there is nothing to report
func (ec *ErrorCollector) Report(useColor bool) string {
	if len(ec.errors) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range ec.errors {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(e.Format(useColor))
	}
	sb.WriteString("\n")
	paint(&sb, useColor, colorRed, fmt.Sprintf("%d error(s)", len(ec.errors)))
	sb.WriteString(" found\n")
	return sb.String()
}

// SyntaxError reports a malformed listing line
func SyntaxError(message string, loc SourceLocation) ListingError {
	return ListingError{Level: LevelError, Category: CategorySyntax, Message: message, Location: loc}
}

// SemanticError reports a well-formed line the engine cannot accept
func SemanticError(message string, loc SourceLocation) ListingError {
	return ListingError{Level: LevelError, Category: CategorySemantic, Message: message, Location: loc}
}

// UnknownOpcodeError reports a mnemonic missing from the opcode table,
// suggesting the closest known ones
func UnknownOpcodeError(name string, suggestions []string, loc SourceLocation) ListingError {
	e := SemanticError(fmt.Sprintf("unknown opcode '%s'", name), loc)
	switch len(suggestions) {
	case 0:
	case 1:
		e.Context.Suggestion = fmt.Sprintf("did you mean '%s'?", suggestions[0])
	default:
		e.Context.Suggestion = fmt.Sprintf("did you mean one of: %s?", strings.Join(suggestions, ", "))
	}
	return e
}

// AnalysisError turns an engine failure into a fatal diagnostic. line maps
// a kernel's instruction positions back to listing lines.
func AnalysisError(err error, file string, line func(kernel string, pos int) int) ListingError {
	e := ListingError{
		Level:    LevelFatal,
		Category: CategoryInternal,
		Message:  err.Error(),
		Location: SourceLocation{File: file},
	}
	var ie *swsb.InternalError
	if errors.As(err, &ie) {
		e.Message = fmt.Sprintf("dependency analysis failed in kernel %s, block %s at %s: %s", ie.Kernel, ie.Block, ie.Opcode, ie.Msg)
		e.Location.Line, e.Location.Column = line(ie.Kernel, ie.Position), 1
		e.Context.HelpText = "This is an internal error in the dependency engine. Please report this bug."
	}
	return e
}
