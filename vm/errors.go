package vm

import (
	"fmt"
	"strings"
)

// RuntimeError is a failure during program execution. Besides the message
// it can carry the chain of word calls that led to the failure, a source
// position, and a help hint; the optional fields render only when set.
type RuntimeError struct {
	Message   string
	CallStack []string
	Line      int
	Col       int
	Source    string
	File      string
	Help      string
}

// Errorf constructs a runtime error from a format string.
func Errorf(format string, args ...any) *RuntimeError {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	sb.WriteString("runtime error: ")
	sb.WriteString(e.Message)
	if e.File != "" && e.Line > 0 {
		fmt.Fprintf(&sb, "\n  at %s:%d:%d", e.File, e.Line, e.Col)
	}
	if len(e.CallStack) > 0 {
		sb.WriteString("\n  call stack:")
		for i, frame := range e.CallStack {
			fmt.Fprintf(&sb, "\n    %d: %s", i, frame)
		}
	}
	if e.Help != "" {
		sb.WriteString("\n  help: ")
		sb.WriteString(e.Help)
	}
	return sb.String()
}

// WithContext appends a call frame. Frames accumulate innermost first as
// the call chain unwinds.
func (e *RuntimeError) WithContext(frame string) *RuntimeError {
	e.CallStack = append(e.CallStack, frame)
	return e
}

// WithSpan attaches a source position.
func (e *RuntimeError) WithSpan(line, col int) *RuntimeError {
	e.Line = line
	e.Col = col
	return e
}

// WithSource attaches the source text the position refers to.
func (e *RuntimeError) WithSource(source string) *RuntimeError {
	e.Source = source
	return e
}

// WithFile attaches the originating file name.
func (e *RuntimeError) WithFile(file string) *RuntimeError {
	e.File = file
	return e
}

// WithHelp attaches a hint rendered after the error.
func (e *RuntimeError) WithHelp(help string) *RuntimeError {
	e.Help = help
	return e
}

func typeError(expected string, got string) *RuntimeError {
	return Errorf("type error: expected %s, got %s", expected, got)
}
