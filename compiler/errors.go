package compiler

import "fmt"

// Error is a compile-time failure: a construct that cannot be lowered to
// bytecode, a bad import path, or an unresolved use declaration.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return "compile error: " + e.Message
}

// Errorf constructs a compile error from a format string.
func Errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}
