package compiler

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("ember.compiler")

// Diagnostics receives non-fatal findings during compilation, such as a
// word being redefined. Compilation continues after a diagnostic.
type Diagnostics interface {
	Warningf(format string, args ...any)
}

// logDiagnostics routes diagnostics to the compiler's logger.
type logDiagnostics struct{}

func (logDiagnostics) Warningf(format string, args ...any) {
	log.Warningf(format, args...)
}
