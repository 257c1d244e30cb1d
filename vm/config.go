package vm

// Config bounds a program's resource usage. A zero field means the
// corresponding limit is not enforced.
type Config struct {
	// MaxCallDepth bounds nested word and quotation execution.
	MaxCallDepth int

	// MaxSteps bounds the total number of executed instructions.
	MaxSteps int

	// MaxStackSize bounds the data stack.
	MaxStackSize int
}

// DefaultConfig returns the limits used when nothing else is configured:
// call depth 1000, unlimited steps, stack size 10000.
func DefaultConfig() Config {
	return Config{
		MaxCallDepth: 1000,
		MaxSteps:     0,
		MaxStackSize: 10000,
	}
}
