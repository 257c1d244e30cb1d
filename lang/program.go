package lang

// CodeObject is a flat instruction sequence, the unit of execution.
type CodeObject struct {
	Ops []Op `cbor:"1,keyasint"`
}

// Program is a complete compiled program. Code[0] is the main entry
// point; Words maps word names (plain and Module.word qualified) to
// their compiled bodies.
type Program struct {
	Code  []CodeObject    `cbor:"1,keyasint"`
	Words map[string][]Op `cbor:"2,keyasint,omitempty"`
}

// NewProgram returns a program with an empty main code object.
func NewProgram() *Program {
	return &Program{
		Code:  []CodeObject{{}},
		Words: make(map[string][]Op),
	}
}

// Main returns the program's entry instruction sequence, or nil when the
// program has no code objects.
func (p *Program) Main() []Op {
	if len(p.Code) == 0 {
		return nil
	}
	return p.Code[0].Ops
}
