package lang

import "fmt"

// OpCode identifies a bytecode instruction.
// Codes are organized into ranges by category for easy identification.
type OpCode uint8

const (
	// ========================================================================
	// Literals & stack manipulation (0x00-0x0F)
	// ========================================================================

	OpPush OpCode = 0x01 // Push the instruction's value payload
	OpDup  OpCode = 0x02 // Duplicate top of stack
	OpDrop OpCode = 0x03 // Drop top of stack
	OpSwap OpCode = 0x04 // Swap top two: a b -> b a
	OpOver OpCode = 0x05 // Copy second to top: a b -> a b a
	OpRot  OpCode = 0x06 // Rotate top three: a b c -> b c a

	// ========================================================================
	// Arithmetic (0x10-0x1F)
	// ========================================================================

	OpAdd OpCode = 0x10 // Pop two, push sum
	OpSub OpCode = 0x11 // Pop two, push difference (a - b where b is TOS)
	OpMul OpCode = 0x12 // Pop two, push product
	OpDiv OpCode = 0x13 // Pop two, push quotient
	OpMod OpCode = 0x14 // Pop two integers, push remainder
	OpNeg OpCode = 0x15 // Negate top of stack
	OpAbs OpCode = 0x16 // Absolute value of top

	// ========================================================================
	// Comparison (0x20-0x2F)
	// ========================================================================

	OpEq OpCode = 0x20 // Pop two, push structural equality
	OpNe OpCode = 0x21 // Pop two, push structural inequality
	OpLt OpCode = 0x22 // Pop two numbers, push a < b
	OpGt OpCode = 0x23 // Pop two numbers, push a > b
	OpLe OpCode = 0x24 // Pop two numbers, push a <= b
	OpGe OpCode = 0x25 // Pop two numbers, push a >= b

	// ========================================================================
	// Logic (0x28-0x2F)
	// ========================================================================

	OpAnd OpCode = 0x28 // Pop two booleans, push conjunction
	OpOr  OpCode = 0x29 // Pop two booleans, push disjunction
	OpNot OpCode = 0x2A // Pop boolean, push negation

	// ========================================================================
	// Dynamic control flow (0x30-0x37)
	// Kept for quotations whose operands are not known at compile time.
	// ========================================================================

	OpIf   OpCode = 0x30 // ( cond then-quot else-quot -- ... )
	OpWhen OpCode = 0x31 // ( cond then-quot -- ... )
	OpCall OpCode = 0x32 // ( quot -- ... )

	// ========================================================================
	// Jumps (0x38-0x3F)
	// Offsets are signed and relative to the jump site's instruction
	// pointer (target = ip + offset). Jump(1) falls through to the next
	// instruction, Jump(2) skips one, Jump(0) loops forever.
	// ========================================================================

	OpJump        OpCode = 0x38 // Unconditional relative jump
	OpJumpIfFalse OpCode = 0x39 // Pop boolean, jump if false
	OpJumpIfTrue  OpCode = 0x3A // Pop boolean, jump if true

	// ========================================================================
	// Loops & higher-order (0x40-0x4F)
	// ========================================================================

	OpTimes  OpCode = 0x40 // ( n [body] -- ... )
	OpEach   OpCode = 0x41 // ( {xs} [f] -- )
	OpMap    OpCode = 0x42 // ( {xs} [f] -- {ys} )
	OpFilter OpCode = 0x43 // ( {xs} [pred] -- {ys} )
	OpFold   OpCode = 0x44 // ( {xs} acc [f] -- result )
	OpRange  OpCode = 0x45 // ( start end -- {start..end-1} )

	// ========================================================================
	// List & string operations (0x50-0x5F)
	// ========================================================================

	OpLen          OpCode = 0x50 // Length of list or string
	OpHead         OpCode = 0x51 // First element of list
	OpTail         OpCode = 0x52 // All but first element
	OpCons         OpCode = 0x53 // Prepend element to list
	OpConcat       OpCode = 0x54 // Concatenate two lists
	OpStringConcat OpCode = 0x55 // Concatenate as strings

	// ========================================================================
	// I/O (0x58-0x5F)
	// ========================================================================

	OpPrint OpCode = 0x58 // Pop and print with newline
	OpEmit  OpCode = 0x59 // Pop code point and print character
	OpRead  OpCode = 0x5A // Read a line, push as string
	OpDebug OpCode = 0x5B // Print debug rendering, keep value

	// ========================================================================
	// Library operations (0x60-0x7F)
	// ========================================================================

	OpMin      OpCode = 0x60
	OpMax      OpCode = 0x61
	OpPow      OpCode = 0x62
	OpSqrt     OpCode = 0x63
	OpNth      OpCode = 0x64
	OpAppend   OpCode = 0x65
	OpSort     OpCode = 0x66
	OpReverse  OpCode = 0x67
	OpChars    OpCode = 0x68
	OpJoin     OpCode = 0x69
	OpSplit    OpCode = 0x6A
	OpUpper    OpCode = 0x6B
	OpLower    OpCode = 0x6C
	OpTrim     OpCode = 0x6D
	OpClear    OpCode = 0x6E
	OpDepth    OpCode = 0x6F
	OpType     OpCode = 0x70
	OpToString OpCode = 0x71
	OpToInt    OpCode = 0x72

	// ========================================================================
	// Combinators (0x80-0x8F)
	// ========================================================================

	OpDip     OpCode = 0x80 // ( a [q] -- ... a )
	OpKeep    OpCode = 0x81 // ( a [q] -- ... a )
	OpBi      OpCode = 0x82 // ( a [p] [q] -- ... )
	OpBi2     OpCode = 0x83 // ( a b [p] [q] -- ... )
	OpTri     OpCode = 0x84 // ( a [p] [q] [r] -- ... )
	OpBoth    OpCode = 0x85 // ( a b [q] -- ... )
	OpCompose OpCode = 0x86 // ( [p] [q] -- [pq] )
	OpCurry   OpCode = 0x87 // ( x [q] -- [x q] )
	OpApply   OpCode = 0x88 // ( {args} [q] -- ... )

	// ========================================================================
	// Word calls (0x90-0x97)
	// ========================================================================

	OpCallWord      OpCode = 0x90 // Call word by plain name
	OpCallQualified OpCode = 0x91 // Call word by Module.word name

	// ========================================================================
	// Auxiliary stack (0x98-0x9F)
	// Used only by the counted-loop lowering to shield the loop counter
	// from the body's own stack usage.
	// ========================================================================

	OpToAux   OpCode = 0x98 // Move top of main stack to aux stack
	OpFromAux OpCode = 0x99 // Move top of aux stack to main stack

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn OpCode = 0xF0 // Terminate the current instruction sequence
)

// Op is one bytecode instruction. Most codes carry no payload. OpPush
// carries Val; the three jumps carry Offset; the two word calls carry
// Name (and Module for qualified calls).
type Op struct {
	Code   OpCode `cbor:"1,keyasint"`
	Val    *Value `cbor:"2,keyasint,omitempty"`
	Offset int32  `cbor:"3,keyasint,omitempty"`
	Name   string `cbor:"4,keyasint,omitempty"`
	Module string `cbor:"5,keyasint,omitempty"`
}

// PushOp returns a Push instruction carrying the given value.
func PushOp(v Value) Op {
	return Op{Code: OpPush, Val: &v}
}

// JumpOp returns an unconditional relative jump.
func JumpOp(offset int32) Op {
	return Op{Code: OpJump, Offset: offset}
}

// JumpIfFalseOp returns a pop-and-jump-if-false instruction.
func JumpIfFalseOp(offset int32) Op {
	return Op{Code: OpJumpIfFalse, Offset: offset}
}

// JumpIfTrueOp returns a pop-and-jump-if-true instruction.
func JumpIfTrueOp(offset int32) Op {
	return Op{Code: OpJumpIfTrue, Offset: offset}
}

// CallWordOp returns a plain word call.
func CallWordOp(name string) Op {
	return Op{Code: OpCallWord, Name: name}
}

// CallQualifiedOp returns a module-qualified word call.
func CallQualifiedOp(module, word string) Op {
	return Op{Code: OpCallQualified, Module: module, Name: word}
}

// String renders the instruction and its payload, if any.
func (op Op) String() string {
	switch op.Code {
	case OpPush:
		if op.Val != nil {
			return fmt.Sprintf("PUSH %s", op.Val)
		}
		return "PUSH <nil>"
	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		return fmt.Sprintf("%s %+d", op.Code, op.Offset)
	case OpCallWord:
		return fmt.Sprintf("CALL_WORD %s", op.Name)
	case OpCallQualified:
		return fmt.Sprintf("CALL_QUALIFIED %s.%s", op.Module, op.Name)
	default:
		return op.Code.String()
	}
}

// Equal reports whether two instructions are identical, including payloads.
func (op Op) Equal(other Op) bool {
	if op.Code != other.Code || op.Offset != other.Offset ||
		op.Name != other.Name || op.Module != other.Module {
		return false
	}
	if (op.Val == nil) != (other.Val == nil) {
		return false
	}
	if op.Val != nil && !op.Val.Equal(*other.Val) {
		return false
	}
	return true
}

// OpInfo provides per-instruction metadata: a human-readable name and the
// static stack effect used by the checker. Known is false when the effect
// cannot be analyzed statically (word calls).
type OpInfo struct {
	Name   string
	Pops   int
	Pushes int
	Known  bool
}

// opInfoTable maps instruction codes to their metadata.
//
// The (pops, pushes) pairs describe the guaranteed immediate effect on the
// main stack. Combinators that execute quotations report only the operands
// they consume; whatever the quotation leaves behind is dynamic. Clear
// empties the stack, which a fixed pair cannot express, so it reports (0,0).
var opInfoTable = map[OpCode]OpInfo{
	OpPush: {"PUSH", 0, 1, true},

	OpDup:  {"DUP", 1, 2, true},
	OpDrop: {"DROP", 1, 0, true},
	OpSwap: {"SWAP", 2, 2, true},
	OpOver: {"OVER", 2, 3, true},
	OpRot:  {"ROT", 3, 3, true},

	OpAdd: {"ADD", 2, 1, true},
	OpSub: {"SUB", 2, 1, true},
	OpMul: {"MUL", 2, 1, true},
	OpDiv: {"DIV", 2, 1, true},
	OpMod: {"MOD", 2, 1, true},
	OpNeg: {"NEG", 1, 1, true},
	OpAbs: {"ABS", 1, 1, true},

	OpEq: {"EQ", 2, 1, true},
	OpNe: {"NE", 2, 1, true},
	OpLt: {"LT", 2, 1, true},
	OpGt: {"GT", 2, 1, true},
	OpLe: {"LE", 2, 1, true},
	OpGe: {"GE", 2, 1, true},

	OpAnd: {"AND", 2, 1, true},
	OpOr:  {"OR", 2, 1, true},
	OpNot: {"NOT", 1, 1, true},

	OpIf:   {"IF", 3, 0, true},
	OpWhen: {"WHEN", 2, 0, true},
	OpCall: {"CALL", 1, 0, true},

	OpJump:        {"JUMP", 0, 0, true},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 1, 0, true},
	OpJumpIfTrue:  {"JUMP_IF_TRUE", 1, 0, true},

	OpTimes:  {"TIMES", 2, 0, true},
	OpEach:   {"EACH", 2, 0, true},
	OpMap:    {"MAP", 2, 1, true},
	OpFilter: {"FILTER", 2, 1, true},
	OpFold:   {"FOLD", 3, 1, true},
	OpRange:  {"RANGE", 2, 1, true},

	OpLen:          {"LEN", 1, 1, true},
	OpHead:         {"HEAD", 1, 1, true},
	OpTail:         {"TAIL", 1, 1, true},
	OpCons:         {"CONS", 2, 1, true},
	OpConcat:       {"CONCAT", 2, 1, true},
	OpStringConcat: {"STRING_CONCAT", 2, 1, true},

	OpPrint: {"PRINT", 1, 0, true},
	OpEmit:  {"EMIT", 1, 0, true},
	OpRead:  {"READ", 0, 1, true},
	OpDebug: {"DEBUG", 1, 1, true},

	OpMin:      {"MIN", 2, 1, true},
	OpMax:      {"MAX", 2, 1, true},
	OpPow:      {"POW", 2, 1, true},
	OpSqrt:     {"SQRT", 1, 1, true},
	OpNth:      {"NTH", 2, 1, true},
	OpAppend:   {"APPEND", 2, 1, true},
	OpSort:     {"SORT", 1, 1, true},
	OpReverse:  {"REVERSE", 1, 1, true},
	OpChars:    {"CHARS", 1, 1, true},
	OpJoin:     {"JOIN", 2, 1, true},
	OpSplit:    {"SPLIT", 2, 1, true},
	OpUpper:    {"UPPER", 1, 1, true},
	OpLower:    {"LOWER", 1, 1, true},
	OpTrim:     {"TRIM", 1, 1, true},
	OpClear:    {"CLEAR", 0, 0, true},
	OpDepth:    {"DEPTH", 0, 1, true},
	OpType:     {"TYPE", 1, 2, true},
	OpToString: {"TO_STRING", 1, 1, true},
	OpToInt:    {"TO_INT", 1, 1, true},

	OpDip:     {"DIP", 2, 0, true},
	OpKeep:    {"KEEP", 2, 0, true},
	OpBi:      {"BI", 3, 0, true},
	OpBi2:     {"BI2", 4, 0, true},
	OpTri:     {"TRI", 4, 0, true},
	OpBoth:    {"BOTH", 3, 0, true},
	OpCompose: {"COMPOSE", 2, 1, true},
	OpCurry:   {"CURRY", 2, 1, true},
	OpApply:   {"APPLY", 2, 0, true},

	OpCallWord:      {"CALL_WORD", 0, 0, false},
	OpCallQualified: {"CALL_QUALIFIED", 0, 0, false},

	OpToAux:   {"TO_AUX", 1, 0, true},
	OpFromAux: {"FROM_AUX", 0, 1, true},

	OpReturn: {"RETURN", 0, 0, true},
}

// Info returns metadata for an instruction code.
// Returns a zero OpInfo with name "UNKNOWN" if the code is not recognized.
func (c OpCode) Info() OpInfo {
	if info, ok := opInfoTable[c]; ok {
		return info
	}
	return OpInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", uint8(c))}
}

// String returns the human-readable name of an instruction code.
func (c OpCode) String() string {
	return c.Info().Name
}

// Effect returns the instruction's static stack effect. known is false for
// word calls, whose effect depends on the callee.
func (c OpCode) Effect() (pops, pushes int, known bool) {
	info := c.Info()
	return info.Pops, info.Pushes, info.Known
}

// IsJump reports whether the code is one of the three jump instructions.
func (c OpCode) IsJump() bool {
	return c >= OpJump && c <= OpJumpIfTrue
}

// IsWordCall reports whether the code calls a user-defined word.
func (c OpCode) IsWordCall() bool {
	return c == OpCallWord || c == OpCallQualified
}

// AllOpCodes returns every defined instruction code.
// Useful for testing that all codes have metadata.
func AllOpCodes() []OpCode {
	codes := make([]OpCode, 0, len(opInfoTable))
	for c := range opInfoTable {
		codes = append(codes, c)
	}
	return codes
}

// OpCodeCount returns the number of defined instruction codes.
func OpCodeCount() int {
	return len(opInfoTable)
}
