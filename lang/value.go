package lang

import (
	"fmt"
	"strings"
)

// ValueKind discriminates the closed set of runtime value types.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota

	// KindInteger is a 64-bit signed integer.
	KindInteger

	// KindFloat is a 64-bit floating-point number.
	KindFloat

	// KindString is a UTF-8 string.
	KindString

	// KindBool is a boolean.
	KindBool

	// KindList is an ordered sequence of values: `{ 1 2 3 }`.
	KindList

	// KindQuotation is an uncompiled quotation: an ordered sequence of
	// syntax-tree nodes. Only the parser produces these.
	KindQuotation

	// KindCompiled is a compiled quotation: an ordered sequence of
	// bytecode instructions. Only the compiler produces these.
	KindCompiled
)

// Value is a runtime value in the Ember language. Values are the only data
// that can exist on the data stack.
//
// The Kind field selects which payload field is meaningful; the others are
// left at their zero value. Compiled quotations own their instruction
// sequence outright: quotations nest strictly, so no sharing or cycles are
// possible.
type Value struct {
	Kind  ValueKind `cbor:"1,keyasint"`
	Int   int64     `cbor:"2,keyasint,omitempty"`
	Float float64   `cbor:"3,keyasint,omitempty"`
	Str   string    `cbor:"4,keyasint,omitempty"`
	Bool  bool      `cbor:"5,keyasint,omitempty"`
	List  []Value   `cbor:"6,keyasint,omitempty"`
	Nodes []Node    `cbor:"7,keyasint,omitempty"`
	Ops   []Op      `cbor:"8,keyasint,omitempty"`
}

// IntegerValue returns an integer value.
func IntegerValue(n int64) Value {
	return Value{Kind: KindInteger, Int: n}
}

// FloatValue returns a float value.
func FloatValue(f float64) Value {
	return Value{Kind: KindFloat, Float: f}
}

// StringValue returns a string value.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// BoolValue returns a boolean value.
func BoolValue(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// ListValue returns a list value holding the given items.
func ListValue(items ...Value) Value {
	return Value{Kind: KindList, List: items}
}

// QuotationValue returns an uncompiled quotation holding the given nodes.
func QuotationValue(nodes ...Node) Value {
	return Value{Kind: KindQuotation, Nodes: nodes}
}

// CompiledValue returns a compiled quotation holding the given instructions.
func CompiledValue(ops ...Op) Value {
	return Value{Kind: KindCompiled, Ops: ops}
}

// TypeName returns the value's type name as used in error messages and by
// the `type` instruction.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindInteger:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBool:
		return "Bool"
	case KindList:
		return "List"
	case KindQuotation:
		return "Quotation"
	case KindCompiled:
		return "CompiledQuotation"
	default:
		return "Invalid"
	}
}

// Equal reports deep structural equality. There is no numeric coercion:
// the integer 1 and the float 1.0 are not equal.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindInteger:
		return v.Int == other.Int
	case KindFloat:
		return v.Float == other.Float
	case KindString:
		return v.Str == other.Str
	case KindBool:
		return v.Bool == other.Bool
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	case KindQuotation:
		// Uncompiled quotations compare by identity of shape only; the
		// parser never produces two distinct-but-equal quotation values
		// that reach runtime comparison.
		return len(v.Nodes) == len(other.Nodes)
	case KindCompiled:
		if len(v.Ops) != len(other.Ops) {
			return false
		}
		for i := range v.Ops {
			if !v.Ops[i].Equal(other.Ops[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String formats the value using Ember surface syntax.
func (v Value) String() string {
	switch v.Kind {
	case KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%v", v.Float)
	case KindString:
		return v.Str
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindList:
		var sb strings.Builder
		sb.WriteString("{ ")
		for _, item := range v.List {
			sb.WriteString(item.String())
			sb.WriteString(" ")
		}
		sb.WriteString("}")
		return sb.String()
	case KindQuotation:
		return "[...]"
	case KindCompiled:
		return "[<compiled>]"
	default:
		return "<invalid>"
	}
}
