// Package vm executes compiled Ember bytecode.
//
// The machine is a dual-stack design: the data stack carries all operand
// traffic, while a small auxiliary stack shields loop counters from the
// loop body's own stack usage. Execution is bounded by a Config; the
// defaults stop runaway recursion and unbounded stack growth while leaving
// step counts unlimited.
package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/emberlang/ember/lang"
)

// VM executes one program at a time. It is not safe for concurrent use.
type VM struct {
	cfg   Config
	stack []lang.Value
	aux   []lang.Value
	words map[string][]lang.Op

	callStack []string
	steps     int
	depth     int

	out io.Writer
	in  *bufio.Reader
}

// New returns a machine with default limits, writing to stdout and
// reading from stdin.
func New() *VM {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig returns a machine with the given limits.
func NewWithConfig(cfg Config) *VM {
	return &VM{
		cfg:   cfg,
		words: make(map[string][]lang.Op),
		out:   os.Stdout,
		in:    bufio.NewReader(os.Stdin),
	}
}

// SetOutput redirects print, emit, and debug output.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetInput redirects the read instruction's input.
func (vm *VM) SetInput(r io.Reader) {
	vm.in = bufio.NewReader(r)
}

// Stack returns the current data stack, bottom first. The returned slice
// is the machine's own; callers must not mutate it.
func (vm *VM) Stack() []lang.Value {
	return vm.stack
}

// Run executes a program's main code object. The word table is replaced
// by the program's words and the step and depth counters are reset; the
// data stack is preserved across calls so a host can feed a session
// incrementally.
//
// Main is scanned for statically provable stack underflow before any
// instruction runs.
func (vm *VM) Run(prog *lang.Program) error {
	vm.steps = 0
	vm.depth = 0
	vm.callStack = vm.callStack[:0]
	vm.words = prog.Words
	if vm.words == nil {
		vm.words = make(map[string][]lang.Op)
	}

	if len(prog.Code) == 0 {
		return &RuntimeError{Message: "bytecode program has no main code object"}
	}

	main := prog.Main()
	if err := CheckOpsWithInitial(main, len(vm.stack)); err != nil {
		return &RuntimeError{Message: err.Error()}
	}
	return vm.execOps(main, "main")
}

// ============================================================================
// Execution loop
// ============================================================================

// execOps runs one instruction sequence to completion. name identifies the
// sequence in the call depth diagnostic.
func (vm *VM) execOps(ops []lang.Op, name string) error {
	vm.depth++
	defer func() { vm.depth-- }()
	if vm.cfg.MaxCallDepth > 0 && vm.depth > vm.cfg.MaxCallDepth {
		return Errorf("call depth limit exceeded (%d) - possible infinite recursion in '%s'",
			vm.cfg.MaxCallDepth, name)
	}

	ip := 0
	for ip < len(ops) {
		if err := vm.checkLimits(); err != nil {
			return err
		}
		op := &ops[ip]

		switch op.Code {

		// ---- literals & stack shuffling ----

		case lang.OpPush:
			vm.push(*op.Val)

		case lang.OpDup:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.push(v)
			vm.push(v)

		case lang.OpDrop:
			if _, err := vm.pop(); err != nil {
				return err
			}

		case lang.OpSwap:
			b, a, err := vm.pop2()
			if err != nil {
				return err
			}
			vm.push(b)
			vm.push(a)

		case lang.OpOver:
			b, a, err := vm.pop2()
			if err != nil {
				return err
			}
			vm.push(a)
			vm.push(b)
			vm.push(a)

		case lang.OpRot:
			c, err := vm.pop()
			if err != nil {
				return err
			}
			b, a, err := vm.pop2()
			if err != nil {
				return err
			}
			vm.push(b)
			vm.push(c)
			vm.push(a)

		// ---- arithmetic ----

		case lang.OpAdd:
			if err := vm.numericBinop(
				func(a, b int64) (int64, error) { return a + b, nil },
				func(a, b float64) (float64, error) { return a + b, nil },
			); err != nil {
				return err
			}

		case lang.OpSub:
			if err := vm.numericBinop(
				func(a, b int64) (int64, error) { return a - b, nil },
				func(a, b float64) (float64, error) { return a - b, nil },
			); err != nil {
				return err
			}

		case lang.OpMul:
			if err := vm.numericBinop(
				func(a, b int64) (int64, error) { return a * b, nil },
				func(a, b float64) (float64, error) { return a * b, nil },
			); err != nil {
				return err
			}

		case lang.OpDiv:
			if err := vm.numericBinop(
				func(a, b int64) (int64, error) {
					if b == 0 {
						return 0, Errorf("division by zero")
					}
					return a / b, nil
				},
				func(a, b float64) (float64, error) {
					if b == 0 {
						return 0, Errorf("division by zero")
					}
					return a / b, nil
				},
			); err != nil {
				return err
			}

		case lang.OpMod:
			b, err := vm.popInt()
			if err != nil {
				return err
			}
			a, err := vm.popInt()
			if err != nil {
				return err
			}
			if b == 0 {
				return Errorf("modulo by zero")
			}
			vm.push(lang.IntegerValue(a % b))

		case lang.OpNeg:
			if err := vm.numericUnop(
				func(a int64) int64 { return -a },
				func(a float64) float64 { return -a },
			); err != nil {
				return err
			}

		case lang.OpAbs:
			if err := vm.numericUnop(
				func(a int64) int64 {
					if a < 0 {
						return -a
					}
					return a
				},
				math.Abs,
			); err != nil {
				return err
			}

		// ---- comparison ----

		case lang.OpEq:
			b, a, err := vm.pop2()
			if err != nil {
				return err
			}
			vm.push(lang.BoolValue(a.Equal(b)))

		case lang.OpNe:
			b, a, err := vm.pop2()
			if err != nil {
				return err
			}
			vm.push(lang.BoolValue(!a.Equal(b)))

		case lang.OpLt:
			if err := vm.compareOp(func(a, b float64) bool { return a < b }); err != nil {
				return err
			}

		case lang.OpGt:
			if err := vm.compareOp(func(a, b float64) bool { return a > b }); err != nil {
				return err
			}

		case lang.OpLe:
			if err := vm.compareOp(func(a, b float64) bool { return a <= b }); err != nil {
				return err
			}

		case lang.OpGe:
			if err := vm.compareOp(func(a, b float64) bool { return a >= b }); err != nil {
				return err
			}

		// ---- logic ----

		case lang.OpAnd:
			b, err := vm.popBool()
			if err != nil {
				return err
			}
			a, err := vm.popBool()
			if err != nil {
				return err
			}
			vm.push(lang.BoolValue(a && b))

		case lang.OpOr:
			b, err := vm.popBool()
			if err != nil {
				return err
			}
			a, err := vm.popBool()
			if err != nil {
				return err
			}
			vm.push(lang.BoolValue(a || b))

		case lang.OpNot:
			a, err := vm.popBool()
			if err != nil {
				return err
			}
			vm.push(lang.BoolValue(!a))

		// ---- jumps ----

		case lang.OpJump:
			target, err := jumpTarget(ip, op.Offset, len(ops))
			if err != nil {
				return err
			}
			ip = target
			continue

		case lang.OpJumpIfFalse:
			cond, err := vm.popBool()
			if err != nil {
				return err
			}
			if !cond {
				target, err := jumpTarget(ip, op.Offset, len(ops))
				if err != nil {
					return err
				}
				ip = target
				continue
			}

		case lang.OpJumpIfTrue:
			cond, err := vm.popBool()
			if err != nil {
				return err
			}
			if cond {
				target, err := jumpTarget(ip, op.Offset, len(ops))
				if err != nil {
					return err
				}
				ip = target
				continue
			}

		// ---- dynamic control flow ----

		case lang.OpIf:
			elseOps, err := vm.popQuotation()
			if err != nil {
				return err
			}
			thenOps, err := vm.popQuotation()
			if err != nil {
				return err
			}
			cond, err := vm.popBool()
			if err != nil {
				return err
			}
			branch := elseOps
			if cond {
				branch = thenOps
			}
			if err := vm.execOps(branch, "quotation"); err != nil {
				return err
			}

		case lang.OpWhen:
			body, err := vm.popQuotation()
			if err != nil {
				return err
			}
			cond, err := vm.popBool()
			if err != nil {
				return err
			}
			if cond {
				if err := vm.execOps(body, "quotation"); err != nil {
					return err
				}
			}

		case lang.OpCall:
			body, err := vm.popQuotation()
			if err != nil {
				return err
			}
			if err := vm.execOps(body, "quotation"); err != nil {
				return err
			}

		// ---- loops & higher-order ----

		case lang.OpTimes:
			body, err := vm.popQuotation()
			if err != nil {
				return err
			}
			n, err := vm.popInt()
			if err != nil {
				return err
			}
			for i := int64(0); i < n; i++ {
				if err := vm.execOps(body, "quotation"); err != nil {
					return err
				}
			}

		case lang.OpEach:
			body, err := vm.popQuotation()
			if err != nil {
				return err
			}
			items, err := vm.popList()
			if err != nil {
				return err
			}
			for _, item := range items {
				vm.push(item)
				if err := vm.execOps(body, "quotation"); err != nil {
					return err
				}
			}

		case lang.OpMap:
			body, err := vm.popQuotation()
			if err != nil {
				return err
			}
			items, err := vm.popList()
			if err != nil {
				return err
			}
			result := make([]lang.Value, 0, len(items))
			for _, item := range items {
				vm.push(item)
				if err := vm.execOps(body, "quotation"); err != nil {
					return err
				}
				mapped, err := vm.pop()
				if err != nil {
					return err
				}
				result = append(result, mapped)
			}
			vm.push(lang.ListValue(result...))

		case lang.OpFilter:
			body, err := vm.popQuotation()
			if err != nil {
				return err
			}
			items, err := vm.popList()
			if err != nil {
				return err
			}
			result := []lang.Value{}
			for _, item := range items {
				vm.push(item)
				if err := vm.execOps(body, "quotation"); err != nil {
					return err
				}
				keep, err := vm.popBool()
				if err != nil {
					return err
				}
				if keep {
					result = append(result, item)
				}
			}
			vm.push(lang.ListValue(result...))

		case lang.OpFold:
			body, err := vm.popQuotation()
			if err != nil {
				return err
			}
			acc, err := vm.pop()
			if err != nil {
				return err
			}
			items, err := vm.popList()
			if err != nil {
				return err
			}
			vm.push(acc)
			for _, item := range items {
				vm.push(item)
				if err := vm.execOps(body, "quotation"); err != nil {
					return err
				}
			}

		case lang.OpRange:
			end, err := vm.popInt()
			if err != nil {
				return err
			}
			start, err := vm.popInt()
			if err != nil {
				return err
			}
			if start > end {
				return Errorf("range: start (%d) cannot be greater than end (%d)", start, end)
			}
			items := make([]lang.Value, 0, end-start)
			for i := start; i < end; i++ {
				items = append(items, lang.IntegerValue(i))
			}
			vm.push(lang.ListValue(items...))

		// ---- lists & strings ----

		case lang.OpLen:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			switch v.Kind {
			case lang.KindList:
				vm.push(lang.IntegerValue(int64(len(v.List))))
			case lang.KindString:
				vm.push(lang.IntegerValue(int64(len([]rune(v.Str)))))
			default:
				return typeError("list or string", v.TypeName())
			}

		case lang.OpHead:
			items, err := vm.popList()
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return Errorf("head of empty list")
			}
			vm.push(items[0])

		case lang.OpTail:
			items, err := vm.popList()
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return Errorf("tail of empty list")
			}
			rest := make([]lang.Value, len(items)-1)
			copy(rest, items[1:])
			vm.push(lang.ListValue(rest...))

		case lang.OpCons:
			items, err := vm.popList()
			if err != nil {
				return err
			}
			x, err := vm.pop()
			if err != nil {
				return err
			}
			out := make([]lang.Value, 0, len(items)+1)
			out = append(out, x)
			out = append(out, items...)
			vm.push(lang.ListValue(out...))

		case lang.OpConcat:
			b, err := vm.popList()
			if err != nil {
				return err
			}
			a, err := vm.popList()
			if err != nil {
				return err
			}
			out := make([]lang.Value, 0, len(a)+len(b))
			out = append(out, a...)
			out = append(out, b...)
			vm.push(lang.ListValue(out...))

		case lang.OpStringConcat:
			b, a, err := vm.pop2()
			if err != nil {
				return err
			}
			vm.push(lang.StringValue(a.String() + b.String()))

		// ---- I/O ----

		case lang.OpPrint:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			fmt.Fprintln(vm.out, v.String())

		case lang.OpEmit:
			code, err := vm.popInt()
			if err != nil {
				return err
			}
			fmt.Fprintf(vm.out, "%c", rune(code))

		case lang.OpRead:
			line, err := vm.in.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return Errorf("read: %v", err)
			}
			vm.push(lang.StringValue(strings.TrimRight(line, "\r\n")))

		case lang.OpDebug:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			fmt.Fprintf(vm.out, "%s : %s\n", v.String(), v.TypeName())
			vm.push(v)

		// ---- library operations ----

		case lang.OpMin:
			if err := vm.numericBinop(
				func(a, b int64) (int64, error) { return min(a, b), nil },
				func(a, b float64) (float64, error) { return math.Min(a, b), nil },
			); err != nil {
				return err
			}

		case lang.OpMax:
			if err := vm.numericBinop(
				func(a, b int64) (int64, error) { return max(a, b), nil },
				func(a, b float64) (float64, error) { return math.Max(a, b), nil },
			); err != nil {
				return err
			}

		case lang.OpPow:
			if err := vm.numericBinop(intPow,
				func(a, b float64) (float64, error) { return math.Pow(a, b), nil },
			); err != nil {
				return err
			}

		case lang.OpSqrt:
			f, err := vm.popNumber()
			if err != nil {
				return err
			}
			if f < 0 {
				return Errorf("sqrt of negative number")
			}
			vm.push(lang.FloatValue(math.Sqrt(f)))

		case lang.OpNth:
			i, err := vm.popInt()
			if err != nil {
				return err
			}
			items, err := vm.popList()
			if err != nil {
				return err
			}
			if i < 0 || i >= int64(len(items)) {
				return Errorf("index out of bounds: %d (list length %d)", i, len(items))
			}
			vm.push(items[i])

		case lang.OpAppend:
			x, err := vm.pop()
			if err != nil {
				return err
			}
			items, err := vm.popList()
			if err != nil {
				return err
			}
			out := make([]lang.Value, 0, len(items)+1)
			out = append(out, items...)
			out = append(out, x)
			vm.push(lang.ListValue(out...))

		case lang.OpSort:
			items, err := vm.popList()
			if err != nil {
				return err
			}
			ints := make([]int64, len(items))
			for i, item := range items {
				if item.Kind != lang.KindInteger {
					return Errorf("sort: expected a list of integers, got %s", item.TypeName())
				}
				ints[i] = item.Int
			}
			sort.Slice(ints, func(i, j int) bool { return ints[i] < ints[j] })
			out := make([]lang.Value, len(ints))
			for i, n := range ints {
				out[i] = lang.IntegerValue(n)
			}
			vm.push(lang.ListValue(out...))

		case lang.OpReverse:
			items, err := vm.popList()
			if err != nil {
				return err
			}
			out := make([]lang.Value, len(items))
			for i, item := range items {
				out[len(items)-1-i] = item
			}
			vm.push(lang.ListValue(out...))

		case lang.OpChars:
			s, err := vm.popString()
			if err != nil {
				return err
			}
			runes := []rune(s)
			out := make([]lang.Value, len(runes))
			for i, r := range runes {
				out[i] = lang.StringValue(string(r))
			}
			vm.push(lang.ListValue(out...))

		case lang.OpJoin:
			sep, err := vm.popString()
			if err != nil {
				return err
			}
			items, err := vm.popList()
			if err != nil {
				return err
			}
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = item.String()
			}
			vm.push(lang.StringValue(strings.Join(parts, sep)))

		case lang.OpSplit:
			sep, err := vm.popString()
			if err != nil {
				return err
			}
			s, err := vm.popString()
			if err != nil {
				return err
			}
			parts := strings.Split(s, sep)
			out := make([]lang.Value, len(parts))
			for i, part := range parts {
				out[i] = lang.StringValue(part)
			}
			vm.push(lang.ListValue(out...))

		case lang.OpUpper:
			s, err := vm.popString()
			if err != nil {
				return err
			}
			vm.push(lang.StringValue(strings.ToUpper(s)))

		case lang.OpLower:
			s, err := vm.popString()
			if err != nil {
				return err
			}
			vm.push(lang.StringValue(strings.ToLower(s)))

		case lang.OpTrim:
			s, err := vm.popString()
			if err != nil {
				return err
			}
			vm.push(lang.StringValue(strings.TrimSpace(s)))

		case lang.OpClear:
			vm.stack = vm.stack[:0]

		case lang.OpDepth:
			vm.push(lang.IntegerValue(int64(len(vm.stack))))

		case lang.OpType:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.push(v)
			vm.push(lang.StringValue(v.TypeName()))

		case lang.OpToString:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.push(lang.StringValue(v.String()))

		case lang.OpToInt:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			n, err := toInt(v)
			if err != nil {
				return err
			}
			vm.push(lang.IntegerValue(n))

		// ---- combinators ----

		case lang.OpDip:
			body, err := vm.popQuotation()
			if err != nil {
				return err
			}
			a, err := vm.pop()
			if err != nil {
				return err
			}
			if err := vm.execOps(body, "quotation"); err != nil {
				return err
			}
			vm.push(a)

		case lang.OpKeep:
			body, err := vm.popQuotation()
			if err != nil {
				return err
			}
			a, err := vm.pop()
			if err != nil {
				return err
			}
			vm.push(a)
			if err := vm.execOps(body, "quotation"); err != nil {
				return err
			}
			vm.push(a)

		case lang.OpBi:
			q, err := vm.popQuotation()
			if err != nil {
				return err
			}
			p, err := vm.popQuotation()
			if err != nil {
				return err
			}
			a, err := vm.pop()
			if err != nil {
				return err
			}
			vm.push(a)
			if err := vm.execOps(p, "quotation"); err != nil {
				return err
			}
			vm.push(a)
			if err := vm.execOps(q, "quotation"); err != nil {
				return err
			}

		case lang.OpBi2:
			q, err := vm.popQuotation()
			if err != nil {
				return err
			}
			p, err := vm.popQuotation()
			if err != nil {
				return err
			}
			b, a, err := vm.pop2()
			if err != nil {
				return err
			}
			vm.push(a)
			vm.push(b)
			if err := vm.execOps(p, "quotation"); err != nil {
				return err
			}
			vm.push(a)
			vm.push(b)
			if err := vm.execOps(q, "quotation"); err != nil {
				return err
			}

		case lang.OpTri:
			r, err := vm.popQuotation()
			if err != nil {
				return err
			}
			q, err := vm.popQuotation()
			if err != nil {
				return err
			}
			p, err := vm.popQuotation()
			if err != nil {
				return err
			}
			a, err := vm.pop()
			if err != nil {
				return err
			}
			vm.push(a)
			if err := vm.execOps(p, "quotation"); err != nil {
				return err
			}
			vm.push(a)
			if err := vm.execOps(q, "quotation"); err != nil {
				return err
			}
			vm.push(a)
			if err := vm.execOps(r, "quotation"); err != nil {
				return err
			}

		case lang.OpBoth:
			q, err := vm.popQuotation()
			if err != nil {
				return err
			}
			b, a, err := vm.pop2()
			if err != nil {
				return err
			}
			vm.push(a)
			if err := vm.execOps(q, "quotation"); err != nil {
				return err
			}
			vm.push(b)
			if err := vm.execOps(q, "quotation"); err != nil {
				return err
			}

		case lang.OpCompose:
			q, err := vm.popQuotation()
			if err != nil {
				return err
			}
			p, err := vm.popQuotation()
			if err != nil {
				return err
			}
			out := make([]lang.Op, 0, len(p)+len(q))
			out = append(out, p...)
			out = append(out, q...)
			vm.push(lang.CompiledValue(out...))

		case lang.OpCurry:
			q, err := vm.popQuotation()
			if err != nil {
				return err
			}
			x, err := vm.pop()
			if err != nil {
				return err
			}
			out := make([]lang.Op, 0, len(q)+1)
			out = append(out, lang.PushOp(x))
			out = append(out, q...)
			vm.push(lang.CompiledValue(out...))

		case lang.OpApply:
			body, err := vm.popQuotation()
			if err != nil {
				return err
			}
			args, err := vm.popList()
			if err != nil {
				return err
			}
			for _, arg := range args {
				vm.push(arg)
			}
			if err := vm.execOps(body, "quotation"); err != nil {
				return err
			}

		// ---- word calls ----

		case lang.OpCallWord:
			if err := vm.callWord(op.Name); err != nil {
				return err
			}

		case lang.OpCallQualified:
			if err := vm.callQualified(op.Module, op.Name); err != nil {
				return err
			}

		// ---- auxiliary stack ----

		case lang.OpToAux:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.aux = append(vm.aux, v)

		case lang.OpFromAux:
			if len(vm.aux) == 0 {
				return Errorf("auxiliary stack underflow")
			}
			v := vm.aux[len(vm.aux)-1]
			vm.aux = vm.aux[:len(vm.aux)-1]
			vm.push(v)

		case lang.OpReturn:
			return nil

		default:
			return Errorf("unknown instruction 0x%02X at ip=%d", uint8(op.Code), ip)
		}

		ip++
	}
	return nil
}

// jumpTarget validates a relative jump. A target equal to len is a normal
// exit from the sequence.
func jumpTarget(ip int, offset int32, n int) (int, error) {
	target := ip + int(offset)
	if target < 0 || target > n {
		return 0, Errorf("jump out of bounds: ip=%d, offset=%d, target=%d", ip, offset, target)
	}
	return target, nil
}

func (vm *VM) checkLimits() error {
	vm.steps++
	if vm.cfg.MaxSteps > 0 && vm.steps > vm.cfg.MaxSteps {
		return Errorf("execution step limit exceeded (%d)", vm.cfg.MaxSteps)
	}
	if vm.cfg.MaxStackSize > 0 && len(vm.stack) > vm.cfg.MaxStackSize {
		return Errorf("stack size limit exceeded (%d)", vm.cfg.MaxStackSize)
	}
	return nil
}

// ============================================================================
// Word calls
// ============================================================================

func (vm *VM) callWord(name string) error {
	body, ok := vm.words[name]
	if !ok {
		return Errorf("undefined word: '%s'", name)
	}
	vm.callStack = append(vm.callStack, name)
	err := vm.execOps(body, name)
	vm.callStack = vm.callStack[:len(vm.callStack)-1]
	if err != nil {
		var re *RuntimeError
		if errors.As(err, &re) && len(re.CallStack) == 0 {
			re.WithContext(name)
		}
		return err
	}
	return nil
}

func (vm *VM) callQualified(module, word string) error {
	qualified := module + "." + word
	body, ok := vm.words[qualified]
	if !ok {
		return Errorf("undefined: %s", qualified)
	}
	vm.callStack = append(vm.callStack, qualified)
	err := vm.execOps(body, qualified)
	vm.callStack = vm.callStack[:len(vm.callStack)-1]
	if err != nil {
		var re *RuntimeError
		if errors.As(err, &re) {
			re.WithContext(qualified)
		}
		return err
	}
	return nil
}

// ============================================================================
// Stack primitives
// ============================================================================

func (vm *VM) push(v lang.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() (lang.Value, error) {
	if len(vm.stack) == 0 {
		return lang.Value{}, Errorf("stack underflow")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

// pop2 pops the top two values, returning them top-first.
func (vm *VM) pop2() (top, under lang.Value, err error) {
	top, err = vm.pop()
	if err != nil {
		return
	}
	under, err = vm.pop()
	return
}

func (vm *VM) popInt() (int64, error) {
	v, err := vm.pop()
	if err != nil {
		return 0, err
	}
	if v.Kind != lang.KindInteger {
		return 0, typeError("integer", v.TypeName())
	}
	return v.Int, nil
}

func (vm *VM) popBool() (bool, error) {
	v, err := vm.pop()
	if err != nil {
		return false, err
	}
	if v.Kind != lang.KindBool {
		return false, typeError("boolean", v.TypeName())
	}
	return v.Bool, nil
}

func (vm *VM) popString() (string, error) {
	v, err := vm.pop()
	if err != nil {
		return "", err
	}
	if v.Kind != lang.KindString {
		return "", typeError("string", v.TypeName())
	}
	return v.Str, nil
}

func (vm *VM) popList() ([]lang.Value, error) {
	v, err := vm.pop()
	if err != nil {
		return nil, err
	}
	if v.Kind != lang.KindList {
		return nil, typeError("list", v.TypeName())
	}
	return v.List, nil
}

func (vm *VM) popQuotation() ([]lang.Op, error) {
	v, err := vm.pop()
	if err != nil {
		return nil, err
	}
	if v.Kind != lang.KindCompiled {
		return nil, typeError("quotation", v.TypeName())
	}
	return v.Ops, nil
}

func (vm *VM) popNumber() (float64, error) {
	v, err := vm.pop()
	if err != nil {
		return 0, err
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, typeError("number", v.TypeName())
	}
	return f, nil
}

// numericBinop pops two numbers and applies the integer function when both
// operands are integers, the float function otherwise (integers promote).
func (vm *VM) numericBinop(
	intFn func(a, b int64) (int64, error),
	floatFn func(a, b float64) (float64, error),
) error {
	b, a, err := vm.pop2()
	if err != nil {
		return err
	}
	if a.Kind == lang.KindInteger && b.Kind == lang.KindInteger {
		n, err := intFn(a.Int, b.Int)
		if err != nil {
			return err
		}
		vm.push(lang.IntegerValue(n))
		return nil
	}
	af, ok := asFloat(a)
	if !ok {
		return typeError("number", a.TypeName())
	}
	bf, ok := asFloat(b)
	if !ok {
		return typeError("number", b.TypeName())
	}
	f, err := floatFn(af, bf)
	if err != nil {
		return err
	}
	vm.push(lang.FloatValue(f))
	return nil
}

func (vm *VM) numericUnop(intFn func(int64) int64, floatFn func(float64) float64) error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	switch v.Kind {
	case lang.KindInteger:
		vm.push(lang.IntegerValue(intFn(v.Int)))
		return nil
	case lang.KindFloat:
		vm.push(lang.FloatValue(floatFn(v.Float)))
		return nil
	default:
		return typeError("number", v.TypeName())
	}
}

func (vm *VM) compareOp(cmp func(a, b float64) bool) error {
	b, a, err := vm.pop2()
	if err != nil {
		return err
	}
	af, ok := asFloat(a)
	if !ok {
		return typeError("number", a.TypeName())
	}
	bf, ok := asFloat(b)
	if !ok {
		return typeError("number", b.TypeName())
	}
	vm.push(lang.BoolValue(cmp(af, bf)))
	return nil
}

func asFloat(v lang.Value) (float64, bool) {
	switch v.Kind {
	case lang.KindInteger:
		return float64(v.Int), true
	case lang.KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// intPow raises an integer base to a non-negative integer power with
// overflow checking.
func intPow(base, exp int64) (int64, error) {
	if exp < 0 {
		return 0, Errorf("pow: negative exponent %d", exp)
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		next := result * base
		if base != 0 && next/base != result {
			return 0, Errorf("integer overflow in pow")
		}
		result = next
	}
	return result, nil
}

func toInt(v lang.Value) (int64, error) {
	switch v.Kind {
	case lang.KindInteger:
		return v.Int, nil
	case lang.KindFloat:
		return int64(v.Float), nil
	case lang.KindBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	case lang.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return 0, Errorf("cannot convert %q to integer", v.Str)
		}
		return n, nil
	default:
		return 0, typeError("integer, float, boolean, or string", v.TypeName())
	}
}
