// Package compiler lowers Ember syntax trees to flat bytecode.
//
// Lowering is mostly a one-to-one mapping from node kinds to instruction
// codes. The interesting part is control flow: `if`, `when`, and `times`
// whose quotation operands are literal at the call site are rewritten into
// relative jumps instead of runtime quotation dispatch, which removes the
// allocation and call overhead on the hot path. Operands that are only
// known at runtime (a quotation arriving on the stack from a variable,
// `compose`, `curry`, and so on) fall back to the dynamic If/When/Times
// instructions.
package compiler

import (
	"path/filepath"
	"strings"

	"github.com/emberlang/ember/lang"
)

// Compiler lowers a syntax tree to a Program. The zero value is not
// usable; call New.
type Compiler struct {
	words    map[string][]lang.Node
	aliases  map[string]string
	imported map[string]bool
	dir      string
	loader   Loader
	diag     Diagnostics
}

// New returns a compiler with no loader (imports fail) and diagnostics
// routed to the package logger.
func New() *Compiler {
	return &Compiler{
		words:    make(map[string][]lang.Node),
		aliases:  make(map[string]string),
		imported: make(map[string]bool),
		dir:      ".",
		diag:     logDiagnostics{},
	}
}

// SetLoader installs the source loader used to resolve import declarations.
func (c *Compiler) SetLoader(l Loader) {
	c.loader = l
}

// SetDiagnostics redirects non-fatal compilation findings.
func (c *Compiler) SetDiagnostics(d Diagnostics) {
	c.diag = d
}

// SetDir sets the directory against which relative import paths resolve.
func (c *Compiler) SetDir(dir string) {
	c.dir = dir
}

// Compile lowers a whole tree: definitions are registered first (following
// imports depth-first), then every word body and the main sequence are
// compiled. The main sequence ends with a Return instruction.
func (c *Compiler) Compile(tree *lang.Tree) (*lang.Program, error) {
	for i := range tree.Definitions {
		if err := c.processDefinition(&tree.Definitions[i]); err != nil {
			return nil, err
		}
	}

	prog := lang.NewProgram()
	for name, body := range c.words {
		ops, err := c.compileNodes(body)
		if err != nil {
			return nil, err
		}
		prog.Words[name] = ops
	}

	main, err := c.compileNodes(tree.Main)
	if err != nil {
		return nil, err
	}
	prog.Code[0].Ops = append(main, lang.Op{Code: lang.OpReturn})
	return prog, nil
}

// ============================================================================
// Definition processing
// ============================================================================

func (c *Compiler) processDefinition(node *lang.Node) error {
	switch node.Kind {
	case lang.NodeDef:
		c.defineWord(node.Name, node.Body)
		return nil
	case lang.NodeModule:
		return c.registerModule(node.Name, node.Body)
	case lang.NodeUse:
		return c.handleUse(node.Name, node.Item)
	case lang.NodeImport:
		return c.importFile(node.Path)
	default:
		return Errorf("unexpected %s in definition position", nodeName(node.Kind))
	}
}

func (c *Compiler) defineWord(name string, body []lang.Node) {
	if _, exists := c.words[name]; exists {
		c.diag.Warningf("word %q redefined", name)
	}
	c.words[name] = body
}

// registerModule records every definition under its Module.word name, and
// additionally under the bare word name when no other definition has
// claimed it yet.
func (c *Compiler) registerModule(module string, defs []lang.Node) error {
	for i := range defs {
		def := &defs[i]
		if def.Kind != lang.NodeDef {
			return Errorf("module %q: only definitions are allowed, got %s",
				module, nodeName(def.Kind))
		}
		qualified := module + "." + def.Name
		if _, exists := c.words[qualified]; exists {
			c.diag.Warningf("word %q redefined", qualified)
		}
		c.words[qualified] = def.Body
		if _, claimed := c.words[def.Name]; !claimed {
			c.words[def.Name] = def.Body
		}
	}
	return nil
}

func (c *Compiler) handleUse(module string, item lang.UseItem) error {
	if item.All {
		prefix := module + "."
		found := false
		for name := range c.words {
			if rest, ok := strings.CutPrefix(name, prefix); ok {
				c.aliases[rest] = name
				found = true
			}
		}
		if !found {
			return Errorf("no definitions found in module %q", module)
		}
		return nil
	}

	qualified := module + "." + item.Name
	if _, ok := c.words[qualified]; !ok {
		return Errorf("undefined: %s", qualified)
	}
	c.aliases[item.Name] = qualified
	return nil
}

// importFile loads a source file and registers its definitions. Imports
// are idempotent: a file is processed at most once per compilation, so
// import cycles terminate. Nested imports resolve relative to the
// importing file's directory.
func (c *Compiler) importFile(path string) error {
	if c.loader == nil {
		return Errorf("import %q: no loader configured", path)
	}
	resolved, err := normalizeImport(c.dir, path)
	if err != nil {
		return err
	}
	if c.imported[resolved] {
		return nil
	}
	c.imported[resolved] = true

	tree, err := c.loader.Load(resolved)
	if err != nil {
		return Errorf("import %q: %v", path, err)
	}

	savedDir := c.dir
	c.dir = filepath.Dir(resolved)
	defer func() { c.dir = savedDir }()

	for i := range tree.Definitions {
		if err := c.processDefinition(&tree.Definitions[i]); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Node lowering
// ============================================================================

// directOps maps node kinds that lower to exactly one payload-free
// instruction.
var directOps = map[lang.NodeKind]lang.OpCode{
	lang.NodeDup:  lang.OpDup,
	lang.NodeDrop: lang.OpDrop,
	lang.NodeSwap: lang.OpSwap,
	lang.NodeOver: lang.OpOver,
	lang.NodeRot:  lang.OpRot,

	lang.NodeAdd: lang.OpAdd,
	lang.NodeSub: lang.OpSub,
	lang.NodeMul: lang.OpMul,
	lang.NodeDiv: lang.OpDiv,
	lang.NodeMod: lang.OpMod,
	lang.NodeNeg: lang.OpNeg,
	lang.NodeAbs: lang.OpAbs,

	lang.NodeEq:    lang.OpEq,
	lang.NodeNotEq: lang.OpNe,
	lang.NodeLt:    lang.OpLt,
	lang.NodeGt:    lang.OpGt,
	lang.NodeLtEq:  lang.OpLe,
	lang.NodeGtEq:  lang.OpGe,

	lang.NodeAnd: lang.OpAnd,
	lang.NodeOr:  lang.OpOr,
	lang.NodeNot: lang.OpNot,

	lang.NodeCall: lang.OpCall,

	lang.NodeEach:   lang.OpEach,
	lang.NodeMap:    lang.OpMap,
	lang.NodeFilter: lang.OpFilter,
	lang.NodeFold:   lang.OpFold,
	lang.NodeRange:  lang.OpRange,

	lang.NodeLen:          lang.OpLen,
	lang.NodeHead:         lang.OpHead,
	lang.NodeTail:         lang.OpTail,
	lang.NodeCons:         lang.OpCons,
	lang.NodeConcat:       lang.OpConcat,
	lang.NodeStringConcat: lang.OpStringConcat,

	lang.NodePrint: lang.OpPrint,
	lang.NodeEmit:  lang.OpEmit,
	lang.NodeRead:  lang.OpRead,
	lang.NodeDebug: lang.OpDebug,

	lang.NodeMin:      lang.OpMin,
	lang.NodeMax:      lang.OpMax,
	lang.NodePow:      lang.OpPow,
	lang.NodeSqrt:     lang.OpSqrt,
	lang.NodeNth:      lang.OpNth,
	lang.NodeAppend:   lang.OpAppend,
	lang.NodeSort:     lang.OpSort,
	lang.NodeReverse:  lang.OpReverse,
	lang.NodeChars:    lang.OpChars,
	lang.NodeJoin:     lang.OpJoin,
	lang.NodeSplit:    lang.OpSplit,
	lang.NodeUpper:    lang.OpUpper,
	lang.NodeLower:    lang.OpLower,
	lang.NodeTrim:     lang.OpTrim,
	lang.NodeClear:    lang.OpClear,
	lang.NodeDepth:    lang.OpDepth,
	lang.NodeType:     lang.OpType,
	lang.NodeToString: lang.OpToString,
	lang.NodeToInt:    lang.OpToInt,

	lang.NodeDip:     lang.OpDip,
	lang.NodeKeep:    lang.OpKeep,
	lang.NodeBi:      lang.OpBi,
	lang.NodeBi2:     lang.OpBi2,
	lang.NodeTri:     lang.OpTri,
	lang.NodeBoth:    lang.OpBoth,
	lang.NodeCompose: lang.OpCompose,
	lang.NodeCurry:   lang.OpCurry,
	lang.NodeApply:   lang.OpApply,
}

func (c *Compiler) compileNodes(nodes []lang.Node) ([]lang.Op, error) {
	ops := []lang.Op{}
	for i := range nodes {
		var err error
		ops, err = c.compileNode(ops, &nodes[i])
		if err != nil {
			return nil, err
		}
	}
	return ops, nil
}

func (c *Compiler) compileNode(ops []lang.Op, node *lang.Node) ([]lang.Op, error) {
	if code, ok := directOps[node.Kind]; ok {
		return append(ops, lang.Op{Code: code}), nil
	}

	switch node.Kind {
	case lang.NodeLiteral:
		val, err := c.compileValue(*node.Val)
		if err != nil {
			return nil, err
		}
		return append(ops, lang.PushOp(val)), nil

	case lang.NodeIf:
		return c.compileIf(ops)

	case lang.NodeWhen:
		return c.compileWhen(ops)

	case lang.NodeTimes:
		return c.compileTimes(ops)

	case lang.NodeWord:
		if qualified, ok := c.aliases[node.Name]; ok {
			module, word, _ := strings.Cut(qualified, ".")
			return append(ops, lang.CallQualifiedOp(module, word)), nil
		}
		return append(ops, lang.CallWordOp(node.Name)), nil

	case lang.NodeQualifiedWord:
		return append(ops, lang.CallQualifiedOp(node.Module, node.Name)), nil

	case lang.NodeDef:
		return nil, Errorf("definition of %q is not allowed in runtime position", node.Name)

	case lang.NodeModule:
		return nil, Errorf("module %q is not allowed in runtime position", node.Name)

	case lang.NodeUse:
		return nil, Errorf("use of %s is not allowed in runtime position", useItemName(*node))

	case lang.NodeImport:
		return nil, Errorf("import of %q is not allowed in runtime position", node.Path)

	default:
		return nil, Errorf("cannot compile %s", nodeName(node.Kind))
	}
}

// compileValue compiles quotation literals eagerly, including quotations
// nested inside list literals. Everything else passes through unchanged.
func (c *Compiler) compileValue(v lang.Value) (lang.Value, error) {
	switch v.Kind {
	case lang.KindQuotation:
		ops, err := c.compileNodes(v.Nodes)
		if err != nil {
			return lang.Value{}, err
		}
		return lang.CompiledValue(ops...), nil
	case lang.KindList:
		items := make([]lang.Value, len(v.List))
		for i, item := range v.List {
			compiled, err := c.compileValue(item)
			if err != nil {
				return lang.Value{}, err
			}
			items[i] = compiled
		}
		return lang.ListValue(items...), nil
	default:
		return v, nil
	}
}

// ============================================================================
// Jump lowering
// ============================================================================

// popLiteralQuotation removes and returns the instruction sequence of a
// trailing Push(compiled-quotation), if the output ends in one.
func popLiteralQuotation(ops []lang.Op) ([]lang.Op, []lang.Op, bool) {
	if len(ops) == 0 {
		return ops, nil, false
	}
	last := ops[len(ops)-1]
	if last.Code != lang.OpPush || last.Val == nil || last.Val.Kind != lang.KindCompiled {
		return ops, nil, false
	}
	return ops[:len(ops)-1], last.Val.Ops, true
}

// compileIf rewrites `cond [then] [else] if` into conditional jumps when
// both branches are literal quotations:
//
//	JUMP_IF_FALSE +(len(then)+2)
//	<then>
//	JUMP +(len(else)+1)
//	<else>
//
// Otherwise it emits the dynamic If instruction.
func (c *Compiler) compileIf(ops []lang.Op) ([]lang.Op, error) {
	rest, elseOps, ok := popLiteralQuotation(ops)
	if !ok {
		return append(ops, lang.Op{Code: lang.OpIf}), nil
	}
	rest, thenOps, ok := popLiteralQuotation(rest)
	if !ok {
		return append(ops, lang.Op{Code: lang.OpIf}), nil
	}

	rest = append(rest, lang.JumpIfFalseOp(int32(len(thenOps))+2))
	rest = append(rest, thenOps...)
	rest = append(rest, lang.JumpOp(int32(len(elseOps))+1))
	rest = append(rest, elseOps...)
	return rest, nil
}

// compileWhen rewrites `cond [body] when` into a single conditional jump
// over the body when the body is a literal quotation:
//
//	JUMP_IF_FALSE +(len(body)+1)
//	<body>
func (c *Compiler) compileWhen(ops []lang.Op) ([]lang.Op, error) {
	rest, body, ok := popLiteralQuotation(ops)
	if !ok {
		return append(ops, lang.Op{Code: lang.OpWhen}), nil
	}

	rest = append(rest, lang.JumpIfFalseOp(int32(len(body))+1))
	rest = append(rest, body...)
	return rest, nil
}

// compileTimes rewrites `n [body] times` into a counted loop when the body
// is a literal quotation. The counter lives on the main stack between
// iterations but is parked on the auxiliary stack while the body runs, so
// the body sees exactly the stack it would see under dynamic dispatch:
//
//	DUP               ; counter
//	PUSH 0
//	LE
//	JUMP_IF_TRUE +(L+6)   ; -> DROP
//	TO_AUX
//	<body>            ; L instructions
//	FROM_AUX
//	PUSH 1
//	SUB
//	JUMP -(L+8)       ; -> DUP
//	DROP
func (c *Compiler) compileTimes(ops []lang.Op) ([]lang.Op, error) {
	rest, body, ok := popLiteralQuotation(ops)
	if !ok {
		return append(ops, lang.Op{Code: lang.OpTimes}), nil
	}

	bodyLen := int32(len(body))
	rest = append(rest,
		lang.Op{Code: lang.OpDup},
		lang.PushOp(lang.IntegerValue(0)),
		lang.Op{Code: lang.OpLe},
		lang.JumpIfTrueOp(bodyLen+6),
		lang.Op{Code: lang.OpToAux},
	)
	rest = append(rest, body...)
	rest = append(rest,
		lang.Op{Code: lang.OpFromAux},
		lang.PushOp(lang.IntegerValue(1)),
		lang.Op{Code: lang.OpSub},
		lang.JumpOp(-(bodyLen + 8)),
		lang.Op{Code: lang.OpDrop},
	)
	return rest, nil
}

// nodeName returns a lowercase surface name for diagnostics.
// useItemName renders the imported name of a `use` node for diagnostics,
// e.g. "Math.double" or "Math.*".
func useItemName(node lang.Node) string {
	if node.Item.All {
		return node.Name + ".*"
	}
	return node.Name + "." + node.Item.Name
}

func nodeName(kind lang.NodeKind) string {
	switch kind {
	case lang.NodeDef:
		return "definition"
	case lang.NodeModule:
		return "module"
	case lang.NodeUse:
		return "use"
	case lang.NodeImport:
		return "import"
	case lang.NodeWord:
		return "word"
	case lang.NodeLiteral:
		return "literal"
	default:
		return "node"
	}
}
