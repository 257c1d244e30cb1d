package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/emberlang/ember/lang"
)

// ============================================================================
// Helpers
// ============================================================================

func quot(nodes ...lang.Node) lang.Node {
	return lang.LiteralNode(lang.QuotationValue(nodes...))
}

func intLit(n int64) lang.Node {
	return lang.LiteralNode(lang.IntegerValue(n))
}

func boolLit(b bool) lang.Node {
	return lang.LiteralNode(lang.BoolValue(b))
}

func op(code lang.OpCode) lang.Op {
	return lang.Op{Code: code}
}

func pushInt(n int64) lang.Op {
	return lang.PushOp(lang.IntegerValue(n))
}

// compileMain compiles a main sequence and strips the trailing Return.
func compileMain(t *testing.T, nodes ...lang.Node) []lang.Op {
	t.Helper()
	prog, err := New().Compile(&lang.Tree{Main: nodes})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	ops := prog.Main()
	if len(ops) == 0 || ops[len(ops)-1].Code != lang.OpReturn {
		t.Fatalf("main does not end in RETURN: %v", ops)
	}
	return ops[:len(ops)-1]
}

func assertOps(t *testing.T, got, want []lang.Op) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d instructions, want %d\ngot:  %v\nwant: %v",
			len(got), len(want), got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("instruction %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func countCode(ops []lang.Op, code lang.OpCode) int {
	n := 0
	for _, o := range ops {
		if o.Code == code {
			n++
		}
	}
	return n
}

// recorder captures diagnostics for assertions.
type recorder struct {
	warnings []string
}

func (r *recorder) Warningf(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

// ============================================================================
// Direct lowering
// ============================================================================

func TestDirectLowering(t *testing.T) {
	got := compileMain(t,
		intLit(1),
		intLit(2),
		lang.Node{Kind: lang.NodeAdd},
		lang.Node{Kind: lang.NodeDup},
		lang.Node{Kind: lang.NodeDrop},
	)
	assertOps(t, got, []lang.Op{
		pushInt(1),
		pushInt(2),
		op(lang.OpAdd),
		op(lang.OpDup),
		op(lang.OpDrop),
	})
}

func TestQuotationLiteralCompilesEagerly(t *testing.T) {
	got := compileMain(t, quot(intLit(1), lang.Node{Kind: lang.NodeAdd}))
	if len(got) != 1 || got[0].Code != lang.OpPush {
		t.Fatalf("expected single PUSH, got %v", got)
	}
	v := got[0].Val
	if v == nil || v.Kind != lang.KindCompiled {
		t.Fatalf("expected compiled quotation payload, got %v", v)
	}
	assertOps(t, v.Ops, []lang.Op{pushInt(1), op(lang.OpAdd)})
}

func TestQuotationInsideListCompiles(t *testing.T) {
	list := lang.ListValue(
		lang.IntegerValue(1),
		lang.QuotationValue(lang.Node{Kind: lang.NodeDup}),
	)
	got := compileMain(t, lang.LiteralNode(list))
	if len(got) != 1 {
		t.Fatalf("expected single PUSH, got %v", got)
	}
	items := got[0].Val.List
	if items[1].Kind != lang.KindCompiled {
		t.Fatalf("nested quotation not compiled: %v", items[1])
	}
	assertOps(t, items[1].Ops, []lang.Op{op(lang.OpDup)})
}

// ============================================================================
// Conditional lowering
// ============================================================================

func TestIfLowersToJumps(t *testing.T) {
	got := compileMain(t,
		boolLit(true),
		quot(intLit(10)),
		quot(intLit(20)),
		lang.Node{Kind: lang.NodeIf},
	)
	assertOps(t, got, []lang.Op{
		lang.PushOp(lang.BoolValue(true)),
		lang.JumpIfFalseOp(3),
		pushInt(10),
		lang.JumpOp(2),
		pushInt(20),
	})
}

func TestIfBranchLengths(t *testing.T) {
	// The jump offsets must track the branch lengths exactly.
	for thenLen := 0; thenLen <= 5; thenLen++ {
		for elseLen := 0; elseLen <= 5; elseLen++ {
			thenBody := make([]lang.Node, thenLen)
			for i := range thenBody {
				thenBody[i] = intLit(int64(i))
			}
			elseBody := make([]lang.Node, elseLen)
			for i := range elseBody {
				elseBody[i] = intLit(int64(100 + i))
			}
			got := compileMain(t,
				boolLit(true),
				quot(thenBody...),
				quot(elseBody...),
				lang.Node{Kind: lang.NodeIf},
			)
			if len(got) != 1+1+thenLen+1+elseLen {
				t.Fatalf("then=%d else=%d: got %d instructions", thenLen, elseLen, len(got))
			}
			if got[1].Code != lang.OpJumpIfFalse || got[1].Offset != int32(thenLen)+2 {
				t.Errorf("then=%d else=%d: bad JUMP_IF_FALSE %v", thenLen, elseLen, got[1])
			}
			exitJump := got[2+thenLen]
			if exitJump.Code != lang.OpJump || exitJump.Offset != int32(elseLen)+1 {
				t.Errorf("then=%d else=%d: bad JUMP %v", thenLen, elseLen, exitJump)
			}
		}
	}
}

func TestIfFallsBackWhenElseIsDynamic(t *testing.T) {
	// The else quotation arrives through a word, so it is not a literal at
	// the call site and the dynamic If instruction must be used.
	got := compileMain(t,
		boolLit(true),
		quot(intLit(10)),
		lang.WordNode("make-else"),
		lang.Node{Kind: lang.NodeIf},
	)
	if countCode(got, lang.OpIf) != 1 {
		t.Fatalf("expected dynamic IF, got %v", got)
	}
	if countCode(got, lang.OpJumpIfFalse) != 0 {
		t.Fatalf("unexpected jump lowering: %v", got)
	}
}

func TestIfFallsBackWhenThenIsDynamic(t *testing.T) {
	got := compileMain(t,
		boolLit(true),
		lang.WordNode("make-then"),
		quot(intLit(20)),
		lang.Node{Kind: lang.NodeIf},
	)
	if countCode(got, lang.OpIf) != 1 {
		t.Fatalf("expected dynamic IF, got %v", got)
	}
}

func TestConsecutiveIfs(t *testing.T) {
	got := compileMain(t,
		boolLit(true),
		quot(intLit(1)),
		quot(intLit(2)),
		lang.Node{Kind: lang.NodeIf},
		boolLit(false),
		quot(intLit(3)),
		quot(intLit(4)),
		lang.Node{Kind: lang.NodeIf},
	)
	if n := countCode(got, lang.OpJumpIfFalse); n != 2 {
		t.Errorf("expected 2 JUMP_IF_FALSE, got %d: %v", n, got)
	}
	if n := countCode(got, lang.OpIf); n != 0 {
		t.Errorf("expected no dynamic IF, got %d", n)
	}
}

func TestNestedIf(t *testing.T) {
	inner := []lang.Node{
		boolLit(false),
		quot(intLit(1)),
		quot(intLit(2)),
		lang.Node{Kind: lang.NodeIf},
	}
	got := compileMain(t,
		boolLit(true),
		quot(inner...),
		quot(intLit(3)),
		lang.Node{Kind: lang.NodeIf},
	)
	// Both levels lower to jumps.
	if n := countCode(got, lang.OpJumpIfFalse); n != 2 {
		t.Errorf("expected 2 JUMP_IF_FALSE, got %d: %v", n, got)
	}
	if n := countCode(got, lang.OpIf); n != 0 {
		t.Errorf("expected no dynamic IF, got %d", n)
	}
}

func TestWhenLowersToJump(t *testing.T) {
	got := compileMain(t,
		boolLit(true),
		quot(intLit(10), lang.Node{Kind: lang.NodePrint}),
		lang.Node{Kind: lang.NodeWhen},
	)
	assertOps(t, got, []lang.Op{
		lang.PushOp(lang.BoolValue(true)),
		lang.JumpIfFalseOp(3),
		pushInt(10),
		op(lang.OpPrint),
	})
}

func TestWhenEmptyBody(t *testing.T) {
	got := compileMain(t,
		boolLit(true),
		quot(),
		lang.Node{Kind: lang.NodeWhen},
	)
	assertOps(t, got, []lang.Op{
		lang.PushOp(lang.BoolValue(true)),
		lang.JumpIfFalseOp(1),
	})
}

func TestWhenFallsBackWhenBodyIsDynamic(t *testing.T) {
	got := compileMain(t,
		boolLit(true),
		lang.WordNode("make-body"),
		lang.Node{Kind: lang.NodeWhen},
	)
	if countCode(got, lang.OpWhen) != 1 {
		t.Fatalf("expected dynamic WHEN, got %v", got)
	}
}

// ============================================================================
// Loop lowering
// ============================================================================

func TestTimesLowersToCountedLoop(t *testing.T) {
	got := compileMain(t,
		intLit(3),
		quot(intLit(1)),
		lang.Node{Kind: lang.NodeTimes},
	)
	assertOps(t, got, []lang.Op{
		pushInt(3),
		op(lang.OpDup),
		pushInt(0),
		op(lang.OpLe),
		lang.JumpIfTrueOp(7), // body length 1
		op(lang.OpToAux),
		pushInt(1),
		op(lang.OpFromAux),
		pushInt(1),
		op(lang.OpSub),
		lang.JumpOp(-9),
		op(lang.OpDrop),
	})
}

func TestTimesJumpOffsetsTrackBodyLength(t *testing.T) {
	for bodyLen := 0; bodyLen <= 5; bodyLen++ {
		body := make([]lang.Node, bodyLen)
		for i := range body {
			body[i] = intLit(int64(i))
		}
		got := compileMain(t, intLit(2), quot(body...), lang.Node{Kind: lang.NodeTimes})
		if len(got) != 1+10+bodyLen {
			t.Fatalf("body=%d: got %d instructions", bodyLen, len(got))
		}
		// Instruction 4 is the exit jump, targeting the final DROP.
		exit := got[4]
		if exit.Code != lang.OpJumpIfTrue || exit.Offset != int32(bodyLen)+6 {
			t.Errorf("body=%d: bad exit jump %v", bodyLen, exit)
		}
		// The backward jump targets the DUP that restarts the check.
		back := got[1+8+bodyLen]
		if back.Code != lang.OpJump || back.Offset != -(int32(bodyLen) + 8) {
			t.Errorf("body=%d: bad backward jump %v", bodyLen, back)
		}
	}
}

func TestTimesFallsBackWhenBodyIsDynamic(t *testing.T) {
	got := compileMain(t,
		intLit(3),
		lang.WordNode("make-body"),
		lang.Node{Kind: lang.NodeTimes},
	)
	if countCode(got, lang.OpTimes) != 1 {
		t.Fatalf("expected dynamic TIMES, got %v", got)
	}
	if countCode(got, lang.OpToAux) != 0 {
		t.Fatalf("unexpected loop lowering: %v", got)
	}
}

func TestSurroundingOpsPreserved(t *testing.T) {
	got := compileMain(t,
		intLit(7),
		boolLit(true),
		quot(intLit(1)),
		quot(intLit(2)),
		lang.Node{Kind: lang.NodeIf},
		lang.Node{Kind: lang.NodeAdd},
	)
	if !got[0].Equal(pushInt(7)) {
		t.Errorf("leading instruction lost: %v", got[0])
	}
	if got[len(got)-1].Code != lang.OpAdd {
		t.Errorf("trailing instruction lost: %v", got[len(got)-1])
	}
}

// ============================================================================
// Words, modules, use, import
// ============================================================================

func TestDefCompilesIntoWords(t *testing.T) {
	tree := &lang.Tree{
		Definitions: []lang.Node{
			lang.DefNode("double", intLit(2), lang.Node{Kind: lang.NodeMul}),
		},
		Main: []lang.Node{intLit(5), lang.WordNode("double")},
	}
	prog, err := New().Compile(tree)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	body, ok := prog.Words["double"]
	if !ok {
		t.Fatal("word 'double' not compiled")
	}
	assertOps(t, body, []lang.Op{pushInt(2), op(lang.OpMul)})

	main := prog.Main()
	if main[1].Code != lang.OpCallWord || main[1].Name != "double" {
		t.Errorf("expected CALL_WORD double, got %v", main[1])
	}
}

func TestRedefinitionWarns(t *testing.T) {
	rec := &recorder{}
	c := New()
	c.SetDiagnostics(rec)
	tree := &lang.Tree{
		Definitions: []lang.Node{
			lang.DefNode("f", intLit(1)),
			lang.DefNode("f", intLit(2)),
		},
	}
	if _, err := c.Compile(tree); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if len(rec.warnings) != 1 || !strings.Contains(rec.warnings[0], `"f"`) {
		t.Errorf("expected one redefinition warning, got %v", rec.warnings)
	}
}

func TestModuleRegistersQualifiedAndBareNames(t *testing.T) {
	tree := &lang.Tree{
		Definitions: []lang.Node{
			lang.ModuleNode("Math", lang.DefNode("double", intLit(2), lang.Node{Kind: lang.NodeMul})),
		},
		Main: []lang.Node{intLit(5), lang.QualifiedWordNode("Math", "double")},
	}
	prog, err := New().Compile(tree)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if _, ok := prog.Words["Math.double"]; !ok {
		t.Error("qualified name not registered")
	}
	if _, ok := prog.Words["double"]; !ok {
		t.Error("unclaimed bare name not registered")
	}
	main := prog.Main()
	if main[1].Code != lang.OpCallQualified || main[1].Module != "Math" || main[1].Name != "double" {
		t.Errorf("expected CALL_QUALIFIED Math.double, got %v", main[1])
	}
}

func TestModuleDoesNotStealClaimedBareName(t *testing.T) {
	tree := &lang.Tree{
		Definitions: []lang.Node{
			lang.DefNode("double", intLit(0)),
			lang.ModuleNode("Math", lang.DefNode("double", intLit(2), lang.Node{Kind: lang.NodeMul})),
		},
	}
	prog, err := New().Compile(tree)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	assertOps(t, prog.Words["double"], []lang.Op{pushInt(0)})
}

func TestUseSingleAliasesWord(t *testing.T) {
	tree := &lang.Tree{
		Definitions: []lang.Node{
			lang.ModuleNode("Math", lang.DefNode("square", lang.Node{Kind: lang.NodeDup}, lang.Node{Kind: lang.NodeMul})),
			lang.UseNode("Math", lang.UseItem{Name: "square"}),
		},
		Main: []lang.Node{intLit(4), lang.WordNode("square")},
	}
	prog, err := New().Compile(tree)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	main := prog.Main()
	if main[1].Code != lang.OpCallQualified || main[1].Module != "Math" || main[1].Name != "square" {
		t.Errorf("alias should lower to CALL_QUALIFIED, got %v", main[1])
	}
}

func TestUseSingleUndefined(t *testing.T) {
	tree := &lang.Tree{
		Definitions: []lang.Node{
			lang.ModuleNode("Math", lang.DefNode("square", intLit(1))),
			lang.UseNode("Math", lang.UseItem{Name: "cube"}),
		},
	}
	_, err := New().Compile(tree)
	if err == nil || !strings.Contains(err.Error(), "undefined: Math.cube") {
		t.Errorf("expected undefined error, got %v", err)
	}
}

func TestUseAll(t *testing.T) {
	tree := &lang.Tree{
		Definitions: []lang.Node{
			lang.ModuleNode("Math",
				lang.DefNode("double", intLit(2), lang.Node{Kind: lang.NodeMul}),
				lang.DefNode("triple", intLit(3), lang.Node{Kind: lang.NodeMul}),
			),
			lang.UseNode("Math", lang.UseItem{All: true}),
		},
		Main: []lang.Node{intLit(1), lang.WordNode("double"), lang.WordNode("triple")},
	}
	prog, err := New().Compile(tree)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	main := prog.Main()
	for _, i := range []int{1, 2} {
		if main[i].Code != lang.OpCallQualified {
			t.Errorf("instruction %d should be CALL_QUALIFIED, got %v", i, main[i])
		}
	}
}

func TestUseAllEmptyModule(t *testing.T) {
	tree := &lang.Tree{
		Definitions: []lang.Node{
			lang.UseNode("Ghost", lang.UseItem{All: true}),
		},
	}
	_, err := New().Compile(tree)
	if err == nil || !strings.Contains(err.Error(), `no definitions found in module "Ghost"`) {
		t.Errorf("expected empty module error, got %v", err)
	}
}

func TestDefInsideQuotationFails(t *testing.T) {
	_, err := New().Compile(&lang.Tree{
		Main: []lang.Node{quot(lang.DefNode("square", intLit(1)))},
	})
	if err == nil || !strings.Contains(err.Error(), `definition of "square" is not allowed in runtime position`) {
		t.Errorf("expected named runtime-position error, got %v", err)
	}
}

func TestDefinitionFormsInRuntimePosition(t *testing.T) {
	tests := []struct {
		name string
		node lang.Node
		want string
	}{
		{"def", lang.DefNode("square", intLit(1)), `definition of "square" is not allowed in runtime position`},
		{"module", lang.ModuleNode("Math", lang.DefNode("double", intLit(2))), `module "Math" is not allowed in runtime position`},
		{"use", lang.UseNode("Math", lang.UseItem{Name: "double"}), "use of Math.double is not allowed in runtime position"},
		{"use all", lang.UseNode("Math", lang.UseItem{All: true}), "use of Math.* is not allowed in runtime position"},
		{"import", lang.ImportNode("lib/math.em"), `import of "lib/math.em" is not allowed in runtime position`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Compile(&lang.Tree{Main: []lang.Node{tt.node}})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

// ============================================================================
// Imports
// ============================================================================

// mapLoader serves trees from memory and records load requests.
type mapLoader struct {
	trees map[string]*lang.Tree
	loads []string
}

func (l *mapLoader) Load(path string) (*lang.Tree, error) {
	l.loads = append(l.loads, path)
	tree, ok := l.trees[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return tree, nil
}

func TestImportRegistersDefinitions(t *testing.T) {
	loader := &mapLoader{trees: map[string]*lang.Tree{
		"/src/util.em": {
			Definitions: []lang.Node{lang.DefNode("helper", intLit(42))},
		},
	}}
	c := New()
	c.SetLoader(loader)
	c.SetDir("/src")

	prog, err := c.Compile(&lang.Tree{
		Definitions: []lang.Node{lang.ImportNode("util")},
		Main:        []lang.Node{lang.WordNode("helper")},
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if _, ok := prog.Words["helper"]; !ok {
		t.Error("imported word not registered")
	}
	if len(loader.loads) != 1 || loader.loads[0] != "/src/util.em" {
		t.Errorf("unexpected loads: %v", loader.loads)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	loader := &mapLoader{trees: map[string]*lang.Tree{
		"/src/util.em": {Definitions: []lang.Node{lang.DefNode("helper", intLit(1))}},
	}}
	c := New()
	c.SetLoader(loader)
	c.SetDir("/src")

	rec := &recorder{}
	c.SetDiagnostics(rec)
	_, err := c.Compile(&lang.Tree{
		Definitions: []lang.Node{
			lang.ImportNode("util"),
			lang.ImportNode("util.em"),
		},
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if len(loader.loads) != 1 {
		t.Errorf("expected a single load, got %v", loader.loads)
	}
	if len(rec.warnings) != 0 {
		t.Errorf("repeat import should not warn, got %v", rec.warnings)
	}
}

func TestImportCycleTerminates(t *testing.T) {
	loader := &mapLoader{trees: map[string]*lang.Tree{
		"/src/a.em": {Definitions: []lang.Node{
			lang.ImportNode("b"),
			lang.DefNode("from-a", intLit(1)),
		}},
		"/src/b.em": {Definitions: []lang.Node{
			lang.ImportNode("a"),
			lang.DefNode("from-b", intLit(2)),
		}},
	}}
	c := New()
	c.SetLoader(loader)
	c.SetDir("/src")

	prog, err := c.Compile(&lang.Tree{
		Definitions: []lang.Node{lang.ImportNode("a")},
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if _, ok := prog.Words["from-a"]; !ok {
		t.Error("word from a.em missing")
	}
	if _, ok := prog.Words["from-b"]; !ok {
		t.Error("word from b.em missing")
	}
}

func TestImportNestedResolvesAgainstImportingFile(t *testing.T) {
	loader := &mapLoader{trees: map[string]*lang.Tree{
		"/src/lib/outer.em": {Definitions: []lang.Node{
			lang.ImportNode("inner"),
		}},
		"/src/lib/inner.em": {Definitions: []lang.Node{
			lang.DefNode("deep", intLit(3)),
		}},
	}}
	c := New()
	c.SetLoader(loader)
	c.SetDir("/src")

	prog, err := c.Compile(&lang.Tree{
		Definitions: []lang.Node{lang.ImportNode("lib/outer")},
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if _, ok := prog.Words["deep"]; !ok {
		t.Error("nested import did not resolve against the importing file's directory")
	}
}

func TestImportRejectsOtherExtensions(t *testing.T) {
	c := New()
	c.SetLoader(&mapLoader{})
	_, err := c.Compile(&lang.Tree{
		Definitions: []lang.Node{lang.ImportNode("data.json")},
	})
	if err == nil || !strings.Contains(err.Error(), "expected a .em file") {
		t.Errorf("expected extension error, got %v", err)
	}
}

func TestImportWithoutLoaderFails(t *testing.T) {
	_, err := New().Compile(&lang.Tree{
		Definitions: []lang.Node{lang.ImportNode("util")},
	})
	if err == nil || !strings.Contains(err.Error(), "no loader configured") {
		t.Errorf("expected loader error, got %v", err)
	}
}
