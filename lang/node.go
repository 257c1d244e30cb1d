package lang

// NodeKind discriminates syntax-tree node types. The set mirrors the surface
// vocabulary of the language: one kind per primitive word, plus literals,
// word references, and the four definition-time forms.
type NodeKind uint8

const (
	NodeInvalid NodeKind = iota

	// NodeLiteral pushes a literal value: `( -- x )`.
	NodeLiteral

	// Stack operations.
	NodeDup  // ( x -- x x )
	NodeDrop // ( x -- )
	NodeSwap // ( a b -- b a )
	NodeOver // ( a b -- a b a )
	NodeRot  // ( a b c -- b c a )

	// Arithmetic.
	NodeAdd // ( a b -- a+b )
	NodeSub // ( a b -- a-b )
	NodeMul // ( a b -- a*b )
	NodeDiv // ( a b -- a/b )
	NodeMod // ( a b -- a%b )
	NodeNeg // ( x -- -x )
	NodeAbs // ( x -- |x| )

	// Comparison.
	NodeEq    // ( a b -- bool )
	NodeNotEq // ( a b -- bool )
	NodeLt    // ( a b -- bool )
	NodeGt    // ( a b -- bool )
	NodeLtEq  // ( a b -- bool )
	NodeGtEq  // ( a b -- bool )

	// Logic.
	NodeAnd // ( a b -- bool )
	NodeOr  // ( a b -- bool )
	NodeNot // ( a -- bool )

	// Control flow.
	NodeIf   // ( cond [then] [else] -- ... )
	NodeWhen // ( cond [body] -- ... )
	NodeCall // ( [q] -- ... )

	// Loops and higher-order combinators.
	NodeTimes  // ( n [body] -- ... )
	NodeEach   // ( {xs} [f] -- )
	NodeMap    // ( {xs} [f] -- {ys} )
	NodeFilter // ( {xs} [pred] -- {ys} )
	NodeFold   // ( {xs} acc [f] -- result )
	NodeRange  // ( start end -- {start..end-1} )

	// List operations.
	NodeLen          // ( {xs} -- n )
	NodeHead         // ( {xs} -- x )
	NodeTail         // ( {xs} -- {rest} )
	NodeCons         // ( x {xs} -- {x xs...} )
	NodeConcat       // ( {xs} {ys} -- {xs ys} )
	NodeStringConcat // ( a b -- "ab" )

	// I/O.
	NodePrint // ( x -- )
	NodeEmit  // ( code -- )
	NodeRead  // ( -- line )
	NodeDebug // ( x -- x )

	// Library operations.
	NodeMin      // ( a b -- min )
	NodeMax      // ( a b -- max )
	NodePow      // ( base exp -- base^exp )
	NodeSqrt     // ( x -- sqrt )
	NodeNth      // ( {xs} i -- x )
	NodeAppend   // ( {xs} x -- {xs x} )
	NodeSort     // ( {xs} -- {sorted} )
	NodeReverse  // ( {xs} -- {reversed} )
	NodeChars    // ( s -- {chars} )
	NodeJoin     // ( {xs} sep -- s )
	NodeSplit    // ( s sep -- {parts} )
	NodeUpper    // ( s -- S )
	NodeLower    // ( S -- s )
	NodeTrim     // ( s -- s' )
	NodeClear    // ( ... -- )
	NodeDepth    // ( -- n )
	NodeType     // ( x -- x name )
	NodeToString // ( x -- s )
	NodeToInt    // ( x -- n )

	// Combinators.
	NodeDip     // ( a [q] -- ... a )
	NodeKeep    // ( a [q] -- ... a )
	NodeBi      // ( a [p] [q] -- ... )
	NodeBi2     // ( a b [p] [q] -- ... )
	NodeTri     // ( a [p] [q] [r] -- ... )
	NodeBoth    // ( a b [q] -- ... )
	NodeCompose // ( [p] [q] -- [pq] )
	NodeCurry   // ( x [q] -- [x q] )
	NodeApply   // ( {args} [q] -- ... )

	// Word references.
	NodeWord          // plain name, resolved at call time
	NodeQualifiedWord // Module.word

	// Definition-time forms. These are structural: they declare words,
	// modules, aliases, and imports, and are illegal in runtime position.
	NodeDef
	NodeModule
	NodeUse
	NodeImport
)

// UseItem names what a `use` declaration brings into scope: a single word
// or every word of the module (All).
type UseItem struct {
	Name string `cbor:"1,keyasint,omitempty"`
	All  bool   `cbor:"2,keyasint,omitempty"`
}

// Node is one syntax-tree node. Most kinds carry no payload; the payload
// fields below are meaningful only for the kinds noted.
type Node struct {
	Kind NodeKind `cbor:"1,keyasint"`

	// Val holds the literal for NodeLiteral.
	Val *Value `cbor:"2,keyasint,omitempty"`

	// Name holds the word name for NodeWord and NodeQualifiedWord, the
	// definition name for NodeDef, and the module name for NodeModule
	// and NodeUse.
	Name string `cbor:"3,keyasint,omitempty"`

	// Module holds the module qualifier for NodeQualifiedWord.
	Module string `cbor:"4,keyasint,omitempty"`

	// Body holds the definition body for NodeDef and the contained
	// definitions for NodeModule.
	Body []Node `cbor:"5,keyasint,omitempty"`

	// Item holds the imported item for NodeUse.
	Item UseItem `cbor:"6,keyasint,omitempty"`

	// Path holds the file path for NodeImport.
	Path string `cbor:"7,keyasint,omitempty"`
}

// LiteralNode returns a literal node for the given value.
func LiteralNode(v Value) Node {
	return Node{Kind: NodeLiteral, Val: &v}
}

// WordNode returns a plain word reference.
func WordNode(name string) Node {
	return Node{Kind: NodeWord, Name: name}
}

// QualifiedWordNode returns a module-qualified word reference.
func QualifiedWordNode(module, word string) Node {
	return Node{Kind: NodeQualifiedWord, Module: module, Name: word}
}

// DefNode returns a word definition.
func DefNode(name string, body ...Node) Node {
	return Node{Kind: NodeDef, Name: name, Body: body}
}

// ModuleNode returns a module declaration containing definitions.
func ModuleNode(name string, definitions ...Node) Node {
	return Node{Kind: NodeModule, Name: name, Body: definitions}
}

// UseNode returns a `use Module.word` (or `use Module.*`) declaration.
func UseNode(module string, item UseItem) Node {
	return Node{Kind: NodeUse, Name: module, Item: item}
}

// ImportNode returns a file import declaration.
func ImportNode(path string) Node {
	return Node{Kind: NodeImport, Path: path}
}

// Tree is a parsed program as handed over by the parser: top-level
// definitions (word/module/use/import declarations) pre-separated from the
// main executable node sequence.
type Tree struct {
	Definitions []Node
	Main        []Node
}
