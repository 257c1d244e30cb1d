// Package lang defines the shared data model of the Ember language core:
// runtime values, syntax-tree nodes produced by the parser, bytecode
// instructions, and the compiled program container.
//
// The three central types are mutually recursive. A Value may hold a
// quotation (a sequence of Nodes) or a compiled quotation (a sequence of
// Ops); an Op may carry a Value payload; a Node may carry a literal Value.
// Keeping them in one package keeps the model closed.
package lang
