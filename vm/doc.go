// Package vm implements the nother execution core.
//
// This package contains:
//   - the tagged runtime value model (Number, Text, named and absolute references)
//   - the instruction model and the mutable program tape
//   - the label table and the two-pass scope resolver
//   - the execution engine and the caller-owned State that persists between calls
//   - image snapshots of a State
//
// The program tape is both code and memory. Lexing appends to it, the resolver
// rewrites it in place, include splices into it, and running code may overwrite
// the cell that follows any labelled marker. There is no separate compiled form.
//
// Lexing lives in package compiler; a State is wired to it the same way the
// CLI wires any other front end:
//
//	st := vm.NewState()
//	st.UseLexer(compiler.Lex)
//	err := st.Execute(`3 4 + print`)
package vm
