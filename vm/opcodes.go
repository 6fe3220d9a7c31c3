package vm

import "fmt"

// Opcode identifies an instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation (never emitted by the lexer)
	OpDup  Opcode = 0x01 // Duplicate top of stack
	OpSwap Opcode = 0x02 // Swap top two stack elements
	OpDrop Opcode = 0x03 // Pop top of stack
	OpPull Opcode = 0x04 // Pick: pop index, push copy of that stack slot

	// ========================================================================
	// Literals (0x10-0x1F)
	// ========================================================================

	OpPushNum  Opcode = 0x10 // Push number operand
	OpPushText Opcode = 0x11 // Push text operand

	// ========================================================================
	// References (0x20-0x2F)
	// ========================================================================

	OpRefNamed  Opcode = 0x20 // Push named reference: Name, Offset
	OpRefAbs    Opcode = 0x21 // Push absolute reference: Index
	OpAddressOf Opcode = 0x22 // Pop text label, push reference to it

	// ========================================================================
	// Self-modification (0x30-0x3F)
	// ========================================================================

	OpPut      Opcode = 0x30 // Pop reference and value, write value into the cell
	OpGet      Opcode = 0x31 // Pop reference, push the value held by the cell
	OpArrowPut Opcode = 0x32 // Pop value, write it into the cell named by the next instruction

	// ========================================================================
	// Arithmetic (0x50-0x5F)
	// ========================================================================

	OpAdd Opcode = 0x50 // Pop two, push sum / concatenation / offset reference
	OpSub Opcode = 0x51 // Pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x52 // Pop two, push product
	OpDiv Opcode = 0x53 // Pop two, push quotient
	OpMod Opcode = 0x54 // Pop two, push remainder

	// ========================================================================
	// Comparison (0x60-0x67)
	// ========================================================================

	OpEq Opcode = 0x60 // Pop two, push 1 if equal, 0 otherwise
	OpNe Opcode = 0x61 // Pop two, push 1 if not equal
	OpLt Opcode = 0x62 // Pop two, push 1 if a < b
	OpLe Opcode = 0x63 // Pop two, push 1 if a <= b
	OpGt Opcode = 0x64 // Pop two, push 1 if a > b
	OpGe Opcode = 0x65 // Pop two, push 1 if a >= b

	// ========================================================================
	// Logical operations (0x68-0x6F)
	// ========================================================================

	OpNot Opcode = 0x68 // Push 1 if TOS is 0, else 0
	OpAnd Opcode = 0x69 // Push 1 if both are non-zero
	OpOr  Opcode = 0x6A // Push 1 if either is non-zero

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJmp    Opcode = 0x80 // Pop reference, call it
	OpJmpIf  Opcode = 0x81 // Pop reference and condition, call if condition != 0
	OpLoopIf Opcode = 0x82 // Pop condition, restart the current call if != 0
	OpReturn Opcode = 0x83 // Pop call stack
	OpStop   Opcode = 0x84 // Halt the current engine invocation

	// ========================================================================
	// Blocks (0xA0-0xAF)
	// ========================================================================

	OpBeginDefine Opcode = 0xA0 // Open a labelled block: Vis, Skip
	OpEndDefine   Opcode = 0xA1 // Close a block; returns when reached by a call
	OpLambda      Opcode = 0xA2 // Push reference to self, skip body: Skip

	// ========================================================================
	// Host interaction and diagnostics (0xE0-0xEF)
	// ========================================================================

	OpPrint       Opcode = 0xE0 // Pop value, write it as a line
	OpInclude     Opcode = 0xE1 // Pop file name, splice its code after this instruction
	OpStackDump   Opcode = 0xE2 // Write the whole stack as a line
	OpPlaceholder Opcode = 0xE3 // Fail with the current call trace
	OpSubProg     Opcode = 0xE4 // Run the following code in an isolated child engine
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string // Human-readable name
	StackPop  int    // How many values popped from stack (-1 = variable)
	StackPush int    // How many values pushed to stack (-1 = variable)
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:  {"NOP", 0, 0},
	OpDup:  {"DUP", 1, 2},
	OpSwap: {"SWAP", 2, 2},
	OpDrop: {"DROP", 1, 0},
	OpPull: {"PULL", 1, 1},

	// Literals
	OpPushNum:  {"PUSH_NUM", 0, 1},
	OpPushText: {"PUSH_TEXT", 0, 1},

	// References
	OpRefNamed:  {"REF", 0, 1},
	OpRefAbs:    {"REF_ABS", 0, 1},
	OpAddressOf: {"ADDR", 1, 1},

	// Self-modification
	OpPut:      {"PUT", 2, 0},
	OpGet:      {"GET", 1, 1},
	OpArrowPut: {"ARROW_PUT", 1, 0},

	// Arithmetic
	OpAdd: {"ADD", 2, 1},
	OpSub: {"SUB", 2, 1},
	OpMul: {"MUL", 2, 1},
	OpDiv: {"DIV", 2, 1},
	OpMod: {"MOD", 2, 1},

	// Comparison
	OpEq: {"EQ", 2, 1},
	OpNe: {"NE", 2, 1},
	OpLt: {"LT", 2, 1},
	OpLe: {"LE", 2, 1},
	OpGt: {"GT", 2, 1},
	OpGe: {"GE", 2, 1},

	// Logical
	OpNot: {"NOT", 1, 1},
	OpAnd: {"AND", 2, 1},
	OpOr:  {"OR", 2, 1},

	// Control flow
	OpJmp:    {"JMP", 1, 0},
	OpJmpIf:  {"JMP_IF", 2, 0},
	OpLoopIf: {"LOOP_IF", 1, 0},
	OpReturn: {"RETURN", 0, 0},
	OpStop:   {"STOP", 0, 0},

	// Blocks
	OpBeginDefine: {"DEFINE", -1, 0}, // private defines pop their label
	OpEndDefine:   {"END_DEFINE", 0, 0},
	OpLambda:      {"LAMBDA", 0, 1},

	// Host
	OpPrint:       {"PRINT", 1, 0},
	OpInclude:     {"INCLUDE", 1, 0},
	OpStackDump:   {"STACK", 0, 0},
	OpPlaceholder: {"PLACEHOLDER", 0, 0},
	OpSubProg:     {"SUB", 0, -1},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsJump returns true if this opcode transfers control through the call stack.
func (op Opcode) IsJump() bool {
	return op >= OpJmp && op <= OpLoopIf
}

// IsBlockStart returns true for the markers that open a block.
func (op Opcode) IsBlockStart() bool {
	return op == OpBeginDefine || op == OpLambda
}

// IsMarker returns true for instructions that carry block structure.
// Markers are never writable cells.
func (op Opcode) IsMarker() bool {
	return op >= OpBeginDefine && op <= OpLambda
}

// IsRef returns true for reference pushes in either resolution state.
func (op Opcode) IsRef() bool {
	return op == OpRefNamed || op == OpRefAbs
}

// IsBinary returns true for two-operand arithmetic, comparison and logic.
func (op Opcode) IsBinary() bool {
	return (op >= OpAdd && op <= OpMod) || (op >= OpEq && op <= OpGe) || op == OpAnd || op == OpOr
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}
