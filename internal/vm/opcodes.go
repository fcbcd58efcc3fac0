package vm

// Opcode is a single dispatch byte identifying one VM instruction.
type Opcode byte

const (
	OpGet                    Opcode = 0
	OpInit                   Opcode = 1
	OpInitInPlace            Opcode = 2
	OpMalloc                 Opcode = 3
	OpAlloca                 Opcode = 4
	OpProjection             Opcode = 5
	OpProjectionInPlace      Opcode = 6
	OpCall                   Opcode = 7
	OpPrintString            Opcode = 8
	OpLiteral                Opcode = 9
	OpGlobalFunction         Opcode = 10
	OpHalt                   Opcode = 11
	OpNewRegion              Opcode = 12
	OpFreeRegion             Opcode = 13
	OpDereference            Opcode = 14
	OpNewArray               Opcode = 15
	OpMutateArray            Opcode = 16
	OpProjectFromArray       Opcode = 17
	OpI32Add                 Opcode = 18
	OpI32Mul                 Opcode = 19
	OpI32Div                 Opcode = 20
	OpCallIfNotZero          Opcode = 21
	OpLoadFromDataSection    Opcode = 22
	OpProjectFromDataArray   Opcode = 23
	OpCopyN                  Opcode = 24
	OpU8Literal              Opcode = 25
	OpU8Add                  Opcode = 26
	OpU8Mul                  Opcode = 27
	OpU8Div                  Opcode = 28
	OpU8WidenToI32           Opcode = 29
	OpI32Mod                 Opcode = 30
	OpU8Mod                  Opcode = 31
	OpI32NarrowToU8          Opcode = 32
	OpRead                   Opcode = 33
	OpWrite                  Opcode = 34
)

// Mnemonic returns the opcode's human-readable name.
func (op Opcode) Mnemonic() string {
	switch op {
	case OpGet:
		return "get"
	case OpInit:
		return "init"
	case OpInitInPlace:
		return "init-in-place"
	case OpMalloc:
		return "malloc"
	case OpAlloca:
		return "alloca"
	case OpProjection:
		return "projection"
	case OpProjectionInPlace:
		return "projection-in-place"
	case OpCall:
		return "call"
	case OpPrintString:
		return "print-string"
	case OpLiteral:
		return "literal"
	case OpGlobalFunction:
		return "global-function"
	case OpHalt:
		return "halt"
	case OpNewRegion:
		return "new-region"
	case OpFreeRegion:
		return "free-region"
	case OpDereference:
		return "dereference"
	case OpNewArray:
		return "new-array"
	case OpMutateArray:
		return "mutate-array"
	case OpProjectFromArray:
		return "project-array"
	case OpI32Add:
		return "i32.add"
	case OpI32Mul:
		return "i32.mul"
	case OpI32Div:
		return "i32.div"
	case OpCallIfNotZero:
		return "call-if-not-zero"
	case OpLoadFromDataSection:
		return "load-data"
	case OpProjectFromDataArray:
		return "project-data-array"
	case OpCopyN:
		return "copy-n"
	case OpU8Literal:
		return "u8.literal"
	case OpU8Add:
		return "u8.add"
	case OpU8Mul:
		return "u8.mul"
	case OpU8Div:
		return "u8.div"
	case OpU8WidenToI32:
		return "u8->i32"
	case OpI32Mod:
		return "i32.mod"
	case OpU8Mod:
		return "u8.mod"
	case OpI32NarrowToU8:
		return "i32->u8"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}
