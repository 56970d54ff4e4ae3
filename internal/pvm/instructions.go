package pvm

type Opcode byte

// InstructionCost the flat gas charge ϱ∆ of every instruction of the reference interpreter
const InstructionCost Gas = 1

// A.5.1. Instructions without Arguments
const (
	Trap        Opcode = 0 // trap
	Fallthrough Opcode = 1 // fallthrough
)

// A.5.2. Instructions with Arguments of One Immediate.
const (
	Ecalli Opcode = 10 // ecalli
)

// A.5.3. Instructions with Arguments of One Register and One Extended Width Immediate.
const (
	LoadImm64 Opcode = 20 // load_imm_64
)

// A.5.4. Instructions with Arguments of Two Immediates.
const (
	StoreImmU8  Opcode = 30 // store_imm_u8
	StoreImmU16 Opcode = 31 // store_imm_u16
	StoreImmU32 Opcode = 32 // store_imm_u32
	StoreImmU64 Opcode = 33 // store_imm_u64
)

// A.5.5. Instructions with Arguments of One Offset.
const (
	Jump Opcode = 40 // jump
)

// A.5.6. Instructions with Arguments of One Register & One Immediate.
const (
	JumpInd  Opcode = 50 // jump_ind
	LoadImm  Opcode = 51 // load_imm
	LoadU8   Opcode = 52 // load_u8
	LoadI8   Opcode = 53 // load_i8
	LoadU16  Opcode = 54 // load_u16
	LoadI16  Opcode = 55 // load_i16
	LoadU32  Opcode = 56 // load_u32
	LoadI32  Opcode = 57 // load_i32
	LoadU64  Opcode = 58 // load_u64
	StoreU8  Opcode = 59 // store_u8
	StoreU16 Opcode = 60 // store_u16
	StoreU32 Opcode = 61 // store_u32
	StoreU64 Opcode = 62 // store_u64
)

// A.5.7. Instructions with Arguments of One Register & Two Immediates.
const (
	StoreImmIndU8  Opcode = 70 // store_imm_ind_u8
	StoreImmIndU16 Opcode = 71 // store_imm_ind_u16
	StoreImmIndU32 Opcode = 72 // store_imm_ind_u32
	StoreImmIndU64 Opcode = 73 // store_imm_ind_u64
)

// A.5.8. Instructions with Arguments of One Register, One Immediate and One Offset.
const (
	LoadImmJump  Opcode = 80 // load_imm_jump
	BranchEqImm  Opcode = 81 // branch_eq_imm
	BranchNeImm  Opcode = 82 // branch_ne_imm
	BranchLtUImm Opcode = 83 // branch_lt_u_imm
	BranchLeUImm Opcode = 84 // branch_le_u_imm
	BranchGeUImm Opcode = 85 // branch_ge_u_imm
	BranchGtUImm Opcode = 86 // branch_gt_u_imm
	BranchLtSImm Opcode = 87 // branch_lt_s_imm
	BranchLeSImm Opcode = 88 // branch_le_s_imm
	BranchGeSImm Opcode = 89 // branch_ge_s_imm
	BranchGtSImm Opcode = 90 // branch_gt_s_imm
)

// A.5.9. Instructions with Arguments of Two Registers.
const (
	MoveReg Opcode = 100 // move_reg
)

// A.5.10. Instructions with Arguments of Two Registers & One Immediate.
const (
	StoreIndU8  Opcode = 120 // store_ind_u8
	StoreIndU16 Opcode = 121 // store_ind_u16
	StoreIndU32 Opcode = 122 // store_ind_u32
	StoreIndU64 Opcode = 123 // store_ind_u64
	LoadIndU8   Opcode = 124 // load_ind_u8
	LoadIndI8   Opcode = 125 // load_ind_i8
	LoadIndU16  Opcode = 126 // load_ind_u16
	LoadIndI16  Opcode = 127 // load_ind_i16
	LoadIndU32  Opcode = 128 // load_ind_u32
	LoadIndI32  Opcode = 129 // load_ind_i32
	LoadIndU64  Opcode = 130 // load_ind_u64
	AddImm32    Opcode = 131 // add_imm_32
	AndImm      Opcode = 132 // and_imm
	XorImm      Opcode = 133 // xor_imm
	OrImm       Opcode = 134 // or_imm
	SetLtUImm   Opcode = 136 // set_lt_u_imm
	SetLtSImm   Opcode = 137 // set_lt_s_imm
	AddImm64    Opcode = 149 // add_imm_64
	MulImm64    Opcode = 150 // mul_imm_64
)

// A.5.11. Instructions with Arguments of Two Registers & One Offset.
const (
	BranchEq  Opcode = 170 // branch_eq
	BranchNe  Opcode = 171 // branch_ne
	BranchLtU Opcode = 172 // branch_lt_u
	BranchLtS Opcode = 173 // branch_lt_s
	BranchGeU Opcode = 174 // branch_ge_u
	BranchGeS Opcode = 175 // branch_ge_s
)

// A.5.13. Instructions with Arguments of Three Registers.
const (
	Add32   Opcode = 190 // add_32
	Sub32   Opcode = 191 // sub_32
	Add64   Opcode = 200 // add_64
	Sub64   Opcode = 201 // sub_64
	Mul64   Opcode = 202 // mul_64
	ShloL64 Opcode = 207 // shlo_l_64
	ShloR64 Opcode = 208 // shlo_r_64
	And     Opcode = 210 // and
	Xor     Opcode = 211 // xor
	Or      Opcode = 212 // or
	SetLtU  Opcode = 216 // set_lt_u
	SetLtS  Opcode = 217 // set_lt_s
)

// IsBasicBlockTermination (eq A.3)
func (o Opcode) IsBasicBlockTermination() bool {
	switch o {
	case
		// Trap and fallthrough: trap, fallthrough
		Trap, Fallthrough,

		// Jumps: jump, jump_ind
		Jump, JumpInd,

		// Load-and-Jumps: load_imm_jump
		LoadImmJump,

		// Branches: branch_eq, branch_ne, branch_ge_u, branch_ge_s, branch_lt_u, branch_lt_s, branch_eq_imm, branch_ne_imm
		BranchEq, BranchNe, BranchGeU, BranchGeS,
		BranchLtU, BranchLtS, BranchEqImm, BranchNeImm,

		// Immediate branches: branch_lt_u_imm, branch_lt_s_imm, branch_le_u_imm, branch_le_s_imm, branch_ge_u_imm, branch_ge_s_imm, branch_gt_u_imm, branch_gt_s_imm
		BranchLtUImm, BranchLtSImm, BranchLeUImm, BranchLeSImm,
		BranchGeUImm, BranchGeSImm, BranchGtUImm, BranchGtSImm:
		return true
	}
	return false
}
