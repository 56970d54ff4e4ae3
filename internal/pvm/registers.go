package pvm

type Registers [13]uint64

// Gas the set of signed gas values ZG ≡ Z_−2^63...2^63 (eq. 4.23 v0.7.2)
type Gas int64

// UGas the set of unsigned gas values NG ≡ N_2^64 (eq. 4.23 v0.7.2)
type UGas uint64

type Reg byte

func (r Reg) String() string {
	switch r {
	case R0:
		return "ra"
	case R1:
		return "sp"
	case R2:
		return "t0"
	case R3:
		return "t1"
	case R4:
		return "t2"
	case R5:
		return "s0"
	case R6:
		return "s1"
	case R7:
		return "a0"
	case R8:
		return "a1"
	case R9:
		return "a2"
	case R10:
		return "a3"
	case R11:
		return "a4"
	case R12:
		return "a5"
	default:
		return "UNKNOWN"
	}
}

const (
	R0  Reg = 0
	R1  Reg = 1
	R2  Reg = 2
	R3  Reg = 3
	R4  Reg = 4
	R5  Reg = 5
	R6  Reg = 6
	R7  Reg = 7
	R8  Reg = 8
	R9  Reg = 9
	R10 Reg = 10
	R11 Reg = 11
	R12 Reg = 12
)

// argument registers, host calls read their arguments from φ7 upwards and answer in φ7 (and φ8)
const (
	A0 = R7
	A1 = R8
	A2 = R9
	A3 = R10
	A4 = R11
	A5 = R12
)
