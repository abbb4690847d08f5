package seccomp

import (
	"fmt"
	"math"
)

// MaxArgs 是 seccomp_data 中系统调用参数的个数
const MaxArgs = 6

// CmpOp 定义了参数与常量之间的比较方式
type CmpOp uint8

// 比较操作符
const (
	CmpEq       CmpOp = iota + 1 // arg == value
	CmpNe                        // arg != value
	CmpLt                        // arg < value（无符号）
	CmpLe                        // arg <= value
	CmpGt                        // arg > value
	CmpGe                        // arg >= value
	CmpMaskedEq                  // arg & mask == value
)

var cmpOpNames = []string{"", "eq", "ne", "lt", "le", "gt", "ge", "masked_eq"}

func (o CmpOp) String() string {
	if int(o) < len(cmpOpNames) && o != 0 {
		return cmpOpNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseCmpOp 解析比较操作符的名称，同时接受 ==、!= 这样的符号形式
func ParseCmpOp(s string) (CmpOp, error) {
	switch s {
	case "eq", "==":
		return CmpEq, nil
	case "ne", "!=":
		return CmpNe, nil
	case "lt", "<":
		return CmpLt, nil
	case "le", "<=":
		return CmpLe, nil
	case "gt", ">":
		return CmpGt, nil
	case "ge", ">=":
		return CmpGe, nil
	case "masked_eq", "&":
		return CmpMaskedEq, nil
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// ArgWidth 定义了参数比较使用的宽度
type ArgWidth uint8

const (
	// Qword 比较完整的 64 位参数（拆成高低两个 32 位字）
	Qword ArgWidth = iota
	// Dword 只比较参数的低 32 位
	Dword
)

func (w ArgWidth) String() string {
	if w == Dword {
		return "dword"
	}
	return "qword"
}

// Condition 是对一个系统调用参数的比较
// 构造后不可修改
type Condition struct {
	arg   uint8
	width ArgWidth
	op    CmpOp
	value uint64
	mask  uint64
}

// NewCondition 创建一个比较第 arg 个参数的条件
// 掩码比较请使用 NewMaskedCondition
func NewCondition(arg uint, op CmpOp, value uint64) (Condition, error) {
	if op == CmpMaskedEq {
		return Condition{}, ErrInvalidOperator
	}
	return newCondition(arg, Qword, op, value, 0)
}

// NewMaskedCondition 创建条件 arg & mask == value
func NewMaskedCondition(arg uint, mask, value uint64) (Condition, error) {
	return newCondition(arg, Qword, CmpMaskedEq, value, mask)
}

// Must 在 err 不为 nil 时 panic，用于静态声明的策略表
func Must(c Condition, err error) Condition {
	if err != nil {
		panic(err)
	}
	return c
}

// WithWidth 返回使用指定比较宽度的新条件
func (c Condition) WithWidth(w ArgWidth) (Condition, error) {
	return newCondition(uint(c.arg), w, c.op, c.value, c.mask)
}

func newCondition(arg uint, width ArgWidth, op CmpOp, value, mask uint64) (Condition, error) {
	c := Condition{
		width: width,
		op:    op,
		value: value,
		mask:  mask,
	}
	if arg >= MaxArgs {
		return Condition{}, ErrInvalidArgument
	}
	c.arg = uint8(arg)
	if err := c.validate(); err != nil {
		return Condition{}, err
	}
	return c, nil
}

// validate 检查操作符、宽度和取值是否相容
func (c Condition) validate() error {
	if c.arg >= MaxArgs {
		return ErrInvalidArgument
	}
	if c.width != Qword && c.width != Dword {
		return ErrInvalidOperator
	}
	switch c.op {
	case CmpEq, CmpNe, CmpLt, CmpLe, CmpGt, CmpGe:
		if c.mask != 0 {
			return ErrInvalidOperator
		}
	case CmpMaskedEq:
		// 值中有掩码之外的位时条件永远不成立
		if c.mask == 0 || c.value&^c.mask != 0 {
			return ErrInvalidOperator
		}
	default:
		return ErrInvalidOperator
	}
	if c.width == Dword && (c.value > math.MaxUint32 || c.mask > math.MaxUint32) {
		return ErrInvalidOperator
	}
	return nil
}

// Arg 返回参数序号
func (c Condition) Arg() uint { return uint(c.arg) }

// Op 返回比较操作符
func (c Condition) Op() CmpOp { return c.op }

// Value 返回比较的常量
func (c Condition) Value() uint64 { return c.value }

// Mask 返回掩码，只对 CmpMaskedEq 有意义
func (c Condition) Mask() uint64 { return c.mask }

// Width 返回比较宽度
func (c Condition) Width() ArgWidth { return c.width }

// Evaluate 按条件的语义计算 args 是否满足条件
// 与编译出的 BPF 程序语义一致，没有副作用
func (c Condition) Evaluate(args [MaxArgs]uint64) bool {
	v := args[c.arg]
	if c.width == Dword {
		v = uint64(uint32(v))
	}
	switch c.op {
	case CmpEq:
		return v == c.value
	case CmpNe:
		return v != c.value
	case CmpLt:
		return v < c.value
	case CmpLe:
		return v <= c.value
	case CmpGt:
		return v > c.value
	case CmpGe:
		return v >= c.value
	case CmpMaskedEq:
		return v&c.mask == c.value
	}
	return false
}

func (c Condition) String() string {
	arg := fmt.Sprintf("arg%d", c.arg)
	if c.width == Dword {
		arg = fmt.Sprintf("(u32)arg%d", c.arg)
	}
	if c.op == CmpMaskedEq {
		return fmt.Sprintf("%s & %#x == %#x", arg, c.mask, c.value)
	}
	return fmt.Sprintf("%s %s %#x", arg, c.op, c.value)
}
