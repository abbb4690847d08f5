package seccomp

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// MaxInstructions 是内核允许的 BPF 程序最大长度（BPF_MAXINSNS）
const MaxInstructions = 4096

const (
	labelArchOK  = "arch_ok"
	labelNrOK    = "nr_ok"
	labelDefault = "default"
)

// compiler 把冻结的 Context 编译成 BPF 程序
//
// 生成的程序结构：
//
//	ld  [arch]
//	jeq AUDIT_ARCH ? arch_ok : 继续
//	ret KILL_PROCESS
//	arch_ok:
//	ld  [nr]
//	（仅 x86_64）jge X32_SYSCALL_BIT ? 继续 : nr_ok ; ret KILL_PROCESS
//	nr_ok:
//	按系统调用号二分查找，命中后 ja nr_<n>
//	default:
//	ret 默认动作
//	nr_<n>:
//	依次检查每条规则，命中返回规则动作，全部未命中返回默认动作
type compiler struct {
	ctx    *Context
	target Target
	b      *programBuilder
}

func compile(ctx *Context, t Target) (*Program, error) {
	c := &compiler{
		ctx:    ctx,
		target: t,
		b:      newProgramBuilder(),
	}
	nrs := ctx.Syscalls()
	if err := c.prologue(); err != nil {
		return nil, err
	}
	if len(nrs) == 0 {
		// 没有任何规则时不需要查找
		c.b.ret(ctx.defaultAction)
	} else {
		if err := c.dispatch(nrs); err != nil {
			return nil, err
		}
		if err := c.b.mark(labelDefault); err != nil {
			return nil, err
		}
		c.b.ret(ctx.defaultAction)
		for _, nr := range nrs {
			if err := c.syscall(ctx.policies[nr]); err != nil {
				return nil, err
			}
		}
	}

	if n := len(c.b.instructions); n > MaxInstructions {
		return nil, &CompileError{
			Err:    ErrProgramTooLarge,
			Detail: fmt.Sprintf("%d instructions, limit %d", n, MaxInstructions),
		}
	}
	instructions, err := c.b.program()
	if err != nil {
		return nil, err
	}
	return newProgram(t, ctx.defaultAction, len(nrs), instructions)
}

// prologue 检查架构，并加载系统调用号到 A
func (c *compiler) prologue() error {
	kill := ActionKill
	c.b.loadWord(offsetArch)
	c.b.jumpIf(bpf.JumpEqual, c.target.AuditArch, labelArchOK, "")
	c.b.ret(kill)
	if err := c.b.mark(labelArchOK); err != nil {
		return err
	}
	c.b.loadWord(offsetNr)
	if !c.target.x32Guard() {
		return nil
	}
	c.b.jumpIf(bpf.JumpGreaterOrEqual, x32SyscallBit, "", labelNrOK)
	c.b.ret(kill)
	return c.b.mark(labelNrOK)
}

// dispatch 为有序的系统调用号生成二叉查找树
// 条件跳转只跳过一条指令，远距离跳转都通过 ja 完成
func (c *compiler) dispatch(nrs []int64) error {
	if len(nrs) == 0 {
		c.b.jump(labelDefault)
		return nil
	}
	mid := len(nrs) / 2
	nr := nrs[mid]
	miss := fmt.Sprintf("nr_%d_miss", nr)

	// A == nr ? ja nr_<n> : 继续
	c.b.jumpIf(bpf.JumpEqual, uint32(nr), "", miss)
	c.b.jump(blockLabel(nr))
	if err := c.b.mark(miss); err != nil {
		return err
	}

	left, right := nrs[:mid], nrs[mid+1:]
	switch {
	case len(left) == 0 && len(right) == 0:
		c.b.jump(labelDefault)
		return nil
	case len(right) == 0:
		return c.dispatch(left)
	case len(left) == 0:
		return c.dispatch(right)
	}

	// A > nr ? ja 右子树 : 左子树
	leftLabel := fmt.Sprintf("nr_%d_left", nr)
	rightLabel := fmt.Sprintf("nr_%d_right", nr)
	c.b.jumpIf(bpf.JumpGreaterThan, uint32(nr), "", leftLabel)
	c.b.jump(rightLabel)
	if err := c.b.mark(leftLabel); err != nil {
		return err
	}
	if err := c.dispatch(left); err != nil {
		return err
	}
	if err := c.b.mark(rightLabel); err != nil {
		return err
	}
	return c.dispatch(right)
}

func blockLabel(nr int64) string {
	return fmt.Sprintf("nr_%d", nr)
}

// syscall 生成一个系统调用的规则链
func (c *compiler) syscall(p *SyscallPolicy) error {
	if err := c.b.mark(blockLabel(p.nr)); err != nil {
		return err
	}
	for i, r := range p.rules {
		next := fmt.Sprintf("nr_%d_rule_%d_next", p.nr, i)
		for j, cond := range r.conditions {
			pass := fmt.Sprintf("nr_%d_rule_%d_cond_%d", p.nr, i, j)
			c.condition(cond, pass, next)
			if err := c.b.mark(pass); err != nil {
				return err
			}
		}
		c.b.ret(r.action)
		if !r.Unconditional() {
			if err := c.b.mark(next); err != nil {
				return err
			}
		}
	}
	if !p.terminated() {
		c.b.ret(c.ctx.defaultAction)
	}
	return nil
}

// condition 生成一个参数比较，满足时跳到 pass，不满足时跳到 miss
//
// 64 位比较拆成高低两个 32 位字：先比较高位，高位相等时再比较低位
func (c *compiler) condition(cond Condition, pass, miss string) {
	lowOff, highOff := c.target.argOffsets(cond.arg)
	low, high := uint32(cond.value), uint32(cond.value>>32)

	if cond.width == Dword {
		c.b.loadWord(lowOff)
		c.compareWord(cond.op, low, uint32(cond.mask), pass, miss)
		return
	}

	switch cond.op {
	case CmpEq:
		c.b.loadWord(highOff)
		c.b.jumpIf(bpf.JumpEqual, high, "", miss)
		c.b.loadWord(lowOff)
		c.b.jumpIf(bpf.JumpEqual, low, pass, miss)
	case CmpNe:
		c.b.loadWord(highOff)
		c.b.jumpIf(bpf.JumpEqual, high, "", pass)
		c.b.loadWord(lowOff)
		c.b.jumpIf(bpf.JumpEqual, low, miss, pass)
	case CmpGt, CmpGe:
		// arg_high > high ? pass : (arg_high == high ? 比较低位 : miss)
		c.b.loadWord(highOff)
		c.b.jumpIf(bpf.JumpGreaterThan, high, pass, "")
		c.b.jumpIf(bpf.JumpEqual, high, "", miss)
		c.b.loadWord(lowOff)
		c.compareWord(cond.op, low, 0, pass, miss)
	case CmpLt, CmpLe:
		// arg_high < high ? pass : (arg_high == high ? 比较低位 : miss)
		c.b.loadWord(highOff)
		c.b.jumpIf(bpf.JumpGreaterOrEqual, high, "", pass)
		c.b.jumpIf(bpf.JumpEqual, high, "", miss)
		c.b.loadWord(lowOff)
		c.compareWord(cond.op, low, 0, pass, miss)
	case CmpMaskedEq:
		maskLow, maskHigh := uint32(cond.mask), uint32(cond.mask>>32)
		if maskHigh != 0 {
			c.b.loadWord(highOff)
			c.b.add(bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: maskHigh})
			c.b.jumpIf(bpf.JumpEqual, high, "", miss)
		}
		if maskLow != 0 {
			c.b.loadWord(lowOff)
			c.compareWord(CmpMaskedEq, low, maskLow, pass, miss)
		}
	}
}

// compareWord 比较 A 中的 32 位字
func (c *compiler) compareWord(op CmpOp, val, mask uint32, pass, miss string) {
	switch op {
	case CmpEq:
		c.b.jumpIf(bpf.JumpEqual, val, pass, miss)
	case CmpNe:
		c.b.jumpIf(bpf.JumpEqual, val, miss, pass)
	case CmpGt:
		c.b.jumpIf(bpf.JumpGreaterThan, val, pass, miss)
	case CmpGe:
		c.b.jumpIf(bpf.JumpGreaterOrEqual, val, pass, miss)
	case CmpLt:
		c.b.jumpIf(bpf.JumpGreaterOrEqual, val, miss, pass)
	case CmpLe:
		c.b.jumpIf(bpf.JumpGreaterThan, val, miss, pass)
	case CmpMaskedEq:
		c.b.add(bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: mask})
		c.b.jumpIf(bpf.JumpEqual, val, pass, miss)
	}
}
