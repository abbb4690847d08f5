package seccomp

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// programBuilder 按顺序生成 BPF 指令，跳转目标使用标签表示，
// 在 instructions 中统一回填偏移
//
// 只支持向前跳转：条件跳转的偏移必须在 0..255 之间，
// 更远的目标需要先跳到一条 ja 指令
type programBuilder struct {
	instructions []bpf.Instruction
	labels       map[string]int
	jumps        []pendingJump
}

// pendingJump 记录一条等待回填的跳转
// 空标签表示下一条指令
type pendingJump struct {
	index       int
	trueLabel   string
	falseLabel  string
	conditional bool
}

func newProgramBuilder() *programBuilder {
	return &programBuilder{labels: make(map[string]int)}
}

// add 追加一条不含跳转的指令
func (b *programBuilder) add(ins bpf.Instruction) {
	b.instructions = append(b.instructions, ins)
}

// loadWord 将 seccomp_data 中偏移 off 处的 32 位字加载到 A
func (b *programBuilder) loadWord(off uint32) {
	b.add(bpf.LoadAbsolute{Off: off, Size: 4})
}

// ret 追加一条返回常量的指令
func (b *programBuilder) ret(a Action) {
	b.add(bpf.RetConstant{Val: a.ReturnValue()})
}

// jumpIf 追加条件跳转：条件成立跳到 trueLabel，否则跳到 falseLabel
func (b *programBuilder) jumpIf(cond bpf.JumpTest, val uint32, trueLabel, falseLabel string) {
	b.jumps = append(b.jumps, pendingJump{
		index:       len(b.instructions),
		trueLabel:   trueLabel,
		falseLabel:  falseLabel,
		conditional: true,
	})
	b.add(bpf.JumpIf{Cond: cond, Val: val})
}

// jump 追加无条件跳转（ja），偏移为 32 位
func (b *programBuilder) jump(label string) {
	b.jumps = append(b.jumps, pendingJump{index: len(b.instructions), trueLabel: label})
	b.add(bpf.Jump{})
}

// mark 把标签绑定到下一条指令
func (b *programBuilder) mark(label string) error {
	if _, ok := b.labels[label]; ok {
		return fmt.Errorf("duplicate label %q", label)
	}
	b.labels[label] = len(b.instructions)
	return nil
}

// offset 计算从 index 跳到 label 需要跳过的指令数
func (b *programBuilder) offset(index int, label string) (int, error) {
	if label == "" {
		return 0, nil
	}
	target, ok := b.labels[label]
	if !ok {
		return 0, &CompileError{Err: ErrUnknownLabel, Detail: label}
	}
	skip := target - index - 1
	if skip < 0 {
		return 0, &CompileError{Err: ErrJumpOutOfRange, Detail: fmt.Sprintf("backward jump to %q", label)}
	}
	return skip, nil
}

// program 回填所有跳转并返回最终指令序列
func (b *programBuilder) program() ([]bpf.Instruction, error) {
	for _, j := range b.jumps {
		jt, err := b.offset(j.index, j.trueLabel)
		if err != nil {
			return nil, err
		}
		if !j.conditional {
			b.instructions[j.index] = bpf.Jump{Skip: uint32(jt)}
			continue
		}
		jf, err := b.offset(j.index, j.falseLabel)
		if err != nil {
			return nil, err
		}
		if jt > 0xff || jf > 0xff {
			return nil, &CompileError{
				Err:    ErrJumpOutOfRange,
				Detail: fmt.Sprintf("instruction %d: %q/%q", j.index, j.trueLabel, j.falseLabel),
			}
		}
		ins := b.instructions[j.index].(bpf.JumpIf)
		ins.SkipTrue, ins.SkipFalse = uint8(jt), uint8(jf)
		b.instructions[j.index] = ins
	}
	return b.instructions, nil
}
