package seccomp

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/net/bpf"
)

// Program 是编译完成、不可修改的 seccomp BPF 程序
// 同一个 Context 内容总是编译出字节完全相同的程序
type Program struct {
	target        Target
	defaultAction Action
	syscalls      int
	instructions  []bpf.Instruction
	raw           []bpf.RawInstruction
}

func newProgram(t Target, def Action, syscalls int, instructions []bpf.Instruction) (*Program, error) {
	raw, err := bpf.Assemble(instructions)
	if err != nil {
		return nil, &CompileError{Err: err}
	}
	return &Program{
		target:        t,
		defaultAction: def,
		syscalls:      syscalls,
		instructions:  instructions,
		raw:           raw,
	}, nil
}

// Target 返回程序的目标架构
func (p *Program) Target() Target {
	return p.target
}

// DefaultAction 返回编译进程序的默认动作
func (p *Program) DefaultAction() Action {
	return p.defaultAction
}

// Syscalls 返回程序中带有规则的系统调用个数
func (p *Program) Syscalls() int {
	return p.syscalls
}

// Len 返回指令条数
func (p *Program) Len() int {
	return len(p.raw)
}

// Instructions 返回指令的副本
func (p *Program) Instructions() []bpf.Instruction {
	return append([]bpf.Instruction(nil), p.instructions...)
}

// Raw 返回汇编后指令的副本
func (p *Program) Raw() []bpf.RawInstruction {
	return append([]bpf.RawInstruction(nil), p.raw...)
}

// Bytes 按目标架构字节序把程序编码为 struct sock_filter 数组
// 每条指令 8 字节：code(16) jt(8) jf(8) k(32)
func (p *Program) Bytes() []byte {
	var order binary.ByteOrder = binary.LittleEndian
	if p.target.BigEndian {
		order = binary.BigEndian
	}
	buf := make([]byte, 8*len(p.raw))
	for i, ins := range p.raw {
		b := buf[8*i:]
		order.PutUint16(b[0:], ins.Op)
		b[2] = ins.Jt
		b[3] = ins.Jf
		order.PutUint32(b[4:], ins.K)
	}
	return buf
}

// Digest 返回程序字节的 BLAKE3-256 摘要，用于校验安装的策略
func (p *Program) Digest() [32]byte {
	return blake3.Sum256(p.Bytes())
}

// String 返回程序的反汇编文本
func (p *Program) String() string {
	var sb strings.Builder
	for i, ins := range p.instructions {
		fmt.Fprintf(&sb, "%04d: %v\n", i, ins)
	}
	return sb.String()
}
