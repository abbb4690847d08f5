package seccomp

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/net/bpf"
)

// SyscallData 对应内核传给过滤器的 struct seccomp_data
type SyscallData struct {
	Nr   int32
	Arch uint32
	IP   uint64
	Args [MaxArgs]uint64
}

// Evaluate 在用户态 BPF 虚拟机中运行程序，返回对 data 的处理动作
// 用于测试以及在安装前检查策略，不会产生任何副作用
func (p *Program) Evaluate(data SyscallData) (Action, error) {
	vm, err := bpf.NewVM(p.instructions)
	if err != nil {
		return ActionInvalid, fmt.Errorf("evaluate: %w", err)
	}
	ret, err := vm.Run(p.target.Encode(data))
	if err != nil {
		return ActionInvalid, fmt.Errorf("evaluate: %w", err)
	}
	return ActionFromReturnValue(uint32(ret)), nil
}

// Call 是 Evaluate 的简写，使用程序自身的架构
func (p *Program) Call(nr int32, args ...uint64) (Action, error) {
	data := SyscallData{Nr: nr, Arch: p.target.AuditArch}
	copy(data.Args[:], args)
	return p.Evaluate(data)
}

// Encode 按目标架构的布局生成 seccomp_data，可以直接交给 bpf.VM 运行
//
// bpf.VM 总是以大端序读取 32 位字，因此每个字按大端序写入，
// 64 位字段的高低字位置则遵循目标架构
func (t Target) Encode(d SyscallData) []byte {
	buf := make([]byte, seccompDataSize)
	put := func(off uint32, v uint32) {
		binary.BigEndian.PutUint32(buf[off:], v)
	}
	put64 := func(off uint32, v uint64) {
		low, high := t.wordOffsets(off)
		put(low, uint32(v))
		put(high, uint32(v>>32))
	}
	put(offsetNr, uint32(d.Nr))
	put(offsetArch, d.Arch)
	put64(offsetIP, d.IP)
	for i, a := range d.Args {
		put64(offsetArgs+8*uint32(i), a)
	}
	return buf
}
