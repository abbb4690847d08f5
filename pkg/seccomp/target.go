package seccomp

import (
	"fmt"

	"github.com/elastic/go-seccomp-bpf/arch"
	"golang.org/x/sys/cpu"
)

// Target 描述编译 BPF 程序的目标架构
type Target struct {
	// Name 是 go-seccomp-bpf 使用的架构名称，如 x86_64
	Name string
	// AuditArch 是 seccomp_data.arch 中的 AUDIT_ARCH_* 值
	AuditArch uint32
	// BigEndian 决定 64 位参数中高低字的偏移
	BigEndian bool
}

// x32 ABI 的系统调用号带有这个标志位
const x32SyscallBit = 0x40000000

// NativeTarget 返回当前进程所在架构
func NativeTarget() (Target, error) {
	info, err := arch.GetInfo("")
	if err != nil {
		return Target{}, fmt.Errorf("native arch: %w", err)
	}
	return Target{
		Name:      info.Name,
		AuditArch: uint32(info.ID),
		BigEndian: cpu.IsBigEndian,
	}, nil
}

// x32Guard 表示需要拒绝 x32 ABI 的系统调用
// 在 x86_64 上 x32 调用与 64 位调用共享 AUDIT_ARCH，只能靠调用号区分
func (t Target) x32Guard() bool {
	return t.Name == "x86_64" || t.Name == "amd64"
}

// seccomp_data 各字段的偏移
// struct seccomp_data {
//	int nr;
//	__u32 arch;
//	__u64 instruction_pointer;
//	__u64 args[6];
// };
const (
	offsetNr   = 0
	offsetArch = 4
	offsetIP   = 8
	offsetArgs = 16

	seccompDataSize = offsetArgs + 8*MaxArgs
)

// argOffsets 返回第 i 个参数低 32 位和高 32 位所在的偏移
func (t Target) argOffsets(i uint8) (low, high uint32) {
	return t.wordOffsets(offsetArgs + 8*uint32(i))
}

func (t Target) wordOffsets(off uint32) (low, high uint32) {
	if t.BigEndian {
		return off + 4, off
	}
	return off, off + 4
}

func (t Target) String() string {
	return fmt.Sprintf("%s(%#x)", t.Name, t.AuditArch)
}
