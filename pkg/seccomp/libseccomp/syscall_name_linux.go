package libseccomp

import (
	"errors"
	"fmt"

	"github.com/elastic/go-seccomp-bpf/arch"
)

// ErrUnknownSyscall 表示当前架构上不存在该系统调用
var ErrUnknownSyscall = errors.New("unknown syscall")

// info 是当前系统架构（如 x86_64, aarch64）的系统调用映射表
var info, errInfo = arch.GetInfo("")

// ToSyscallName 将系统调用号转换为对应的系统调用名称
// 例如 x86_64 上 0 对应 "read"
func ToSyscallName(sysno uint) (string, error) {
	if errInfo != nil {
		return "", errInfo
	}
	n, ok := info.SyscallNumbers[int(sysno)]
	if !ok {
		return "", fmt.Errorf("syscall no %d: %w", sysno, ErrUnknownSyscall)
	}
	return n, nil
}

// ToSyscallNumber 将系统调用名称转换为当前架构上的调用号
func ToSyscallNumber(name string) (int64, error) {
	if errInfo != nil {
		return 0, errInfo
	}
	nr, ok := info.SyscallNames[name]
	if !ok {
		return 0, fmt.Errorf("syscall %q: %w", name, ErrUnknownSyscall)
	}
	return int64(nr), nil
}
