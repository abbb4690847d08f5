package installer

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported 表示内核不支持 seccomp 过滤器模式
	ErrUnsupported = errors.New("seccomp filter mode not supported")
	// ErrAlreadyInstalled 表示本进程已经安装过过滤器
	ErrAlreadyInstalled = errors.New("filter already installed")
	// ErrPermission 表示内核拒绝安装（缺少 no_new_privs 或 CAP_SYS_ADMIN）
	ErrPermission = errors.New("permission denied")
	// ErrNilProgram 表示没有提供程序
	ErrNilProgram = errors.New("nil program")
	// ErrArchMismatch 表示程序不是为本机架构编译的
	ErrArchMismatch = errors.New("program compiled for another architecture")
	// ErrThreadSync 表示 TSYNC 无法同步某个线程
	ErrThreadSync = errors.New("cannot synchronize thread")
)

// Error 描述安装过程中某一步的失败
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("install %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
