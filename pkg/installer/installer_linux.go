// Package installer 把编译好的 seccomp 程序安装到当前进程
//
// 安装是单向的：一个进程最多成功安装一次，之后所有线程（TSYNC）
// 以及 fork/exec 出的子进程都受该过滤器约束。
package installer

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/jailer/pkg/seccomp"
)

// 定义 unix 包中缺少的常量
const (
	// SECCOMP_SET_MODE_FILTER 使用 BPF 过滤器定义允许的系统调用
	SECCOMP_SET_MODE_FILTER = 1

	// SECCOMP_FILTER_FLAG_TSYNC 把过滤器同步到进程的所有线程
	SECCOMP_FILTER_FLAG_TSYNC = uintptr(libseccomp.FilterFlagTSync)

	// SECCOMP_FILTER_FLAG_LOG 记录除 allow 以外的所有动作
	SECCOMP_FILTER_FLAG_LOG = 2
)

// installed 保证一个进程只安装一次
var installed atomic.Bool

// Installation 证明过滤器已经在本进程生效
// 只能由 Install 创建，启动器以它作为启动目标程序的前提
type Installation struct {
	target        seccomp.Target
	digest        [32]byte
	instructions  int
	defaultAction seccomp.Action
	flags         uintptr
}

// Target 返回过滤器的目标架构
func (i *Installation) Target() seccomp.Target {
	return i.target
}

// Digest 返回已安装程序的 BLAKE3 摘要
func (i *Installation) Digest() [32]byte {
	return i.digest
}

// Len 返回已安装程序的指令数
func (i *Installation) Len() int {
	return i.instructions
}

// DefaultAction 返回已安装程序的默认动作
func (i *Installation) DefaultAction() seccomp.Action {
	return i.defaultAction
}

// ThreadSync 表示过滤器是否同步到了所有线程
func (i *Installation) ThreadSync() bool {
	return i.flags&SECCOMP_FILTER_FLAG_TSYNC != 0
}

type options struct {
	flags uintptr
}

// Option 调整安装方式
type Option func(*options)

// WithoutThreadSync 只在调用线程上安装过滤器
// 调用线程会保持 runtime.LockOSThread，之后的 exec 必须在该 goroutine 中进行
func WithoutThreadSync() Option {
	return func(o *options) {
		o.flags &^= SECCOMP_FILTER_FLAG_TSYNC
	}
}

// WithLog 让内核记录除 allow 以外的所有动作
func WithLog() Option {
	return func(o *options) {
		o.flags |= SECCOMP_FILTER_FLAG_LOG
	}
}

// Install 安装 p 到当前进程
//
// 安装步骤：
// 1. 检查程序架构与内核支持
// 2. 设置 no_new_privs
// 3. seccomp(SECCOMP_SET_MODE_FILTER, flags, prog)
//
// 失败时进程状态不变（no_new_privs 除外），可以再次尝试
func Install(p *seccomp.Program, opts ...Option) (*Installation, error) {
	if p == nil {
		return nil, &Error{Op: "check", Err: ErrNilProgram}
	}
	native, err := seccomp.NativeTarget()
	if err != nil {
		return nil, &Error{Op: "check", Err: errors.Join(ErrUnsupported, err)}
	}
	if p.Target().AuditArch != native.AuditArch {
		return nil, &Error{Op: "check", Err: fmt.Errorf("%w: %v, running on %v", ErrArchMismatch, p.Target(), native)}
	}

	o := options{flags: SECCOMP_FILTER_FLAG_TSYNC}
	for _, opt := range opts {
		opt(&o)
	}

	if !installed.CompareAndSwap(false, true) {
		return nil, &Error{Op: "check", Err: ErrAlreadyInstalled}
	}
	inst, err := install(p, o.flags)
	if err != nil {
		installed.Store(false)
		return nil, err
	}
	return inst, nil
}

func install(p *seccomp.Program, flags uintptr) (*Installation, error) {
	if !libseccomp.Supported() {
		return nil, &Error{Op: "check", Err: ErrUnsupported}
	}

	// 没有 TSYNC 时只有当前线程受约束，成功后必须一直锁定在该线程上
	runtime.LockOSThread()
	locked := false
	defer func() {
		if !locked {
			runtime.UnlockOSThread()
		}
	}()

	if err := libseccomp.SetNoNewPrivs(); err != nil {
		return nil, &Error{Op: "no_new_privs", Err: permission(err)}
	}

	inst := &Installation{
		target:        p.Target(),
		digest:        p.Digest(),
		instructions:  p.Len(),
		defaultAction: p.DefaultAction(),
		flags:         flags,
	}
	filter := p.Filter()
	fprog := filter.SockFprog()
	r1, _, errno := unix.Syscall(unix.SYS_SECCOMP, SECCOMP_SET_MODE_FILTER, flags, uintptr(unsafe.Pointer(fprog)))
	runtime.KeepAlive(filter)
	if errno != 0 {
		return nil, &Error{Op: "seccomp", Err: permission(errno)}
	}
	// TSYNC 失败时返回无法同步的线程 ID
	if r1 != 0 {
		return nil, &Error{Op: "seccomp", Err: fmt.Errorf("%w: tid %d", ErrThreadSync, r1)}
	}
	locked = flags&SECCOMP_FILTER_FLAG_TSYNC == 0
	return inst, nil
}

// permission 把内核错误映射为包内的错误
func permission(err error) error {
	switch {
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %v", ErrPermission, err)
	case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EINVAL):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return err
}
