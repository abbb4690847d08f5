package forkexec

import (
	"github.com/zqzqsb/jailer/pkg/installer"
	"github.com/zqzqsb/jailer/pkg/rlimit"
)

// Runner 描述一个在已安装过滤器下 fork+exec 的子进程
// 子进程从父进程继承 seccomp 过滤器和 no_new_privs，
// 因此 clone、execve 以及下面用到的系统调用都必须被策略允许
type Runner struct {
	// Args 和 Env 用于子进程的 execve 系统调用
	// Args[0] 必须是已解析的程序路径
	Args []string
	Env  []string

	// Files 定义了新进程的文件描述符映射
	// 索引从 0 开始，通常 0,1,2 分别对应 stdin, stdout, stderr
	Files []uintptr

	// WorkDir 设置子进程的工作目录
	WorkDir string

	// RLimits 在 execve 之前通过 prlimit64 设置
	RLimits []rlimit.RLimit

	// Setsid 让子进程成为新会话的首进程
	Setsid bool

	// Installation 证明过滤器已经安装，为 nil 时 Start 拒绝启动
	Installation *installer.Installation
}
