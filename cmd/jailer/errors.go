//go:build linux

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/zqzqsb/jailer/pkg/forkexec"
	"github.com/zqzqsb/jailer/pkg/installer"
	"github.com/zqzqsb/jailer/pkg/policy"
	"github.com/zqzqsb/jailer/pkg/seccomp"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitPolicy  = 2
	exitCompile = 3
	exitInstall = 4
	exitLaunch  = 5
	exitFailure = 6 // 其他运行时错误，例如写输出失败
)

// usageError 表示命令行参数错误
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// exitStatusError 传递 spawn 模式下目标程序的退出码
type exitStatusError struct {
	code int
}

func (e *exitStatusError) Error() string {
	return fmt.Sprintf("program exited with status %d", e.code)
}

// installedError 包装过滤器安装之后发生的错误
// 此时写 stderr 可能被过滤器拒绝，因此只设置退出码
type installedError struct {
	err error
}

func (e *installedError) Error() string { return e.err.Error() }
func (e *installedError) Unwrap() error { return e.err }

func silent(err error) bool {
	var ie *installedError
	var ee *exitStatusError
	return errors.As(err, &ie) || errors.As(err, &ee)
}

// exitCode 把错误映射为进程退出码
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		ue  *usageError
		ee  *exitStatusError
		ce  *seccomp.CompileError
		spe *seccomp.PolicyError
		pe  *policy.Error
		ie  *installer.Error
		le  *forkexec.LaunchError
	)
	switch {
	case errors.As(err, &ue), errors.Is(err, pflag.ErrHelp):
		return exitUsage
	case errors.As(err, &ee):
		return ee.code
	case errors.As(err, &ce):
		return exitCompile
	case errors.As(err, &spe), errors.As(err, &pe):
		return exitPolicy
	case errors.As(err, &ie):
		return exitInstall
	case errors.As(err, &le):
		return exitLaunch
	}
	return exitFailure
}
