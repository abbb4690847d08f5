package forkexec

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInstalled 表示没有出示已安装过滤器的证明
	ErrNotInstalled = errors.New("seccomp filter not installed")
	// ErrNotFound 表示找不到目标程序
	ErrNotFound = errors.New("executable not found")
	// ErrNotExecutable 表示目标不是可执行文件
	ErrNotExecutable = errors.New("not executable")
)

// LaunchError 描述启动目标程序时的失败
type LaunchError struct {
	Op   string
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("launch %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("launch %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
