package forkexec

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/jailer/pkg/installer"
	"github.com/zqzqsb/jailer/pkg/rlimit"
)

// StdioPolicy 决定目标程序的标准输入输出
type StdioPolicy int

const (
	// StdioInherit 继承当前进程的 0、1、2
	StdioInherit StdioPolicy = iota
	// StdioNull 把 0、1、2 都重定向到 /dev/null
	StdioNull
)

// ParseStdioPolicy 解析 inherit 或 null
func ParseStdioPolicy(s string) (StdioPolicy, error) {
	switch s {
	case "", "inherit":
		return StdioInherit, nil
	case "null":
		return StdioNull, nil
	}
	return 0, fmt.Errorf("unknown stdio policy %q", s)
}

func (s StdioPolicy) String() string {
	if s == StdioNull {
		return "null"
	}
	return "inherit"
}

// Command 是一个准备好的启动命令
//
// 路径解析、打开 /dev/null 等需要额外系统调用的工作都在 NewCommand 中完成，
// 因此可以在安装过滤器之前准备，安装之后只需要 dup3 和 execve
type Command struct {
	// Path 是解析后的程序路径
	Path string
	Args []string
	Env  []string

	// RLimits 由 Runner 在子进程中设置；Exec 模式请在安装前调用 rlimit.Apply
	RLimits []rlimit.RLimit

	stdio StdioPolicy
	null  *os.File
	files []uintptr
}

// NewCommand 解析 args[0] 并准备标准输入输出
func NewCommand(args, env []string, stdio StdioPolicy) (*Command, error) {
	if len(args) == 0 {
		return nil, &LaunchError{Op: "resolve", Err: ErrNotFound}
	}
	path, err := resolve(args[0])
	if err != nil {
		return nil, &LaunchError{Op: "resolve", Path: args[0], Err: err}
	}

	c := &Command{
		Path:  path,
		Args:  append([]string{path}, args[1:]...),
		Env:   env,
		stdio: stdio,
		files: []uintptr{0, 1, 2},
	}
	if stdio == StdioNull {
		c.null, err = os.OpenFile(devNull, os.O_RDWR, 0)
		if err != nil {
			return nil, &LaunchError{Op: "stdio", Path: path, Err: err}
		}
		fd := c.null.Fd()
		c.files = []uintptr{fd, fd, fd}
	}
	return c, nil
}

// resolve 按 PATH 查找程序，并把错误归类为 ErrNotFound 或 ErrNotExecutable
func resolve(name string) (string, error) {
	path, err := exec.LookPath(name)
	switch {
	case err == nil:
		return path, nil
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, unix.EISDIR):
		return "", fmt.Errorf("%w: %v", ErrNotExecutable, err)
	}
	return "", err
}

// Files 返回目标程序的 0、1、2
func (c *Command) Files() []uintptr {
	return append([]uintptr(nil), c.files...)
}

// Stdio 返回标准输入输出策略
func (c *Command) Stdio() StdioPolicy {
	return c.stdio
}

// Runner 返回以 fork+exec 方式启动该命令的 Runner
func (c *Command) Runner(inst *installer.Installation) *Runner {
	return &Runner{
		Args:         c.Args,
		Env:          c.Env,
		Files:        c.Files(),
		RLimits:      c.RLimits,
		Installation: inst,
	}
}

// Exec 用目标程序替换当前进程，成功时不会返回
// 没有 TSYNC 的安装要求在调用 Install 的 goroutine 中调用
func (c *Command) Exec(inst *installer.Installation) error {
	if inst == nil {
		return &LaunchError{Op: "exec", Path: c.Path, Err: ErrNotInstalled}
	}
	for i, fd := range c.files {
		if int(fd) == i {
			continue
		}
		if err := unix.Dup3(int(fd), i, 0); err != nil {
			return &LaunchError{Op: "dup3", Path: c.Path, Err: err}
		}
	}
	err := unix.Exec(c.Path, c.Args, c.Env)
	return &LaunchError{Op: "execve", Path: c.Path, Err: err}
}

// Close 释放 NewCommand 打开的文件，Exec 成功后无需调用
func (c *Command) Close() error {
	if c.null == nil {
		return nil
	}
	err := c.null.Close()
	c.null = nil
	return err
}

// Exec 是 NewCommand 与 Command.Exec 的组合
// 路径解析发生在安装之后，策略需要允许相应的 stat/access 调用；
// 更严格的策略应当先 NewCommand，再 Install，最后 Command.Exec
func Exec(inst *installer.Installation, args, env []string, stdio StdioPolicy) error {
	if inst == nil {
		return &LaunchError{Op: "exec", Err: ErrNotInstalled}
	}
	c, err := NewCommand(args, env, stdio)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Exec(inst)
}
