//go:build linux

// jailer 编译系统调用过滤策略，安装后启动目标程序。
//
// Usage:
//
//	jailer run [flags] -- <program> [args...]
//	jailer compile [flags]
//	jailer check [flags] <syscall> [args...]
//	jailer version
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// version 在构建时通过 -ldflags "-X main.version=..." 设置
var version = "dev"

// app 保存子命令共享的输入输出，测试中替换为内存实现
type app struct {
	fs      afero.Fs
	stdout  io.Writer
	stderr  io.Writer
	getenv  func(string) string
	environ []string
}

func main() {
	a := &app{
		fs:      afero.NewOsFs(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		getenv:  os.Getenv,
		environ: os.Environ(),
	}
	os.Exit(a.main(os.Args[1:]))
}

// main 执行子命令并返回进程退出码
func (a *app) main(args []string) int {
	if len(args) < 1 {
		a.printUsage()
		return exitUsage
	}

	cmd := args[0]
	args = args[1:]

	var err error
	switch cmd {
	case "run":
		err = a.runCmd(args)
	case "compile":
		err = a.compileCmd(args)
	case "check":
		err = a.checkCmd(args)
	case "version", "--version", "-v":
		fmt.Fprintf(a.stdout, "jailer %s\n", version)
		return exitOK
	case "help", "--help", "-h":
		a.printUsage()
		return exitOK
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n\n", cmd)
		a.printUsage()
		return exitUsage
	}

	code := exitCode(err)
	if err != nil && !silent(err) {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
	}
	return code
}

// newLogger 创建输出到 stderr 的日志，JAILER_DEBUG 非空时默认为 debug
func (a *app) newLogger(level string) (*slog.Logger, error) {
	lvl := slog.LevelInfo
	if a.getenv("JAILER_DEBUG") != "" {
		lvl = slog.LevelDebug
	}
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
			return nil, usageErrorf("invalid --log-level %q", level)
		}
	}
	return slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

func (a *app) printUsage() {
	fmt.Fprint(a.stderr, `jailer - Run a program under a seccomp syscall filter

USAGE
    jailer <command> [flags] [-- <args>...]

COMMANDS
    run       Install the policy and launch a program
    compile   Compile the policy and write the BPF program
    check     Evaluate the compiled policy for one syscall
    version   Show version

EXAMPLES
    # Reproduce the demo: only write(1, _, 14) is allowed
    jailer run --builtin demo -- ./hello

    # Inspect the compiled program
    jailer compile --policy policy.yaml --format text

    # Ask what the filter does with write(2, buf, 14)
    jailer check --builtin demo write 2 0 14

ENVIRONMENT
    JAILER_POLICY   Policy file used when neither --policy nor --builtin is given
    JAILER_DEBUG    Enable debug logging

EXIT STATUS
    0 success, 1 usage, 2 policy error, 3 compile error,
    4 install error, 5 launch error, 6 other failure (e.g. writing
    output); run --mode spawn exits with the program's status
    (128+signal when killed)
`)
}
