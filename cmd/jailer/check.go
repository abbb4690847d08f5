//go:build linux

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/zqzqsb/jailer/pkg/seccomp"
	"github.com/zqzqsb/jailer/pkg/seccomp/libseccomp"
)

// checkCmd 实现 "check" 子命令：在 BPF 虚拟机中运行编译后的程序，
// 并与规则的参考语义比较
func (a *app) checkCmd(args []string) error {
	fs := pflag.NewFlagSet("check", pflag.ContinueOnError)
	fs.SetOutput(a.stderr)

	var pf policyFlags
	pf.register(fs)

	if err := parse(fs, args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 1+seccomp.MaxArgs {
		return usageErrorf("usage: jailer check [flags] <syscall> [arg...] (at most %d args)", seccomp.MaxArgs)
	}

	nr, name, err := syscallArg(fs.Arg(0))
	if err != nil {
		return err
	}
	var callArgs [seccomp.MaxArgs]uint64
	for i, s := range fs.Args()[1:] {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return usageErrorf("argument %d: %v", i, err)
		}
		callArgs[i] = v
	}

	logger, err := a.newLogger(pf.logLevel)
	if err != nil {
		return err
	}
	f, err := a.load(&pf, logger)
	if err != nil {
		return err
	}
	ctx, prog, err := compile(f, &pf.extra, logger)
	if err != nil {
		return err
	}

	got, err := prog.Call(int32(nr), callArgs[:]...)
	if err != nil {
		return fmt.Errorf("evaluating program: %w", err)
	}
	if want := ctx.Decide(nr, callArgs); got != want {
		return &seccomp.CompileError{Err: fmt.Errorf("program returned %v, rules decide %v", got, want)}
	}

	argStrs := make([]string, fs.NArg()-1)
	for i := range argStrs {
		argStrs[i] = fmt.Sprintf("%#x", callArgs[i])
	}
	fmt.Fprintf(a.stdout, "%s(%s) -> %v\n", name, strings.Join(argStrs, ", "), got)
	return nil
}

// syscallArg 接受系统调用名称或调用号
func syscallArg(s string) (int64, string, error) {
	if nr, err := strconv.ParseInt(s, 0, 64); err == nil {
		if nr < 0 || nr > 1<<31-1 {
			return 0, "", usageErrorf("syscall number %d out of range", nr)
		}
		if name, err := libseccomp.ToSyscallName(uint(nr)); err == nil {
			return nr, name, nil
		}
		return nr, s, nil
	}
	nr, err := libseccomp.ToSyscallNumber(s)
	if err != nil {
		return 0, "", usageErrorf("%v", err)
	}
	return nr, s, nil
}
