//go:build linux

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/zqzqsb/jailer/pkg/policy"
	"github.com/zqzqsb/jailer/pkg/seccomp"
	"github.com/zqzqsb/jailer/pkg/seccomp/libseccomp"
)

// policyFlags 是各子命令共用的策略来源与日志参数
type policyFlags struct {
	path     string
	builtin  string
	logLevel string

	// 追加在策略文件之后的无条件规则
	extra libseccomp.Builder
}

func (p *policyFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&p.path, "policy", "p", "", "policy file (.yaml, .yml, .json, .jsonc)")
	fs.StringVar(&p.builtin, "builtin", "", fmt.Sprintf("built-in policy name %v", policy.BuiltinNames()))
	fs.StringVar(&p.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringSliceVar(&p.extra.Allow, "allow", nil, "additionally allow these syscalls (comma separated, repeatable)")
	fs.StringSliceVar(&p.extra.Trace, "trace", nil, "additionally trace these syscalls")
	fs.StringSliceVar(&p.extra.Errno, "errno", nil, "additionally fail these syscalls with EPERM")
}

// parse 解析参数，--help 时返回 pflag.ErrHelp
func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return &usageError{err: err}
	}
	return nil
}

// load 读取 --policy、--builtin 或 JAILER_POLICY 指定的策略
func (a *app) load(p *policyFlags, logger *slog.Logger) (*policy.File, error) {
	path := p.path
	if path == "" && p.builtin == "" {
		path = a.getenv("JAILER_POLICY")
	}

	loader := policy.NewLoader(a.fs)
	loader.SetLogger(logger)
	switch {
	case path != "" && p.builtin != "":
		return nil, usageErrorf("--policy and --builtin are mutually exclusive")
	case p.builtin != "":
		return loader.Builtin(p.builtin)
	case path != "":
		return loader.Load(path)
	}
	return nil, usageErrorf("no policy: use --policy, --builtin or JAILER_POLICY")
}

// compile 把策略以及命令行追加的规则编译为当前架构上的程序
func compile(f *policy.File, extra *libseccomp.Builder, logger *slog.Logger) (*seccomp.Context, *seccomp.Program, error) {
	ctx, err := f.Context(libseccomp.ToSyscallNumber, logger)
	if err != nil {
		return nil, nil, err
	}
	if extra != nil && !extra.Empty() {
		if err := extra.Apply(ctx); err != nil {
			return nil, nil, &policy.Error{Source: "command line", Entry: -1, Err: err}
		}
		logger.Debug("applied command line rules",
			"allow", extra.Allow, "trace", extra.Trace, "errno", extra.Errno)
	}
	prog, err := ctx.Freeze()
	if err != nil {
		return nil, nil, fmt.Errorf("compiling %s: %w", f.Source(), err)
	}

	d := prog.Digest()
	logger.Info("compiled policy",
		"source", f.Source(),
		"target", prog.Target(),
		"syscalls", prog.Syscalls(),
		"instructions", prog.Len(),
		"default", prog.DefaultAction(),
		"digest", fmt.Sprintf("%x", d[:]),
	)
	logger.Debug("program disassembly", "program", prog.String())
	return ctx, prog, nil
}
