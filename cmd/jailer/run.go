//go:build linux

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/jailer/pkg/forkexec"
	"github.com/zqzqsb/jailer/pkg/installer"
	"github.com/zqzqsb/jailer/pkg/policy"
	"github.com/zqzqsb/jailer/pkg/rlimit"
	"github.com/zqzqsb/jailer/pkg/seccomp"
	"github.com/zqzqsb/jailer/runner"
	"github.com/zqzqsb/jailer/runner/spawn"
)

const (
	modeExec  = "exec"
	modeSpawn = "spawn"
)

// rlimitFlags 覆盖策略文件中的 launch.rlimits
type rlimitFlags struct {
	cpu          uint64
	fileSize     runner.Size
	stack        runner.Size
	addressSpace runner.Size
	openFile     uint64
	disableCore  bool
}

func (r *rlimitFlags) register(fs *pflag.FlagSet) {
	fs.Uint64Var(&r.cpu, "rlimit-cpu", 0, "CPU time limit in seconds")
	fs.Var(&r.fileSize, "rlimit-fsize", "file size limit (e.g. 16m)")
	fs.Var(&r.stack, "rlimit-stack", "stack size limit (e.g. 8m)")
	fs.Var(&r.addressSpace, "rlimit-as", "address space limit (e.g. 1g)")
	fs.Uint64Var(&r.openFile, "rlimit-nofile", 0, "open file limit")
	fs.BoolVar(&r.disableCore, "no-core", false, "disable core dumps")
}

// apply 把命令行上给出的限制写入 l
func (r *rlimitFlags) apply(fs *pflag.FlagSet, l *rlimit.RLimits) {
	if fs.Changed("rlimit-cpu") {
		l.CPU = r.cpu
	}
	if fs.Changed("rlimit-fsize") {
		l.FileSize = r.fileSize.Byte()
	}
	if fs.Changed("rlimit-stack") {
		l.Stack = r.stack.Byte()
	}
	if fs.Changed("rlimit-as") {
		l.AddressSpace = r.addressSpace.Byte()
	}
	if fs.Changed("rlimit-nofile") {
		l.OpenFile = r.openFile
	}
	if fs.Changed("no-core") {
		l.DisableCore = r.disableCore
	}
}

// launchOptions 合并策略文件与命令行的启动参数
func launchOptions(l policy.Launch, mode, stdio string) (string, forkexec.StdioPolicy, error) {
	if mode == "" {
		mode = l.Mode
	}
	switch mode {
	case "":
		mode = modeExec
	case modeExec, modeSpawn:
	default:
		return "", 0, usageErrorf("invalid launch mode %q", mode)
	}

	if stdio == "" {
		stdio = l.Stdio
	}
	if stdio == "" {
		return mode, forkexec.StdioInherit, nil
	}
	sp, err := forkexec.ParseStdioPolicy(stdio)
	if err != nil {
		return "", 0, usageErrorf("%v", err)
	}
	return mode, sp, nil
}

// runCmd 实现 "run" 子命令
//
// 所有可能失败的准备工作（加载、编译、解析路径、打开 /dev/null、
// 设置 rlimit）都在安装之前完成；安装之后不再输出日志
func (a *app) runCmd(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.SetInterspersed(false)

	var (
		pf  policyFlags
		rlf rlimitFlags
	)
	pf.register(fs)
	rlf.register(fs)
	mode := fs.String("mode", "", "launch mode: exec (replace jailer) or spawn (fork and wait); default from policy")
	stdio := fs.String("stdio", "", "standard streams of the program: inherit or null; default from policy")
	noTSync := fs.Bool("no-tsync", false, "install on the calling thread only instead of all threads")
	logFilter := fs.Bool("log-filter", false, "log non-allow actions to the audit log (SECCOMP_FILTER_FLAG_LOG)")

	if err := parse(fs, args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	command := fs.Args()
	if len(command) == 0 {
		return usageErrorf("usage: jailer run [flags] -- <program> [args...]")
	}

	logger, err := a.newLogger(pf.logLevel)
	if err != nil {
		return err
	}
	f, err := a.load(&pf, logger)
	if err != nil {
		return err
	}
	launchMode, stdioPolicy, err := launchOptions(f.Launch, *mode, *stdio)
	if err != nil {
		return err
	}
	_, prog, err := compile(f, &pf.extra, logger)
	if err != nil {
		return err
	}

	limits := f.Launch.RLimits
	rlf.apply(fs, &limits)

	cmd, err := forkexec.NewCommand(command, a.environ, stdioPolicy)
	if err != nil {
		return err
	}
	defer cmd.Close()
	cmd.RLimits = limits.PrepareRLimit()

	var opts []installer.Option
	if *noTSync {
		opts = append(opts, installer.WithoutThreadSync())
	}
	if *logFilter {
		opts = append(opts, installer.WithLog())
	}

	logger.Info("launching",
		"mode", launchMode,
		"path", cmd.Path,
		"stdio", cmd.Stdio(),
		"rlimits", limits.String(),
		"tsync", !*noTSync,
	)

	switch launchMode {
	case modeSpawn:
		return a.spawn(cmd, prog, opts)
	default:
		if err := rlimit.Apply(cmd.RLimits); err != nil {
			return &forkexec.LaunchError{Op: "setrlimit", Path: cmd.Path, Err: err}
		}
		inst, err := installer.Install(prog, opts...)
		if err != nil {
			return err
		}
		// 成功时不返回
		return &installedError{err: cmd.Exec(inst)}
	}
}

// spawn 安装过滤器后以子进程方式运行目标程序，并以其状态退出
// 子进程启动后，SIGINT 和 SIGTERM 会终止它
func (a *app) spawn(cmd *forkexec.Command, prog *seccomp.Program, opts []installer.Option) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	inst, err := installer.Install(prog, opts...)
	if err != nil {
		return err
	}

	result := spawn.New(cmd, inst).Run(ctx)
	switch code := result.ExitCode(); {
	case result.Status == runner.StatusRunnerError:
		return &installedError{err: &forkexec.LaunchError{Op: "spawn", Path: cmd.Path, Err: errors.New(result.Error)}}
	case code != 0:
		return &exitStatusError{code: code}
	}
	return nil
}
