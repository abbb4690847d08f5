// Package spawn 以 fork+exec 方式在已安装的过滤器下运行目标程序
package spawn

import (
	"context"
	"time"

	"github.com/zqzqsb/jailer/pkg/forkexec"
	"github.com/zqzqsb/jailer/pkg/installer"
	"github.com/zqzqsb/jailer/pkg/rlimit"
	"github.com/zqzqsb/jailer/runner"
)

// Runner 启动一个继承当前过滤器的子进程并等待其结束
type Runner struct {
	// 参数与环境变量，Args[0] 必须是已解析的路径
	Args []string
	Env  []string

	// 子进程的 0、1、2
	Files []uintptr

	WorkDir string
	RLimits []rlimit.RLimit

	// 单独的会话，使子进程不接收终端信号
	Setsid bool

	// 安装证明，为 nil 时拒绝启动
	Installation *installer.Installation
}

var _ runner.Runner = (*Runner)(nil)

// New 由准备好的 Command 创建 Runner
func New(cmd *forkexec.Command, inst *installer.Installation) *Runner {
	fr := cmd.Runner(inst)
	return &Runner{
		Args:         fr.Args,
		Env:          fr.Env,
		Files:        fr.Files,
		RLimits:      fr.RLimits,
		Installation: inst,
	}
}

// Run 启动子进程并等待其结束，c 被取消时子进程被终止
func (r *Runner) Run(c context.Context) runner.Result {
	ch := &forkexec.Runner{
		Args:         r.Args,
		Env:          r.Env,
		Files:        r.Files,
		WorkDir:      r.WorkDir,
		RLimits:      r.RLimits,
		Setsid:       r.Setsid,
		Installation: r.Installation,
	}

	sTime := time.Now()
	pid, err := ch.Start()
	if err != nil {
		return runner.Result{
			Status: runner.StatusRunnerError,
			Error:  err.Error(),
		}
	}
	fTime := time.Now()

	result := runner.Wait(c, pid)
	result.SetUpTime = fTime.Sub(sTime)
	result.RunningTime = time.Since(fTime)
	return result
}
