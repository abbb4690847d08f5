package runner

import (
	"fmt"
	"time"
)

// Result 是目标程序运行的结果
type Result struct {
	Status            // 结果状态
	ExitStatus int    // 退出状态（如果被信号终止则为信号编号）
	Error      string // 启动或等待失败时的错误信息

	Time   time.Duration // 用户态 CPU 时间
	Memory Size          // 最大常驻内存

	// 从 fork 到 execve 完成的时间，以及之后的运行时间
	SetUpTime   time.Duration
	RunningTime time.Duration
}

// ExitCode 把结果转换为 shell 风格的退出码
// 被信号终止时为 128+信号编号，运行器错误为 -1
func (r Result) ExitCode() int {
	switch r.Status {
	case StatusNormal, StatusNonzeroExitStatus:
		return r.ExitStatus
	case StatusTimeLimitExceeded, StatusOutputLimitExceeded, StatusDisallowedSyscall, StatusSignalled:
		return 128 + r.ExitStatus
	default:
		return -1
	}
}

func (r Result) String() string {
	switch r.Status {
	case StatusNormal:
		return fmt.Sprintf("Result[%v %v][%v %v]", r.Time, r.Memory, r.SetUpTime, r.RunningTime)

	case StatusSignalled, StatusDisallowedSyscall:
		return fmt.Sprintf("Result[%v(%d)][%v %v][%v %v]", r.Status, r.ExitStatus, r.Time, r.Memory, r.SetUpTime, r.RunningTime)

	case StatusRunnerError:
		return fmt.Sprintf("Result[RunnerFailed(%s)][%v %v][%v %v]", r.Error, r.Time, r.Memory, r.SetUpTime, r.RunningTime)

	default:
		return fmt.Sprintf("Result[%v(%d)][%v %v][%v %v]", r.Status, r.ExitStatus, r.Time, r.Memory, r.SetUpTime, r.RunningTime)
	}
}
