package runner

// Status 是目标程序的结束状态
type Status int

// 目标程序的结束状态
const (
	StatusInvalid Status = iota // 0 未初始化
	// 正常
	StatusNormal // 1 正常退出

	// 资源限制超出
	StatusTimeLimitExceeded   // 2 RLIMIT_CPU 触发 SIGXCPU
	StatusOutputLimitExceeded // 3 RLIMIT_FSIZE 触发 SIGXFSZ

	// 过滤器拒绝
	StatusDisallowedSyscall // 4 SECCOMP_RET_TRAP 或 KILL 触发 SIGSYS

	// 运行时错误
	StatusSignalled         // 5 被其他信号终止
	StatusNonzeroExitStatus // 6 非零退出状态

	// 启动或等待失败
	StatusRunnerError // 7
)

var statusString = []string{
	"invalid",
	"normal",
	"time limit exceeded",
	"output limit exceeded",
	"disallowed syscall",
	"signalled",
	"nonzero exit status",
	"runner error",
}

func (t Status) String() string {
	i := int(t)
	if i >= 0 && i < len(statusString) {
		return statusString[i]
	}
	return statusString[0]
}

func (t Status) Error() string {
	return t.String()
}
