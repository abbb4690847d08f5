package forkexec

import (
	"fmt"
	"syscall"
)

// ErrorLocation 定义了子进程执行失败的具体位置
type ErrorLocation int

// ChildError 是子进程在 execve 之前失败时通过管道传回的错误
// - Err: 系统调用返回的错误码
// - Location: 错误发生的位置
// - Index: 对 setrlimit 表示第几项限制
type ChildError struct {
	Err      syscall.Errno
	Location ErrorLocation
	Index    int
}

// Location 常量按照子进程初始化的顺序排列
const (
	LocClone      ErrorLocation = iota + 1 // 克隆（创建）新进程失败
	LocCloseWrite                          // 关闭管道读端失败
	LocDup3                                // 复制文件描述符失败
	LocFcntl                               // 文件控制操作失败
	LocSetSid                              // 设置会话 ID 失败
	LocChdir                               // 改变工作目录失败
	LocSetRlimit                           // 设置资源限制失败
	LocExecve                              // 执行新程序失败
)

var locToString = []string{
	"unknown",
	"clone",
	"close_write",
	"dup3",
	"fcntl",
	"setsid",
	"chdir",
	"setrlimit",
	"execve",
}

func (e ErrorLocation) String() string {
	if e >= LocClone && e <= LocExecve {
		return locToString[e]
	}
	return "unknown"
}

// Error 实现了 error 接口
// 例如 "execve: permission denied"、"setrlimit(1): invalid argument"
func (e ChildError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s(%d): %s", e.Location.String(), e.Index, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Location.String(), e.Err.Error())
}

func (e ChildError) Unwrap() error {
	return e.Err
}
