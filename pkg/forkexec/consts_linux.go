// Package forkexec 在已安装的 seccomp 过滤器之下启动目标程序
//
// 两种方式都要求调用方出示 *installer.Installation：
// - Command.Exec 用目标程序替换当前进程（execve）
// - Runner.Start 通过 clone + execve 创建子进程，子进程继承过滤器
package forkexec

import (
	"golang.org/x/sys/unix"
)

// etxtbsyRetryInterval 定义了遇到 ETXTBSY 错误时的重试间隔
// 设置为 1 毫秒 (1 * 1000 * 1000 纳秒)
var etxtbsyRetryInterval = unix.Timespec{
	Nsec: 1 * 1000 * 1000,
}

// etxtbsyRetries 是 execve 遇到 ETXTBSY 时的最大重试次数
const etxtbsyRetries = 50

// devNull 是 StdioNull 使用的设备
const devNull = "/dev/null"
