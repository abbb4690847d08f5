// Package seccomp 实现了系统调用过滤策略的构建与编译。
//
// 调用方先通过 Context 按系统调用声明规则（参数条件 + 动作），
// 再调用 Freeze 把策略编译成确定性的 seccomp BPF 程序。
// 编译结果 Program 是只读的，可以交给 installer 安装到内核。
package seccomp

import "syscall"

// Filter 是内核可以直接加载的 seccomp BPF 过滤器
// 每个 SockFilter 表示一条 BPF 指令：
// - Code: 操作码
// - Jt/Jf: 条件跳转的目标（true/false）
// - K: 立即数
type Filter []syscall.SockFilter

// SockFprog 将 Filter 转换为 prctl/seccomp 系统调用需要的 SockFprog 格式
//
// 注意：Filter 指针指向切片底层数组，调用方必须在系统调用返回前保持 f 存活。
// 空过滤器返回 nil。
func (f Filter) SockFprog() *syscall.SockFprog {
	if len(f) == 0 {
		return nil
	}
	b := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}
