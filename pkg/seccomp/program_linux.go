package seccomp

import "syscall"

// Filter 将程序转换为内核使用的 SockFilter 格式
//
// 转换过程：
// - Code: 操作码
// - Jt/Jf: 跳转目标
// - K: 立即数
func (p *Program) Filter() Filter {
	filter := make(Filter, 0, len(p.raw))
	for _, instruction := range p.raw {
		filter = append(filter, syscall.SockFilter{
			Code: instruction.Op,
			Jt:   instruction.Jt,
			Jf:   instruction.Jf,
			K:    instruction.K,
		})
	}
	return filter
}
