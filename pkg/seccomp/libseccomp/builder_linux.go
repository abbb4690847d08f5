package libseccomp

import (
	"fmt"
	"sort"

	"github.com/zqzqsb/jailer/pkg/seccomp"
)

// Builder 按名称为系统调用添加无条件规则
// 命令行的 --allow、--trace、--errno 通过它追加到策略文件之上
type Builder struct {
	Allow []string // 允许执行的系统调用列表
	Trace []string // 需要跟踪的系统调用列表，携带 MsgHandle
	Errno []string // 以 EPERM 失败的系统调用列表

	// Default 不为 ActionInvalid 时替换 Context 的默认动作
	Default seccomp.Action
}

// Empty 表示 Builder 不会修改 Context
func (b *Builder) Empty() bool {
	return len(b.Allow) == 0 && len(b.Trace) == 0 && len(b.Errno) == 0 && b.Default == seccomp.ActionInvalid
}

// groups 返回去重排序后的名称及其动作，先出现的列表优先
func (b *Builder) groups() []group {
	seen := make(map[string]bool)
	var groups []group
	add := func(names []string, act seccomp.Action) {
		g := group{action: act}
		for _, n := range names {
			if seen[n] {
				continue
			}
			seen[n] = true
			g.names = append(g.names, n)
		}
		sort.Strings(g.names)
		if len(g.names) > 0 {
			groups = append(groups, g)
		}
	}
	add(b.Allow, seccomp.ActionAllow)
	add(b.Trace, seccomp.Trace(MsgHandle))
	add(b.Errno, seccomp.Errno(1))
	return groups
}

type group struct {
	names  []string
	action seccomp.Action
}

// Apply 把 Builder 中的规则加入 ctx
//
// 已有条件规则的系统调用会在末尾追加这条无条件规则；
// 已经以无条件规则结尾的系统调用返回 ErrDuplicateUnconditionalRule
func (b *Builder) Apply(ctx *seccomp.Context) error {
	if b.Default != seccomp.ActionInvalid {
		if err := ctx.SetDefaultAction(b.Default); err != nil {
			return err
		}
	}
	for _, g := range b.groups() {
		for _, name := range g.names {
			nr, err := ToSyscallNumber(name)
			if err != nil {
				return err
			}
			if err := ctx.AddRules(nr, seccomp.NewRule(g.action)); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}
