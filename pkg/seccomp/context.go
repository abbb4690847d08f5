package seccomp

import (
	"math"
	"sort"
)

// 实现定义的容量限制
// BPF 程序最多 4096 条指令，这些限制让合法策略基本不会在编译时超限
const (
	MaxSyscalls          = 512
	MaxRulesPerSyscall   = 64
	MaxConditionsPerRule = 24
)

// SyscallPolicy 保存一个系统调用的有序规则列表
// 规则按插入顺序匹配，第一条命中的规则生效
type SyscallPolicy struct {
	nr    int64
	rules []Rule
}

// Nr 返回系统调用号
func (p *SyscallPolicy) Nr() int64 {
	return p.nr
}

// Rules 返回规则的副本
func (p *SyscallPolicy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// terminated 表示规则列表已经以无条件规则结尾
func (p *SyscallPolicy) terminated() bool {
	return len(p.rules) > 0 && p.rules[len(p.rules)-1].Unconditional()
}

// Context 聚合了所有系统调用的规则以及进程级的默认动作
//
// 生命周期：构建中 -> 冻结。Freeze 之后任何修改都会返回 ErrFrozen。
// Context 不是并发安全的，构建应当在单个 goroutine 内完成。
type Context struct {
	policies      map[int64]*SyscallPolicy
	defaultAction Action
	frozen        bool
}

// NewContext 创建一个以 defaultAction 作为默认动作的空策略
func NewContext(defaultAction Action) *Context {
	return &Context{
		policies:      make(map[int64]*SyscallPolicy),
		defaultAction: defaultAction,
	}
}

// AddRules 把 rules 追加到系统调用 nr 的规则列表中，必要时创建列表
//
// 整批规则先全部校验再写入，出错时 Context 保持不变：
// - 已经以无条件规则结尾的列表不能再追加（ErrDuplicateUnconditionalRule）
// - 本批中的无条件规则必须是最后一条（ErrUnconditionalRuleNotLast）
// - 超过容量限制时返回 ErrTooManySyscalls / ErrTooManyRules / ErrTooManyConditions
func (c *Context) AddRules(nr int64, rules ...Rule) error {
	if c.frozen {
		return policyError(nr, -1, ErrFrozen)
	}
	if nr < 0 || nr > math.MaxUint32 {
		return policyError(nr, -1, ErrInvalidSyscall)
	}
	if len(rules) == 0 {
		return policyError(nr, -1, ErrEmptyRules)
	}

	p, ok := c.policies[nr]
	if !ok && len(c.policies) >= MaxSyscalls {
		return policyError(nr, -1, ErrTooManySyscalls)
	}
	if ok && p.terminated() {
		return policyError(nr, -1, ErrDuplicateUnconditionalRule)
	}
	existing := 0
	if ok {
		existing = len(p.rules)
	}
	if existing+len(rules) > MaxRulesPerSyscall {
		return policyError(nr, -1, ErrTooManyRules)
	}

	for i, r := range rules {
		if !r.action.Valid() {
			return policyError(nr, i, ErrInvalidAction)
		}
		if len(r.conditions) > MaxConditionsPerRule {
			return policyError(nr, i, ErrTooManyConditions)
		}
		for _, cond := range r.conditions {
			if err := cond.validate(); err != nil {
				return policyError(nr, i, err)
			}
		}
		if r.Unconditional() && i != len(rules)-1 {
			return policyError(nr, i, ErrUnconditionalRuleNotLast)
		}
	}

	if !ok {
		p = &SyscallPolicy{nr: nr}
		c.policies[nr] = p
	}
	for _, r := range rules {
		p.rules = append(p.rules, NewRule(r.action, r.conditions...))
	}
	return nil
}

// SetDefaultAction 设置默认动作，多次调用以最后一次为准
func (c *Context) SetDefaultAction(a Action) error {
	if c.frozen {
		return policyError(-1, -1, ErrFrozen)
	}
	if !a.Valid() {
		return policyError(-1, -1, ErrInvalidAction)
	}
	c.defaultAction = a
	return nil
}

// DefaultAction 返回默认动作
func (c *Context) DefaultAction() Action {
	return c.defaultAction
}

// Frozen 表示 Context 是否已经冻结
func (c *Context) Frozen() bool {
	return c.frozen
}

// Syscalls 返回按升序排列的系统调用号
func (c *Context) Syscalls() []int64 {
	nrs := make([]int64, 0, len(c.policies))
	for nr := range c.policies {
		nrs = append(nrs, nr)
	}
	sort.Slice(nrs, func(i, j int) bool { return nrs[i] < nrs[j] })
	return nrs
}

// Policy 返回系统调用 nr 的规则列表
func (c *Context) Policy(nr int64) (*SyscallPolicy, bool) {
	p, ok := c.policies[nr]
	return p, ok
}

// Decide 是策略的参考语义：
// 1. nr 不在策略中时返回默认动作
// 2. 否则返回第一条命中规则的动作
// 3. 没有规则命中时返回默认动作
func (c *Context) Decide(nr int64, args [MaxArgs]uint64) Action {
	p, ok := c.policies[nr]
	if !ok {
		return c.defaultAction
	}
	for _, r := range p.rules {
		if r.Matches(args) {
			return r.action
		}
	}
	return c.defaultAction
}

// Freeze 冻结 Context 并为本机架构编译 BPF 程序
// 只能成功调用一次，再次调用返回 ErrAlreadyFrozen
func (c *Context) Freeze() (*Program, error) {
	if c.frozen {
		return nil, &CompileError{Err: ErrAlreadyFrozen}
	}
	t, err := NativeTarget()
	if err != nil {
		return nil, &CompileError{Err: err}
	}
	return c.FreezeFor(t)
}

// FreezeFor 与 Freeze 相同，但为指定的目标架构编译
//
// 默认动作无效时返回 CompileError 且不冻结，可以用 SetDefaultAction 修正；
// 否则进入编译时 Context 即被冻结，即使编译失败也不能再修改
func (c *Context) FreezeFor(t Target) (*Program, error) {
	if c.frozen {
		return nil, &CompileError{Err: ErrAlreadyFrozen}
	}
	if !c.defaultAction.Valid() {
		return nil, &CompileError{Err: ErrInvalidAction, Detail: "default action " + c.defaultAction.String()}
	}
	c.frozen = true
	return compile(c, t)
}
