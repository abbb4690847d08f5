// Package policy 读取声明式的系统调用策略文件并转换为 seccomp.Context
//
// 策略文件可以是 YAML（.yaml/.yml）或 JSONC（.json/.jsonc，允许注释和尾逗号）。
package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zqzqsb/jailer/pkg/rlimit"
	"github.com/zqzqsb/jailer/pkg/seccomp"
)

// File 是策略文件的内容
type File struct {
	// DefaultAction 是没有规则命中时的动作，默认为 trap
	DefaultAction string         `yaml:"default_action" json:"default_action"`
	Syscalls      []SyscallEntry `yaml:"syscalls" json:"syscalls"`
	Launch        Launch         `yaml:"launch" json:"launch"`

	source string
}

// SyscallEntry 为一个或多个系统调用声明规则
//
// Name、Names、Nr 三者只能出现一个。
// Action 是单条无条件规则的简写，不能与 Rules 同时使用。
type SyscallEntry struct {
	Name  string   `yaml:"name" json:"name"`
	Names []string `yaml:"names" json:"names"`
	Nr    *int64   `yaml:"nr" json:"nr"`
	// Optional 为 true 时忽略当前架构上不存在的系统调用
	Optional bool        `yaml:"optional" json:"optional"`
	Action   string      `yaml:"action" json:"action"`
	Rules    []RuleEntry `yaml:"rules" json:"rules"`
}

// RuleEntry 对应一条规则，Args 为空时是无条件规则
type RuleEntry struct {
	Action string     `yaml:"action" json:"action"`
	Args   []ArgEntry `yaml:"args" json:"args"`
}

// ArgEntry 对应一个参数条件
type ArgEntry struct {
	Index uint   `yaml:"index" json:"index"`
	Op    string `yaml:"op" json:"op"`
	Value uint64 `yaml:"value" json:"value"`
	Mask  uint64 `yaml:"mask" json:"mask"`
	// Width 为 32 时只比较参数的低 32 位
	Width int `yaml:"width" json:"width"`
}

// Launch 描述如何启动目标程序
type Launch struct {
	Mode    string         `yaml:"mode" json:"mode"`   // exec 或 spawn
	Stdio   string         `yaml:"stdio" json:"stdio"` // inherit 或 null
	RLimits rlimit.RLimits `yaml:"rlimits" json:"rlimits"`
}

// Resolver 把系统调用名称解析为调用号
type Resolver func(name string) (int64, error)

// Source 返回策略的来源（文件路径或 builtin:<name>）
func (f *File) Source() string {
	return f.source
}

// Context 把策略转换为一个新的 seccomp.Context
//
// 名称通过 resolve 解析。Optional 条目中解析失败的名称会被跳过，
// 其他解析错误按 *Error 返回；规则本身的错误保持 *seccomp.PolicyError。
func (f *File) Context(resolve Resolver, logger *slog.Logger) (*seccomp.Context, error) {
	def := seccomp.ActionTrap
	if f.DefaultAction != "" {
		act, err := seccomp.ParseAction(f.DefaultAction)
		if err != nil {
			return nil, f.errorf(-1, "default_action: %w", errors.Join(seccomp.ErrInvalidAction, err))
		}
		def = act
	}
	ctx := seccomp.NewContext(def)

	for i, entry := range f.Syscalls {
		rules, err := entry.rules()
		if err != nil {
			return nil, f.errorf(i, "%w", err)
		}
		nrs, err := entry.numbers(resolve, func(name string, err error) {
			if logger != nil {
				logger.Debug("skip optional syscall", "source", f.source, "name", name, "error", err)
			}
		})
		if err != nil {
			return nil, f.errorf(i, "%w", err)
		}
		for _, nr := range nrs {
			if err := ctx.AddRules(nr, rules...); err != nil {
				return nil, err
			}
		}
	}
	return ctx, nil
}

func (f *File) errorf(entry int, format string, args ...any) error {
	return &Error{Source: f.source, Entry: entry, Err: fmt.Errorf(format, args...)}
}

// numbers 解析条目中的系统调用号
func (e *SyscallEntry) numbers(resolve Resolver, skipped func(string, error)) ([]int64, error) {
	set := 0
	if e.Name != "" {
		set++
	}
	if len(e.Names) > 0 {
		set++
	}
	if e.Nr != nil {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of name, names, nr is required", ErrInvalidEntry)
	}
	if e.Nr != nil {
		return []int64{*e.Nr}, nil
	}

	names := e.Names
	if e.Name != "" {
		names = []string{e.Name}
	}
	nrs := make([]int64, 0, len(names))
	for _, name := range names {
		nr, err := resolve(strings.TrimSpace(name))
		if err != nil {
			if e.Optional {
				skipped(name, err)
				continue
			}
			return nil, err
		}
		nrs = append(nrs, nr)
	}
	return nrs, nil
}

// rules 生成条目中的规则列表
func (e *SyscallEntry) rules() ([]seccomp.Rule, error) {
	switch {
	case e.Action != "" && len(e.Rules) > 0:
		return nil, fmt.Errorf("%w: action and rules are mutually exclusive", ErrInvalidEntry)
	case e.Action != "":
		act, err := parseAction(e.Action)
		if err != nil {
			return nil, err
		}
		return []seccomp.Rule{seccomp.NewRule(act)}, nil
	case len(e.Rules) == 0:
		return nil, fmt.Errorf("%w: action or rules is required", ErrInvalidEntry)
	}

	rules := make([]seccomp.Rule, 0, len(e.Rules))
	for j, r := range e.Rules {
		act, err := parseAction(r.Action)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", j, err)
		}
		conds := make([]seccomp.Condition, 0, len(r.Args))
		for k, a := range r.Args {
			cond, err := a.condition()
			if err != nil {
				return nil, fmt.Errorf("rules[%d].args[%d]: %w", j, k, err)
			}
			conds = append(conds, cond)
		}
		rules = append(rules, seccomp.NewRule(act, conds...))
	}
	return rules, nil
}

func parseAction(s string) (seccomp.Action, error) {
	act, err := seccomp.ParseAction(s)
	if err != nil {
		return seccomp.ActionInvalid, errors.Join(seccomp.ErrInvalidAction, err)
	}
	return act, nil
}

// condition 把 ArgEntry 转换为 seccomp.Condition
func (a ArgEntry) condition() (seccomp.Condition, error) {
	op := seccomp.CmpEq
	if a.Op != "" {
		var err error
		if op, err = seccomp.ParseCmpOp(a.Op); err != nil {
			return seccomp.Condition{}, errors.Join(seccomp.ErrInvalidOperator, err)
		}
	}

	var (
		cond seccomp.Condition
		err  error
	)
	switch {
	case op == seccomp.CmpMaskedEq:
		cond, err = seccomp.NewMaskedCondition(a.Index, a.Mask, a.Value)
	case a.Mask != 0:
		return seccomp.Condition{}, fmt.Errorf("%w: mask requires op masked_eq", seccomp.ErrInvalidOperator)
	default:
		cond, err = seccomp.NewCondition(a.Index, op, a.Value)
	}
	if err != nil {
		return seccomp.Condition{}, err
	}

	switch a.Width {
	case 0, 64:
		return cond, nil
	case 32:
		return cond.WithWidth(seccomp.Dword)
	default:
		return seccomp.Condition{}, fmt.Errorf("%w: width %d", seccomp.ErrInvalidOperator, a.Width)
	}
}
