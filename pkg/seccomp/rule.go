package seccomp

import "strings"

// Rule 是若干条件的合取（AND）以及全部满足时采取的动作
// 没有条件的规则总是命中
type Rule struct {
	conditions []Condition
	action     Action
}

// NewRule 创建一条规则，conditions 会被复制
func NewRule(action Action, conditions ...Condition) Rule {
	return Rule{
		conditions: append([]Condition(nil), conditions...),
		action:     action,
	}
}

// Action 返回规则的动作
func (r Rule) Action() Action {
	return r.action
}

// Conditions 返回条件的副本
func (r Rule) Conditions() []Condition {
	return append([]Condition(nil), r.conditions...)
}

// Unconditional 表示规则没有任何条件
func (r Rule) Unconditional() bool {
	return len(r.conditions) == 0
}

// Matches 按插入顺序计算所有条件，遇到不满足的条件立即返回 false
func (r Rule) Matches(args [MaxArgs]uint64) bool {
	for _, c := range r.conditions {
		if !c.Evaluate(args) {
			return false
		}
	}
	return true
}

func (r Rule) String() string {
	if r.Unconditional() {
		return "[] -> " + r.action.String()
	}
	s := make([]string, 0, len(r.conditions))
	for _, c := range r.conditions {
		s = append(s, c.String())
	}
	return "[" + strings.Join(s, " && ") + "] -> " + r.action.String()
}
