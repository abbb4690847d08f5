package seccomp

import (
	"errors"
	"fmt"
)

// 构建策略时可能出现的错误
var (
	ErrInvalidArgument            = errors.New("argument index out of range")
	ErrInvalidOperator            = errors.New("operator incompatible with value")
	ErrInvalidAction              = errors.New("invalid action")
	ErrInvalidSyscall             = errors.New("invalid syscall number")
	ErrEmptyRules                 = errors.New("empty rule list")
	ErrDuplicateUnconditionalRule = errors.New("syscall already ends with an unconditional rule")
	ErrUnconditionalRuleNotLast   = errors.New("unconditional rule must be the last rule")
	ErrTooManySyscalls            = errors.New("too many syscalls")
	ErrTooManyRules               = errors.New("too many rules for syscall")
	ErrTooManyConditions          = errors.New("too many conditions in rule")
	ErrFrozen                     = errors.New("context is frozen")
)

// 编译时可能出现的错误
var (
	ErrAlreadyFrozen   = errors.New("context already frozen")
	ErrProgramTooLarge = errors.New("program exceeds instruction limit")
	ErrJumpOutOfRange  = errors.New("jump offset out of range")
	ErrUnknownLabel    = errors.New("unknown label")
)

// PolicyError 描述构建策略时的错误
// 包含三个字段：
// - Syscall: 出错的系统调用号（-1 表示与具体系统调用无关）
// - Rule: 出错规则在本次添加中的序号（-1 表示与具体规则无关）
// - Err: 具体原因，可以用 errors.Is 与上面的错误比较
type PolicyError struct {
	Syscall int64
	Rule    int
	Err     error
}

func (e *PolicyError) Error() string {
	switch {
	case e.Syscall < 0:
		return fmt.Sprintf("policy: %v", e.Err)
	case e.Rule < 0:
		return fmt.Sprintf("policy: syscall %d: %v", e.Syscall, e.Err)
	default:
		return fmt.Sprintf("policy: syscall %d: rule %d: %v", e.Syscall, e.Rule, e.Err)
	}
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// CompileError 描述编译阶段的错误
type CompileError struct {
	Err    error
	Detail string
}

func (e *CompileError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("compile: %v: %s", e.Err, e.Detail)
	}
	return fmt.Sprintf("compile: %v", e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func policyError(nr int64, rule int, err error) error {
	return &PolicyError{Syscall: nr, Rule: rule, Err: err}
}
