package seccomp

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/sys/unix"
)

// Action 定义了系统调用命中规则后的处理动作
// 低 16 位是动作类型，高 16 位是附加数据（errno、trace 消息等）
type Action uint32

// Action 常量定义
const (
	ActionInvalid    Action = iota // 无效动作
	ActionAllow                    // 允许系统调用
	ActionErrno                    // 返回错误码
	ActionTrace                    // 通知 ptrace 跟踪器
	ActionKill                     // 终止整个进程
	ActionTrap                     // 发送 SIGSYS 信号
	ActionLog                      // 记录日志后允许
	ActionKillThread               // 仅终止当前线程
)

const (
	// retActionMask 对应内核的 SECCOMP_RET_ACTION_FULL
	retActionMask = 0xffff0000

	// maxErrno 是按名称查找 errno 时的上界
	maxErrno = 4096
)

var actionNames = []string{
	"invalid",
	"allow",
	"errno",
	"trace",
	"kill",
	"trap",
	"log",
	"kill_thread",
}

// Errno 返回一个让系统调用以指定 errno 失败的动作
func Errno(errno uint16) Action {
	return ActionErrno.WithReturnCode(errno)
}

// Trace 返回一个携带消息 msg 通知跟踪器的动作
func Trace(msg uint16) Action {
	return ActionTrace.WithReturnCode(msg)
}

// ReturnCode 获取动作的返回码
func (a Action) ReturnCode() uint16 {
	return uint16(a >> 16)
}

// WithReturnCode 设置动作的返回码
func (a Action) WithReturnCode(code uint16) Action {
	return a.Action() | Action(code)<<16
}

// Action 获取基本动作（不包含返回码）
func (a Action) Action() Action {
	return Action(a & 0xffff)
}

// Valid 检查动作是否合法
// 只有 errno、trace 和 trap 可以携带返回码
func (a Action) Valid() bool {
	switch a.Action() {
	case ActionErrno, ActionTrace, ActionTrap:
		return true
	case ActionAllow, ActionKill, ActionLog, ActionKillThread:
		return a.ReturnCode() == 0
	default:
		return false
	}
}

// ReturnValue 返回 BPF 程序中 ret 指令使用的 32 位返回值
func (a Action) ReturnValue() uint32 {
	var base libseccomp.Action
	switch a.Action() {
	case ActionAllow:
		base = libseccomp.ActionAllow
	case ActionErrno:
		base = libseccomp.ActionErrno
	case ActionTrace:
		base = libseccomp.ActionTrace
	case ActionTrap:
		base = libseccomp.ActionTrap
	case ActionLog:
		base = libseccomp.ActionLog
	case ActionKillThread:
		base = libseccomp.ActionKillThread
	default:
		// 无效动作一律按终止进程处理
		base = libseccomp.ActionKillProcess
	}
	return uint32(base)&retActionMask | uint32(a.ReturnCode())
}

// ActionFromReturnValue 将 BPF 返回值还原为 Action
func ActionFromReturnValue(v uint32) Action {
	code := uint16(v)
	switch v & retActionMask {
	case uint32(libseccomp.ActionAllow) & retActionMask:
		return ActionAllow
	case uint32(libseccomp.ActionErrno) & retActionMask:
		return Errno(code)
	case uint32(libseccomp.ActionTrace) & retActionMask:
		return Trace(code)
	case uint32(libseccomp.ActionTrap) & retActionMask:
		return ActionTrap.WithReturnCode(code)
	case uint32(libseccomp.ActionLog) & retActionMask:
		return ActionLog
	case uint32(libseccomp.ActionKillThread) & retActionMask:
		return ActionKillThread
	case uint32(libseccomp.ActionKillProcess) & retActionMask:
		return ActionKill
	}
	return ActionInvalid
}

func (a Action) String() string {
	i := int(a.Action())
	if i >= len(actionNames) {
		return fmt.Sprintf("action(%#x)", uint32(a))
	}
	switch a.Action() {
	case ActionErrno, ActionTrace:
		return fmt.Sprintf("%s(%d)", actionNames[i], a.ReturnCode())
	case ActionTrap:
		if a.ReturnCode() != 0 {
			return fmt.Sprintf("%s(%d)", actionNames[i], a.ReturnCode())
		}
	}
	return actionNames[i]
}

// ParseAction 解析动作的文本表示
// 支持 allow、trap、kill、kill_thread、log，
// 以及 errno:N / errno:EPERM / errno(N)、trace:N 这样带返回码的形式
func ParseAction(s string) (Action, error) {
	name, arg := strings.ToLower(strings.TrimSpace(s)), ""
	if i := strings.IndexAny(name, ":("); i >= 0 {
		name, arg = name[:i], strings.TrimSuffix(name[i+1:], ")")
	}
	var act Action
	switch name {
	case "allow":
		act = ActionAllow
	case "errno":
		act = ActionErrno
	case "trace":
		act = ActionTrace
	case "kill", "kill_process":
		act = ActionKill
	case "trap":
		act = ActionTrap
	case "log":
		act = ActionLog
	case "kill_thread":
		act = ActionKillThread
	default:
		return ActionInvalid, fmt.Errorf("unknown action %q", s)
	}
	if arg == "" {
		if act == ActionErrno {
			return Errno(uint16(unix.EPERM)), nil
		}
		return act, nil
	}
	code, err := parseReturnCode(arg)
	if err != nil {
		return ActionInvalid, fmt.Errorf("action %q: %w", s, err)
	}
	act = act.WithReturnCode(code)
	if !act.Valid() {
		return ActionInvalid, fmt.Errorf("action %q does not take a return code", s)
	}
	return act, nil
}

// parseReturnCode 解析数字或 errno 名称（如 EPERM）
func parseReturnCode(s string) (uint16, error) {
	if n, err := strconv.ParseUint(s, 0, 16); err == nil {
		return uint16(n), nil
	}
	name := strings.ToUpper(s)
	for e := syscall.Errno(1); e < maxErrno; e++ {
		if unix.ErrnoName(e) == name {
			return uint16(e), nil
		}
	}
	return 0, fmt.Errorf("invalid return code %q", s)
}
