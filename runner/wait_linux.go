package runner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Wait 等待 pid 结束并收集结果
// c 被取消时向 pid 发送 SIGKILL，此时结果为 StatusSignalled
//
// 先用 waitid(WNOWAIT) 等待退出而不回收，标记之后才由 wait4 回收，
// 因此 SIGKILL 不会发给一个已被回收并可能被复用的 pid
func Wait(c context.Context, pid int) (result Result) {
	k := &killer{pid: pid, kill: unix.Kill}
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-c.Done():
			k.cancel()
		case <-done:
		}
	}()

	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Result{Status: StatusRunnerError, Error: err.Error()}
		}
		break
	}
	k.reap()

	var (
		wstatus unix.WaitStatus
		rusage  unix.Rusage
	)
	for {
		_, err := unix.Wait4(pid, &wstatus, 0, &rusage)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Result{Status: StatusRunnerError, Error: err.Error()}
		}
		if wstatus.Exited() || wstatus.Signaled() {
			break
		}
	}

	result = Result{
		Time:   time.Duration(rusage.Utime.Nano()),
		Memory: Size(rusage.Maxrss << 10),
	}
	result.Status, result.ExitStatus = status(wstatus)
	return result
}

// killer 只在子进程被回收之前发送 SIGKILL
type killer struct {
	mu     sync.Mutex
	pid    int
	reaped bool
	kill   func(pid int, sig unix.Signal) error
}

// cancel 在子进程尚未回收时终止它
func (k *killer) cancel() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.reaped {
		k.kill(k.pid, unix.SIGKILL)
	}
}

// reap 标记子进程即将被回收，之后 cancel 不再发送信号
func (k *killer) reap() {
	k.mu.Lock()
	k.reaped = true
	k.mu.Unlock()
}

// status 把 wait4 的状态映射为 Status
func status(ws unix.WaitStatus) (Status, int) {
	if ws.Exited() {
		if ws.ExitStatus() != 0 {
			return StatusNonzeroExitStatus, ws.ExitStatus()
		}
		return StatusNormal, 0
	}
	sig := ws.Signal()
	switch sig {
	case unix.SIGXCPU:
		return StatusTimeLimitExceeded, int(sig)
	case unix.SIGXFSZ:
		return StatusOutputLimitExceeded, int(sig)
	case unix.SIGSYS:
		return StatusDisallowedSyscall, int(sig)
	default:
		return StatusSignalled, int(sig)
	}
}
