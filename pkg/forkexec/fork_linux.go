package forkexec

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Start 通过 clone 创建子进程并执行 execve
// 子进程继承已安装的过滤器，返回子进程的 pid
//
// execve 成功时 close-on-exec 的管道被关闭，父进程读到 EOF；
// 失败时子进程把 ChildError 写入管道后退出
func (r *Runner) Start() (int, error) {
	if r.Installation == nil {
		return 0, &LaunchError{Op: "start", Err: ErrNotInstalled}
	}
	if len(r.Args) == 0 {
		return 0, &LaunchError{Op: "start", Err: ErrNotFound}
	}

	argv0, argv, env, err := prepareExec(r.Args, r.Env)
	if err != nil {
		return 0, &LaunchError{Op: "start", Path: r.Args[0], Err: err}
	}
	workdir, err := syscallStringFromString(r.WorkDir)
	if err != nil {
		return 0, &LaunchError{Op: "start", Path: r.Args[0], Err: err}
	}

	// p[0] 由父进程读取，p[1] 由子进程写入错误
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return 0, &LaunchError{Op: "pipe", Path: r.Args[0], Err: err}
	}

	r1, err1 := forkAndExecInChild(r, argv0, argv, env, workdir, p)

	afterFork()
	syscall.ForkLock.Unlock()

	pid, err := waitExec(p, int(r1), err1)
	if err != nil {
		return 0, &LaunchError{Op: "start", Path: r.Args[0], Err: err}
	}
	return pid, nil
}

// waitExec 等待子进程 execve 的结果
func waitExec(p [2]int, pid int, err1 syscall.Errno) (int, error) {
	var childErr ChildError

	unix.Close(p[1])
	defer unix.Close(p[0])

	if err1 != 0 {
		return 0, ChildError{Err: err1, Location: LocClone}
	}

	n, err := readChildErr(p[0], &childErr)
	if n == 0 && err == nil {
		return pid, nil
	}
	handleChildFailed(pid)
	if err != nil {
		return 0, err
	}
	if n != int(unsafe.Sizeof(childErr)) {
		return 0, ChildError{Err: syscall.EPIPE, Location: childErr.Location}
	}
	return 0, childErr
}

// readChildErr 读取子进程的错误信息，被 EINTR 中断时重试
func readChildErr(fd int, childErr *ChildError) (n int, err error) {
	for {
		n, err = readlen(fd, (*byte)(unsafe.Pointer(childErr)), int(unsafe.Sizeof(*childErr)))
		if err != syscall.EINTR {
			break
		}
	}
	return
}

// readlen 直接调用 read 系统调用
func readlen(fd int, p *byte, np int) (n int, err error) {
	r0, _, e1 := syscall.Syscall(syscall.SYS_READ, uintptr(fd), uintptr(unsafe.Pointer(p)), uintptr(np))
	n = int(r0)
	if e1 != 0 {
		err = syscall.Errno(e1)
	}
	return
}

// handleChildFailed 回收 execve 失败后已经退出的子进程，避免产生僵尸进程
func handleChildFailed(pid int) {
	var wstatus syscall.WaitStatus
	_, err := syscall.Wait4(pid, &wstatus, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &wstatus, 0, nil)
	}
}
