// Package rlimit 描述启动目标程序时附加的资源限制
package rlimit

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// RLimits 是策略文件中 launch.rlimits 的内容
// 零值表示不限制对应资源
type RLimits struct {
	CPU          uint64 `yaml:"cpu" json:"cpu"`                     // CPU 时间（秒）
	CPUHard      uint64 `yaml:"cpu_hard" json:"cpu_hard"`           // 硬性 CPU 时间（秒）
	Data         uint64 `yaml:"data" json:"data"`                   // 数据段大小（字节）
	FileSize     uint64 `yaml:"file_size" json:"file_size"`         // 文件大小（字节）
	Stack        uint64 `yaml:"stack" json:"stack"`                 // 栈大小（字节）
	AddressSpace uint64 `yaml:"address_space" json:"address_space"` // 地址空间（字节）
	OpenFile     uint64 `yaml:"open_file" json:"open_file"`         // 打开文件数量
	DisableCore  bool   `yaml:"disable_core" json:"disable_core"`   // 禁用 core dump
}

// RLimit 是一项 setrlimit 设置
type RLimit struct {
	// Res 是资源类型（例如 unix.RLIMIT_CPU）
	Res int
	// Rlim 是应用到该资源的限制
	Rlim unix.Rlimit
}

var resourceNames = map[int]string{
	unix.RLIMIT_CPU:    "CPU",
	unix.RLIMIT_DATA:   "Data",
	unix.RLIMIT_FSIZE:  "File",
	unix.RLIMIT_STACK:  "Stack",
	unix.RLIMIT_AS:     "AddressSpace",
	unix.RLIMIT_NOFILE: "OpenFile",
	unix.RLIMIT_CORE:   "Core",
}

// PrepareRLimit 按固定顺序生成需要设置的 rlimit
func (r *RLimits) PrepareRLimit() []RLimit {
	var ret []RLimit
	add := func(res int, cur, max uint64) {
		ret = append(ret, RLimit{Res: res, Rlim: unix.Rlimit{Cur: cur, Max: max}})
	}

	if r.CPU > 0 {
		add(unix.RLIMIT_CPU, r.CPU, max(r.CPU, r.CPUHard))
	}
	for _, l := range []struct {
		res int
		v   uint64
	}{
		{unix.RLIMIT_DATA, r.Data},
		{unix.RLIMIT_FSIZE, r.FileSize},
		{unix.RLIMIT_STACK, r.Stack},
		{unix.RLIMIT_AS, r.AddressSpace},
		{unix.RLIMIT_NOFILE, r.OpenFile},
	} {
		if l.v > 0 {
			add(l.res, l.v, l.v)
		}
	}
	if r.DisableCore {
		add(unix.RLIMIT_CORE, 0, 0)
	}
	return ret
}

// Apply 在当前进程上设置所有限制，用于 exec 模式
// 限制会被 execve 之后的程序继承
func Apply(limits []RLimit) error {
	for _, l := range limits {
		rlim := l.Rlim
		if err := unix.Setrlimit(l.Res, &rlim); err != nil {
			return fmt.Errorf("setrlimit %v: %w", l, err)
		}
	}
	return nil
}

// String 返回 RLimit 的字符串表示
func (r RLimit) String() string {
	name, ok := resourceNames[r.Res]
	if !ok {
		name = fmt.Sprintf("Resource(%d)", r.Res)
	}
	switch r.Res {
	case unix.RLIMIT_CPU:
		return fmt.Sprintf("%s[%d s:%d s]", name, r.Rlim.Cur, r.Rlim.Max)
	case unix.RLIMIT_NOFILE:
		return fmt.Sprintf("%s[%d:%d]", name, r.Rlim.Cur, r.Rlim.Max)
	}
	return fmt.Sprintf("%s[%d]", name, r.Rlim.Cur)
}

// String 返回 RLimits 的字符串表示
func (r *RLimits) String() string {
	var s []string
	for _, l := range r.PrepareRLimit() {
		s = append(s, l.String())
	}
	return fmt.Sprintf("RLimits{%s}", strings.Join(s, ", "))
}
