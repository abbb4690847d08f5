package runner

import (
	"fmt"
	"strconv"
)

// Size 存储对象的字节数，例如内存或文件大小
// 同时实现了 pflag.Value，可以直接作为命令行参数
type Size uint64

// String 实现 stringer 接口用于打印
func (s Size) String() string {
	t := uint64(s)
	switch {
	case t < 1<<10:
		return fmt.Sprintf("%d B", t)
	case t < 1<<20:
		return fmt.Sprintf("%.1f KiB", float64(t)/float64(1<<10))
	case t < 1<<30:
		return fmt.Sprintf("%.1f MiB", float64(t)/float64(1<<20))
	default:
		return fmt.Sprintf("%.1f GiB", float64(t)/float64(1<<30))
	}
}

// Set 从字符串解析大小值，支持 k/m/g 后缀以及可选的 b
func (s *Size) Set(str string) error {
	in := str
	if str != "" {
		switch str[len(str)-1] {
		case 'b', 'B':
			str = str[:len(str)-1]
		}
	}

	factor := 0
	if str != "" {
		switch str[len(str)-1] {
		case 'k', 'K':
			factor = 10
			str = str[:len(str)-1]
		case 'm', 'M':
			factor = 20
			str = str[:len(str)-1]
		case 'g', 'G':
			factor = 30
			str = str[:len(str)-1]
		}
	}

	t, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q", in)
	}
	if t > (1<<64-1)>>factor {
		return fmt.Errorf("size %q overflows", in)
	}
	*s = Size(t << factor)
	return nil
}

// Type 实现 pflag.Value
func (s *Size) Type() string {
	return "size"
}

// Byte 返回字节大小
func (s Size) Byte() uint64 {
	return uint64(s)
}

// KiB 返回 KiB 大小
func (s Size) KiB() uint64 {
	return uint64(s) >> 10
}

// MiB 返回 MiB 大小
func (s Size) MiB() uint64 {
	return uint64(s) >> 20
}

// GiB 返回 GiB 大小
func (s Size) GiB() uint64 {
	return uint64(s) >> 30
}
