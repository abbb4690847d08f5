package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBuiltin 表示没有该名称的内置策略
	ErrUnknownBuiltin = errors.New("unknown builtin policy")
	// ErrUnknownFormat 表示无法根据扩展名判断文件格式
	ErrUnknownFormat = errors.New("unknown policy format")
	// ErrInvalidEntry 表示策略文件中的条目不完整或互相冲突
	ErrInvalidEntry = errors.New("invalid policy entry")
)

// Error 描述读取或解释策略文件时的错误
type Error struct {
	Source string // 文件路径或 builtin:<name>
	Entry  int    // syscalls 中的序号，-1 表示与具体条目无关
	Err    error
}

func (e *Error) Error() string {
	if e.Entry >= 0 {
		return fmt.Sprintf("%s: syscalls[%d]: %v", e.Source, e.Entry, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
