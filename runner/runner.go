// Package runner 描述在过滤器下启动的目标程序的运行结果
package runner

import (
	"context"
)

// Runner 接口定义了启动并等待目标程序的方法
type Runner interface {
	Run(context.Context) Result
}
