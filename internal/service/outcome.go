package service

import (
	"context"
	"errors"
)

// errRemoteDisabled 没有配置远程调用时的回退原因
var errRemoteDisabled = errors.New("remote call not configured")

// Outcome 远程结果或本地结果，二者必居其一
// Remote 为 false 时 Fallback 记录放弃远程结果的原因
type Outcome[T any] struct {
	Value    T
	Remote   bool
	Fallback error
}

// resolve 唯一的回退策略：远程调用只尝试一次，
// 未配置、出错或结果未通过 valid 校验时使用 local，不重试
func resolve[T any](
	ctx context.Context,
	remote func(context.Context) (T, error),
	valid func(T) error,
	local func() T,
) Outcome[T] {
	if remote == nil {
		return Outcome[T]{Value: local(), Fallback: errRemoteDisabled}
	}

	v, err := remote(ctx)
	if err == nil && valid != nil {
		err = valid(v)
	}
	if err != nil {
		return Outcome[T]{Value: local(), Fallback: err}
	}
	return Outcome[T]{Value: v, Remote: true}
}
