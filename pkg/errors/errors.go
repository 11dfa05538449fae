// Package errors 提供统一错误辅助，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误（可按需扩展错误码）
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")

	// ErrDuplicateID 消息 ID 已被某个 bucket 占用
	ErrDuplicateID = errors.New("duplicate message id")
	// ErrSendInFlight 已有一次发送未完成（send lock 被占用）
	ErrSendInFlight = errors.New("send already in flight")
	// ErrTransportClosed 传输层已关闭，无法发送
	ErrTransportClosed = errors.New("transport closed")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is 透传 errors.Is，调用方无需同时导入标准库 errors
func Is(err, target error) bool {
	return errors.Is(err, target)
}
