package xlog

import (
	"log/slog"
	"time"
)

// 日志字段的标准 key，跨包保持一致。
const (
	KeyError      = "error"
	KeyStack      = "stack"
	KeyDuration   = "duration"
	KeyComponent  = "component"
	KeyOperation  = "operation"
	KeyLockKey    = "lock_key"
	KeyGeneration = "generation"
	KeyAttempt    = "attempt"
	KeyDelay      = "delay"
	KeyWaited     = "waited"
	KeyWorker     = "worker"
)

// Err 创建错误属性。err 为 nil 时返回空属性（会被 slog 忽略）。
//
//	if err != nil {
//	    logger.Error(ctx, "operation failed", xlog.Err(err))
//	}
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性，输出人类可读格式（如 "1.5s"）。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 创建组件名属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 创建操作名属性
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// LockKey 创建被锁定的业务 key 属性
func LockKey(key string) slog.Attr {
	return slog.String(KeyLockKey, key)
}

// Attempt 创建尝试次数属性
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Delay 创建退避等待时长属性
func Delay(d time.Duration) slog.Attr {
	return slog.String(KeyDelay, d.String())
}

// Waited 创建累计等待时长属性
func Waited(d time.Duration) slog.Attr {
	return slog.String(KeyWaited, d.String())
}

// Worker 创建工作协程编号属性
func Worker(id int) slog.Attr {
	return slog.Int(KeyWorker, id)
}
