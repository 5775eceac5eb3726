package executor

import (
	"fmt"
	"time"
)

// TimeoutError 表示任务在给定时间内没有完成；任务本身被放弃而不是被取消。
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %s", e.Timeout)
}

// PropagatedError 携带任务在超时前返回的原始错误。
type PropagatedError struct {
	Cause error
}

func (e *PropagatedError) Error() string {
	if e.Cause == nil {
		return "operation failed"
	}
	return "operation failed: " + e.Cause.Error()
}

func (e *PropagatedError) Unwrap() error {
	return e.Cause
}
