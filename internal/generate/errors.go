package generate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownOperation 表示请求的操作键未注册。
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrOperationDisabled 表示操作已在配置中禁用。
	ErrOperationDisabled = errors.New("operation disabled")
)

// InputError 表示请求缺少或携带了非法的图像/参数，在任何远程调用之前返回。
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Reason)
}

func inputError(field, format string, args ...any) error {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
