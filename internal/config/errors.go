package config

import "fmt"

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// operationField 拼接操作级字段路径，输出 Operation[xxx].Field 形式。
func operationField(key, field string) string {
	if key == "" {
		return fmt.Sprintf("Operation[].%s", field)
	}
	return fmt.Sprintf("Operation[%s].%s", key, field)
}
