package operation

import (
	"fmt"
	"strconv"
	"strings"
)

// ParamError 提供参数名与错误原因，便于 HTTP 层返回 400。
type ParamError struct {
	Field  string
	Reason string
}

func (e ParamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewParamError 创建参数错误。
func NewParamError(field, reason string) error {
	return ParamError{Field: field, Reason: reason}
}

// Params 是操作收到的原始字符串参数，键名不区分大小写。
type Params map[string]string

// String 返回去除首尾空白后的参数值，缺失时为空字符串。
func (p Params) String(name string) string {
	raw, _ := p.lookup(name)
	return strings.TrimSpace(raw)
}

// Bool 解析布尔参数，缺失或为空时返回 def。
func (p Params) Bool(name string, def bool) (bool, error) {
	raw, ok := p.lookup(name)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return def, nil
	}
	switch strings.ToLower(raw) {
	case "on", "yes", "y":
		return true, nil
	case "off", "no", "n":
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return def, NewParamError(name, fmt.Sprintf("invalid boolean %q", raw))
	}
	return value, nil
}

func (p Params) lookup(name string) (string, bool) {
	if v, ok := p[name]; ok {
		return v, true
	}
	for key, v := range p {
		if strings.EqualFold(key, name) {
			return v, true
		}
	}
	return "", false
}

// Toggle 是一个布尔开关及其对应的提示词片段。
type Toggle struct {
	Param   string
	Phrase  string
	Default bool
}

// Selected 按声明顺序返回被打开的开关片段。
func (p Params) Selected(toggles []Toggle) ([]string, error) {
	var out []string
	for _, t := range toggles {
		on, err := p.Bool(t.Param, t.Default)
		if err != nil {
			return nil, err
		}
		if on {
			out = append(out, t.Phrase)
		}
	}
	return out, nil
}

// ToggleSpecs 将开关转换为诊断用的参数描述。
func ToggleSpecs(toggles []Toggle) []ParamSpec {
	specs := make([]ParamSpec, len(toggles))
	for i, t := range toggles {
		specs[i] = ParamSpec{
			Name:        t.Param,
			Kind:        ParamBool,
			Default:     strconv.FormatBool(t.Default),
			Description: t.Phrase,
		}
	}
	return specs
}
