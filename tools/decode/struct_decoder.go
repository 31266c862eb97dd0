package decode

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Options 用于定制 Decode 行为。
type Options struct {
	// 宽松解码："123" -> int、1.0 -> int64 等。
	WeaklyTypedInput bool
	// 严格布尔：只有 JSON true 才解码为 true，其它任何值（"true"、1、null）都视为 false。
	StrictBool bool
}

// DefaultOptions 返回默认选项。
func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
	}
}

var timeType = reflect.TypeOf(time.Time{})

// DecodeMap decodes a generic JSON object into T using `json` tags.
func DecodeMap[T any](m map[string]any, opts ...Options) (*T, error) {
	if m == nil {
		return nil, fmt.Errorf("map is nil")
	}

	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var out T
	hooks := []mapstructure.DecodeHookFunc{
		timeHook(),
		floatToIntHook(),
		sliceAnyToSliceStringHook(),
		jsonRawStringToMapHook(),
	}
	if cfg.StrictBool {
		hooks = append([]mapstructure.DecodeHookFunc{strictBoolHook()}, hooks...)
	}

	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(hooks...),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return &out, nil
}

// -----------------------------
// 基础读取工具（动态场景常用）
// -----------------------------

// ReadString 读取 string 字段，缺失或类型不符返回 false。
func ReadString(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ReadMap 读取嵌套对象字段。
func ReadMap(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	sub, ok := v.(map[string]any)
	return sub, ok
}

// ReadMapSlice 读取对象数组字段，跳过非对象元素。
func ReadMapSlice(m map[string]any, key string) ([]map[string]any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, 0, len(arr))
	for _, it := range arr {
		if sub, ok := it.(map[string]any); ok {
			out = append(out, sub)
		}
	}
	return out, true
}

// ParseTime accepts RFC3339(Nano) strings, numeric strings and numbers as unix milliseconds.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z0700", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), true
		}
	case float64:
		return time.UnixMilli(int64(t)), true
	case int64:
		return time.UnixMilli(t), true
	case int:
		return time.UnixMilli(int64(t)), true
	case json.Number:
		if ms, err := t.Int64(); err == nil {
			return time.UnixMilli(ms), true
		}
	}
	return time.Time{}, false
}

// -----------------------------
// Decode Hooks
// -----------------------------

// timeHook：字符串/毫秒数字 -> time.Time，无法解析时给零值而不是报错。
func timeHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != timeType {
			return data, nil
		}
		ts, _ := ParseTime(data)
		return ts, nil
	}
}

// strictBoolHook：非 bool 输入一律解码为 false。
func strictBoolHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to.Kind() != reflect.Bool {
			return data, nil
		}
		b, ok := data.(bool)
		return ok && b, nil
	}
}

// floatToIntHook：把 float64 自动转为 int / int32 / int64。
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}

// sliceAnyToSliceStringHook：把 []any 自动转为 []string。
func sliceAnyToSliceStringHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.Slice || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
			return data, nil
		}
		src, ok := data.([]any)
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(src))
		for _, it := range src {
			switch v := it.(type) {
			case string:
				out = append(out, v)
			case json.Number:
				out = append(out, v.String())
			default:
				b, _ := json.Marshal(v)
				out = append(out, string(b))
			}
		}
		return out, nil
	}
}

// jsonRawStringToMapHook：把 JSON 字符串自动转为 map[string]any（用于某些嵌套字符串 JSON 字段）。
func jsonRawStringToMapHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String || to != reflect.Map {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(data.(string)), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
