package adapters

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// ToLong encodes t as epoch milliseconds. A zero time is "unset" and reports
// false so callers skip the write.
func ToLong(t time.Time) (int64, bool) {
	if t.IsZero() {
		return 0, false
	}
	return t.UnixMilli(), true
}

// ToTime decodes epoch milliseconds into a UTC time. Absent or non-numeric
// values decode to the zero time.
func ToTime(v any) time.Time {
	ms, ok := Scalar[int64](v)
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Scalar extracts a single value of type T. Multi values yield their first
// element. Integers of any width convert to the requested integer type.
func Scalar[T any](v any) (T, bool) {
	var zero T
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return zero, false
		}
		v = list[0]
	}
	if v == nil {
		return zero, false
	}
	if out, ok := v.(T); ok {
		return out, true
	}
	switch any(zero).(type) {
	case int64:
		if n, ok := asInt64(v); ok {
			return any(n).(T), true
		}
	case int:
		if n, ok := asInt64(v); ok {
			return any(int(n)).(T), true
		}
	}
	return zero, false
}

// List extracts every value of type T, skipping values of other types. A
// scalar yields a one-element list; nil yields nil.
func List[T any](v any) []T {
	if v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if x, ok := Scalar[T](item); ok {
			out = append(out, x)
		}
	}
	return out
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// EncodeChecksums renders algorithm→digest pairs as "{algorithm}digest",
// sorted by algorithm.
func EncodeChecksums(checksums map[string]string) []string {
	out := make([]string, 0, len(checksums))
	for _, algo := range slices.Sorted(maps.Keys(checksums)) {
		out = append(out, "{"+algo+"}"+checksums[algo])
	}
	return out
}

// DecodeChecksums parses values produced by EncodeChecksums. Malformed
// entries are ignored.
func DecodeChecksums(values []string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		if !strings.HasPrefix(v, "{") {
			continue
		}
		end := strings.IndexByte(v, '}')
		if end <= 1 {
			continue
		}
		out[v[1:end]] = v[end+1:]
	}
	return out
}
