package query

import (
	"sync"
	"time"
)

// OpaqueFunc reports whether a value must be kept by reference when cloning.
type OpaqueFunc func(v any) bool

var (
	opaqueMu    sync.RWMutex
	opaqueFuncs = []OpaqueFunc{
		func(v any) bool {
			switch v.(type) {
			case time.Time, *time.Time:
				return true
			}
			return false
		},
	}
)

// RegisterOpaque declares additional leaf types that Clone must not descend into.
// Call it during init; registrations are global.
func RegisterOpaque(fn OpaqueFunc) {
	opaqueMu.Lock()
	defer opaqueMu.Unlock()
	opaqueFuncs = append(opaqueFuncs, fn)
}

func isOpaque(v any) bool {
	opaqueMu.RLock()
	defer opaqueMu.RUnlock()
	for _, fn := range opaqueFuncs {
		if fn(v) {
			return true
		}
	}
	return false
}

// Clone deep copies plain data (maps, slices, records, wheres). Opaque leaves and
// scalars are returned as is.
func Clone(v any) any {
	if v == nil || isOpaque(v) {
		return v
	}

	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case Record:
		out := make(Record, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	case []Record:
		out := make([]Record, len(t))
		for i, val := range t {
			out[i] = Clone(val).(Record)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case Where:
		return t.Clone()
	}

	return v
}
