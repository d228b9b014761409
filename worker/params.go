package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField indicates a workflow config key is absent and no
	// default was given.
	ErrMissingField = errors.New("worker: missing workflow config field")
	// ErrWrongFieldType indicates a workflow config value has an
	// unexpected type and no default was given.
	ErrWrongFieldType = errors.New("worker: wrong workflow config field type")
)

// Parameter is the set of types a workflow config value may take.
type Parameter interface {
	~string | ~bool | ~int | ~float64
}

// ConfigParameter looks up key in a workflow config map. When the key is
// absent or holds a value of the wrong type, the optional default is
// returned instead; without a default the lookup fails. JSON numbers
// arrive as float64, so integer parameters accept floats and truncate
// them.
func ConfigParameter[T Parameter](config map[string]any, key string, defaultValue ...T) (T, error) {
	var zero T
	raw, ok := config[key]
	if !ok {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return zero, fmt.Errorf("%w: %q", ErrMissingField, key)
	}
	if value, ok := raw.(T); ok {
		return value, nil
	}
	if _, wantInt := any(zero).(int); wantInt {
		if f, ok := raw.(float64); ok {
			return any(int(f)).(T), nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return zero, fmt.Errorf("%w: %q holds %T", ErrWrongFieldType, key, raw)
}
