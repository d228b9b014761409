package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ParamsDict holds free-form, workflow-specific job parameters. The value
// set is closed: string, bool, int, int64, float64, time.Time,
// time.Duration, nil, []any of these, and nested ParamsDict (or plain
// map[string]any). Anything else fails conversion.
type ParamsDict map[string]any

// ErrUnsupportedParamType marks a parameter value outside the closed
// variant set.
var ErrUnsupportedParamType = errors.New("contracts: unsupported parameter type")

// ParamsToStruct converts params into a protobuf Struct. Times render as
// RFC 3339 strings, durations as whole milliseconds.
func ParamsToStruct(params ParamsDict) (*structpb.Struct, error) {
	fields := make(map[string]*structpb.Value, len(params))
	for key, value := range params {
		converted, err := paramValue(value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		fields[key] = converted
	}
	return &structpb.Struct{Fields: fields}, nil
}

// paramValue dispatches exhaustively over the closed variant set.
func paramValue(value any) (*structpb.Value, error) {
	switch v := value.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case string:
		return structpb.NewStringValue(v), nil
	case bool:
		return structpb.NewBoolValue(v), nil
	case int:
		return structpb.NewNumberValue(float64(v)), nil
	case int64:
		return structpb.NewNumberValue(float64(v)), nil
	case float64:
		return structpb.NewNumberValue(v), nil
	case time.Time:
		return structpb.NewStringValue(v.UTC().Format(time.RFC3339)), nil
	case time.Duration:
		return structpb.NewNumberValue(float64(v.Milliseconds())), nil
	case []any:
		values := make([]*structpb.Value, 0, len(v))
		for i, element := range v {
			converted, err := paramValue(element)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			values = append(values, converted)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
	case ParamsDict:
		nested, err := ParamsToStruct(v)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(nested), nil
	case map[string]any:
		nested, err := ParamsToStruct(ParamsDict(v))
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(nested), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedParamType, value)
	}
}

// EncodeParams renders params in the canonical JSON form carried inside a
// JobSubmission. Empty params encode to nil.
func EncodeParams(params ParamsDict) (json.RawMessage, error) {
	if len(params) == 0 {
		return nil, nil
	}
	converted, err := ParamsToStruct(params)
	if err != nil {
		return nil, err
	}
	data, err := protojson.Marshal(converted)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	return data, nil
}
