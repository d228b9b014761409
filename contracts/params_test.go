package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestParamsToStruct(t *testing.T) {
	t.Run("converts scalar values", func(t *testing.T) {
		// Arrange
		params := ParamsDict{
			"name":    "district heating",
			"enabled": true,
			"count":   3,
			"limit":   int64(99),
			"ratio":   0.25,
			"empty":   nil,
		}

		// Act
		converted, err := ParamsToStruct(params)

		// Assert
		require.NoError(t, err)
		fields := converted.GetFields()
		assert.Equal(t, "district heating", fields["name"].GetStringValue())
		assert.True(t, fields["enabled"].GetBoolValue())
		assert.Equal(t, float64(3), fields["count"].GetNumberValue())
		assert.Equal(t, float64(99), fields["limit"].GetNumberValue())
		assert.Equal(t, 0.25, fields["ratio"].GetNumberValue())
		_, isNull := fields["empty"].GetKind().(*structpb.Value_NullValue)
		assert.True(t, isNull)
	})

	t.Run("converts time as RFC 3339 string", func(t *testing.T) {
		// Arrange
		start := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)

		// Act
		converted, err := ParamsToStruct(ParamsDict{"start": start})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "2024-03-15T12:30:00Z", converted.GetFields()["start"].GetStringValue())
	})

	t.Run("converts duration as milliseconds", func(t *testing.T) {
		// Act
		converted, err := ParamsToStruct(ParamsDict{"window": 90 * time.Second})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, float64(90000), converted.GetFields()["window"].GetNumberValue())
	})

	t.Run("converts nested maps and lists", func(t *testing.T) {
		// Arrange
		params := ParamsDict{
			"scenario": ParamsDict{"year": 2030},
			"stages":   []any{"warmup", 2, true},
		}

		// Act
		converted, err := ParamsToStruct(params)

		// Assert
		require.NoError(t, err)
		scenario := converted.GetFields()["scenario"].GetStructValue()
		require.NotNil(t, scenario)
		assert.Equal(t, float64(2030), scenario.GetFields()["year"].GetNumberValue())
		stages := converted.GetFields()["stages"].GetListValue().GetValues()
		require.Len(t, stages, 3)
		assert.Equal(t, "warmup", stages[0].GetStringValue())
		assert.Equal(t, float64(2), stages[1].GetNumberValue())
		assert.True(t, stages[2].GetBoolValue())
	})

	t.Run("rejects unsupported value type", func(t *testing.T) {
		// Act
		_, err := ParamsToStruct(ParamsDict{"bad": struct{}{}})

		// Assert
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedParamType)
		assert.Contains(t, err.Error(), `parameter "bad"`)
	})

	t.Run("rejects unsupported value nested in list", func(t *testing.T) {
		// Act
		_, err := ParamsToStruct(ParamsDict{"items": []any{"ok", make(chan int)}})

		// Assert
		assert.ErrorIs(t, err, ErrUnsupportedParamType)
	})
}

func TestEncodeParams(t *testing.T) {
	t.Run("empty params encode to nil", func(t *testing.T) {
		// Act
		data, err := EncodeParams(nil)

		// Assert
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("produces canonical JSON object", func(t *testing.T) {
		// Arrange
		params := ParamsDict{"name": "test", "count": 2}

		// Act
		data, err := EncodeParams(params)

		// Assert
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "test", decoded["name"])
		assert.Equal(t, float64(2), decoded["count"])
	})

	t.Run("propagates conversion errors", func(t *testing.T) {
		// Act
		_, err := EncodeParams(ParamsDict{"bad": struct{}{}})

		// Assert
		assert.ErrorIs(t, err, ErrUnsupportedParamType)
	})
}
