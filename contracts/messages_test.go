package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	t.Run("job result survives the wire", func(t *testing.T) {
		// Arrange
		original := JobResult{
			JobID:      "8aae9bbe-7f46-4902-91f0-c6e427f59b2a",
			ResultType: JobResultSucceeded,
			Output:     "<esdl>result</esdl>",
			Logs:       "calculation finished",
		}

		// Act
		data, err := Encode(original)
		require.NoError(t, err)
		var decoded JobResult
		err = Decode(data, &decoded)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	})

	t.Run("submission omits unset optional fields", func(t *testing.T) {
		// Arrange
		submission := JobSubmission{
			JobID:        "job-1",
			WorkflowType: "grid_calculation",
			Input:        "<esdl/>",
		}

		// Act
		data, err := Encode(submission)

		// Assert
		require.NoError(t, err)
		assert.NotContains(t, string(data), "timeoutMs")
		assert.NotContains(t, string(data), "params")
	})

	t.Run("feedback severity travels as its string form", func(t *testing.T) {
		// Arrange
		feedback := FeedbackMessage{
			Message:  "pipe capacity exceeded",
			Severity: SeverityWarning,
			ObjectID: "pipe-17",
		}

		// Act
		data, err := Encode(feedback)
		require.NoError(t, err)
		var decoded FeedbackMessage
		err = Decode(data, &decoded)

		// Assert
		require.NoError(t, err)
		assert.Contains(t, string(data), `"WARNING"`)
		assert.Equal(t, feedback, decoded)
	})

	t.Run("decode rejects malformed payload", func(t *testing.T) {
		// Act
		var update JobStatusUpdate
		err := Decode([]byte("not json"), &update)

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode")
	})
}
