package cerrors

import (
	"encoding/json"
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/palantir/stacktrace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MarshalsToJSON(t *testing.T) {
	err := Error{
		ErrorCode: ErrorTypeWaitTimeout,
		Phase:     "await chaos",
		Target:    "engine-cpu-hog",
		Reason:    "condition not met within 300s",
	}

	assert.Equal(t,
		`{"errorCode":"WAIT_TIMEOUT","phase":"await chaos","target":"engine-cpu-hog","reason":"condition not met within 300s"}`,
		err.Error())
}

func TestError_OmitsEmptyFields(t *testing.T) {
	err := Error{ErrorCode: ErrorTypeInvalidArgument, Reason: "name cannot be empty"}
	assert.Equal(t,
		`{"errorCode":"INVALID_ARGUMENT","reason":"name cannot be empty"}`,
		err.Error())
}

func TestIsType(t *testing.T) {
	base := Error{ErrorCode: ErrorTypeNotFound, Reason: "engine missing"}

	assert.True(t, IsType(base, ErrorTypeNotFound))
	assert.False(t, IsType(base, ErrorTypeGeneric))
	assert.False(t, IsType(nil, ErrorTypeNotFound))

	// the code survives stacktrace propagation
	wrapped := stacktrace.Propagate(base, "failed to stop experiment")
	assert.True(t, IsType(wrapped, ErrorTypeNotFound))
}

func TestGetErrorType_ForeignError(t *testing.T) {
	err := errors.New("dial tcp: connection refused")
	assert.Equal(t, ErrorTypeNonUserFriendly, GetErrorType(err))
	assert.False(t, IsUserFriendly(err))
}

func TestGetRootCauseAndErrorCode(t *testing.T) {
	base := Error{ErrorCode: ErrorTypeExecutionError, Reason: "failed after 3 attempts"}
	wrapped := stacktrace.Propagate(base, "apply failed")

	reason, code := GetRootCauseAndErrorCode(wrapped)
	assert.Equal(t, ErrorTypeExecutionError, code)
	assert.Equal(t, base.Error(), reason)
}

func FuzzError(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		targetStruct := &struct {
			customError Error
		}{}
		if err := fuzzConsumer.GenerateStruct(targetStruct); err != nil {
			return
		}
		rendered := targetStruct.customError.Error()

		var decoded Error
		require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
		// rendering is stable across a decode cycle
		require.Equal(t, rendered, decoded.Error())
	})
}
