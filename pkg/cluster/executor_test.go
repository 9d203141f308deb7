package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
	"github.com/chaos-framework/chaos-orchestrator/pkg/clients"
	"github.com/chaos-framework/chaos-orchestrator/pkg/config"
)

func newTestExecutor() *Executor {
	return &Executor{Retries: 3, BaseDelay: 0, Timeout: 0}
}

func TestNewExecutor_FloorsRetriesAtOne(t *testing.T) {
	cfg := config.Default()
	cfg.RetryAttempts = 0
	assert.Equal(t, uint(1), NewExecutor(clients.ClientSets{}, cfg).Retries)

	cfg.RetryAttempts = -3
	assert.Equal(t, uint(1), NewExecutor(clients.ClientSets{}, cfg).Retries)

	cfg.RetryAttempts = 5
	assert.Equal(t, uint(5), NewExecutor(clients.ClientSets{}, cfg).Retries)
}

func TestExecute_ZeroRetriesStillRunsOnce(t *testing.T) {
	exec := &Executor{Retries: 0}

	calls := 0
	err := exec.Execute(context.Background(), Operation{
		Verb:   "delete",
		Target: "engine-cpu-hog",
		Run: func(ctx context.Context) error {
			calls++
			return errors.New("connection refused")
		},
	})
	require.Error(t, err, "a command that never ran must not report success")
	assert.Equal(t, 1, calls)

	calls = 0
	err = exec.Execute(context.Background(), Operation{
		Verb:   "get",
		Target: "engine-cpu-hog",
		Run: func(ctx context.Context) error {
			calls++
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	exec := newTestExecutor()

	calls := 0
	err := exec.Execute(context.Background(), Operation{
		Verb:   "get",
		Target: "engine-pod-delete",
		Run: func(ctx context.Context) error {
			calls++
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetriesUntilExhaustion(t *testing.T) {
	exec := newTestExecutor()

	calls := 0
	err := exec.Execute(context.Background(), Operation{
		Verb:   "patch",
		Target: "engine-cpu-hog",
		Run: func(ctx context.Context) error {
			calls++
			return errors.New("connection refused")
		},
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeExecutionError),
		"expected EXECUTION_ERROR, got %v", err)
}

func TestExecute_TransientFailureRecovers(t *testing.T) {
	exec := newTestExecutor()

	calls := 0
	err := exec.Execute(context.Background(), Operation{
		Verb:   "list",
		Target: "pods",
		Run: func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("etcdserver: leader changed")
			}
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_NotFoundIsNotRetried(t *testing.T) {
	exec := newTestExecutor()

	gr := schema.GroupResource{Group: "litmuschaos.io", Resource: "chaosengines"}
	calls := 0
	err := exec.Execute(context.Background(), Operation{
		Verb:   "delete",
		Target: "engine-gone",
		Run: func(ctx context.Context) error {
			calls++
			return k8serrors.NewNotFound(gr, "engine-gone")
		},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeNotFound),
		"expected NOT_FOUND, got %v", err)
}

func TestExecute_InvalidArgumentIsNotRetried(t *testing.T) {
	exec := newTestExecutor()

	calls := 0
	err := exec.Execute(context.Background(), Operation{
		Verb:   "apply",
		Target: "bogus",
		Run: func(ctx context.Context) error {
			calls++
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidArgument, Reason: "unsupported kind"}
		},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeInvalidArgument))
}

func TestExecute_AttemptTimeoutAbortsRetries(t *testing.T) {
	exec := newTestExecutor()
	exec.Timeout = 20 * time.Millisecond

	calls := 0
	err := exec.Execute(context.Background(), Operation{
		Verb:   "apply",
		Target: "slow-engine",
		Run: func(ctx context.Context) error {
			calls++
			<-ctx.Done()
			return ctx.Err()
		},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a timed out attempt must not be retried")
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeExecutionTimeout),
		"expected EXECUTION_TIMEOUT, got %v", err)
}

func TestExecute_ParentCancellationStopsRetries(t *testing.T) {
	exec := newTestExecutor()
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := exec.Execute(ctx, Operation{
		Verb:   "get",
		Target: "engine",
		Run: func(ctx context.Context) error {
			calls++
			cancel()
			return errors.New("interrupted")
		},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
