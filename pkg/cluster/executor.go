package cluster

import (
	"context"
	"fmt"
	"time"

	k8serrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
	"github.com/chaos-framework/chaos-orchestrator/pkg/clients"
	"github.com/chaos-framework/chaos-orchestrator/pkg/config"
	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
	"github.com/chaos-framework/chaos-orchestrator/pkg/utils/retry"
)

// Operation describes one logical cluster command (apply/get/patch/delete)
type Operation struct {
	Verb   string
	Target string
	Run    func(ctx context.Context) error
}

// Executor is the sole point of contact with the cluster control plane. Every
// command gets bounded retries with exponential backoff and a per-attempt
// wall-clock budget.
type Executor struct {
	Clients   clients.ClientSets
	Retries   uint
	BaseDelay time.Duration
	Timeout   time.Duration
}

// NewExecutor builds an Executor from the process configuration. The retry
// count is floored at one attempt, a command must always run at least once.
func NewExecutor(clientSets clients.ClientSets, cfg config.Config) *Executor {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		log.Warnf("Invalid retry attempts %v, falling back to a single attempt", attempts)
		attempts = 1
	}
	return &Executor{
		Clients:   clientSets,
		Retries:   uint(attempts),
		BaseDelay: time.Duration(cfg.RetryDelay) * time.Second,
		Timeout:   time.Duration(cfg.DefaultTimeout) * time.Second,
	}
}

// Execute runs the operation with retries, delay base*2^attempt between failed
// attempts. A per-attempt timeout surfaces immediately as EXECUTION_TIMEOUT,
// which is distinct from retry exhaustion (EXECUTION_ERROR). NotFound and
// invalid-argument errors are never retried.
func (e *Executor) Execute(ctx context.Context, op Operation) error {
	var timedOut bool

	attempts := e.Retries
	if attempts < 1 {
		attempts = 1
	}

	err := retry.
		Times(attempts).
		ExponentialBackoff(e.BaseDelay).
		BreakOn(func(err error) bool {
			return timedOut ||
				k8serrors.IsNotFound(err) ||
				cerrors.IsType(err, cerrors.ErrorTypeInvalidArgument) ||
				ctx.Err() != nil
		}).
		Try(func(attempt uint) error {
			attemptCtx := ctx
			cancel := func() {}
			if e.Timeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, e.Timeout)
			}
			defer cancel()

			err := op.Run(attemptCtx)
			if err == nil {
				return nil
			}
			if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				timedOut = true
				return cerrors.Error{
					ErrorCode: cerrors.ErrorTypeExecutionTimeout,
					Phase:     op.Verb,
					Target:    op.Target,
					Reason:    fmt.Sprintf("attempt exceeded the %v time budget", e.Timeout),
				}
			}
			log.Warnf("Command failed (attempt %v/%v): %v %v, err: %v", attempt+1, attempts, op.Verb, op.Target, err)
			return err
		})
	if err == nil {
		return nil
	}

	switch {
	case timedOut:
		log.Errorf("Command timed out: %v %v", op.Verb, op.Target)
		return err
	case k8serrors.IsNotFound(err):
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeNotFound,
			Phase:     op.Verb,
			Target:    op.Target,
			Reason:    err.Error(),
		}
	case cerrors.IsUserFriendly(err):
		return err
	default:
		log.Errorf("Command failed after %v attempts: %v %v, err: %v", attempts, op.Verb, op.Target, err)
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeExecutionError,
			Phase:     op.Verb,
			Target:    op.Target,
			Reason:    fmt.Sprintf("failed after %v attempts: %v", attempts, err),
		}
	}
}
