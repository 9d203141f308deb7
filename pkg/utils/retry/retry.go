package retry

import (
	"fmt"
	"time"
)

// Action defines the prototype of action function, function as a value
type Action func(attempt uint) error

// DelayFunc computes the wait duration before the next attempt
type DelayFunc func(attempt uint) time.Duration

// Model defines the schema, contains all the attributes need for retry
type Model struct {
	retry   uint
	delayFn DelayFunc
	breakOn func(error) bool
}

// Times is used to define the retry count
// it will run if the instance of model is not present before
func Times(retry uint) *Model {
	model := Model{}
	return model.Times(retry)
}

// Times is used to define the retry count
// it will run if the instance of model is already present
func (model *Model) Times(retry uint) *Model {
	model.retry = retry
	return model
}

// Wait is used to define a fixed wait duration between the iterations of retry
// it will run if the instance of model is not present before
func Wait(waitTime time.Duration) *Model {
	model := Model{}
	return model.Wait(waitTime)
}

// Wait is used to define a fixed wait duration between the iterations of retry
// it will run if the instance of model is already present
func (model *Model) Wait(waitTime time.Duration) *Model {
	model.delayFn = func(attempt uint) time.Duration {
		return waitTime
	}
	return model
}

// ExponentialBackoff waits baseDelay * 2^attempt between the iterations of retry
func ExponentialBackoff(baseDelay time.Duration) *Model {
	model := Model{}
	return model.ExponentialBackoff(baseDelay)
}

// ExponentialBackoff waits baseDelay * 2^attempt between the iterations of retry
// it will run if the instance of model is already present
func (model *Model) ExponentialBackoff(baseDelay time.Duration) *Model {
	model.delayFn = func(attempt uint) time.Duration {
		return baseDelay << attempt
	}
	return model
}

// BreakOn stops retrying as soon as the action returns an error matching the predicate
func (model *Model) BreakOn(predicate func(error) bool) *Model {
	model.breakOn = predicate
	return model
}

// Try is used to run a action with retries and some delay between each iteration.
// It returns immediately on success, so an action that passes on the first
// attempt never sleeps. The delay before attempt n+1 is delayFn(n).
func (model Model) Try(action Action) error {
	if action == nil {
		return fmt.Errorf("no action specified")
	}

	var err error
	for attempt := uint(0); attempt < model.retry; attempt++ {
		err = action(attempt)
		if err == nil {
			return nil
		}
		if model.breakOn != nil && model.breakOn(err) {
			return err
		}
		if attempt+1 < model.retry && model.delayFn != nil {
			if delay := model.delayFn(attempt); delay > 0 {
				time.Sleep(delay)
			}
		}
	}

	return err
}

// Attempts exposes the configured retry count
func (model Model) Attempts() uint {
	return model.retry
}

// DelayFor exposes the delay the model would sleep after the given attempt
func (model Model) DelayFor(attempt uint) time.Duration {
	if model.delayFn == nil {
		return 0
	}
	return model.delayFn(attempt)
}
