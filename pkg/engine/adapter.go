package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avenca/flowline/pkg/models"
	"github.com/avenca/flowline/pkg/storage"
	"github.com/google/uuid"
)

const (
	// default primitive timeout is 30s
	DefaultPrimitiveTimeout = 30 * time.Second
)

// PrimitiveAdapter executes named primitives: registry lookup, input schema
// validation, bounded-timeout invocation with retries on transient failures,
// and a best-effort audit record per attempt.
type PrimitiveAdapter struct {
	registry *Registry
	store    storage.Store
	logger   Logger
}

func NewPrimitiveAdapter(registry *Registry, store storage.Store, logger Logger) *PrimitiveAdapter {
	return &PrimitiveAdapter{
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// Execute runs one primitive to a single outcome. Retries are internal: the
// caller sees the final output or the exhausted error plus the number of
// attempts consumed, while the audit trail records every attempt. A nil
// override uses the primitive's own retry policy.
func (a *PrimitiveAdapter) Execute(ctx context.Context, name string, input map[string]interface{}, meta RunMeta, override *models.RetryPolicy) (interface{}, int, error) {
	def, err := a.registry.Get(name)
	if err != nil {
		return nil, 0, err
	}
	if err := def.Schema.Validate(name, input); err != nil {
		return nil, 0, err
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = DefaultPrimitiveTimeout
	}
	policy := def.Retry
	if override != nil {
		policy = override
	}
	maxAttempts := policy.Attempts()

	var output interface{}
	var invokeErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, invokeErr = a.invokeOnce(ctx, def, input, meta, timeout, attempt)
		if invokeErr == nil {
			return output, attempt, nil
		}
		if !IsRetryable(invokeErr) {
			return nil, attempt, invokeErr
		}
		if attempt < maxAttempts {
			a.logger.Infof("Retrying primitive %s (attempt %d/%d): %v", name, attempt, maxAttempts, invokeErr)
			select {
			case <-time.After(policy.Backoff()):
			case <-ctx.Done():
				return nil, attempt, invokeErr
			}
		}
	}
	a.logger.Infof("Primitive %s failed after %d attempts: %v", name, maxAttempts, invokeErr)
	return nil, maxAttempts, invokeErr
}

// invokeOnce runs a single attempt under its own timeout and records the
// audit entry regardless of outcome.
func (a *PrimitiveAdapter) invokeOnce(ctx context.Context, def PrimitiveDefinition, input map[string]interface{}, meta RunMeta, timeout time.Duration, attempt int) (interface{}, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	resultCh := make(chan struct {
		out interface{}
		err error
	}, 1)

	go func() {
		out, err := def.Invoke(attemptCtx, input, meta)
		resultCh <- struct {
			out interface{}
			err error
		}{out, err}
	}()

	var output interface{}
	var err error
	select {
	case r := <-resultCh:
		output, err = r.out, r.err
	case <-attemptCtx.Done():
		err = &TimeoutError{Primitive: def.Name, Timeout: timeout}
	}

	a.audit(def.Name, meta, input, output, err, attempt, time.Since(started), started)
	return output, err
}

// audit writes the primitive execution record. Failures are logged and
// swallowed: the audit trail must never abort a workflow run.
func (a *PrimitiveAdapter) audit(name string, meta RunMeta, input map[string]interface{}, output interface{}, invokeErr error, attempt int, took time.Duration, started time.Time) {
	entry := models.PrimitiveExecution{
		ID:          uuid.NewString(),
		ExecutionID: meta.ExecutionID,
		Primitive:   name,
		Attempt:     attempt,
		Input:       models.JSONMap(input),
		DurationMS:  took.Milliseconds(),
		StartedAt:   started,
	}
	if invokeErr != nil {
		entry.ErrorMsg = invokeErr.Error()
	} else if output != nil {
		if raw, err := json.Marshal(output); err == nil {
			entry.Output = models.JSON(raw)
		}
	}
	if err := a.store.RecordPrimitiveExecution(entry); err != nil {
		a.logger.Errorf("Failed to record primitive execution for %s: %v", name, err)
	}
}
