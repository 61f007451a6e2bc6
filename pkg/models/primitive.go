package models

import "time"

// PrimitiveExecution is the audit record of one primitive invocation attempt.
// It is the only durable trace of a primitive call outside the execution log;
// writing it is best-effort and never aborts a run.
type PrimitiveExecution struct {
	ID          string    `json:"id" db:"id"`                   // UUID
	ExecutionID string    `json:"execution_id" db:"execution_id"`
	Primitive   string    `json:"primitive" db:"primitive"`     // Primitive name
	Attempt     int       `json:"attempt" db:"attempt"`         // 1-based attempt number
	Input       JSONMap   `json:"input,omitempty" db:"input"`
	Output      JSON      `json:"output,omitempty" db:"output"`
	ErrorMsg    string    `json:"error,omitempty" db:"error_msg"`
	DurationMS  int64     `json:"duration_ms" db:"duration_ms"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
}

// RetryPolicy controls re-invocation of a primitive on retryable failures.
// A zero or one MaxAttempts means a single attempt with no retries.
type RetryPolicy struct {
	MaxAttempts int   `json:"max_attempts"`
	BackoffMS   int64 `json:"backoff_ms,omitempty"`
}

// Attempts returns the effective attempt budget.
func (p *RetryPolicy) Attempts() int {
	if p == nil || p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the delay between attempts.
func (p *RetryPolicy) Backoff() time.Duration {
	if p == nil || p.BackoffMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(p.BackoffMS) * time.Millisecond
}
