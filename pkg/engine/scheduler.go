package engine

import (
	"context"
	"strings"
	"time"

	"github.com/avenca/flowline/pkg/models"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// GetScheduledWorkflows returns the enabled workflows carrying a schedule
// trigger, for an external periodic caller.
func (e *Engine) GetScheduledWorkflows() ([]models.Workflow, error) {
	workflows, err := e.store.ListEnabledWorkflows()
	if err != nil {
		return nil, errors.Wrap(err, "list workflows")
	}
	var out []models.Workflow
	for _, wf := range workflows {
		if strings.TrimSpace(wf.Trigger.Schedule) != "" {
			out = append(out, wf)
		}
	}
	return out, nil
}

// ShouldRunScheduledWorkflow reports whether the workflow's cron schedule has
// come due since it was last checked. The first check for a workflow records
// a checkpoint and reports false, so a freshly loaded schedule does not fire
// retroactively. An unparsable spec reports false with an error.
func (e *Engine) ShouldRunScheduledWorkflow(wf models.Workflow, now time.Time) (bool, error) {
	spec := strings.TrimSpace(wf.Trigger.Schedule)
	if spec == "" {
		return false, nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return false, errors.Wrapf(err, "workflow %s schedule %q", wf.ID, spec)
	}

	e.mu.Lock()
	last, seen := e.lastDueAt[wf.ID]
	if !seen {
		e.lastDueAt[wf.ID] = now
		e.mu.Unlock()
		return false, nil
	}
	due := !sched.Next(last).After(now)
	if due {
		e.lastDueAt[wf.ID] = now
	}
	e.mu.Unlock()
	return due, nil
}

// triggerScheduled starts one execution for a due schedule.
func (e *Engine) triggerScheduled(wf models.Workflow, now time.Time) (string, error) {
	payload := map[string]interface{}{
		"schedule": wf.Trigger.Schedule,
		"due_at":   now.UTC().Format(time.RFC3339),
	}
	if !e.allowFire(wf) {
		return "", errors.Errorf("workflow %s is cooling down", wf.ID)
	}
	return e.accept(wf, TriggerKindSchedule, payload, "")
}

// RunScheduler drives schedule triggers for deployments without an external
// cron runner: every interval it loads scheduled workflows, evaluates which
// are due, and starts executions for them. Blocks until ctx is cancelled.
func (e *Engine) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			workflows, err := e.GetScheduledWorkflows()
			if err != nil {
				e.logger.Errorf("Scheduler failed to load workflows: %v", err)
				continue
			}
			for _, wf := range workflows {
				due, err := e.ShouldRunScheduledWorkflow(wf, now)
				if err != nil {
					e.logger.Errorf("Scheduler skipping workflow %s: %v", wf.ID, err)
					continue
				}
				if !due {
					continue
				}
				if _, err := e.triggerScheduled(wf, now); err != nil {
					e.logger.Errorf("Scheduler failed to trigger workflow %s: %v", wf.ID, err)
				}
			}
		}
	}
}
