package motive

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
)

// Task identifies one analysis run to execute.
type Task struct {
	RunID    string `json:"run_id"`
	TenantID string `json:"tenant_id"`
}

// ErrInvalidTask is returned when a task misses its run or tenant.
var ErrInvalidTask = errors.New("invalid analysis task")

func (t Task) Validate() error {
	if strings.TrimSpace(t.RunID) == "" || strings.TrimSpace(t.TenantID) == "" {
		return ErrInvalidTask
	}
	return nil
}

// Marshal encodes the task as a queue message body.
func (t Task) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// ParseTask decodes a queue message body.
func ParseTask(body []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return Task{}, err
	}
	return t, t.Validate()
}

// Dispatcher hands a task to something that executes it detached from the
// caller. Dispatch must not block on the run itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

type DispatcherFunc func(ctx context.Context, task Task) error

func (f DispatcherFunc) Dispatch(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// Runner executes a task to completion.
type Runner func(ctx context.Context, task Task) error

// GoroutineDispatcher runs every task in its own goroutine. The tasks keep
// running after the dispatching context is cancelled.
type GoroutineDispatcher struct {
	run Runner
	wg  sync.WaitGroup
}

func NewGoroutineDispatcher(run Runner) *GoroutineDispatcher {
	return &GoroutineDispatcher{run: run}
}

func (d *GoroutineDispatcher) Dispatch(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	runCtx := context.WithoutCancel(ctx)
	d.wg.Go(func() {
		if err := d.run(runCtx, task); err != nil {
			logger.Error("[Motive][Dispatch] Run failed", "run_id", task.RunID, "err", err)
		}
	})
	return nil
}

// Wait blocks until every dispatched task returned.
func (d *GoroutineDispatcher) Wait() {
	d.wg.Wait()
}
