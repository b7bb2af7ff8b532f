package motive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/leaselock"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store"
)

const (
	DefaultSampleCap      = 25
	DefaultMaxPromptChars = 60000
)

var (
	// ErrRunFinished is returned when a run left the pending state.
	ErrRunFinished = errors.New("analysis run already finished")
	// ErrRunFailed wraps the error that moved a run to failed. Such runs
	// are never retried.
	ErrRunFailed = errors.New("analysis run failed")
)

// Locker serializes executions of the same run.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Config tunes the analyzer.
//
// SampleCap is the number of leading attendance ids per motive whose
// transcripts go into the prompt. MaxPromptChars bounds the conversations
// block of that prompt. RunTimeout, when positive, is a deadline for a whole
// run. ReuseCache copies a cached motive summary into the run instead of
// calling the model again.
type Config struct {
	SampleCap      int
	MaxPromptChars int
	RunTimeout     time.Duration
	ReuseCache     bool
	Model          string
	Temperature    float64
}

// Analyzer mines the transcripts of a run into one scenario summary per
// motive. Runs are strictly sequential.
type Analyzer struct {
	client     ai.CompletionClient
	store      store.AnalysisStore
	cfg        Config
	dispatcher Dispatcher
	locker     Locker
}

type AnalyzerOption func(*Analyzer)

// WithDispatcher replaces the in-process goroutine dispatcher, e.g. with a
// queue publisher.
func WithDispatcher(d Dispatcher) AnalyzerOption {
	return func(a *Analyzer) {
		a.dispatcher = d
	}
}

// WithLocker makes a second execution of a run that is still in progress
// return without doing anything.
func WithLocker(locker Locker) AnalyzerOption {
	return func(a *Analyzer) {
		a.locker = locker
	}
}

func NewAnalyzer(
	client ai.CompletionClient,
	analysisStore store.AnalysisStore,
	cfg Config,
	opts ...AnalyzerOption,
) *Analyzer {
	if cfg.SampleCap <= 0 {
		cfg.SampleCap = DefaultSampleCap
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = DefaultMaxPromptChars
	}
	a := &Analyzer{client: client, store: analysisStore, cfg: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(a)
	}
	if a.dispatcher == nil {
		a.dispatcher = NewGoroutineDispatcher(a.RunTask)
	}
	return a
}

// Start schedules the run and returns without waiting for it.
func (a *Analyzer) Start(ctx context.Context, runID, tenantID string) error {
	return a.dispatcher.Dispatch(ctx, Task{RunID: runID, TenantID: tenantID})
}

// RunTask is the Runner of a dispatched Task.
func (a *Analyzer) RunTask(ctx context.Context, task Task) error {
	return a.Run(ctx, task.RunID, task.TenantID)
}

// Run executes the analysis. A run that does not exist for the tenant or
// that is no longer pending is ignored. Per attendance and per motive
// failures are recorded as error entries; any other failure marks the run
// failed and is returned wrapped in ErrRunFailed. A run interrupted by the
// caller's cancellation stays pending and resumes on the next execution.
func (a *Analyzer) Run(ctx context.Context, runID, tenantID string) error {
	if a.locker == nil {
		return a.run(ctx, runID, tenantID)
	}
	err := a.locker.WithLease(ctx, "analysis-run:"+runID, leaselock.Options{}, func(ctx context.Context) error {
		return a.run(ctx, runID, tenantID)
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Info("[Motive][Run] Run is already executing, skipping", "run_id", runID, "tenant", tenantID)
		return nil
	}
	return err
}

func (a *Analyzer) run(parent context.Context, runID, tenantID string) error {
	ctx := parent
	if a.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, a.cfg.RunTimeout)
		defer cancel()
	}

	run, err := a.store.GetRun(ctx, runID, tenantID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		logger.Info("[Motive][Run] Run not found, skipping", "run_id", runID, "tenant", tenantID)
		return nil
	}
	if run.Status != common.RunStatusPending {
		logger.Info("[Motive][Run] Run already finished, skipping", "run_id", runID, "status", run.Status)
		return nil
	}

	start := time.Now()
	logger.Info("[Motive][Run] Starting analysis", "run_id", runID, "tenant", tenantID)

	if err := a.analyze(ctx, runID, tenantID); err != nil {
		if parent.Err() != nil {
			logger.Warn("[Motive][Run] Analysis interrupted", "run_id", runID, "err", err)
			return err
		}
		logger.Error("[Motive][Run] Analysis failed", "run_id", runID, "tenant", tenantID, "err", err)
		if statusErr := a.store.SetRunStatus(context.WithoutCancel(ctx), runID, common.RunStatusFailed); statusErr != nil {
			logger.Error("[Motive][Run] Could not mark run failed", "run_id", runID, "err", statusErr)
			return err
		}
		return fmt.Errorf("%w: %w", ErrRunFailed, err)
	}

	if err := a.store.SetRunStatus(ctx, runID, common.RunStatusCompleted); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	logger.Info("[Motive][Run] Analysis completed", "run_id", runID, "duration", time.Since(start).String())
	return nil
}

func (a *Analyzer) analyze(ctx context.Context, runID, tenantID string) error {
	motives, err := a.store.ListMotives(ctx, runID)
	if err != nil {
		return fmt.Errorf("list motives: %w", err)
	}

	for _, m := range motives {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.analyzeMotive(ctx, runID, tenantID, m); err != nil {
			return fmt.Errorf("motive %q: %w", m.Motive, err)
		}
	}
	return nil
}

func (a *Analyzer) analyzeMotive(ctx context.Context, runID, tenantID string, m common.MotiveCount) error {
	if a.cfg.ReuseCache {
		reused, err := a.reuseCache(ctx, runID, tenantID, m)
		if err != nil || reused {
			return err
		}
	}

	processed, err := a.store.GetProgress(ctx, runID, m.Motive)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	total := m.Total

	ids, err := a.store.ListAttendanceIDs(ctx, runID, m.Motive)
	if err != nil {
		return fmt.Errorf("list attendance ids: %w", err)
	}
	if len(ids) != total {
		logger.Warn("[Motive][Analyze] Attendance count changed", "motive", m.Motive, "total", total, "ids", len(ids))
		total = len(ids)
	}

	if err := a.setProgress(ctx, runID, m.Motive, total, processed); err != nil {
		return err
	}

	var samples []sample
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		sampled := i < a.cfg.SampleCap
		if i < processed && !sampled {
			continue
		}

		s, err := a.loadSample(ctx, runID, m.Motive, id)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn("[Motive][Analyze] Attendance failed", "motive", m.Motive, "attendance_id", id, "err", err)
			if err := a.appendError(ctx, runID, tenantID, m.Motive, &id, common.ErrCodeAttendanceProcess, err); err != nil {
				return err
			}
		case sampled:
			samples = append(samples, s)
		}

		processed = max(processed, i+1)
		if err := a.setProgress(ctx, runID, m.Motive, total, processed); err != nil {
			return err
		}
	}

	summary, err := a.summarize(ctx, m.Motive, samples)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn("[Motive][Analyze] Summary failed", "motive", m.Motive, "err", err)
		return a.appendError(ctx, runID, tenantID, m.Motive, nil, common.ErrCodeMotiveLLM, err)
	}

	err = a.store.UpsertResult(ctx, common.MotiveResult{
		RunID:    runID,
		TenantID: tenantID,
		Motive:   m.Motive,
		Summary:  summary,
		Status:   common.ResultStatusReady,
	})
	if err != nil {
		return fmt.Errorf("store result: %w", err)
	}

	if min(processed, total) >= total {
		err := a.store.UpsertCache(ctx, common.MotiveCache{TenantID: tenantID, Motive: m.Motive, Summary: summary})
		if err != nil {
			return fmt.Errorf("store cache: %w", err)
		}
	}

	logger.Info("[Motive][Analyze] Motive ready", "motive", m.Motive, "processed", min(processed, total), "samples", len(samples))
	return nil
}

func (a *Analyzer) reuseCache(ctx context.Context, runID, tenantID string, m common.MotiveCount) (bool, error) {
	cache, err := a.store.GetCache(ctx, tenantID, m.Motive)
	if err != nil {
		return false, fmt.Errorf("load cache: %w", err)
	}
	if cache == nil {
		return false, nil
	}
	if err := a.setProgress(ctx, runID, m.Motive, m.Total, m.Total); err != nil {
		return false, err
	}
	err = a.store.UpsertResult(ctx, common.MotiveResult{
		RunID:    runID,
		TenantID: tenantID,
		Motive:   m.Motive,
		Summary:  cache.Summary,
		Status:   common.ResultStatusReady,
	})
	if err != nil {
		return false, fmt.Errorf("store result: %w", err)
	}
	logger.Info("[Motive][Analyze] Reused cached summary", "motive", m.Motive)
	return true, nil
}

// setProgress persists min(processed, total).
func (a *Analyzer) setProgress(ctx context.Context, runID, motive string, total, processed int) error {
	err := a.store.SetProgress(ctx, common.MotiveProgress{
		RunID:                runID,
		Motive:               motive,
		TotalIDsDistinct:     total,
		ProcessedIDsDistinct: min(processed, total),
	})
	if err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

func (a *Analyzer) appendError(
	ctx context.Context,
	runID, tenantID, motive string,
	attendanceID *string,
	code string,
	cause error,
) error {
	err := a.store.AppendError(ctx, common.ErrorEntry{
		RunID:        runID,
		TenantID:     tenantID,
		AttendanceID: attendanceID,
		Motive:       motive,
		Code:         code,
		Reason:       cause.Error(),
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("store error entry: %w", errors.Join(err, cause))
	}
	return nil
}
