package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/communityforge/scout/internal/model"
)

// ErrNotFound reports a job identifier with no stored job.
var ErrNotFound = errors.New("jobs: not found")

// InvalidTransitionError reports a review action on a job outside
// ready_for_review. The job is left unchanged.
type InvalidTransitionError struct {
	From model.JobStatus
	To   model.JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("jobs: cannot transition %s to %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}

// Runner executes one pipeline invocation.
type Runner interface {
	Run(ctx context.Context, input model.RunInput) (*model.PipelineRun, error)
}

// Manager owns the job lifecycle. Each submitted job gets its own
// orchestration goroutine; the semaphore bounds how many run at once. Review
// calls only ever touch jobs in ready_for_review, so no cross-job locking is
// needed beyond the store's own.
type Manager struct {
	store      *Store
	runner     Runner
	sem        *semaphore.Weighted
	runTimeout time.Duration
}

// NewManager builds a Manager. maxConcurrent bounds simultaneous pipeline
// runs; runTimeout bounds one run (0 means no limit).
func NewManager(store *Store, runner Runner, maxConcurrent int64, runTimeout time.Duration) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Manager{
		store:      store,
		runner:     runner,
		sem:        semaphore.NewWeighted(maxConcurrent),
		runTimeout: runTimeout,
	}
}

// Submit registers a queued job and starts orchestration in the background.
// The returned job snapshot always has status queued; callers poll Get for
// progress.
func (m *Manager) Submit(input model.RunInput) model.Job {
	now := time.Now().UTC()
	job := model.Job{
		ID:        uuid.NewString(),
		Status:    model.JobQueued,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.store.Put(job)

	zap.L().Info("jobs: submitted",
		zap.String("job_id", job.ID),
		zap.String("city", input.City),
		zap.String("state", input.State),
		zap.String("category", string(input.Category)),
	)

	go m.execute(job.ID, input)
	return job
}

// Get returns the current job snapshot.
func (m *Manager) Get(id string) (model.Job, error) {
	job, ok := m.store.Get(id)
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return job, nil
}

// Approve transitions a ready_for_review job to approved, stamping the
// reviewer and approval time.
func (m *Manager) Approve(id, reviewer string) (model.Job, error) {
	return m.review(id, reviewer, model.JobApproved)
}

// Deny transitions a ready_for_review job to denied, stamping the reviewer
// and denial time.
func (m *Manager) Deny(id, reviewer string) (model.Job, error) {
	return m.review(id, reviewer, model.JobDenied)
}

func (m *Manager) review(id, reviewer string, to model.JobStatus) (model.Job, error) {
	return m.store.Update(id, func(job *model.Job) error {
		if job.Status != model.JobReadyForReview {
			return &InvalidTransitionError{From: job.Status, To: to}
		}
		now := time.Now().UTC()
		job.Status = to
		job.Reviewer = reviewer
		switch to {
		case model.JobApproved:
			job.ApprovedAt = &now
		case model.JobDenied:
			job.DeniedAt = &now
		}
		return nil
	})
}

// execute runs the pipeline for one job and records the outcome. A panic or
// error from the runner lands the job in failed; there is no automatic
// retry, the caller resubmits.
func (m *Manager) execute(id string, input model.RunInput) {
	ctx := context.Background()
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.fail(id, fmt.Sprintf("acquire run slot: %v", err))
		return
	}
	defer m.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("jobs: run panicked",
				zap.String("job_id", id),
				zap.Any("panic", r),
			)
			m.fail(id, fmt.Sprintf("panic: %v", r))
		}
	}()

	if m.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.runTimeout)
		defer cancel()
	}

	if _, err := m.store.Update(id, func(job *model.Job) error {
		job.Status = model.JobRunning
		return nil
	}); err != nil {
		return
	}

	run, err := m.runner.Run(ctx, input)
	if err != nil {
		zap.L().Warn("jobs: run failed",
			zap.String("job_id", id),
			zap.Error(err),
		)
		m.fail(id, err.Error())
		return
	}

	_, _ = m.store.Update(id, func(job *model.Job) error {
		job.Status = model.JobReadyForReview
		job.Output = run
		return nil
	})
	zap.L().Info("jobs: ready for review",
		zap.String("job_id", id),
		zap.Int("records", len(run.Extracted)),
	)
}

func (m *Manager) fail(id, msg string) {
	_, _ = m.store.Update(id, func(job *model.Job) error {
		job.Status = model.JobFailed
		job.Error = msg
		return nil
	})
}
