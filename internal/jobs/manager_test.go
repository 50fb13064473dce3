package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityforge/scout/internal/model"
)

// blockingRunner completes when released, returning either a run or an error.
type blockingRunner struct {
	release chan struct{}
	err     error

	mu    sync.Mutex
	count int
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) Run(_ context.Context, input model.RunInput) (*model.PipelineRun, error) {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
	<-r.release
	if r.err != nil {
		return nil, r.err
	}
	return &model.PipelineRun{ID: "run-1", Input: input}, nil
}

func testInput() model.RunInput {
	return model.RunInput{City: "Salem", State: "OR", Category: model.CategoryFoodBank}
}

// waitForStatus polls until the job reaches status or the deadline passes.
func waitForStatus(t *testing.T, m *Manager, id string, status model.JobStatus) model.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.Get(id)
		require.NoError(t, err)
		if job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := m.Get(id)
	t.Fatalf("job %s stuck in %s, wanted %s", id, job.Status, status)
	return model.Job{}
}

func TestSubmit_ReturnsQueuedImmediately(t *testing.T) {
	runner := newBlockingRunner()
	m := NewManager(NewStore(), runner, 1, 0)

	job := m.Submit(testInput())
	assert.Equal(t, model.JobQueued, job.Status)
	assert.NotEmpty(t, job.ID)
	assert.False(t, job.CreatedAt.IsZero())

	close(runner.release)
	waitForStatus(t, m, job.ID, model.JobReadyForReview)
}

func TestJob_ReachesReadyForReviewWithOutput(t *testing.T) {
	runner := newBlockingRunner()
	m := NewManager(NewStore(), runner, 1, 0)

	job := m.Submit(testInput())
	close(runner.release)

	done := waitForStatus(t, m, job.ID, model.JobReadyForReview)
	require.NotNil(t, done.Output)
	assert.Equal(t, "run-1", done.Output.ID)
	assert.Empty(t, done.Error)
}

func TestJob_RunnerErrorFails(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = errors.New("search provider unreachable")
	m := NewManager(NewStore(), runner, 1, 0)

	job := m.Submit(testInput())
	close(runner.release)

	done := waitForStatus(t, m, job.ID, model.JobFailed)
	assert.Contains(t, done.Error, "unreachable")
	assert.Nil(t, done.Output)
	assert.True(t, done.Status.Terminal())
}

func TestApprove_OnlyFromReadyForReview(t *testing.T) {
	runner := newBlockingRunner()
	m := NewManager(NewStore(), runner, 1, 0)

	job := m.Submit(testInput())

	// Still queued or running; the review gate must reject and leave the
	// status unchanged.
	_, err := m.Approve(job.ID, "casey")
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
	current, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, model.JobApproved, current.Status)

	close(runner.release)
	waitForStatus(t, m, job.ID, model.JobReadyForReview)

	approved, err := m.Approve(job.ID, "casey")
	require.NoError(t, err)
	assert.Equal(t, model.JobApproved, approved.Status)
	assert.Equal(t, "casey", approved.Reviewer)
	require.NotNil(t, approved.ApprovedAt)
	assert.Nil(t, approved.DeniedAt)
}

func TestDeny_StampsReviewerAndTime(t *testing.T) {
	runner := newBlockingRunner()
	m := NewManager(NewStore(), runner, 1, 0)

	job := m.Submit(testInput())
	close(runner.release)
	waitForStatus(t, m, job.ID, model.JobReadyForReview)

	denied, err := m.Deny(job.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.JobDenied, denied.Status)
	require.NotNil(t, denied.DeniedAt)

	// Terminal: a second review call is invalid.
	_, err = m.Approve(job.ID, "casey")
	assert.True(t, IsInvalidTransition(err))
}

func TestGet_UnknownID(t *testing.T) {
	m := NewManager(NewStore(), newBlockingRunner(), 1, 0)
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Approve("nope", "casey")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_BoundsConcurrentRuns(t *testing.T) {
	runner := newBlockingRunner()
	m := NewManager(NewStore(), runner, 1, 0)

	a := m.Submit(testInput())
	b := m.Submit(testInput())

	// Only one run slot: the second job stays short of the runner.
	time.Sleep(50 * time.Millisecond)
	runner.mu.Lock()
	started := runner.count
	runner.mu.Unlock()
	assert.Equal(t, 1, started)

	close(runner.release)
	waitForStatus(t, m, a.ID, model.JobReadyForReview)
	waitForStatus(t, m, b.ID, model.JobReadyForReview)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Put(model.Job{ID: "j1", Status: model.JobQueued})

	job, ok := store.Get("j1")
	require.True(t, ok)
	job.Status = model.JobFailed

	again, _ := store.Get("j1")
	assert.Equal(t, model.JobQueued, again.Status)
}
