package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityforge/scout/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleRun(id, city string) *model.PipelineRun {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.PipelineRun{
		ID: id,
		Input: model.RunInput{
			City:     city,
			State:    "OR",
			Category: model.CategoryFoodBank,
		},
		Queries:       []string{"food bank " + city},
		CandidateURLs: []string{"https://a.org"},
		Extracted: []model.Extraction{
			{URL: "https://a.org", Record: model.EmptyRecord(model.CategoryFoodBank), Method: model.MethodFallback},
		},
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-1", "Salem")
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "Salem", got.Input.City)
	require.Len(t, got.Extracted, 1)
	assert.Equal(t, model.MethodFallback, got.Extracted[0].Method)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_FilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := sampleRun("run-1", "Salem")
	older.FinishedAt = older.FinishedAt.Add(-time.Hour)
	require.NoError(t, s.SaveRun(ctx, older))
	require.NoError(t, s.SaveRun(ctx, sampleRun("run-2", "Salem")))
	require.NoError(t, s.SaveRun(ctx, sampleRun("run-3", "Eugene")))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	salem, err := s.ListRuns(ctx, RunFilter{City: "Salem"})
	require.NoError(t, err)
	require.Len(t, salem, 2)
	// Newest first.
	assert.Equal(t, "run-2", salem[0].ID)
	assert.Equal(t, "run-1", salem[1].ID)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
