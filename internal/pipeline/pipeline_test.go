package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityforge/scout/internal/model"
	"github.com/communityforge/scout/internal/store"
	"github.com/communityforge/scout/pkg/anthropic"
	"github.com/communityforge/scout/pkg/jina"
)

// fakeSearch serves canned URL lists keyed by query, or a scripted error
// sequence when errs is set.
type fakeSearch struct {
	byQuery map[string][]string
	errs    []error
	calls   []string
}

func (f *fakeSearch) Search(_ context.Context, query string, count int) ([]string, error) {
	f.calls = append(f.calls, query)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	urls := f.byQuery[query]
	if len(urls) > count {
		urls = urls[:count]
	}
	return urls, nil
}

// fakeExtractor tags each URL without any real work.
type fakeExtractor struct {
	urls []string
}

func (f *fakeExtractor) Extract(_ context.Context, url string, category model.Category) model.Extraction {
	f.urls = append(f.urls, url)
	return model.Extraction{URL: url, Record: model.EmptyRecord(category), Method: model.MethodFallback}
}

func fastConfig() Config {
	return Config{QueryDelay: time.Millisecond, SearchRetries: 2}
}

func salemInput() model.RunInput {
	return model.RunInput{City: "Salem", State: "OR", Category: model.CategoryFoodBank, PerQuery: 3, MaxURLs: 10}
}

func TestMergeURLs_FirstSeenOrder(t *testing.T) {
	batches := []model.SearchBatch{
		{Query: "q1", URLs: []string{"a", "b"}},
		{Query: "q2", URLs: []string{"b", "c"}},
	}
	assert.Equal(t, []string{"a", "b", "c"}, mergeURLs(batches, 10))
}

func TestMergeURLs_CapsAtMax(t *testing.T) {
	batches := []model.SearchBatch{
		{Query: "q1", URLs: []string{"a", "b", "c", "d"}},
	}
	assert.Equal(t, []string{"a", "b"}, mergeURLs(batches, 2))
}

func TestTemplateQueries_ExactlyTen(t *testing.T) {
	qs, err := TemplateQueryGenerator{}.Queries(context.Background(), salemInput())
	require.NoError(t, err)
	require.Len(t, qs, queryCount)
	for _, q := range qs {
		assert.NotEmpty(t, strings.TrimSpace(q))
		assert.Contains(t, q, "Salem")
	}
}

func TestPadQueries_TopsUpAndTrims(t *testing.T) {
	padded := padQueries([]string{"food banks salem oregon", "food banks salem oregon", ""}, salemInput())
	require.Len(t, padded, queryCount)
	assert.Equal(t, "food banks salem oregon", padded[0])

	over := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		over = append(over, strings.Repeat("q", i+1))
	}
	assert.Len(t, padQueries(over, salemInput()), queryCount)
}

func TestRun_EndToEnd(t *testing.T) {
	input := salemInput()
	queries := templateQueries(input)
	search := &fakeSearch{byQuery: map[string][]string{
		queries[0]: {"https://a.org", "https://b.org"},
		queries[1]: {"https://b.org", "https://c.org"},
	}}
	extractor := &fakeExtractor{}
	orch := New(TemplateQueryGenerator{}, search, extractor, fastConfig())

	run, err := orch.Run(context.Background(), input)
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Len(t, run.Queries, queryCount)
	assert.Len(t, run.SearchResults, queryCount)
	assert.Equal(t, []string{"https://a.org", "https://b.org", "https://c.org"}, run.CandidateURLs)
	assert.Equal(t, run.CandidateURLs, extractor.urls)
	require.Len(t, run.Extracted, 3)
	for _, ex := range run.Extracted {
		assert.Equal(t, model.CategoryFoodBank, ex.Record.ServiceCategory)
	}
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestRun_RetriesThrottledQuery(t *testing.T) {
	input := salemInput()
	queries := templateQueries(input)
	search := &fakeSearch{
		byQuery: map[string][]string{queries[0]: {"https://a.org"}},
		errs:    []error{&jina.RateLimitError{StatusCode: 429}},
	}
	orch := New(TemplateQueryGenerator{}, search, &fakeExtractor{}, fastConfig())

	run, err := orch.Run(context.Background(), input)
	require.NoError(t, err)

	// First call throttled, second succeeds; the first query is issued twice.
	assert.Equal(t, queries[0], search.calls[0])
	assert.Equal(t, queries[0], search.calls[1])
	assert.Equal(t, []string{"https://a.org"}, run.SearchResults[0].URLs)
}

func TestRun_FailedQueryYieldsEmptyBatch(t *testing.T) {
	input := salemInput()
	search := &fakeSearch{errs: []error{
		&jina.StatusError{StatusCode: 401, Body: "bad key"},
	}}
	orch := New(TemplateQueryGenerator{}, search, &fakeExtractor{}, fastConfig())

	run, err := orch.Run(context.Background(), input)
	require.NoError(t, err)

	// Hard failure is not retried and does not abort the batch.
	assert.Empty(t, run.SearchResults[0].URLs)
	assert.Len(t, run.SearchResults, queryCount)
}

// fakeHistory records SaveRun calls.
type fakeHistory struct {
	saved []*model.PipelineRun
}

func (f *fakeHistory) SaveRun(_ context.Context, run *model.PipelineRun) error {
	f.saved = append(f.saved, run)
	return nil
}

func (f *fakeHistory) GetRun(context.Context, string) (*model.PipelineRun, error) {
	return nil, store.ErrRunNotFound
}

func (f *fakeHistory) ListRuns(context.Context, store.RunFilter) ([]model.PipelineRun, error) {
	return nil, nil
}

func (f *fakeHistory) Migrate(context.Context) error { return nil }
func (f *fakeHistory) Close() error                  { return nil }

func TestRun_PersistsArtifactsAndHistory(t *testing.T) {
	input := salemInput()
	queries := templateQueries(input)
	search := &fakeSearch{byQuery: map[string][]string{
		queries[0]: {"https://a.org"},
	}}

	dir := t.TempDir()
	history := &fakeHistory{}
	cfg := fastConfig()
	cfg.OutputDir = dir
	cfg.History = history
	orch := New(TemplateQueryGenerator{}, search, &fakeExtractor{}, cfg)

	// Persistence belongs to the run itself, not to any particular caller,
	// so a bare Run must leave both artifacts and a history row behind.
	run, err := orch.Run(context.Background(), input)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "salem_or_food_bank_queries.txt"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimRight(string(raw), "\n"), "\n"), queryCount)

	raw, err = os.ReadFile(filepath.Join(dir, "salem_or_food_bank_sanity.json"))
	require.NoError(t, err)
	var records []model.ServiceRecord
	require.NoError(t, json.Unmarshal(raw, &records))
	assert.Len(t, records, len(run.CandidateURLs))

	require.Len(t, history.saved, 1)
	assert.Equal(t, run.ID, history.saved[0].ID)
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	input := salemInput()
	run := &model.PipelineRun{
		ID:      "r1",
		Input:   input,
		Queries: templateQueries(input),
		Extracted: []model.Extraction{
			{URL: "https://a.org", Record: model.EmptyRecord(input.Category), Method: model.MethodFallback},
			{URL: "https://b.org", Record: model.EmptyRecord(input.Category), Method: model.MethodAgent},
		},
	}

	queryPath, sanityPath, err := WriteArtifacts(dir, run)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "salem_or_food_bank_queries.txt"), queryPath)

	raw, err := os.ReadFile(queryPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, queryCount)
	for _, line := range lines {
		assert.NotEmpty(t, line)
		assert.False(t, strings.HasPrefix(line, "1"), "queries must not be numbered: %q", line)
	}

	raw, err = os.ReadFile(sanityPath)
	require.NoError(t, err)
	var records []model.ServiceRecord
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, model.CategoryFoodBank, rec.ServiceCategory)
	}
}

// scriptedClient returns one canned completion.
type scriptedClient struct {
	content string
	err     error
}

func (s *scriptedClient) Complete(context.Context, anthropic.CompletionRequest) (*anthropic.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &anthropic.Completion{Content: s.content}, nil
}

func TestLLMQueryGenerator_PadsModelOutput(t *testing.T) {
	gen := &LLMQueryGenerator{
		Client: &scriptedClient{content: "Here you go:\n```json\n[\"food pantry salem\", \"salem or food boxes\"]\n```"},
		Model:  "claude-haiku-4-5-20251001",
	}
	qs, err := gen.Queries(context.Background(), salemInput())
	require.NoError(t, err)
	require.Len(t, qs, queryCount)
	assert.Equal(t, "food pantry salem", qs[0])
	assert.Equal(t, "salem or food boxes", qs[1])
}

func TestLLMQueryGenerator_ModelFailureFallsBackToTemplates(t *testing.T) {
	gen := &LLMQueryGenerator{
		Client: &scriptedClient{err: assert.AnError},
		Model:  "claude-haiku-4-5-20251001",
	}
	qs, err := gen.Queries(context.Background(), salemInput())
	require.NoError(t, err)
	assert.Equal(t, templateQueries(salemInput()), qs)
}
