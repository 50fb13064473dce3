// Package pipeline sequences one discovery run: query generation, paced
// search fan-out, URL dedup, per-URL extraction, and artifact output.
// Everything inside a run is sequential; predictable ordering and rate-limit
// compliance matter more here than latency.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/communityforge/scout/internal/model"
	"github.com/communityforge/scout/internal/resilience"
	"github.com/communityforge/scout/internal/store"
	"github.com/communityforge/scout/pkg/jina"
)

const (
	defaultPerQuery   = 5
	defaultMaxURLs    = 10
	defaultQueryDelay = 2 * time.Second
)

// Extractor processes one URL into an extraction result.
type Extractor interface {
	Extract(ctx context.Context, url string, category model.Category) model.Extraction
}

// Config tunes one Orchestrator.
type Config struct {
	// QueryDelay is the minimum spacing between search calls.
	QueryDelay time.Duration
	// SearchRetries is the total attempt count per query, including the
	// first call.
	SearchRetries int
	// OutputDir receives the query and sanity artifacts for every run.
	// Empty disables artifact output.
	OutputDir string
	// History, when set, records every completed run.
	History store.Store
}

// Orchestrator runs the discovery pipeline. Construct with New; the zero
// value is not usable.
type Orchestrator struct {
	queries   QueryGenerator
	search    jina.Client
	extract   Extractor
	limiter   *rate.Limiter
	retries   int
	outputDir string
	history   store.Store
}

// New builds an Orchestrator from its collaborators.
func New(queries QueryGenerator, search jina.Client, extractor Extractor, cfg Config) *Orchestrator {
	delay := cfg.QueryDelay
	if delay <= 0 {
		delay = defaultQueryDelay
	}
	retries := cfg.SearchRetries
	if retries <= 0 {
		retries = 3
	}
	return &Orchestrator{
		queries:   queries,
		search:    search,
		extract:   extractor,
		limiter:   rate.NewLimiter(rate.Every(delay), 1),
		retries:   retries,
		outputDir: cfg.OutputDir,
		history:   cfg.History,
	}
}

// Run executes one pipeline invocation and returns an immutable result.
// Collaborator failures are scoped to their unit of work: a failed query
// yields an empty batch, a failed URL yields an empty record with the error
// recorded, and the run itself still succeeds.
func (o *Orchestrator) Run(ctx context.Context, input model.RunInput) (*model.PipelineRun, error) {
	if input.PerQuery <= 0 {
		input.PerQuery = defaultPerQuery
	}
	if input.MaxURLs <= 0 {
		input.MaxURLs = defaultMaxURLs
	}

	run := &model.PipelineRun{
		ID:        uuid.NewString(),
		Input:     input,
		StartedAt: time.Now().UTC(),
	}

	queries, err := o.queries.Queries(ctx, input)
	if err != nil {
		// Query generation degrades internally; an error here means even the
		// template path is broken and the run cannot proceed.
		return nil, err
	}
	run.Queries = queries

	run.SearchResults = o.searchAll(ctx, queries, input.PerQuery)
	run.CandidateURLs = mergeURLs(run.SearchResults, input.MaxURLs)

	zap.L().Info("pipeline: search complete",
		zap.String("run_id", run.ID),
		zap.Int("queries", len(run.Queries)),
		zap.Int("candidate_urls", len(run.CandidateURLs)),
	)

	run.Extracted = make([]model.Extraction, 0, len(run.CandidateURLs))
	for _, url := range run.CandidateURLs {
		run.Extracted = append(run.Extracted, o.extract.Extract(ctx, url, input.Category))
	}

	run.FinishedAt = time.Now().UTC()
	o.persist(ctx, run)
	return run, nil
}

// persist writes the run's artifacts and history row. Runs complete through
// every submission surface, so persistence happens here rather than in any
// one caller. Failures are logged; the run result itself is already built
// and partial output beats none.
func (o *Orchestrator) persist(ctx context.Context, run *model.PipelineRun) {
	if o.outputDir != "" {
		queryPath, sanityPath, err := WriteArtifacts(o.outputDir, run)
		if err != nil {
			zap.L().Warn("pipeline: writing artifacts failed",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		} else {
			zap.L().Info("pipeline: artifacts written",
				zap.String("run_id", run.ID),
				zap.String("query_file", queryPath),
				zap.String("sanity_file", sanityPath),
			)
		}
	}
	if o.history != nil {
		if err := o.history.SaveRun(ctx, run); err != nil {
			zap.L().Warn("pipeline: saving run history failed",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}
}

// searchAll issues each query in order, pacing calls with the limiter and
// retrying throttled or transient failures. A query that still fails after
// retries contributes an empty batch.
func (o *Orchestrator) searchAll(ctx context.Context, queries []string, perQuery int) []model.SearchBatch {
	out := make([]model.SearchBatch, 0, len(queries))
	for _, query := range queries {
		if err := o.limiter.Wait(ctx); err != nil {
			out = append(out, model.SearchBatch{Query: query, URLs: []string{}})
			continue
		}

		policy := resilience.DefaultPolicy("search")
		policy.Attempts = o.retries
		policy.ShouldRetry = jina.IsRetryable

		urls, err := resilience.Retry(ctx, policy, func(ctx context.Context) ([]string, error) {
			return o.search.Search(ctx, query, perQuery)
		})
		if err != nil {
			zap.L().Warn("pipeline: query failed after retries",
				zap.String("query", query),
				zap.Error(err),
			)
			urls = []string{}
		}
		out = append(out, model.SearchBatch{Query: query, URLs: urls})
	}
	return out
}

// mergeURLs flattens batches preserving query order and within-query order,
// coalescing duplicates to their first occurrence, capped at maxURLs.
func mergeURLs(batches []model.SearchBatch, maxURLs int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, maxURLs)
	for _, batch := range batches {
		for _, url := range batch.URLs {
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			out = append(out, url)
			if len(out) == maxURLs {
				return out
			}
		}
	}
	return out
}
