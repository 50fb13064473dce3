package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communityforge/scout/internal/extract"
	"github.com/communityforge/scout/internal/pipeline"
	"github.com/communityforge/scout/internal/render"
	"github.com/communityforge/scout/internal/store"
	"github.com/communityforge/scout/pkg/anthropic"
	"github.com/communityforge/scout/pkg/jina"
)

// env bundles the wired collaborators a command needs.
type env struct {
	Orchestrator *pipeline.Orchestrator
	Store        store.Store
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv builds the pipeline stack from config. Without an Anthropic key
// the agent path and LLM query generation are disabled and runs fall back
// to heuristics and query templates.
func initEnv(ctx context.Context) (*env, error) {
	var llm anthropic.Client
	if cfg.Anthropic.Key != "" {
		llm = anthropic.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Warn("no anthropic key configured, agent extraction disabled")
	}

	search := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.SearchBaseURL))
	browser := render.NewBrowser(
		time.Duration(cfg.Render.TimeoutSecs)*time.Second,
		cfg.Render.MaxTextBytes,
	)

	engine := extract.NewEngine(llm, browser, extract.Config{
		Model:         cfg.Anthropic.Model,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		MaxAgentTurns: cfg.Extract.MaxAgentTurns,
		WindowLimit:   cfg.Extract.WindowLimit,
		ProbeLimit:    cfg.Extract.ProbeLimit,
	})

	var queries pipeline.QueryGenerator = pipeline.TemplateQueryGenerator{}
	if llm != nil {
		queries = &pipeline.LLMQueryGenerator{
			Client:    llm,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		}
	}

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open run store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate run store")
	}

	orch := pipeline.New(queries, search, engine, pipeline.Config{
		QueryDelay:    time.Duration(cfg.Pipeline.QueryDelaySecs) * time.Second,
		SearchRetries: cfg.Pipeline.SearchRetries,
		OutputDir:     cfg.Output.Dir,
		History:       st,
	})

	return &env{Orchestrator: orch, Store: st}, nil
}
