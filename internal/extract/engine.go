// Package extract turns a candidate URL into a normalized ServiceRecord,
// preferring a tool-using model agent and degrading to deterministic
// heuristics when the agent is unavailable or produces unusable output.
package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/communityforge/scout/internal/heuristics"
	"github.com/communityforge/scout/internal/model"
	"github.com/communityforge/scout/internal/render"
	"github.com/communityforge/scout/pkg/anthropic"
)

// Config bounds a single extraction.
type Config struct {
	// Model is the Anthropic model ID used for agent turns.
	Model string
	// MaxTokens caps each model reply.
	MaxTokens int64
	// MaxAgentTurns bounds the agent loop; the run fails over to heuristics
	// once exhausted.
	MaxAgentTurns int
	// WindowLimit is how many trailing transcript messages each model call
	// sees, before dependency widening.
	WindowLimit int
	// ProbeLimit bounds how many secondary links the fallback path renders
	// while hunting for opening hours.
	ProbeLimit int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "claude-haiku-4-5-20251001"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	if c.MaxAgentTurns <= 0 {
		c.MaxAgentTurns = 8
	}
	if c.WindowLimit <= 0 {
		c.WindowLimit = 20
	}
	if c.ProbeLimit <= 0 {
		c.ProbeLimit = 3
	}
	return c
}

// Engine is the dual-path extractor. A nil client disables the agent path
// and every URL goes straight to heuristics.
//
// Each path fetches pages through its own render calls; renders are never
// shared between the agent and fallback paths, so a URL that falls back is
// rendered twice.
type Engine struct {
	client   anthropic.Client
	renderer render.Renderer
	cfg      Config
}

// NewEngine builds an Engine. renderer is required; client may be nil.
func NewEngine(client anthropic.Client, renderer render.Renderer, cfg Config) *Engine {
	return &Engine{client: client, renderer: renderer, cfg: cfg.withDefaults()}
}

// Extract processes one URL end to end. It always returns a shape-complete
// extraction; collaborator failures surface as an empty record with the
// error recorded, never as a dropped URL.
func (e *Engine) Extract(ctx context.Context, url string, category model.Category) model.Extraction {
	if e.client != nil {
		rec, err := e.runAgent(ctx, url, category)
		if err == nil {
			return model.Extraction{URL: url, Record: rec, Method: model.MethodAgent}
		}
		zap.L().Warn("extract: agent path failed, falling back to heuristics",
			zap.String("url", url),
			zap.Error(err),
		)
	}
	return e.fallback(ctx, url, category)
}

// fallback renders the URL and applies the heuristic extractor. When the
// landing page yields no opening hours, a bounded number of likely
// secondary pages (hours, services, contact) are probed for them.
func (e *Engine) fallback(ctx context.Context, url string, category model.Category) model.Extraction {
	out := model.Extraction{URL: url, Method: model.MethodFallback, Record: model.EmptyRecord(category)}

	page, err := e.renderer.Render(ctx, url, render.Options{})
	if err != nil {
		out.Error = fmt.Sprintf("render: %v", err)
		return out
	}
	if page.HTTPStatus >= 400 {
		out.Error = fmt.Sprintf("render: upstream returned HTTP %d", page.HTTPStatus)
		return out
	}

	out.Record = heuristics.Extract(page, category)
	if len(out.Record.HoursOfOperation.WeekdayText) == 0 && len(out.Record.HoursOfOperation.Periods) == 0 {
		if hours, ok := e.probeForHours(ctx, page); ok {
			out.Record.HoursOfOperation = hours
		}
	}
	return out
}

// probeForHours renders ranked same-origin links until one produces hours.
// Probe failures are logged and skipped; they never fail the extraction.
func (e *Engine) probeForHours(ctx context.Context, page *model.RenderedPage) (model.Hours, bool) {
	links := heuristics.RankProbeLinks(page)
	if len(links) > e.cfg.ProbeLimit {
		links = links[:e.cfg.ProbeLimit]
	}
	for _, link := range links {
		sub, err := e.renderer.Render(ctx, link, render.Options{})
		if err != nil || sub.HTTPStatus >= 400 {
			zap.L().Debug("extract: hours probe failed",
				zap.String("url", link),
				zap.Error(err),
			)
			continue
		}
		hours := heuristics.ExtractHours(sub)
		if len(hours.WeekdayText) > 0 || len(hours.Periods) > 0 {
			return hours, true
		}
	}
	return model.Hours{}, false
}
