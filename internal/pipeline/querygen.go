package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/communityforge/scout/internal/model"
	"github.com/communityforge/scout/pkg/anthropic"
)

// queryCount is the fixed number of search queries per run. The query file
// artifact always has exactly this many lines.
const queryCount = 10

// QueryGenerator produces search queries for a run input.
type QueryGenerator interface {
	Queries(ctx context.Context, input model.RunInput) ([]string, error)
}

// TemplateQueryGenerator fills fixed phrasings with the city, state, and
// category label. It never fails and needs no network, so it doubles as the
// padding source when the model returns fewer than queryCount queries.
type TemplateQueryGenerator struct{}

func (TemplateQueryGenerator) Queries(_ context.Context, input model.RunInput) ([]string, error) {
	return templateQueries(input), nil
}

func templateQueries(input model.RunInput) []string {
	label := input.Category.Label()
	place := fmt.Sprintf("%s %s", input.City, input.State)
	return []string{
		fmt.Sprintf("%s in %s", label, place),
		fmt.Sprintf("%s near %s", label, place),
		fmt.Sprintf("%s %s hours", label, place),
		fmt.Sprintf("%s %s address and phone", label, place),
		fmt.Sprintf("free %s services %s", label, place),
		fmt.Sprintf("%s locations %s", label, place),
		fmt.Sprintf("%s %s how to get help", label, place),
		fmt.Sprintf("nonprofit %s %s", label, place),
		fmt.Sprintf("community %s programs %s", label, place),
		fmt.Sprintf("%s eligibility %s", label, place),
	}
}

// LLMQueryGenerator asks the model for localized query phrasings, then pads
// or trims the result to exactly queryCount using the template set. Model
// failure degrades to templates alone rather than failing the run.
type LLMQueryGenerator struct {
	Client    anthropic.Client
	Model     string
	MaxTokens int64
}

const queryGenPrompt = `Generate %d web search queries a person would use to find a %s in %s, %s.
Vary phrasing: include queries about hours, addresses, phone numbers, and eligibility.
Reply with ONLY a JSON array of %d strings.`

func (g *LLMQueryGenerator) Queries(ctx context.Context, input model.RunInput) ([]string, error) {
	maxTokens := g.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	var generated []string
	resp, err := g.Client.Complete(ctx, anthropic.CompletionRequest{
		Model:     g.Model,
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(queryGenPrompt,
				queryCount, input.Category.Label(), input.City, input.State, queryCount)},
		},
	})
	if err != nil {
		zap.L().Warn("pipeline: query generation failed, using templates",
			zap.Error(err),
		)
	} else {
		resp.Usage.LogCost(g.Model, "querygen")
		generated = parseQueryList(resp.Content)
	}

	return padQueries(generated, input), nil
}

// parseQueryList pulls a JSON string array out of model output, tolerating
// code fences and surrounding prose.
func parseQueryList(text string) []string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil
	}
	return out
}

// padQueries dedups and normalizes the generated list, tops it up from the
// template set, and trims to exactly queryCount non-empty lines.
func padQueries(generated []string, input model.RunInput) []string {
	seen := make(map[string]bool, queryCount)
	out := make([]string, 0, queryCount)

	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		if q == "" || seen[strings.ToLower(q)] || len(out) >= queryCount {
			return
		}
		seen[strings.ToLower(q)] = true
		out = append(out, q)
	}

	for _, q := range generated {
		add(q)
	}
	for _, q := range templateQueries(input) {
		add(q)
	}
	// Templates never collide with each other, so out is full here unless a
	// pathological input empties them; numbered variants close any gap.
	for i := 1; len(out) < queryCount; i++ {
		add(fmt.Sprintf("%s %s %s %d", input.Category.Label(), input.City, input.State, i))
	}
	return out
}
