package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communityforge/scout/internal/convo"
	"github.com/communityforge/scout/internal/model"
	"github.com/communityforge/scout/internal/render"
	"github.com/communityforge/scout/pkg/anthropic"
)

const renderToolName = "render_page"

const agentSystemPrompt = `You are a research assistant cataloging local social services.
Given a provider website, extract one JSON object describing the provider:
{"name": string, "description": string, "address": string,
 "location": {"lat": number, "lng": number} or null,
 "serviceCategory": string,
 "hoursOfOperation": {"periods": [{"open": {"day": 1, "time": "0900"}, "close": {"day": 1, "time": "1700"}}], "weekdayText": [string]},
 "contact": {"phone": string, "email": string, "website": string}}
Days are 0=Sunday through 6=Saturday; times are 4-digit 24-hour strings like "0900".
Use the render_page tool to fetch pages. Follow links for hours or contact info
when the landing page lacks them. When done, reply with ONLY the JSON object.`

const repairPrompt = `Your previous reply was not a single valid JSON object. ` +
	`Reply again with ONLY the JSON object, no prose and no code fences.`

// renderTool is the one tool exposed to the model.
var renderTool = anthropic.ToolDef{
	Name:        renderToolName,
	Description: "Fetch a URL in a headless browser and return the rendered page content.",
	Properties: map[string]any{
		"url": map[string]any{
			"type":        "string",
			"description": "Absolute URL to fetch.",
		},
	},
	Required: []string{"url"},
}

// runAgent drives the tool-use loop for one URL. It returns an error when the
// loop exhausts its turn budget, the model API fails, or the final reply
// cannot be parsed even after one repair turn.
func (e *Engine) runAgent(ctx context.Context, url string, category model.Category) (model.ServiceRecord, error) {
	window := convo.New()
	window.Append(
		model.SystemMessage(agentSystemPrompt),
		model.UserMessage(fmt.Sprintf("Extract the provider record for this %s: %s", category.Label(), url)),
	)

	repaired := false
	for turn := 0; turn < e.cfg.MaxAgentTurns; turn++ {
		resp, err := e.client.Complete(ctx, anthropic.CompletionRequest{
			Model:     e.cfg.Model,
			MaxTokens: e.cfg.MaxTokens,
			Messages:  toClientMessages(window.Tail(e.cfg.WindowLimit)),
			Tools:     []anthropic.ToolDef{renderTool},
		})
		if err != nil {
			return model.ServiceRecord{}, eris.Wrap(err, "extract: completion")
		}
		resp.Usage.LogCost(e.cfg.Model, "extract")

		if resp.ToolCall != nil {
			window.Append(model.AssistantMessage(resp.Content, model.ToolCall{
				ID:    resp.ToolCall.ID,
				Name:  resp.ToolCall.Name,
				Input: resp.ToolCall.Input,
			}))
			window.Append(model.ToolMessage(resp.ToolCall.ID, e.dispatchTool(ctx, resp.ToolCall)))
			continue
		}

		window.Append(model.AssistantMessage(resp.Content))
		rec, perr := parseRecord(resp.Content, category)
		if perr == nil {
			return rec, nil
		}
		if repaired {
			return model.ServiceRecord{}, eris.Wrap(perr, "extract: unusable agent output after repair")
		}
		zap.L().Debug("extract: agent output unparseable, requesting repair",
			zap.String("url", url),
		)
		window.Append(model.UserMessage(repairPrompt))
		repaired = true
	}

	return model.ServiceRecord{}, eris.Errorf("extract: agent exhausted %d turns", e.cfg.MaxAgentTurns)
}

// dispatchTool executes a model-issued tool call and serializes the outcome.
// Failures come back as a JSON error payload so the model can route around
// them instead of aborting the run.
func (e *Engine) dispatchTool(ctx context.Context, call *anthropic.ToolCall) string {
	if call.Name != renderToolName {
		return toolError(fmt.Sprintf("unknown tool %q", call.Name))
	}

	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(call.Input), &args); err != nil || strings.TrimSpace(args.URL) == "" {
		return toolError("render_page requires a url argument")
	}

	page, err := e.renderer.Render(ctx, args.URL, render.Options{})
	if err != nil {
		return toolError(fmt.Sprintf("render failed: %v", err))
	}
	return digestPage(page)
}

func toolError(msg string) string {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return string(out)
}

// pageDigest is the condensed page view handed back to the model. Links are
// capped; the conversation window truncates the rest if needed.
type pageDigest struct {
	URL            string           `json:"url"`
	FinalURL       string           `json:"finalUrl,omitempty"`
	HTTPStatus     int              `json:"httpStatus"`
	Title          string           `json:"title,omitempty"`
	Description    string           `json:"description,omitempty"`
	Text           string           `json:"text,omitempty"`
	Links          []model.Link     `json:"links,omitempty"`
	StructuredData []map[string]any `json:"structuredData,omitempty"`
}

const digestLinkCap = 40

func digestPage(page *model.RenderedPage) string {
	d := pageDigest{
		URL:            page.URL,
		FinalURL:       page.FinalURL,
		HTTPStatus:     page.HTTPStatus,
		Title:          page.Title,
		Description:    page.Description,
		Text:           page.Text,
		Links:          page.Links,
		StructuredData: page.StructuredData,
	}
	if len(d.Links) > digestLinkCap {
		d.Links = d.Links[:digestLinkCap]
	}
	out, err := json.Marshal(d)
	if err != nil {
		return toolError(fmt.Sprintf("serialize page: %v", err))
	}
	return string(out)
}

// toClientMessages converts transcript messages to the client's wire shape.
func toClientMessages(msgs []model.Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(msgs))
	for _, m := range msgs {
		cm := anthropic.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, anthropic.ToolCall{ID: tc.ID, Name: tc.Name, Input: tc.Input})
		}
		out = append(out, cm)
	}
	return out
}
