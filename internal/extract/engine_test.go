package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityforge/scout/internal/model"
	"github.com/communityforge/scout/internal/render"
	"github.com/communityforge/scout/pkg/anthropic"
)

// fakeClient replays scripted completions in order.
type fakeClient struct {
	replies  []*anthropic.Completion
	err      error
	requests []anthropic.CompletionRequest
}

func (f *fakeClient) Complete(_ context.Context, req anthropic.CompletionRequest) (*anthropic.Completion, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return &anthropic.Completion{Content: "{}"}, nil
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return next, nil
}

// fakeRenderer serves canned pages by URL.
type fakeRenderer struct {
	pages    map[string]*model.RenderedPage
	err      error
	rendered []string
}

func (f *fakeRenderer) Render(_ context.Context, url string, _ render.Options) (*model.RenderedPage, error) {
	f.rendered = append(f.rendered, url)
	if f.err != nil {
		return nil, f.err
	}
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return &model.RenderedPage{URL: url, HTTPStatus: 404}, nil
}

const goodJSON = `{"name":"Hope Pantry","description":"Weekly groceries.",` +
	`"address":"12 Oak St, Salem, OR 97301","location":{"lat":44.9,"lng":-123.0},` +
	`"serviceCategory":"FOOD_BANK","hoursOfOperation":{"periods":[],"weekdayText":["Monday: 9:00 AM - 5:00 PM"]},` +
	`"contact":{"phone":"503-555-0101","email":"","website":"https://hopepantry.org"}}`

func TestExtract_AgentDirectAnswer(t *testing.T) {
	client := &fakeClient{replies: []*anthropic.Completion{{Content: goodJSON}}}
	eng := NewEngine(client, &fakeRenderer{}, Config{})

	out := eng.Extract(context.Background(), "https://hopepantry.org", model.CategoryFoodBank)

	assert.Equal(t, model.MethodAgent, out.Method)
	assert.Empty(t, out.Error)
	assert.Equal(t, "Hope Pantry", out.Record.Name)
	assert.Equal(t, model.CategoryFoodBank, out.Record.ServiceCategory)
	require.NotNil(t, out.Record.Location)
	assert.InDelta(t, 44.9, out.Record.Location.Lat, 1e-9)
}

func TestExtract_AgentToolLoop(t *testing.T) {
	client := &fakeClient{replies: []*anthropic.Completion{
		{ToolCall: &anthropic.ToolCall{ID: "tc1", Name: renderToolName, Input: `{"url":"https://hopepantry.org"}`}},
		{Content: "```json\n" + goodJSON + "\n```"},
	}}
	renderer := &fakeRenderer{pages: map[string]*model.RenderedPage{
		"https://hopepantry.org": {URL: "https://hopepantry.org", HTTPStatus: 200, Title: "Hope Pantry"},
	}}
	eng := NewEngine(client, renderer, Config{})

	out := eng.Extract(context.Background(), "https://hopepantry.org", model.CategoryFoodBank)

	assert.Equal(t, model.MethodAgent, out.Method)
	assert.Equal(t, "Hope Pantry", out.Record.Name)
	assert.Equal(t, []string{"https://hopepantry.org"}, renderer.rendered)

	// The second call's transcript must include the tool result turn.
	require.Len(t, client.requests, 2)
	last := client.requests[1].Messages
	var sawTool bool
	for _, m := range last {
		if m.Role == "tool" && m.ToolCallID == "tc1" {
			sawTool = true
		}
	}
	assert.True(t, sawTool)
}

func TestExtract_RepairTurnRecovers(t *testing.T) {
	client := &fakeClient{replies: []*anthropic.Completion{
		{Content: "no json here at all"},
		{Content: goodJSON},
	}}
	eng := NewEngine(client, &fakeRenderer{}, Config{})

	out := eng.Extract(context.Background(), "https://hopepantry.org", model.CategoryFoodBank)

	assert.Equal(t, model.MethodAgent, out.Method)
	assert.Equal(t, "Hope Pantry", out.Record.Name)
	require.Len(t, client.requests, 2)
	msgs := client.requests[1].Messages
	assert.Equal(t, repairPrompt, msgs[len(msgs)-1].Content)
}

func TestExtract_RepairFailsOverToFallback(t *testing.T) {
	client := &fakeClient{replies: []*anthropic.Completion{
		{Content: "still not json"},
		{Content: "again not json"},
	}}
	renderer := &fakeRenderer{pages: map[string]*model.RenderedPage{
		"https://hopepantry.org": {
			URL:        "https://hopepantry.org",
			HTTPStatus: 200,
			Title:      "Hope Pantry",
		},
	}}
	eng := NewEngine(client, renderer, Config{})

	out := eng.Extract(context.Background(), "https://hopepantry.org", model.CategoryFoodBank)

	assert.Equal(t, model.MethodFallback, out.Method)
	assert.Equal(t, "Hope Pantry", out.Record.Name)
	// Exactly one repair turn before giving up on the agent.
	assert.Len(t, client.requests, 2)
}

func TestExtract_APIErrorFallsBack(t *testing.T) {
	client := &fakeClient{err: errors.New("model overloaded")}
	renderer := &fakeRenderer{pages: map[string]*model.RenderedPage{
		"https://hopepantry.org": {URL: "https://hopepantry.org", HTTPStatus: 200, Title: "Hope Pantry"},
	}}
	eng := NewEngine(client, renderer, Config{})

	out := eng.Extract(context.Background(), "https://hopepantry.org", model.CategoryFoodBank)

	assert.Equal(t, model.MethodFallback, out.Method)
	assert.Equal(t, "Hope Pantry", out.Record.Name)
}

func TestExtract_NilClientGoesStraightToFallback(t *testing.T) {
	renderer := &fakeRenderer{pages: map[string]*model.RenderedPage{
		"https://hopepantry.org": {URL: "https://hopepantry.org", HTTPStatus: 200, Title: "Hope Pantry"},
	}}
	eng := NewEngine(nil, renderer, Config{})

	out := eng.Extract(context.Background(), "https://hopepantry.org", model.CategoryFoodBank)
	assert.Equal(t, model.MethodFallback, out.Method)
}

func TestExtract_RenderFailureYieldsEmptyShell(t *testing.T) {
	renderer := &fakeRenderer{err: errors.New("navigation timeout")}
	eng := NewEngine(nil, renderer, Config{})

	out := eng.Extract(context.Background(), "https://hopepantry.org", model.CategoryFoodBank)

	assert.Equal(t, model.MethodFallback, out.Method)
	assert.Contains(t, out.Error, "navigation timeout")
	assert.Equal(t, model.CategoryFoodBank, out.Record.ServiceCategory)
	require.NotNil(t, out.Record.HoursOfOperation.Periods)
	require.NotNil(t, out.Record.HoursOfOperation.WeekdayText)
	assert.Empty(t, out.Record.Name)
}

func TestExtract_HTTPErrorStatusYieldsEmptyShell(t *testing.T) {
	renderer := &fakeRenderer{pages: map[string]*model.RenderedPage{
		"https://gone.example.org": {URL: "https://gone.example.org", HTTPStatus: 503},
	}}
	eng := NewEngine(nil, renderer, Config{})

	out := eng.Extract(context.Background(), "https://gone.example.org", model.CategoryShelter)

	assert.Contains(t, out.Error, "503")
	assert.Empty(t, out.Record.Name)
}

func TestExtract_FallbackProbesForHours(t *testing.T) {
	landing := &model.RenderedPage{
		URL:        "https://hopepantry.org",
		HTTPStatus: 200,
		Title:      "Hope Pantry",
		Links: []model.Link{
			{Href: "https://hopepantry.org/hours", Text: "Hours"},
			{Href: "https://hopepantry.org/donate", Text: "Donate"},
		},
	}
	hoursPage := &model.RenderedPage{
		URL:        "https://hopepantry.org/hours",
		HTTPStatus: 200,
		Text:       "Our Hours\nMonday 9am - 5pm",
	}
	renderer := &fakeRenderer{pages: map[string]*model.RenderedPage{
		"https://hopepantry.org":       landing,
		"https://hopepantry.org/hours": hoursPage,
	}}
	eng := NewEngine(nil, renderer, Config{ProbeLimit: 2})

	out := eng.Extract(context.Background(), "https://hopepantry.org", model.CategoryFoodBank)

	assert.NotEmpty(t, out.Record.HoursOfOperation.WeekdayText)
	// Landing page first, then the ranked hours link; the donate link is
	// never rendered because the probe stops at first success.
	assert.Equal(t, []string{"https://hopepantry.org", "https://hopepantry.org/hours"}, renderer.rendered)
}

func TestParseRecord_SalvagesBraceSubstring(t *testing.T) {
	rec, err := parseRecord("Here is the record:\n"+goodJSON+"\nHope that helps!", model.CategoryFoodBank)
	require.NoError(t, err)
	assert.Equal(t, "Hope Pantry", rec.Name)
}

func TestParseRecord_RejectsNonObject(t *testing.T) {
	_, err := parseRecord(`["not","an","object"]`, model.CategoryFoodBank)
	assert.Error(t, err)

	_, err = parseRecord("", model.CategoryFoodBank)
	assert.Error(t, err)
}

func TestParseRecord_ForcesRequestedCategory(t *testing.T) {
	rec, err := parseRecord(`{"name":"X","serviceCategory":"SOMETHING_ELSE"}`, model.CategoryShelter)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryShelter, rec.ServiceCategory)
}
