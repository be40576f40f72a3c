package agent

import (
	"context"
	"strings"

	"github.com/srthkdev/newsletter-ai-sub000/internal/source"
)

// ResearchAgent finds recent articles for newsletter generation.
type ResearchAgent struct {
	dispatcher
	client     source.Client
	daysBack   int
	maxResults int
}

func NewResearchAgent(client source.Client, daysBack, maxResults int) *ResearchAgent {
	if daysBack <= 0 {
		daysBack = 3
	}
	if maxResults <= 0 {
		maxResults = 15
	}
	a := &ResearchAgent{
		dispatcher: newDispatcher("research_agent"),
		client:     client,
		daysBack:   daysBack,
		maxResults: maxResults,
	}
	a.register(TaskSearchByTopics, a.searchByTopics)
	a.register(TaskSearchCustomPrompt, a.searchCustomPrompt)
	return a
}

func (a *ResearchAgent) searchByTopics(ctx context.Context, params Params) (map[string]interface{}, error) {
	topics := params.Strings("topics")
	if len(topics) == 0 {
		return nil, NewValidationError("at least one topic is required", nil)
	}
	return a.search(ctx, source.BuildQuery(topics), params)
}

func (a *ResearchAgent) searchCustomPrompt(ctx context.Context, params Params) (map[string]interface{}, error) {
	query := strings.TrimSpace(params.String("custom_prompt"))
	if topics := params.Strings("topics"); len(topics) > 0 {
		query = source.BuildQuery(topics)
	}
	if query == "" {
		return nil, NewValidationError("custom_prompt or topics required", nil)
	}
	return a.search(ctx, query, params)
}

func (a *ResearchAgent) search(ctx context.Context, query string, params Params) (map[string]interface{}, error) {
	daysBack := params.Int("days_back", a.daysBack)
	maxResults := params.Int("max_results", a.maxResults)
	articles, err := a.client.Search(ctx, query, daysBack, maxResults)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, NewTimeoutError("article search timed out", err)
		}
		return nil, NewRequestError("article search failed", err)
	}
	items := make([]interface{}, len(articles))
	for i, art := range articles {
		items[i] = art
	}
	return map[string]interface{}{
		"articles":       items,
		"articles_count": len(articles),
		"query":          query,
		"days_back":      daysBack,
	}, nil
}
