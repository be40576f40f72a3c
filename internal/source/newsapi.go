// Package source provides article search clients for the research agent.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/srthkdev/newsletter-ai-sub000/config"
)

// Article is one search hit returned by a source client.
type Article struct {
	Source      string    `json:"source"`
	Author      string    `json:"author,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Topic       string    `json:"topic,omitempty"`
}

// Client searches for recent articles. The research agent depends only on
// this interface so tests can substitute a fake.
type Client interface {
	Search(ctx context.Context, query string, daysBack int, maxResults int) ([]Article, error)
}

// NewsAPI implements Client against the NewsAPI "everything" endpoint.
type NewsAPI struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	HTTPClient *http.Client
}

func NewNewsAPI(cfg config.NewsAPIConfig) *NewsAPI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &NewsAPI{
		APIKey:     cfg.APIKey,
		Endpoint:   cfg.Endpoint,
		MaxResults: cfg.MaxResults,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type newsAPIResponse struct {
	Status       string `json:"status"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string    `json:"author"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// Search queries the everything endpoint for articles published within the
// last daysBack days.
func (n *NewsAPI) Search(ctx context.Context, query string, daysBack int, maxResults int) ([]Article, error) {
	if daysBack <= 0 {
		daysBack = 3
	}
	if maxResults <= 0 || (n.MaxResults > 0 && maxResults > n.MaxResults) {
		maxResults = n.MaxResults
	}

	params := url.Values{}
	params.Add("q", query)
	params.Add("from", time.Now().AddDate(0, 0, -daysBack).Format("2006-01-02"))
	params.Add("sortBy", "publishedAt")
	params.Add("language", "en")
	if maxResults > 0 {
		params.Add("pageSize", fmt.Sprintf("%d", maxResults))
	}
	params.Add("apiKey", n.APIKey)

	reqURL := fmt.Sprintf("%s?%s", n.Endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi returned status: %d", resp.StatusCode)
	}

	var out newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse news response: %w", err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %q", out.Status)
	}

	articles := make([]Article, 0, len(out.Articles))
	for _, a := range out.Articles {
		if strings.TrimSpace(a.Title) == "" || a.Title == "[Removed]" {
			continue
		}
		articles = append(articles, Article{
			Source:      a.Source.Name,
			Author:      a.Author,
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
		})
	}
	return articles, nil
}

// BuildQuery joins topic terms into a single OR query, each term quoted.
func BuildQuery(topics []string) string {
	terms := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		terms = append(terms, fmt.Sprintf(`"%s"`, t))
	}
	return strings.Join(terms, " OR ")
}
