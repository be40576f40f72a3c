package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/srthkdev/newsletter-ai-sub000/internal/source"
)

type prefStoreStub struct {
	prefs  map[string]interface{}
	getErr error
	putErr error
	stored map[string]interface{}
}

func (s *prefStoreStub) GetUserPreferences(ctx context.Context, userID string) (map[string]interface{}, error) {
	return s.prefs, s.getErr
}

func (s *prefStoreStub) StoreUserPreferences(ctx context.Context, userID string, prefs map[string]interface{}) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.stored = prefs
	return nil
}

type sourceStub struct {
	articles []source.Article
	err      error
	query    string
}

func (s *sourceStub) Search(ctx context.Context, query string, daysBack, maxResults int) ([]source.Article, error) {
	s.query = query
	return s.articles, s.err
}

type providerStub struct {
	reply string
	err   error
}

func (p *providerStub) Completion(ctx context.Context, system, user string) (string, error) {
	return p.reply, p.err
}

func TestDispatcherUnknownTask(t *testing.T) {
	a := NewPreferenceAgent(&prefStoreStub{}, nil)
	res, err := a.Execute(context.Background(), "no_such_task", Params{})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Success {
		t.Fatal("result must not be successful")
	}
	if TypeName(err) != "ValidationError" {
		t.Fatalf("expected ValidationError, got %s", TypeName(err))
	}
	if res.Error == "" {
		t.Fatal("result must carry the error message")
	}
}

func TestTypeName(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{NewConnectionError("x", nil), "ConnectionError"},
		{NewAuthenticationError("x", nil), "AuthenticationError"},
		{NewDatabaseError("x", nil), "DatabaseError"},
		{NewTimeoutError("x", nil), "TimeoutError"},
		{NewKeyError("x"), "KeyError"},
		{NewParseError("x", nil), "ParseError"},
		{context.DeadlineExceeded, "TimeoutError"},
		{errors.New("plain"), "Error"},
	}
	for _, tc := range cases {
		if got := TypeName(tc.err); got != tc.want {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.want, got)
		}
	}
}

func TestGetPreferencesFallsBackToDefaults(t *testing.T) {
	a := NewPreferenceAgent(&prefStoreStub{}, []string{"science"})
	res, err := a.Execute(context.Background(), TaskGetPreferences, Params{"user_id": "u1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Get("using_defaults") != true {
		t.Fatal("expected using_defaults=true for empty store")
	}
	prefs := res.Get("preferences").(map[string]interface{})
	if prefs["frequency"] != "weekly" || prefs["send_time"] != "09:00" {
		t.Fatalf("unexpected defaults %v", prefs)
	}
	topics := prefs["topics"].([]interface{})
	if len(topics) != 1 || topics[0] != "science" {
		t.Fatalf("unexpected default topics %v", topics)
	}
}

func TestGetPreferencesStored(t *testing.T) {
	stored := map[string]interface{}{"frequency": "daily", "topics": []interface{}{"ai"}}
	a := NewPreferenceAgent(&prefStoreStub{prefs: stored}, nil)
	res, err := a.Execute(context.Background(), TaskGetPreferences, Params{"user_id": "u1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Get("using_defaults") != false {
		t.Fatal("expected using_defaults=false")
	}
}

func TestGetPreferencesRequiresUserID(t *testing.T) {
	a := NewPreferenceAgent(&prefStoreStub{}, nil)
	_, err := a.Execute(context.Background(), TaskGetPreferences, Params{})
	if TypeName(err) != "KeyError" {
		t.Fatalf("expected KeyError, got %v", err)
	}
}

func TestGetPreferencesStoreFailure(t *testing.T) {
	a := NewPreferenceAgent(&prefStoreStub{getErr: errors.New("redis down")}, nil)
	_, err := a.Execute(context.Background(), TaskGetPreferences, Params{"user_id": "u1"})
	if TypeName(err) != "DatabaseError" {
		t.Fatalf("expected DatabaseError, got %v", err)
	}
}

func TestSearchByTopicsRequiresTopics(t *testing.T) {
	a := NewResearchAgent(&sourceStub{}, 3, 15)
	_, err := a.Execute(context.Background(), TaskSearchByTopics, Params{})
	if TypeName(err) != "ValidationError" {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSearchByTopicsBuildsQuery(t *testing.T) {
	src := &sourceStub{articles: []source.Article{{Title: "A"}, {Title: "B"}}}
	a := NewResearchAgent(src, 3, 15)
	res, err := a.Execute(context.Background(), TaskSearchByTopics, Params{
		"topics": []interface{}{"machine learning", "golang"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Get("articles_count") != 2 {
		t.Fatalf("expected 2 articles, got %v", res.Get("articles_count"))
	}
	if !strings.Contains(src.query, `"machine learning"`) || !strings.Contains(src.query, "OR") {
		t.Fatalf("unexpected query %q", src.query)
	}
}

func TestSearchCustomPromptTopicsOverridePrompt(t *testing.T) {
	src := &sourceStub{articles: []source.Article{{Title: "A"}}}
	a := NewResearchAgent(src, 3, 15)
	_, err := a.Execute(context.Background(), TaskSearchCustomPrompt, Params{
		"custom_prompt": "anything about rust",
		"topics":        []interface{}{"go"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(src.query, `"go"`) {
		t.Fatalf("expected topics to override prompt, query %q", src.query)
	}
}

func TestSearchFailureIsRequestError(t *testing.T) {
	a := NewResearchAgent(&sourceStub{err: errors.New("502 bad gateway")}, 3, 15)
	_, err := a.Execute(context.Background(), TaskSearchByTopics, Params{"topics": []interface{}{"go"}})
	if TypeName(err) != "RequestException" {
		t.Fatalf("expected RequestException, got %s", TypeName(err))
	}
}

func TestProcessPromptParsesPlan(t *testing.T) {
	p := &providerStub{reply: `{"research_parameters":{"topics":["ai"],"days_back":1},"writing_guidelines":{"tone":"casual"}}`}
	a := NewCustomPromptAgent(p)
	res, err := a.Execute(context.Background(), TaskProcessPrompt, Params{"custom_prompt": "ai news please"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	rp := res.Get("research_parameters").(map[string]interface{})
	if topics := rp["topics"].([]interface{}); len(topics) != 1 || topics[0] != "ai" {
		t.Fatalf("unexpected research parameters %v", rp)
	}
	wg := res.Get("writing_guidelines").(map[string]interface{})
	if wg["tone"] != "casual" {
		t.Fatalf("unexpected guidelines %v", wg)
	}
}

func TestProcessPromptBadJSONIsParseError(t *testing.T) {
	a := NewCustomPromptAgent(&providerStub{reply: "Sure! Here is the plan: ..."})
	_, err := a.Execute(context.Background(), TaskProcessPrompt, Params{"custom_prompt": "x"})
	if TypeName(err) != "ParseError" {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestProcessPromptRequiresPrompt(t *testing.T) {
	a := NewCustomPromptAgent(&providerStub{})
	_, err := a.Execute(context.Background(), TaskProcessPrompt, Params{})
	if TypeName(err) != "KeyError" {
		t.Fatalf("expected KeyError, got %v", err)
	}
}

func TestGenerateNewsletter(t *testing.T) {
	p := &providerStub{reply: "# Tech Weekly\n\nIntro paragraph.\n\n## AI\nBig news."}
	a := NewWritingAgent(p)
	res, err := a.Execute(context.Background(), TaskGenerateNewsletter, Params{
		"articles":    []interface{}{map[string]interface{}{"title": "A", "description": "d"}},
		"preferences": map[string]interface{}{"tone": "professional"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	nl := res.Get("newsletter").(map[string]interface{})
	if nl["title"] != "Tech Weekly" {
		t.Fatalf("unexpected title %v", nl["title"])
	}
	if id, _ := nl["id"].(string); !strings.HasPrefix(id, "newsletter_") {
		t.Fatalf("unexpected id %v", nl["id"])
	}
	if res.Get("estimated_read_time").(int) < 1 {
		t.Fatal("read time must be at least 1 minute")
	}
}

func TestFormatForEmail(t *testing.T) {
	a := NewWritingAgent(&providerStub{})
	res, err := a.Execute(context.Background(), TaskFormatForEmail, Params{
		"newsletter": map[string]interface{}{
			"title":   "Tech Weekly",
			"content": "# Tech Weekly\n\n## AI\nBig news.\n- item one",
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	html := res.Get("html_content").(string)
	if !strings.Contains(html, "<h1>Tech Weekly</h1>") || !strings.Contains(html, "<h2>AI</h2>") {
		t.Fatalf("unexpected html %q", html)
	}
	plain := res.Get("plain_text").(string)
	if !strings.Contains(plain, "Big news.") {
		t.Fatalf("plain text missing content: %q", plain)
	}
}

func TestFormatForEmailMissingNewsletter(t *testing.T) {
	a := NewWritingAgent(&providerStub{})
	_, err := a.Execute(context.Background(), TaskFormatForEmail, Params{})
	if TypeName(err) != "KeyError" {
		t.Fatalf("expected KeyError, got %v", err)
	}
	_, err = a.Execute(context.Background(), TaskFormatForEmail, Params{
		"newsletter": map[string]interface{}{"title": "empty"},
	})
	if TypeName(err) != "ValidationError" {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateSubjectLines(t *testing.T) {
	p := &providerStub{reply: "Your Weekly Digest\nTech this week\nDon't miss out"}
	a := NewWritingAgent(p)
	res, err := a.Execute(context.Background(), TaskCreateSubjectLines, Params{
		"newsletter_content": map[string]interface{}{"title": "Tech Weekly", "content": "..."},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := res.Get("subject_lines").([]interface{})
	if len(lines) != 3 {
		t.Fatalf("expected 3 subject lines, got %v", lines)
	}
}
