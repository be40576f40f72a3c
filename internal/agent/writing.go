package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/srthkdev/newsletter-ai-sub000/internal/source"
	"github.com/srthkdev/newsletter-ai-sub000/provider"
)

const wordsPerMinute = 200

// WritingAgent turns researched articles into newsletter content.
type WritingAgent struct {
	dispatcher
	llm provider.Provider
}

func NewWritingAgent(llm provider.Provider) *WritingAgent {
	a := &WritingAgent{
		dispatcher: newDispatcher("writing_agent"),
		llm:        llm,
	}
	a.register(TaskGenerateNewsletter, a.generateNewsletter)
	a.register(TaskFormatForEmail, a.formatForEmail)
	a.register(TaskCreateSubjectLines, a.createSubjectLines)
	return a
}

func (a *WritingAgent) generateNewsletter(ctx context.Context, params Params) (map[string]interface{}, error) {
	articles, _ := params["articles"].([]interface{})
	prefs := params.Map("preferences")
	customPrompt := params.String("custom_prompt")
	guidelines := params.Map("writing_guidelines")

	tone, _ := prefs["tone"].(string)
	if tone == "" {
		tone = "professional"
	}

	var sb strings.Builder
	for i, item := range articles {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, describeArticle(item)))
	}

	system := fmt.Sprintf(`You are a newsletter writer. Write a concise, engaging newsletter in Markdown with a title on the first line (as "# Title"), an introduction, one section per theme, and a short closing. Tone: %s. Respond with Markdown only.`, tone)
	user := fmt.Sprintf("Articles:\n%s", sb.String())
	if customPrompt != "" {
		user += fmt.Sprintf("\nReader request: %s\n", customPrompt)
	}
	if len(guidelines) > 0 {
		user += fmt.Sprintf("\nWriting guidelines: %v\n", guidelines)
	}

	content, err := a.llm.Completion(ctx, system, user)
	if err != nil {
		return nil, classifyLLMError(ctx, "newsletter generation failed", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, NewValidationError("model returned empty newsletter", nil)
	}

	title := extractTitle(content)
	wordCount := len(strings.Fields(content))
	readTime := wordCount / wordsPerMinute
	if readTime < 1 {
		readTime = 1
	}

	newsletter := map[string]interface{}{
		"id":      "newsletter_" + uuid.NewString(),
		"title":   title,
		"content": content,
	}
	return map[string]interface{}{
		"newsletter":          newsletter,
		"word_count":          wordCount,
		"estimated_read_time": readTime,
	}, nil
}

// formatForEmail renders HTML and plain-text variants of a generated
// newsletter. This step is local and deterministic.
func (a *WritingAgent) formatForEmail(ctx context.Context, params Params) (map[string]interface{}, error) {
	newsletter := params.Map("newsletter")
	if newsletter == nil {
		return nil, NewKeyError("newsletter is required")
	}
	content, _ := newsletter["content"].(string)
	if content == "" {
		return nil, NewValidationError("newsletter has no content", nil)
	}
	title, _ := newsletter["title"].(string)

	var html strings.Builder
	html.WriteString("<html><body style=\"font-family:Arial,sans-serif;max-width:640px;margin:0 auto\">")
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "## "):
			html.WriteString("<h2>" + strings.TrimPrefix(trimmed, "## ") + "</h2>")
		case strings.HasPrefix(trimmed, "# "):
			html.WriteString("<h1>" + strings.TrimPrefix(trimmed, "# ") + "</h1>")
		case strings.HasPrefix(trimmed, "- "):
			html.WriteString("<li>" + strings.TrimPrefix(trimmed, "- ") + "</li>")
		default:
			html.WriteString("<p>" + trimmed + "</p>")
		}
	}
	html.WriteString(fmt.Sprintf("<hr><p style=\"color:#888;font-size:12px\">Generated %s</p></body></html>", time.Now().UTC().Format("Jan 2, 2006")))

	plain := content
	if title != "" && !strings.HasPrefix(plain, title) {
		plain = title + "\n\n" + plain
	}

	return map[string]interface{}{
		"html_content": html.String(),
		"plain_text":   plain,
	}, nil
}

func (a *WritingAgent) createSubjectLines(ctx context.Context, params Params) (map[string]interface{}, error) {
	newsletter := params.Map("newsletter_content")
	if newsletter == nil {
		newsletter = params.Map("newsletter")
	}
	title, _ := newsletter["title"].(string)
	if title == "" {
		title = "Your Newsletter"
	}

	system := "You write email subject lines. Respond with exactly three subject lines, one per line, no numbering, no extra text."
	user := fmt.Sprintf("Newsletter title: %s", title)
	reply, err := a.llm.Completion(ctx, system, user)
	if err != nil {
		return nil, classifyLLMError(ctx, "subject line generation failed", err)
	}

	var lines []interface{}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.Trim(strings.TrimSpace(line), `"-*`)
		if line != "" {
			lines = append(lines, line)
		}
		if len(lines) == 3 {
			break
		}
	}
	if len(lines) == 0 {
		lines = []interface{}{title}
	}
	return map[string]interface{}{"subject_lines": lines}, nil
}

func describeArticle(item interface{}) string {
	switch v := item.(type) {
	case source.Article:
		return strings.TrimSpace(fmt.Sprintf("%s (%s): %s", v.Title, v.Source, v.Description))
	case map[string]interface{}:
		title, _ := v["title"].(string)
		desc, _ := v["description"].(string)
		src, _ := v["source"].(string)
		return strings.TrimSpace(fmt.Sprintf("%s (%s): %s", title, src, desc))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimPrefix(line, "# ")
		}
		if line != "" {
			return line
		}
	}
	return "Your Newsletter"
}

func classifyLLMError(ctx context.Context, msg string, err error) *Error {
	if ctx.Err() == context.DeadlineExceeded {
		return NewTimeoutError(msg, err)
	}
	if strings.Contains(err.Error(), "authentication") {
		return NewAuthenticationError(msg, err)
	}
	if strings.Contains(err.Error(), "parse") {
		return NewParseError(msg, err)
	}
	return NewConnectionError(msg, err)
}
