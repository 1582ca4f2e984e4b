package runner

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clipforge/shorts-worker/internal/models"
)

const heuristicTitleWords = 8

// TitleGenerator produces a short clip title from its transcript text. The
// shipped LLM-backed implementation falls back to the heuristic generator
// on any error or empty response, per §4.11/§1.2 — never fatal to the job.
type TitleGenerator interface {
	Title(ctx context.Context, plan models.ClipPlan) string
}

// HeuristicTitle takes the clip's first few words as a title, the fallback
// used when no LLM hook is configured or the hook fails.
func HeuristicTitle(plan models.ClipPlan) string {
	words := plan.Words
	if len(words) == 0 {
		return ""
	}
	n := heuristicTitleWords
	if n > len(words) {
		n = len(words)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = words[i].Text
	}
	title := strings.Join(parts, " ")
	return strings.TrimRight(title, ".,!?") + "…"
}

// OpenAITitleGenerator calls the chat-completions API for a punchier title,
// falling back to HeuristicTitle on any error.
type OpenAITitleGenerator struct {
	client *openai.Client
}

// NewOpenAITitleGenerator returns nil when apiKey is empty, so callers can
// unconditionally construct it at startup and treat a nil *OpenAITitleGenerator
// as "hook disabled" without a separate feature flag.
func NewOpenAITitleGenerator(apiKey string) *OpenAITitleGenerator {
	if apiKey == "" {
		return nil
	}
	return &OpenAITitleGenerator{client: openai.NewClient(apiKey)}
}

func (g *OpenAITitleGenerator) Title(ctx context.Context, plan models.ClipPlan) string {
	if g == nil {
		return HeuristicTitle(plan)
	}

	transcript := wordsToText(plan.Words)
	if transcript == "" {
		return HeuristicTitle(plan)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT3Dot5Turbo,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Write a short, punchy title (under 8 words) for this video clip transcript. Reply with only the title."},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		MaxTokens: 20,
	})
	if err != nil || len(resp.Choices) == 0 {
		return HeuristicTitle(plan)
	}

	title := strings.TrimSpace(resp.Choices[0].Message.Content)
	if title == "" {
		return HeuristicTitle(plan)
	}
	return title
}

func wordsToText(words []models.Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}
