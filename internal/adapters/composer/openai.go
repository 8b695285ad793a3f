package composer

import (
	"context"
	"fmt"
	"strings"

	"fb-promo-bot/internal/domain"
	openai "fb-promo-bot/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI генерирует промо через Chat Completions.
type OpenAI struct {
	client chatClient
	model  string
}

var _ domain.TextGenerator = (*OpenAI)(nil)

// NewOpenAI создаёт генератор.
func NewOpenAI(client chatClient, model string) *OpenAI {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAI{client: client, model: model}
}

// Generate реализует domain.TextGenerator.
func (g *OpenAI) Generate(ctx context.Context, params domain.PromptParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 1,
		MaxTokens:   80,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleUser, Content: Prompt(params)},
		},
	}
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: пустой ответ")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Prompt строит инструкцию для модели.
func Prompt(p domain.PromptParams) string {
	return fmt.Sprintf(`Create a short, friendly and energetic casino promo (under 35 words).
Rules:
- Start with: Hi %s 👋
- Mention these games: %s
- Include bonus info: "%s"
- Add urgency: "%s"
- End with: "Message us to unlock your bonus and see payment options 💳"
Use emojis like %s naturally.
Tone: human, exciting, engaging.`,
		p.FirstName,
		strings.Join(p.Games, ", "),
		p.BonusLine,
		p.Urgency,
		strings.Join(p.Emojis, " "),
	)
}
