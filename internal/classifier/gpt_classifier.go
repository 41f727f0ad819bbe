package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GPTClassifier asks a chat model about bodies the regex pattern misses.
// Any failure falls back to the regex verdict, so the classifier stays total.
type GPTClassifier struct {
	client   chatCompleter
	fallback ContentMatcher
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewGPTClassifier(apiKey string, model string, timeout time.Duration, fallback ContentMatcher, logger *zap.Logger) *GPTClassifier {
	return newGPTClassifier(openai.NewClient(apiKey), model, timeout, fallback, logger)
}

func newGPTClassifier(client chatCompleter, model string, timeout time.Duration, fallback ContentMatcher, logger *zap.Logger) *GPTClassifier {
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GPTClassifier{
		client:   client,
		fallback: fallback,
		model:    model,
		timeout:  timeout,
		logger:   logger,
	}
}

func (c *GPTClassifier) IsTransactionMessage(body string) bool {
	if strings.TrimSpace(body) == "" {
		return false
	}
	if c.fallback.IsTransactionMessage(body) {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Does the following SMS notify the recipient of a completed financial transaction
(money debited, credited, spent, received, withdrawn, deposited or transferred)?
Answer with exactly one word: yes or no.

SMS: %s`, body)

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   3,
			Temperature: 0,
		},
	)
	if err != nil {
		c.logger.Error("Failed to get GPT verdict", zap.Error(err))
		return false
	}
	if len(resp.Choices) == 0 {
		c.logger.Warn("Empty GPT response")
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	answer = strings.Trim(answer, ".!\"' ")
	switch answer {
	case "yes":
		return true
	case "no":
		return false
	default:
		c.logger.Warn("Unexpected GPT verdict", zap.String("response", answer))
		return false
	}
}
