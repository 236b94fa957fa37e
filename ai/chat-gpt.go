package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"Genie/core"
	"Genie/holder"
	"Genie/lib/sl"
	"Genie/storage"

	openai "github.com/sashabaranov/go-openai"
)

type ChatGPT struct {
	conf           *core.Config
	log            *slog.Logger
	client         *openai.Client
	httpClient     *http.Client
	contextManager *holder.ContextManager
	imageLimit     int64
}

func NewChat(conf *core.Config, log *slog.Logger, store storage.ContextStorage) *ChatGPT {
	httpClient := &http.Client{Timeout: conf.Timeout()}

	config := openai.DefaultConfig(conf.OpenAIApiKey)
	if conf.OpenAIBaseURL != "" {
		config.BaseURL = conf.OpenAIBaseURL
	}
	config.HTTPClient = httpClient

	log = log.With(sl.Module("chat-gpt"))
	return &ChatGPT{
		conf:           conf,
		log:            log,
		client:         openai.NewClientWithConfig(config),
		httpClient:     httpClient,
		contextManager: holder.NewContextManager(store, log),
		imageLimit:     maxImageBytes,
	}
}

func (c *ChatGPT) GetResponse(ctx context.Context, userId int64, model, question string) (string, error) {
	messages := composeMessages(c.contextManager.GetUserContext(userId), question)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %w", core.ErrProvider, err)
	}
	c.log.With(
		sl.User(userId),
		slog.String("model", resp.Model),
		slog.Int("choices", len(resp.Choices)),
		slog.Int("tokens", resp.Usage.TotalTokens),
	).Info("chat completion")
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion: empty choices", core.ErrProvider)
	}
	response := resp.Choices[0].Message.Content

	// history keeps only completed exchanges
	c.contextManager.UpdateUserContext(userId, holder.Message{Text: question, IsUser: true})
	c.contextManager.UpdateUserContext(userId, holder.Message{Text: response, IsUser: false})

	c.log.With(
		sl.User(userId),
		sl.Short("text", response),
	).Debug("outgoing message")

	return response, nil
}

func (c *ChatGPT) SetTopic(userId int64, topic string) {
	c.contextManager.SetTopic(userId, topic)
}

func (c *ChatGPT) ClearContext(userId int64) {
	c.contextManager.ClearUserContext(userId)
}

func (c *ChatGPT) Close() error {
	return c.contextManager.Close()
}
