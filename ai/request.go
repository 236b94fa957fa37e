package ai

import (
	"Genie/storage"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a helpful assistant. Answer in the language of the question."

// composeMessages turns the stored dialog into a chat completion request body:
// system prompt with the topic, the history in order, then the new question.
func composeMessages(dc *storage.DialogContext, question string) []openai.ChatCompletionMessage {
	system := systemPrompt
	if dc != nil && dc.Topic != "" {
		system += "\nSubject: " + dc.Topic
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	if dc != nil {
		for _, message := range dc.Messages {
			role := openai.ChatMessageRoleAssistant
			if message.IsUser {
				role = openai.ChatMessageRoleUser
			}
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: message.Text})
		}
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})
}
