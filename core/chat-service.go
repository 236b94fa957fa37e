package core

import "context"

// ChatService is the language model collaborator.
type ChatService interface {
	GetResponse(ctx context.Context, userId int64, model, prompt string) (string, error)
	GenerateImage(ctx context.Context, userId int64, prompt string) ([]byte, error)
	SetTopic(userId int64, topic string)
	ClearContext(userId int64)
}

// Responder delivers replies back through the messaging platform.
type Responder interface {
	Send(reply Reply) error
	// Busy shows a chat action until the returned func is called.
	Busy(chatId int64, action string) func()
}
