package storage

import "time"

const maxTokens = 20000

type Message struct {
	IsUser    bool      `bson:"is_user" json:"is_user"`
	Text      string    `bson:"text" json:"text"`
	Tokens    int       `bson:"tokens" json:"tokens"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type DialogContext struct {
	UserId    int64     `bson:"user_id" json:"user_id"`
	Topic     string    `bson:"topic" json:"topic"`
	Messages  []Message `bson:"messages" json:"messages"`
	Tokens    int       `bson:"tokens" json:"tokens"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ContextStorage keeps the chat history sent along with each completion.
type ContextStorage interface {
	GetUserContext(userId int64) (*DialogContext, error)
	UpdateUserContext(userId int64, message Message) error
	SetTopic(userId int64, topic string) error
	ClearUserContext(userId int64) error
	Close() error
}

// appendMessage adds message to dc and drops the oldest messages while the
// context is over the token budget.
func appendMessage(dc *DialogContext, message Message) {
	message.Tokens = len([]rune(message.Text))
	message.Timestamp = time.Now()

	dc.Tokens += message.Tokens
	for dc.Tokens > maxTokens && len(dc.Messages) > 0 {
		dc.Tokens -= dc.Messages[0].Tokens
		dc.Messages = dc.Messages[1:]
	}
	dc.Messages = append(dc.Messages, message)
	dc.UpdatedAt = time.Now()
}
