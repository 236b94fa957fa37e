package core

const (
	ActionTyping      = "typing"
	ActionUploadPhoto = "upload_photo"
)

type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardMain
	KeyboardTerms
)

// Event is an inbound message, already stripped of transport details.
type Event struct {
	UserId      int64
	ChatId      int64
	Name        string
	Text        string
	Command     string
	ReferralArg string
}

// Reply is either a text message or an image with an optional caption.
type Reply struct {
	ChatId   int64
	Text     string
	Image    []byte
	Keyboard Keyboard
}
