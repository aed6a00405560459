package errprocess

import "errors"

var (
	// ErrMissingViewer websocket / api 沒有帶 member id
	ErrMissingViewer = errors.New("missing viewer id")
	// ErrConversationNotFound 找不到聊天
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound 找不到訊息
	ErrMessageNotFound = errors.New("message not found")
	// ErrInvalidMessage sender 為空, 或沒有 text 也沒有 media
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNotParticipant viewer 不屬於此聊天
	ErrNotParticipant = errors.New("viewer is not a participant")
	// ErrNotAuthor 只能刪除自己的訊息
	ErrNotAuthor = errors.New("viewer is not the message author")
)
