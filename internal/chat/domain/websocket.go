package domain

// Action websocket request action
type Action string

const (
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// GetConversations websocket action get_conversations
	GetConversations Action = "get_conversations"
	// GetMessages websocket action get_messages
	GetMessages Action = "get_messages"
	// MarkRead websocket action mark_read
	MarkRead Action = "mark_read"
	// DeleteMessage websocket action delete_message
	DeleteMessage Action = "delete_message"
	// TypingStart websocket action typing_start
	TypingStart Action = "typing_start"
	// TypingStop websocket action typing_stop
	TypingStop Action = "typing_stop"
	// SetFavourite websocket action set_favourite
	SetFavourite Action = "set_favourite"
	// SetArchived websocket action set_archived
	SetArchived Action = "set_archived"
	// Refresh websocket action refresh, 清除 derived view cache
	Refresh Action = "refresh"

	// NotifyEvent server push: 已套用的 transport event
	NotifyEvent Action = "notify_event"
	// NotifySummary server push: 單一聊天 summary 更新
	NotifySummary Action = "notify_summary"
	// InboxProgress server push: progressive inbox loading
	InboxProgress Action = "inbox_progress"
)

// WSRequest websocket Request
type WSRequest struct {
	Action         string           `json:"action"`
	ConversationID string           `json:"conversation_id"`
	ReceiverID     string           `json:"receiver_id"`
	MessageID      string           `json:"message_id"`
	Tab            string           `json:"tab"`
	Text           string           `json:"text"`
	Images         []string         `json:"images"`
	Videos         []string         `json:"videos"`
	AudioURL       string           `json:"audio_url"`
	DocumentURLs   []string         `json:"document_urls"`
	DocumentInfo   []DocumentDetail `json:"document_details"`
	ReplyToID      string           `json:"reply_to_id"`
	Flag           bool             `json:"flag"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
