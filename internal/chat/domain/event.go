package domain

import (
	"encoding/json"
	"fmt"
)

// EventType transport 事件名稱
type EventType string

const (
	// EventConnect socket connected
	EventConnect EventType = "connect"
	// EventOnlineUserList 在線使用者列表
	EventOnlineUserList EventType = "online-user-list"
	// EventPreviousMessagesBatch 歷史訊息回填
	EventPreviousMessagesBatch EventType = "previous-messages-batch"
	// EventNewMessage 新訊息 (含自己送出的 echo)
	EventNewMessage EventType = "new-message"
	// EventTypingStart 對方開始輸入
	EventTypingStart EventType = "typing-start"
	// EventTypingStop 對方停止輸入
	EventTypingStop EventType = "typing-stop"
	// EventMessagesMarkedRead 訊息已讀
	EventMessagesMarkedRead EventType = "messages-marked-read"
	// EventMessageDeleted 訊息刪除
	EventMessageDeleted EventType = "message-deleted"
	// EventDisconnect socket disconnected
	EventDisconnect EventType = "disconnect"
)

// Event redis channel 上傳遞的事件
type Event struct {
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// NewMessagePayload new-message
// Participants 在 viewer 尚未有此聊天時用來建立 provisional conversation
type NewMessagePayload struct {
	Message      WireMessage `json:"message"`
	Participants []User      `json:"participants,omitempty"`
}

// PreviousMessagesPayload previous-messages-batch
type PreviousMessagesPayload struct {
	Messages []WireMessage `json:"messages"`
}

// TypingPayload typing-start / typing-stop
type TypingPayload struct {
	UserID string `json:"userId"`
}

// MarkedReadPayload messages-marked-read, MessageIDs 為空時代表整個聊天
type MarkedReadPayload struct {
	ReaderID   string   `json:"readerId"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

// MessageDeletedPayload message-deleted
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
}

// OnlineUsersPayload online-user-list
type OnlineUsersPayload struct {
	UserIDs []string `json:"userIds"`
}

// NewEvent 將 payload 序列化後組成 Event
func NewEvent(t EventType, conversationID string, payload any) (Event, error) {
	e := Event{Type: t, ConversationID: conversationID}
	if payload == nil {
		return e, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return e, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	e.Payload = raw
	return e, nil
}

// DecodePayload 解析 Event.Payload
func DecodePayload[T any](e Event) (T, error) {
	var p T
	if len(e.Payload) == 0 {
		return p, fmt.Errorf("%s event without payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return p, nil
}
