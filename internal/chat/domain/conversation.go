package domain

import (
	"time"
)

// User 聊天中嵌入的使用者 profile 快照
type User struct {
	ID             string `json:"_id,omitempty"`
	LegacyID       string `json:"id,omitempty"`
	Username       string `json:"username,omitempty"`
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	Image          string `json:"image,omitempty"`
}

// Identifier _id 優先, 其次 id
func (u User) Identifier() string {
	if u.ID != "" {
		return u.ID
	}
	return u.LegacyID
}

// Conversation 一對一聊天 (ChatPreview)
type Conversation struct {
	ID          string    `json:"_id"`
	Sender      User      `json:"sender"`
	Receiver    User      `json:"receiver"`
	Messages    []Message `json:"messages"`
	IsFavourite bool      `json:"isFavourite"`
	IsArchived  bool      `json:"isArchived"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// LastMessage 最後一則訊息, 沒有訊息時回傳 nil
func (c Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	m := c.Messages[len(c.Messages)-1]
	return &m
}

// LastMessageTimestamp 最後一則訊息的 updatedAt, fallback createdAt/time
func (c Conversation) LastMessageTimestamp() string {
	last := c.LastMessage()
	if last == nil {
		return ""
	}
	if last.UpdatedAt != "" {
		return last.UpdatedAt
	}
	return last.Timestamp()
}

// HasParticipant viewer 是否為 sender 或 receiver
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.Sender.Identifier() == userID || c.Receiver.Identifier() == userID)
}

// ChatTab inbox 分頁
type ChatTab string

const (
	// TabAll 全部
	TabAll ChatTab = "All"
	// TabUnread 有未讀
	TabUnread ChatTab = "Unread"
	// TabFavorites 我的最愛
	TabFavorites ChatTab = "Favorites"
	// TabArchived 封存
	TabArchived ChatTab = "Archived"
)

// ConversationSummary 給 inbox 列表使用的衍生資料
type ConversationSummary struct {
	ConversationID  string    `json:"conversationId"`
	OtherUser       User      `json:"otherUser"`
	DisplayName     string    `json:"displayName"`
	AvatarURL       string    `json:"avatarUrl"`
	UnreadCount     int       `json:"unreadCount"`
	LastMessageText string    `json:"lastMessageText"`
	LastMessageAt   string    `json:"lastMessageAt,omitempty"`
	IsFavourite     bool      `json:"isFavourite"`
	IsArchived      bool      `json:"isArchived"`
	IsOnline        bool      `json:"isOnline"`
	TypingUserIDs   []string  `json:"typingUserIds,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero"`
}
