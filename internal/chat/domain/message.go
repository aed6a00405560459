package domain

import (
	"bytes"
	"encoding/json"
)

// TempIDPrefix 本地尚未被 server 確認的訊息 id 前綴
const TempIDPrefix = "temp-"

// DocumentDetail 文件附件資訊
type DocumentDetail struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
	Type string `json:"type,omitempty"`
}

// Message 表示一則正規化後的聊天訊息
type Message struct {
	ID       string `json:"id,omitempty"`
	MongoID  string `json:"_id,omitempty"`
	LegacyID string `json:"messageaId,omitempty"`

	// UserID 與 Sender 永遠保持同一個值
	UserID     string `json:"userId"`
	Sender     string `json:"sender"`
	ReceiverID string `json:"receiverId,omitempty"`

	Text      string `json:"text,omitempty"`
	CreatedAt string `json:"createdAt"`
	Time      string `json:"time"`
	UpdatedAt string `json:"updatedAt,omitempty"`

	Images          []string         `json:"images,omitempty"`
	ImageURL        string           `json:"imageUrl,omitempty"`
	Videos          []string         `json:"videos,omitempty"`
	VideoURL        string           `json:"videoUrl,omitempty"`
	AudioURL        string           `json:"audioUrl,omitempty"`
	DocumentURLs    []string         `json:"documentUrls,omitempty"`
	DocumentURL     string           `json:"documentUrl,omitempty"`
	DocumentDetails []DocumentDetail `json:"documentDetails,omitempty"`

	RepliedTo    ReplyRef `json:"repliedTo,omitzero"`
	IsDeleted    *bool    `json:"isDeleted,omitempty"`
	IsOptimistic bool     `json:"isOptimistic"`
	Seen         bool     `json:"seen"`
}

// SenderID canonical author id
func (m Message) SenderID() string {
	if m.UserID != "" {
		return m.UserID
	}
	return m.Sender
}

// MessageID 第一個非空的 id 欄位
func (m Message) MessageID() string {
	switch {
	case m.ID != "":
		return m.ID
	case m.MongoID != "":
		return m.MongoID
	default:
		return m.LegacyID
	}
}

// HasID id 是否命中任一個 id 欄位
func (m Message) HasID(id string) bool {
	return id != "" && (m.ID == id || m.MongoID == id || m.LegacyID == id)
}

// Deleted tombstone
func (m Message) Deleted() bool {
	return m.IsDeleted != nil && *m.IsDeleted
}

// Timestamp createdAt, fallback time
func (m Message) Timestamp() string {
	if m.CreatedAt != "" {
		return m.CreatedAt
	}
	return m.Time
}

// HasMedia 同時檢查複數欄位與舊版單數欄位
func (m Message) HasMedia() bool {
	return len(m.Images) > 0 || m.ImageURL != "" ||
		len(m.Videos) > 0 || m.VideoURL != "" ||
		m.AudioURL != "" ||
		len(m.DocumentURLs) > 0 || m.DocumentURL != ""
}

// ImageCount 圖片數量, 舊版 imageUrl 算一張
func (m Message) ImageCount() int {
	if n := len(m.Images); n > 0 {
		return n
	}
	if m.ImageURL != "" {
		return 1
	}
	return 0
}

// DocumentCount 文件數量, 舊版 documentUrl 算一份
func (m Message) DocumentCount() int {
	if n := len(m.DocumentURLs); n > 0 {
		return n
	}
	if m.DocumentURL != "" {
		return 1
	}
	return 0
}

// HasVideo video url 或 videos
func (m Message) HasVideo() bool {
	return m.VideoURL != "" || len(m.Videos) > 0
}

// ToWire 轉回 transport 使用的格式, 發布 new-message 時使用
func (m Message) ToWire() WireMessage {
	return WireMessage{
		MessageID:       m.MessageID(),
		ID:              m.ID,
		MongoID:         m.MongoID,
		LegacyID:        m.LegacyID,
		Text:            m.Text,
		Sender:          UserRef{ID: m.SenderID()},
		UserID:          UserRef{ID: m.SenderID()},
		ReceiverID:      m.ReceiverID,
		CreatedAt:       m.CreatedAt,
		Time:            m.Time,
		UpdatedAt:       m.UpdatedAt,
		Images:          m.Images,
		ImageURL:        m.ImageURL,
		Videos:          m.Videos,
		VideoURL:        m.VideoURL,
		AudioURL:        m.AudioURL,
		DocumentURLs:    m.DocumentURLs,
		DocumentURL:     m.DocumentURL,
		DocumentDetails: m.DocumentDetails,
		IsDeleted:       m.IsDeleted,
		RepliedTo:       m.RepliedTo.Unresolved(),
		Seen:            m.Seen,
	}
}

// WireMessage 由 transport 收到的原始訊息, 欄位名稱依上游服務
type WireMessage struct {
	MessageID string `json:"messageId,omitempty"`
	ID        string `json:"id,omitempty"`
	MongoID   string `json:"_id,omitempty"`
	LegacyID  string `json:"messageaId,omitempty"`

	Text       string  `json:"text,omitempty"`
	Sender     UserRef `json:"sender,omitzero"`
	UserID     UserRef `json:"userId,omitzero"`
	ReceiverID string  `json:"receiverId,omitempty"`

	CreatedAt string `json:"createdAt,omitempty"`
	Time      string `json:"time,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`

	Images          []string         `json:"images,omitempty"`
	ImageURL        string           `json:"imageUrl,omitempty"`
	Videos          []string         `json:"videos,omitempty"`
	VideoURL        string           `json:"videoUrl,omitempty"`
	AudioURL        string           `json:"audioUrl,omitempty"`
	DocumentURLs    []string         `json:"documentUrls,omitempty"`
	DocumentURL     string           `json:"documentUrl,omitempty"`
	DocumentDetails []DocumentDetail `json:"documentDetails,omitempty"`

	IsDeleted *bool    `json:"isDeleted,omitempty"`
	RepliedTo ReplyRef `json:"repliedTo,omitzero"`
	Seen      bool     `json:"seen,omitempty"`
}

// OutgoingMessage viewer 送出的訊息內容
type OutgoingMessage struct {
	Text            string           `json:"text"`
	SenderID        string           `json:"senderId"`
	ReceiverID      string           `json:"receiverId"`
	Images          []string         `json:"images,omitempty"`
	Videos          []string         `json:"videos,omitempty"`
	AudioURL        string           `json:"audioUrl,omitempty"`
	DocumentURLs    []string         `json:"documentUrls,omitempty"`
	DocumentDetails []DocumentDetail `json:"documentDetails,omitempty"`
	ReplyTo         *Message         `json:"replyTo,omitempty"`
}

// ReplyRef repliedTo 的四種狀態: 欄位不存在, 明確 null, 尚未解析的 id, 已內嵌的訊息
type ReplyRef struct {
	present bool
	ID      string
	Message *Message
}

// ReplyNull 明確的 null
func ReplyNull() ReplyRef {
	return ReplyRef{present: true}
}

// ReplyToID 尚未解析的 reply id
func ReplyToID(id string) ReplyRef {
	return ReplyRef{present: true, ID: id}
}

// ReplyEmbedded 內嵌被回覆訊息的副本
func ReplyEmbedded(m Message) ReplyRef {
	return ReplyRef{present: true, ID: m.MessageID(), Message: &m}
}

// IsZero 欄位不存在, 配合 omitzero
func (r ReplyRef) IsZero() bool {
	return !r.present
}

// IsNull explicit null
func (r ReplyRef) IsNull() bool {
	return r.present && r.ID == "" && r.Message == nil
}

// IsUnresolved 只有 id, 尚未內嵌
func (r ReplyRef) IsUnresolved() bool {
	return r.Message == nil && r.ID != ""
}

// IsEmbedded 已內嵌
func (r ReplyRef) IsEmbedded() bool {
	return r.Message != nil
}

// Resolve 保留原本的 reference id, 內嵌 m 的副本
func (r ReplyRef) Resolve(m Message) ReplyRef {
	return ReplyRef{present: true, ID: r.ID, Message: &m}
}

// Unresolved 內嵌狀態退回只帶 id
func (r ReplyRef) Unresolved() ReplyRef {
	if r.Message == nil {
		return r
	}
	return ReplyToID(r.ID)
}

// MarshalJSON null / "id" / {message}
func (r ReplyRef) MarshalJSON() ([]byte, error) {
	switch {
	case r.Message != nil:
		return json.Marshal(r.Message)
	case r.ID != "":
		return json.Marshal(r.ID)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON 非預期的型別視為 null, 不回傳錯誤
func (r *ReplyRef) UnmarshalJSON(data []byte) error {
	*r = ReplyRef{present: true}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err == nil {
			r.ID = id
		}
	case '{':
		var m Message
		if err := json.Unmarshal(data, &m); err == nil {
			r.ID = m.MessageID()
			r.Message = &m
		}
	}
	return nil
}

// UserRef sender / userId 可能是 id 字串或是使用者物件
type UserRef struct {
	ID   string
	User *User
}

// IsZero 配合 omitzero
func (u UserRef) IsZero() bool {
	return u.ID == "" && u.User == nil
}

// MarshalJSON 有 profile 時輸出物件, 否則輸出 id
func (u UserRef) MarshalJSON() ([]byte, error) {
	if u.User != nil {
		return json.Marshal(u.User)
	}
	return json.Marshal(u.ID)
}

// UnmarshalJSON string 或 {_id|id}
func (u *UserRef) UnmarshalJSON(data []byte) error {
	*u = UserRef{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err == nil {
			u.ID = id
		}
	case '{':
		var user User
		if err := json.Unmarshal(data, &user); err == nil {
			u.User = &user
			u.ID = user.Identifier()
		}
	}
	return nil
}
