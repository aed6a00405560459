package repository

import (
	"time"

	"chat_sync_service/internal/chat/domain"
)

// conversationDocument mongo 中的聊天, messages 內嵌
type conversationDocument struct {
	ID           string            `bson:"_id"`
	Participants []string          `bson:"participants"`
	Sender       userDocument      `bson:"sender"`
	Receiver     userDocument      `bson:"receiver"`
	Messages     []messageDocument `bson:"messages"`
	IsFavourite  bool              `bson:"is_favourite"`
	IsArchived   bool              `bson:"is_archived"`
	UpdatedAt    time.Time         `bson:"updated_at,omitempty"`
}

type userDocument struct {
	ID             string `bson:"_id"`
	Username       string `bson:"username,omitempty"`
	FirstName      string `bson:"first_name,omitempty"`
	LastName       string `bson:"last_name,omitempty"`
	DisplayName    string `bson:"display_name,omitempty"`
	ProfilePicture string `bson:"profile_picture,omitempty"`
	Avatar         string `bson:"avatar,omitempty"`
	Image          string `bson:"image,omitempty"`
}

// messageDocument repliedTo 只存 id
type messageDocument struct {
	MessageID       string                   `bson:"message_id"`
	LegacyID        string                   `bson:"legacy_id,omitempty"`
	SenderID        string                   `bson:"sender_id"`
	ReceiverID      string                   `bson:"receiver_id,omitempty"`
	Text            string                   `bson:"text,omitempty"`
	CreatedAt       string                   `bson:"created_at"`
	UpdatedAt       string                   `bson:"updated_at,omitempty"`
	Images          []string                 `bson:"images,omitempty"`
	ImageURL        string                   `bson:"image_url,omitempty"`
	Videos          []string                 `bson:"videos,omitempty"`
	VideoURL        string                   `bson:"video_url,omitempty"`
	AudioURL        string                   `bson:"audio_url,omitempty"`
	DocumentURLs    []string                 `bson:"document_urls,omitempty"`
	DocumentURL     string                   `bson:"document_url,omitempty"`
	DocumentDetails []documentDetailDocument `bson:"document_details,omitempty"`
	RepliedTo       string                   `bson:"replied_to,omitempty"`
	IsDeleted       *bool                    `bson:"is_deleted,omitempty"`
	Seen            bool                     `bson:"seen"`
}

type documentDetailDocument struct {
	URL  string `bson:"url"`
	Name string `bson:"name,omitempty"`
	Size int64  `bson:"size,omitempty"`
	Type string `bson:"type,omitempty"`
}

func newConversationDocument(c domain.Conversation) conversationDocument {
	msgs := make([]messageDocument, 0, len(c.Messages))
	for _, m := range c.Messages {
		msgs = append(msgs, newMessageDocument(m))
	}
	return conversationDocument{
		ID:           c.ID,
		Participants: []string{c.Sender.Identifier(), c.Receiver.Identifier()},
		Sender:       newUserDocument(c.Sender),
		Receiver:     newUserDocument(c.Receiver),
		Messages:     msgs,
		IsFavourite:  c.IsFavourite,
		IsArchived:   c.IsArchived,
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (d conversationDocument) toDomain() domain.Conversation {
	msgs := make([]domain.Message, 0, len(d.Messages))
	for _, m := range d.Messages {
		msgs = append(msgs, m.toDomain())
	}
	return domain.Conversation{
		ID:          d.ID,
		Sender:      d.Sender.toDomain(),
		Receiver:    d.Receiver.toDomain(),
		Messages:    msgs,
		IsFavourite: d.IsFavourite,
		IsArchived:  d.IsArchived,
		UpdatedAt:   d.UpdatedAt,
	}
}

func newUserDocument(u domain.User) userDocument {
	return userDocument{
		ID:             u.Identifier(),
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		DisplayName:    u.DisplayName,
		ProfilePicture: u.ProfilePicture,
		Avatar:         u.Avatar,
		Image:          u.Image,
	}
}

func (d userDocument) toDomain() domain.User {
	return domain.User{
		ID:             d.ID,
		Username:       d.Username,
		FirstName:      d.FirstName,
		LastName:       d.LastName,
		DisplayName:    d.DisplayName,
		ProfilePicture: d.ProfilePicture,
		Avatar:         d.Avatar,
		Image:          d.Image,
	}
}

func newMessageDocument(m domain.Message) messageDocument {
	details := make([]documentDetailDocument, 0, len(m.DocumentDetails))
	for _, d := range m.DocumentDetails {
		details = append(details, documentDetailDocument(d))
	}
	return messageDocument{
		MessageID:       m.MessageID(),
		LegacyID:        m.LegacyID,
		SenderID:        m.SenderID(),
		ReceiverID:      m.ReceiverID,
		Text:            m.Text,
		CreatedAt:       m.Timestamp(),
		UpdatedAt:       m.UpdatedAt,
		Images:          m.Images,
		ImageURL:        m.ImageURL,
		Videos:          m.Videos,
		VideoURL:        m.VideoURL,
		AudioURL:        m.AudioURL,
		DocumentURLs:    m.DocumentURLs,
		DocumentURL:     m.DocumentURL,
		DocumentDetails: details,
		RepliedTo:       m.RepliedTo.ID,
		IsDeleted:       m.IsDeleted,
		Seen:            m.Seen,
	}
}

func (d messageDocument) toDomain() domain.Message {
	var details []domain.DocumentDetail
	for _, dd := range d.DocumentDetails {
		details = append(details, domain.DocumentDetail(dd))
	}

	reply := domain.ReplyNull()
	if d.RepliedTo != "" {
		reply = domain.ReplyToID(d.RepliedTo)
	}

	return domain.Message{
		ID:              d.MessageID,
		MongoID:         d.MessageID,
		LegacyID:        d.LegacyID,
		UserID:          d.SenderID,
		Sender:          d.SenderID,
		ReceiverID:      d.ReceiverID,
		Text:            d.Text,
		CreatedAt:       d.CreatedAt,
		Time:            d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		Images:          d.Images,
		ImageURL:        d.ImageURL,
		Videos:          d.Videos,
		VideoURL:        d.VideoURL,
		AudioURL:        d.AudioURL,
		DocumentURLs:    d.DocumentURLs,
		DocumentURL:     d.DocumentURL,
		DocumentDetails: details,
		RepliedTo:       reply,
		IsDeleted:       d.IsDeleted,
		Seen:            d.Seen,
	}
}
