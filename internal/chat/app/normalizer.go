package app

import (
	"strconv"
	"strings"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// ISOTimeLayout 訊息時間格式 (UTC, 毫秒)
const ISOTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// 測試時可覆蓋
var timeNow = time.Now

func nowISO() string {
	return timeNow().UTC().Format(ISOTimeLayout)
}

// NormalizeMessage wire message 轉成 canonical Message
//
// isDeleted 與 repliedTo 原樣保留, 不做型別轉換
func NormalizeMessage(wire domain.WireMessage) domain.Message {
	id := firstNonEmpty(wire.MessageID, wire.ID, wire.MongoID)

	sender := ExtractID(wire.Sender)
	if sender == "" {
		sender = ExtractID(wire.UserID)
	}

	ts := firstNonEmpty(wire.CreatedAt, wire.Time)
	if ts == "" {
		ts = nowISO()
	}

	return domain.Message{
		ID:              id,
		MongoID:         id,
		LegacyID:        wire.LegacyID,
		UserID:          sender,
		Sender:          sender,
		ReceiverID:      wire.ReceiverID,
		Text:            wire.Text,
		CreatedAt:       ts,
		Time:            ts,
		UpdatedAt:       wire.UpdatedAt,
		Images:          wire.Images,
		ImageURL:        wire.ImageURL,
		Videos:          wire.Videos,
		VideoURL:        wire.VideoURL,
		AudioURL:        wire.AudioURL,
		DocumentURLs:    wire.DocumentURLs,
		DocumentURL:     wire.DocumentURL,
		DocumentDetails: wire.DocumentDetails,
		RepliedTo:       wire.RepliedTo,
		IsDeleted:       wire.IsDeleted,
		IsOptimistic:    false,
		Seen:            wire.Seen,
	}
}

// NormalizePreviousMessages 歷史訊息回填
// 沒有 sender 的項目會被丟棄, 已刪除的訊息保留位置, 最後整批解析 repliedTo
func NormalizePreviousMessages(wires []domain.WireMessage) []domain.Message {
	out := make([]domain.Message, 0, len(wires))
	for _, w := range wires {
		m := NormalizeMessage(w)
		if m.SenderID() == "" {
			logger.Log.Warn("drop history message without sender", zap.String("messageID", m.MessageID()))
			continue
		}
		out = append(out, m)
	}
	return PopulateReplyObjects(out)
}

// CreateTempMessage 建立本地 optimistic 訊息, id 為 temp-<epoch millis>
// repliedTo 只記錄被回覆訊息的 id
func CreateTempMessage(out domain.OutgoingMessage) domain.Message {
	now := timeNow()
	ts := now.UTC().Format(ISOTimeLayout)

	reply := domain.ReplyNull()
	if out.ReplyTo != nil {
		if id := out.ReplyTo.MessageID(); id != "" {
			reply = domain.ReplyToID(id)
		}
	}

	return domain.Message{
		ID:              domain.TempIDPrefix + strconv.FormatInt(now.UnixMilli(), 10),
		UserID:          out.SenderID,
		Sender:          out.SenderID,
		ReceiverID:      out.ReceiverID,
		Text:            out.Text,
		CreatedAt:       ts,
		Time:            ts,
		Images:          out.Images,
		Videos:          out.Videos,
		AudioURL:        out.AudioURL,
		DocumentURLs:    out.DocumentURLs,
		DocumentDetails: out.DocumentDetails,
		RepliedTo:       reply,
		IsOptimistic:    true,
	}
}

// IsValidMessage 有 sender, 且有非空白 text 或任一 media
func IsValidMessage(m domain.Message) bool {
	if m.SenderID() == "" {
		return false
	}
	return strings.TrimSpace(m.Text) != "" || m.HasMedia()
}

// IsTempMessage id 以 temp- 開頭
func IsTempMessage(m domain.Message) bool {
	return strings.HasPrefix(m.ID, domain.TempIDPrefix)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
