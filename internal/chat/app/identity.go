package app

import (
	"bytes"
	"encoding/json"

	"chat_sync_service/internal/chat/domain"
)

// ExtractID 將各種使用者表示法轉成 canonical id, 無法解析時回傳 ""
//
// 支援 string, domain.UserRef, domain.User, map[string]any ({_id} / {id}) 與 json.RawMessage
func ExtractID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case domain.UserRef:
		return userRefID(t)
	case *domain.UserRef:
		if t == nil {
			return ""
		}
		return userRefID(*t)
	case domain.User:
		return t.Identifier()
	case *domain.User:
		if t == nil {
			return ""
		}
		return t.Identifier()
	case map[string]any:
		if id, ok := t["_id"].(string); ok && id != "" {
			return id
		}
		id, _ := t["id"].(string)
		return id
	case json.RawMessage:
		return rawID(t)
	default:
		return ""
	}
}

func userRefID(ref domain.UserRef) string {
	if ref.ID != "" {
		return ref.ID
	}
	if ref.User != nil {
		return ref.User.Identifier()
	}
	return ""
}

func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var ref domain.UserRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return ""
	}
	return userRefID(ref)
}
