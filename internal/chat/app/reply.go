package app

import "chat_sync_service/internal/chat/domain"

// PopulateReplyObjects 在同一批訊息中解析 repliedTo id, 命中時內嵌被回覆訊息的副本
// 找不到的 reference 保留 id; 已內嵌的不會重新解析, 沒有任何變更時回傳原 slice
func PopulateReplyObjects(messages []domain.Message) []domain.Message {
	var index map[string]int
	var out []domain.Message

	for i, m := range messages {
		if !m.RepliedTo.IsUnresolved() {
			continue
		}
		if index == nil {
			index = indexByID(messages)
		}
		target, ok := index[m.RepliedTo.ID]
		if !ok {
			continue
		}
		if out == nil {
			out = make([]domain.Message, len(messages))
			copy(out, messages)
		}
		out[i].RepliedTo = m.RepliedTo.Resolve(messages[target])
	}

	if out == nil {
		return messages
	}
	return out
}

// indexByID _id 與 id 對應到第一個出現的位置
func indexByID(messages []domain.Message) map[string]int {
	index := make(map[string]int, len(messages)*2)
	for i, m := range messages {
		for _, id := range []string{m.MongoID, m.ID} {
			if id == "" {
				continue
			}
			if _, exists := index[id]; !exists {
				index[id] = i
			}
		}
	}
	return index
}
