package app

import (
	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// Outcome reconcile 命中的規則
type Outcome string

const (
	// OutcomeDropped 無效訊息
	OutcomeDropped Outcome = "dropped"
	// OutcomeDuplicate 相同 id 重送
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeReplacedTemp 取代 temp- 訊息
	OutcomeReplacedTemp Outcome = "replaced_temp"
	// OutcomeReplacedOptimistic 取代 isOptimistic 訊息
	OutcomeReplacedOptimistic Outcome = "replaced_optimistic"
	// OutcomeAppended 新訊息
	OutcomeAppended Outcome = "appended"
)

// Changed list 是否有變動
func (o Outcome) Changed() bool {
	return o != OutcomeDropped && o != OutcomeDuplicate
}

// ProcessNewMessage 將 incoming 合併進 current, 回傳新的 list
// current 不會被修改; 沒有變動時回傳同一個 slice
func ProcessNewMessage(incoming domain.WireMessage, current []domain.Message) []domain.Message {
	out, _ := Reconcile(incoming, current)
	return out
}

// Reconcile 依序套用規則, 第一個命中的規則生效:
//  1. 無效訊息丟棄
//  2. id 已存在 (id / _id / messageaId)
//  3. text + sender 相同且 id 為 temp- 的項目全部取代
//  4. text + sender 相同且 isOptimistic 的項目全部取代, 再解析 repliedTo
//  5. append, 再解析 repliedTo
func Reconcile(incoming domain.WireMessage, current []domain.Message) ([]domain.Message, Outcome) {
	msg := NormalizeMessage(incoming)

	if !IsValidMessage(msg) {
		logger.Log.Warn("drop invalid message",
			zap.String("messageID", msg.MessageID()),
			zap.String("sender", msg.SenderID()),
		)
		return current, OutcomeDropped
	}

	if id := msg.MessageID(); id != "" {
		for _, m := range current {
			if m.HasID(id) {
				return current, OutcomeDuplicate
			}
		}
	}

	sameContent := func(m domain.Message) bool {
		return m.Text == msg.Text && m.SenderID() == msg.SenderID()
	}

	if out, ok := replaceWhere(current, msg, func(m domain.Message) bool {
		return sameContent(m) && IsTempMessage(m)
	}); ok {
		return out, OutcomeReplacedTemp
	}

	if out, ok := replaceWhere(current, msg, func(m domain.Message) bool {
		return sameContent(m) && m.IsOptimistic
	}); ok {
		return PopulateReplyObjects(out), OutcomeReplacedOptimistic
	}

	out := make([]domain.Message, len(current), len(current)+1)
	copy(out, current)
	out = append(out, msg)
	return PopulateReplyObjects(out), OutcomeAppended
}

// replaceWhere 所有符合 match 的項目都換成 msg
func replaceWhere(current []domain.Message, msg domain.Message, match func(domain.Message) bool) ([]domain.Message, bool) {
	var out []domain.Message
	for i, m := range current {
		if !match(m) {
			continue
		}
		if out == nil {
			out = make([]domain.Message, len(current))
			copy(out, current)
		}
		out[i] = msg
	}
	return out, out != nil
}
