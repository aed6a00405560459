package app

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendRequest viewer 送出訊息
// ConversationID 為空時以 ReceiverID 找既有聊天, 找不到就建立新的
type SendRequest struct {
	ConversationID string
	ReceiverID     string
	ReplyToID      string
	Message        domain.OutgoingMessage
}

// inbox 單一 viewer 的聊天狀態, 同一個 viewer 的事件依序在 mu 下處理
type inbox struct {
	mu       sync.Mutex
	viewerID string
	loaded   bool
	refs     int

	conversations map[string]*domain.Conversation
	online        map[string]bool
	typing        map[string]map[string]bool
}

type inboxSnapshot struct {
	conversations []domain.Conversation
	online        map[string]bool
	typing        map[string][]string
}

// InboxUseCase 維護每個 viewer 的 canonical 聊天列表
type InboxUseCase struct {
	repo      repository.ConversationRepository
	events    repository.EventPublisher
	summaries repository.SummaryPublisher
	views     *ChatDomainService

	batchSize            int
	progressiveThreshold int

	mu      sync.Mutex
	inboxes map[string]*inbox
}

// InboxOption InboxUseCase 設定
type InboxOption func(*InboxUseCase)

// WithBatchSize progressive loading 每批數量 (5 ~ 10)
func WithBatchSize(n int) InboxOption {
	return func(uc *InboxUseCase) {
		uc.batchSize = ClampBatchSize(n)
	}
}

// WithProgressiveThreshold 聊天數少於此值時不分批
func WithProgressiveThreshold(n int) InboxOption {
	return func(uc *InboxUseCase) {
		if n >= 0 {
			uc.progressiveThreshold = n
		}
	}
}

// NewInboxUseCase init inbox use case
func NewInboxUseCase(
	repo repository.ConversationRepository,
	events repository.EventPublisher,
	summaries repository.SummaryPublisher,
	views *ChatDomainService,
	opts ...InboxOption,
) *InboxUseCase {
	if summaries == nil {
		summaries = repository.NoopSummaryPublisher{}
	}
	if views == nil {
		views = NewChatDomainService()
	}
	uc := &InboxUseCase{
		repo:                 repo,
		events:               events,
		summaries:            summaries,
		views:                views,
		batchSize:            DefaultBatchSize,
		progressiveThreshold: 20,
		inboxes:              make(map[string]*inbox),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Views derived view service
func (uc *InboxUseCase) Views() *ChatDomainService {
	return uc.views
}

// Events event pub/sub
func (uc *InboxUseCase) Events() repository.EventPublisher {
	return uc.events
}

// Attach websocket 連線建立時呼叫, 連線期間 inbox 由 subscriber 保持最新
func (uc *InboxUseCase) Attach(viewerID string) {
	uc.acquire(viewerID)
}

// Detach 連線關閉時呼叫, 最後一條連線關閉後釋放 inbox
func (uc *InboxUseCase) Detach(viewerID string) {
	uc.mu.Lock()
	ib, ok := uc.inboxes[viewerID]
	uc.mu.Unlock()
	if !ok {
		return
	}
	uc.release(ib)
}

// acquire 取得 inbox 並持有一個 reference, 用完要 release
// 沒有連線持有的 inbox 只活到最後一個 release, 下次使用重新從 repository 載入
func (uc *InboxUseCase) acquire(viewerID string) *inbox {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	ib := uc.inboxLocked(viewerID)
	ib.refs++
	return ib
}

func (uc *InboxUseCase) release(ib *inbox) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	ib.refs--
	if ib.refs <= 0 && uc.inboxes[ib.viewerID] == ib {
		delete(uc.inboxes, ib.viewerID)
	}
}

func (uc *InboxUseCase) inboxLocked(viewerID string) *inbox {
	ib, ok := uc.inboxes[viewerID]
	if !ok {
		ib = &inbox{
			viewerID:      viewerID,
			conversations: make(map[string]*domain.Conversation),
			online:        make(map[string]bool),
			typing:        make(map[string]map[string]bool),
		}
		uc.inboxes[viewerID] = ib
	}
	return ib
}

// ensureLoadedLocked 第一次使用時從 repository 載入, 存放的訊息視為歷史回填
func (uc *InboxUseCase) ensureLoadedLocked(ctx context.Context, ib *inbox) error {
	if ib.loaded {
		return nil
	}

	convs, err := uc.repo.FindByParticipant(ctx, ib.viewerID)
	if err != nil {
		return fmt.Errorf("load inbox: %w", err)
	}

	for _, c := range convs {
		stored := make([]domain.WireMessage, 0, len(c.Messages))
		for _, m := range c.Messages {
			stored = append(stored, m.ToWire())
		}
		history := NormalizePreviousMessages(stored)

		if existing, ok := ib.conversations[c.ID]; ok {
			history = mergeHistory(history, existing.Messages)
		}
		conv := c
		conv.Messages = history
		ib.conversations[conv.ID] = &conv
		uc.views.ClearConversationCache(conv.ID)
	}
	ib.loaded = true

	logger.Log.Info("inbox loaded", zap.String("viewerID", ib.viewerID), zap.Int("conversations", len(convs)))
	return nil
}

func (ib *inbox) snapshotLocked() inboxSnapshot {
	snap := inboxSnapshot{
		conversations: make([]domain.Conversation, 0, len(ib.conversations)),
		online:        make(map[string]bool, len(ib.online)),
		typing:        make(map[string][]string, len(ib.typing)),
	}
	for _, c := range ib.conversations {
		snap.conversations = append(snap.conversations, *c)
	}
	for id, on := range ib.online {
		snap.online[id] = on
	}
	for convID := range ib.typing {
		snap.typing[convID] = ib.typingUsersLocked(convID)
	}
	return snap
}

func (ib *inbox) typingUsersLocked(convID string) []string {
	users := ib.typing[convID]
	if len(users) == 0 {
		return nil
	}
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (ib *inbox) findByParticipantsLocked(a, b string) *domain.Conversation {
	for _, c := range ib.conversations {
		if c.HasParticipant(a) && c.HasParticipant(b) {
			return c
		}
	}
	return nil
}

// LoadInbox 載入 viewer 的聊天並計算 summary
// 聊天數量達到 progressiveThreshold 時分批處理, 每批完成後 publish 目前累積的結果
func (uc *InboxUseCase) LoadInbox(ctx context.Context, viewerID string, publish func([]domain.ConversationSummary, BatchProgress)) ([]domain.ConversationSummary, error) {
	if viewerID == "" {
		return nil, errprocess.ErrMissingViewer
	}

	ib := uc.acquire(viewerID)
	defer uc.release(ib)

	ib.mu.Lock()
	err := uc.ensureLoadedLocked(ctx, ib)
	snap := ib.snapshotLocked()
	ib.mu.Unlock()
	if err != nil {
		return nil, err
	}

	convs := uc.views.SortChatsByMostRecent(snap.conversations)
	proc := NewProgressiveBatchProcessor(uc.batchSize, func(c domain.Conversation) (domain.ConversationSummary, bool) {
		return uc.summarize(snap, viewerID, c)
	})

	if len(convs) < uc.progressiveThreshold {
		summaries := proc.MapAll(convs)
		metrics.InboxLoadProgress.Set(proc.Progress())
		if publish != nil {
			publish(summaries, BatchProgress{Processed: len(convs), Total: len(convs), Percent: 100})
		}
		return summaries, nil
	}

	return proc.Process(ctx, convs, func(partial []domain.ConversationSummary, progress BatchProgress) {
		metrics.InboxLoadProgress.Set(progress.Percent)
		if publish != nil {
			publish(partial, progress)
		}
	})
}

// ListConversations tab 過濾後依最新排序
func (uc *InboxUseCase) ListConversations(ctx context.Context, viewerID string, tab domain.ChatTab) ([]domain.ConversationSummary, error) {
	if viewerID == "" {
		return nil, errprocess.ErrMissingViewer
	}

	ib := uc.acquire(viewerID)
	defer uc.release(ib)

	ib.mu.Lock()
	err := uc.ensureLoadedLocked(ctx, ib)
	snap := ib.snapshotLocked()
	ib.mu.Unlock()
	if err != nil {
		return nil, err
	}

	convs := uc.views.SortChatsByMostRecent(uc.views.FilterChatsByTab(snap.conversations, tab, viewerID))
	summaries := make([]domain.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		if s, ok := uc.summarize(snap, viewerID, c); ok {
			summaries = append(summaries, s)
		}
	}
	return summaries, nil
}

// Messages 單一聊天目前的訊息列表
func (uc *InboxUseCase) Messages(ctx context.Context, viewerID, conversationID string) ([]domain.Message, error) {
	conv, err := uc.conversation(ctx, viewerID, conversationID)
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

func (uc *InboxUseCase) conversation(ctx context.Context, viewerID, conversationID string) (domain.Conversation, error) {
	if viewerID == "" {
		return domain.Conversation{}, errprocess.ErrMissingViewer
	}

	ib := uc.acquire(viewerID)
	defer uc.release(ib)

	ib.mu.Lock()
	defer ib.mu.Unlock()

	if err := uc.ensureLoadedLocked(ctx, ib); err != nil {
		return domain.Conversation{}, err
	}
	c, ok := ib.conversations[conversationID]
	if !ok {
		return domain.Conversation{}, errprocess.ErrConversationNotFound
	}
	if !c.HasParticipant(viewerID) {
		return domain.Conversation{}, errprocess.ErrNotParticipant
	}
	return *c, nil
}

func (uc *InboxUseCase) summarize(snap inboxSnapshot, viewerID string, conv domain.Conversation) (domain.ConversationSummary, bool) {
	s, ok := uc.views.Summarize(conv, viewerID)
	if !ok {
		return s, false
	}
	s.IsOnline = snap.online[s.OtherUser.Identifier()]
	s.TypingUserIDs = snap.typing[conv.ID]
	return s, true
}

func (uc *InboxUseCase) summaryLocked(ib *inbox, conv domain.Conversation) (domain.ConversationSummary, bool) {
	return uc.summarize(inboxSnapshot{
		online: ib.online,
		typing: map[string][]string{conv.ID: ib.typingUsersLocked(conv.ID)},
	}, ib.viewerID, conv)
}

// invalidateLocked 清除聊天的衍生快取; bump 時更新 updatedAt (影響排序)
func (uc *InboxUseCase) invalidateLocked(conv *domain.Conversation, bump bool) {
	if bump {
		conv.UpdatedAt = timeNow().UTC()
	}
	uc.views.ClearConversationCache(conv.ID)
}

// ApplyEvent 依送達順序套用 transport 事件, 有變動時回傳更新後的 summary
// 格式錯誤的 payload 只記錄 log, 不回傳錯誤
func (uc *InboxUseCase) ApplyEvent(ctx context.Context, viewerID string, e domain.Event) (*domain.ConversationSummary, error) {
	if viewerID == "" {
		return nil, errprocess.ErrMissingViewer
	}
	metrics.EventsTotal.WithLabelValues(string(e.Type)).Inc()
	log := logger.Log.With(
		zap.String("viewerID", viewerID),
		zap.String("event", string(e.Type)),
		zap.String("conversationID", e.ConversationID),
	)

	ib := uc.acquire(viewerID)
	defer uc.release(ib)

	ib.mu.Lock()
	summary, err := uc.applyEventLocked(ctx, ib, e, log)
	ib.mu.Unlock()

	// summary 在 inbox lock 外送出, 同一 viewer 的事件不會卡在 kafka round-trip
	if summary != nil {
		uc.publishSummary(ctx, viewerID, *summary)
	}
	return summary, err
}

func (uc *InboxUseCase) applyEventLocked(ctx context.Context, ib *inbox, e domain.Event, log *logger.LogInfo) (*domain.ConversationSummary, error) {
	if err := uc.ensureLoadedLocked(ctx, ib); err != nil {
		return nil, err
	}

	var (
		conv    *domain.Conversation
		changed bool
		err     error
	)
	switch e.Type {
	case domain.EventConnect, domain.EventDisconnect:
		log.Info("transport state changed")
		return nil, nil

	case domain.EventOnlineUserList:
		p, derr := domain.DecodePayload[domain.OnlineUsersPayload](e)
		if derr != nil {
			log.Warn("skip malformed event", zap.Error(derr))
			return nil, nil
		}
		ib.online = make(map[string]bool, len(p.UserIDs))
		for _, id := range p.UserIDs {
			ib.online[id] = true
		}
		return nil, nil

	case domain.EventNewMessage:
		p, derr := domain.DecodePayload[domain.NewMessagePayload](e)
		if derr != nil {
			log.Warn("skip malformed event", zap.Error(derr))
			return nil, nil
		}
		conv, changed = uc.applyNewMessageLocked(ib, e.ConversationID, p)

	case domain.EventPreviousMessagesBatch:
		p, derr := domain.DecodePayload[domain.PreviousMessagesPayload](e)
		if derr != nil {
			log.Warn("skip malformed event", zap.Error(derr))
			return nil, nil
		}
		conv, changed, err = uc.applyHistoryLocked(ib, e.ConversationID, p)

	case domain.EventTypingStart, domain.EventTypingStop:
		p, derr := domain.DecodePayload[domain.TypingPayload](e)
		if derr != nil {
			log.Warn("skip malformed event", zap.Error(derr))
			return nil, nil
		}
		conv, changed = applyTypingLocked(ib, e.ConversationID, p.UserID, e.Type == domain.EventTypingStart)

	case domain.EventMessagesMarkedRead:
		p, derr := domain.DecodePayload[domain.MarkedReadPayload](e)
		if derr != nil {
			log.Warn("skip malformed event", zap.Error(derr))
			return nil, nil
		}
		conv, changed = uc.applyMarkedReadLocked(ib, e.ConversationID, p)

	case domain.EventMessageDeleted:
		p, derr := domain.DecodePayload[domain.MessageDeletedPayload](e)
		if derr != nil {
			log.Warn("skip malformed event", zap.Error(derr))
			return nil, nil
		}
		conv, changed = uc.applyDeletedLocked(ib, e.ConversationID, p.MessageID)

	default:
		log.Warn("unknown event type")
		return nil, nil
	}

	if err != nil {
		return nil, err
	}
	if !changed || conv == nil {
		return nil, nil
	}

	summary, ok := uc.summaryLocked(ib, *conv)
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

func (uc *InboxUseCase) applyNewMessageLocked(ib *inbox, conversationID string, p domain.NewMessagePayload) (*domain.Conversation, bool) {
	conv := ib.conversations[conversationID]

	var current []domain.Message
	if conv != nil {
		current = conv.Messages
	}
	list, outcome := Reconcile(p.Message, current)
	metrics.ReconcileTotal.WithLabelValues(string(outcome)).Inc()
	if !outcome.Changed() {
		return conv, false
	}

	if conv == nil {
		conv = provisionalLocked(ib, conversationID, p)
		if conv == nil {
			logger.Log.Warn("drop message for unknown conversation", zap.String("conversationID", conversationID))
			return nil, false
		}
		// 以 participants 找到既有聊天時, 要對那個聊天重新 reconcile
		list, outcome = Reconcile(p.Message, conv.Messages)
		if !outcome.Changed() {
			return conv, false
		}
	}

	conv.Messages = list
	uc.invalidateLocked(conv, true)
	return conv, true
}

// provisionalLocked 收到未知聊天的訊息時建立 provisional conversation
func provisionalLocked(ib *inbox, conversationID string, p domain.NewMessagePayload) *domain.Conversation {
	var a, b domain.User
	if len(p.Participants) >= 2 {
		a, b = p.Participants[0], p.Participants[1]
	} else {
		sender := ExtractID(p.Message.Sender)
		if sender == "" {
			sender = ExtractID(p.Message.UserID)
		}
		a = domain.User{ID: sender}
		b = domain.User{ID: p.Message.ReceiverID}
	}
	if a.Identifier() == "" || b.Identifier() == "" {
		return nil
	}

	if c := ib.findByParticipantsLocked(a.Identifier(), b.Identifier()); c != nil {
		return c
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	conv := &domain.Conversation{ID: conversationID, Sender: a, Receiver: b}
	ib.conversations[conversationID] = conv
	return conv
}

func (uc *InboxUseCase) applyHistoryLocked(ib *inbox, conversationID string, p domain.PreviousMessagesPayload) (*domain.Conversation, bool, error) {
	conv, ok := ib.conversations[conversationID]
	if !ok {
		return nil, false, errprocess.ErrConversationNotFound
	}

	conv.Messages = mergeHistory(NormalizePreviousMessages(p.Messages), conv.Messages)
	uc.invalidateLocked(conv, false)
	return conv, true, nil
}

// mergeHistory history 在前, 既有但 history 沒有的訊息 (例如尚未確認的 optimistic 訊息) 接在後面
func mergeHistory(history, existing []domain.Message) []domain.Message {
	out := slices.Clone(history)
	for _, m := range existing {
		if containsAnyID(history, m) {
			continue
		}
		out = append(out, m)
	}
	return PopulateReplyObjects(out)
}

func containsAnyID(list []domain.Message, m domain.Message) bool {
	for _, h := range list {
		if h.HasID(m.ID) || h.HasID(m.MongoID) || h.HasID(m.LegacyID) {
			return true
		}
	}
	return false
}

func applyTypingLocked(ib *inbox, conversationID, userID string, typing bool) (*domain.Conversation, bool) {
	conv, ok := ib.conversations[conversationID]
	if !ok || userID == "" || userID == ib.viewerID {
		return nil, false
	}

	users := ib.typing[conversationID]
	if typing {
		if users[userID] {
			return conv, false
		}
		if users == nil {
			users = make(map[string]bool)
			ib.typing[conversationID] = users
		}
		users[userID] = true
		return conv, true
	}

	if !users[userID] {
		return conv, false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(ib.typing, conversationID)
	}
	return conv, true
}

func (uc *InboxUseCase) applyMarkedReadLocked(ib *inbox, conversationID string, p domain.MarkedReadPayload) (*domain.Conversation, bool) {
	conv, ok := ib.conversations[conversationID]
	if !ok || p.ReaderID == "" {
		return nil, false
	}

	out := updateWhere(conv.Messages, func(m domain.Message) bool {
		if m.Seen || m.SenderID() == p.ReaderID {
			return false
		}
		if len(p.MessageIDs) == 0 {
			return true
		}
		return slices.ContainsFunc(p.MessageIDs, m.HasID)
	}, func(m *domain.Message) {
		m.Seen = true
		m.UpdatedAt = nowISO()
	})
	if out == nil {
		return conv, false
	}

	conv.Messages = out
	uc.invalidateLocked(conv, false)
	return conv, true
}

func (uc *InboxUseCase) applyDeletedLocked(ib *inbox, conversationID, messageID string) (*domain.Conversation, bool) {
	conv, ok := ib.conversations[conversationID]
	if !ok {
		return nil, false
	}

	out := updateWhere(conv.Messages, func(m domain.Message) bool {
		return m.HasID(messageID) && !m.Deleted()
	}, func(m *domain.Message) {
		deleted := true
		m.IsDeleted = &deleted
		m.UpdatedAt = nowISO()
	})
	if out == nil {
		return conv, false
	}

	conv.Messages = out
	uc.invalidateLocked(conv, false)
	return conv, true
}

// updateWhere copy-on-write, 沒有任何項目符合時回傳 nil
func updateWhere(list []domain.Message, match func(domain.Message) bool, update func(*domain.Message)) []domain.Message {
	var out []domain.Message
	for i, m := range list {
		if !match(m) {
			continue
		}
		if out == nil {
			out = slices.Clone(list)
		}
		update(&out[i])
	}
	return out
}

// SendMessage 先以 temp 訊息 optimistic 插入, 寫入 repository 後對雙方發布 new-message
// 自己 channel 收到的 echo 會依 temp 規則取代 optimistic 訊息
func (uc *InboxUseCase) SendMessage(ctx context.Context, viewerID string, req SendRequest) (domain.Message, error) {
	if viewerID == "" {
		return domain.Message{}, errprocess.ErrMissingViewer
	}

	out := req.Message
	out.SenderID = viewerID
	if !IsValidMessage(CreateTempMessage(out)) {
		return domain.Message{}, errprocess.ErrInvalidMessage
	}

	ib := uc.acquire(viewerID)
	defer uc.release(ib)

	ib.mu.Lock()
	if err := uc.ensureLoadedLocked(ctx, ib); err != nil {
		ib.mu.Unlock()
		return domain.Message{}, err
	}

	conv, created, err := resolveConversationLocked(ib, req)
	if err != nil {
		ib.mu.Unlock()
		return domain.Message{}, err
	}

	if req.ReplyToID != "" {
		if i := slices.IndexFunc(conv.Messages, func(m domain.Message) bool { return m.HasID(req.ReplyToID) }); i >= 0 {
			target := conv.Messages[i]
			out.ReplyTo = &target
		}
	}
	if out.ReceiverID == "" {
		if other := uc.views.DetermineOtherUser(*conv, viewerID); other != nil {
			out.ReceiverID = other.Identifier()
		}
	}

	temp := CreateTempMessage(out)
	conv.Messages = append(slices.Clone(conv.Messages), temp)
	uc.invalidateLocked(conv, true)

	conversationID := conv.ID
	participants := []domain.User{conv.Sender, conv.Receiver}
	fresh := domain.Conversation{ID: conv.ID, Sender: conv.Sender, Receiver: conv.Receiver, UpdatedAt: conv.UpdatedAt}
	ib.mu.Unlock()

	if created {
		if err := uc.repo.Create(ctx, &fresh); err != nil {
			uc.rollbackSend(ib, conversationID, temp.ID, true)
			return temp, fmt.Errorf("create conversation: %w", err)
		}
	}

	confirmed := temp
	confirmed.ID = uuid.NewString()
	confirmed.MongoID = confirmed.ID
	confirmed.IsOptimistic = false
	if err := uc.repo.AppendMessage(ctx, conversationID, confirmed); err != nil {
		uc.rollbackSend(ib, conversationID, temp.ID, false)
		return temp, fmt.Errorf("append message: %w", err)
	}

	event, err := domain.NewEvent(domain.EventNewMessage, conversationID, domain.NewMessagePayload{
		Message:      confirmed.ToWire(),
		Participants: participants,
	})
	if err != nil {
		return temp, err
	}
	for _, p := range participants {
		uc.publish(ctx, p.Identifier(), event)
	}
	return temp, nil
}

// rollbackSend 寫入失敗時移除 optimistic temp, 聊天本身沒寫入時一併移除
func (uc *InboxUseCase) rollbackSend(ib *inbox, conversationID, tempID string, dropConversation bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	conv, ok := ib.conversations[conversationID]
	if !ok {
		return
	}
	if dropConversation {
		delete(ib.conversations, conversationID)
		uc.views.ClearConversationCache(conversationID)
		return
	}
	conv.Messages = slices.DeleteFunc(slices.Clone(conv.Messages), func(m domain.Message) bool {
		return m.HasID(tempID)
	})
	uc.invalidateLocked(conv, false)
}

func resolveConversationLocked(ib *inbox, req SendRequest) (*domain.Conversation, bool, error) {
	if req.ConversationID != "" {
		c, ok := ib.conversations[req.ConversationID]
		if !ok {
			return nil, false, errprocess.ErrConversationNotFound
		}
		if !c.HasParticipant(ib.viewerID) {
			return nil, false, errprocess.ErrNotParticipant
		}
		return c, false, nil
	}

	if req.ReceiverID == "" || req.ReceiverID == ib.viewerID {
		return nil, false, fmt.Errorf("%w: receiver required", errprocess.ErrInvalidMessage)
	}
	if c := ib.findByParticipantsLocked(ib.viewerID, req.ReceiverID); c != nil {
		return c, false, nil
	}

	c := &domain.Conversation{
		ID:       uuid.NewString(),
		Sender:   domain.User{ID: ib.viewerID},
		Receiver: domain.User{ID: req.ReceiverID},
	}
	ib.conversations[c.ID] = c
	return c, true, nil
}

// MarkConversationRead 將對方的訊息設為已讀, 並通知對方
func (uc *InboxUseCase) MarkConversationRead(ctx context.Context, viewerID, conversationID string) (*domain.ConversationSummary, error) {
	conv, err := uc.conversation(ctx, viewerID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.MarkSeen(ctx, conversationID, viewerID, nil); err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}

	event, err := domain.NewEvent(domain.EventMessagesMarkedRead, conversationID, domain.MarkedReadPayload{ReaderID: viewerID})
	if err != nil {
		return nil, err
	}
	summary, err := uc.ApplyEvent(ctx, viewerID, event)
	uc.publishToOthers(ctx, viewerID, conv, event)
	return summary, err
}

// DeleteMessage 只能刪除自己送出的訊息, 刪除後保留 tombstone
func (uc *InboxUseCase) DeleteMessage(ctx context.Context, viewerID, conversationID, messageID string) (*domain.ConversationSummary, error) {
	conv, err := uc.conversation(ctx, viewerID, conversationID)
	if err != nil {
		return nil, err
	}

	i := slices.IndexFunc(conv.Messages, func(m domain.Message) bool { return m.HasID(messageID) })
	if i < 0 {
		return nil, errprocess.ErrMessageNotFound
	}
	if conv.Messages[i].SenderID() != viewerID {
		return nil, errprocess.ErrNotAuthor
	}
	if err := uc.repo.MarkDeleted(ctx, conversationID, conv.Messages[i].MessageID()); err != nil {
		return nil, fmt.Errorf("mark deleted: %w", err)
	}

	event, err := domain.NewEvent(domain.EventMessageDeleted, conversationID, domain.MessageDeletedPayload{MessageID: messageID})
	if err != nil {
		return nil, err
	}
	summary, err := uc.ApplyEvent(ctx, viewerID, event)
	uc.publishToOthers(ctx, viewerID, conv, event)
	return summary, err
}

// SetFavourite 更新我的最愛
func (uc *InboxUseCase) SetFavourite(ctx context.Context, viewerID, conversationID string, favourite bool) (*domain.ConversationSummary, error) {
	return uc.setFlag(ctx, viewerID, conversationID, &favourite, nil)
}

// SetArchived 更新封存
func (uc *InboxUseCase) SetArchived(ctx context.Context, viewerID, conversationID string, archived bool) (*domain.ConversationSummary, error) {
	return uc.setFlag(ctx, viewerID, conversationID, nil, &archived)
}

func (uc *InboxUseCase) setFlag(ctx context.Context, viewerID, conversationID string, favourite, archived *bool) (*domain.ConversationSummary, error) {
	if _, err := uc.conversation(ctx, viewerID, conversationID); err != nil {
		return nil, err
	}
	if err := uc.repo.UpdateFlags(ctx, conversationID, favourite, archived); err != nil {
		return nil, fmt.Errorf("update flags: %w", err)
	}

	ib := uc.acquire(viewerID)
	defer uc.release(ib)

	summary, err := uc.setFlagLocked(ctx, ib, conversationID, favourite, archived)
	if summary != nil {
		uc.publishSummary(ctx, viewerID, *summary)
	}
	return summary, err
}

func (uc *InboxUseCase) setFlagLocked(ctx context.Context, ib *inbox, conversationID string, favourite, archived *bool) (*domain.ConversationSummary, error) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	if err := uc.ensureLoadedLocked(ctx, ib); err != nil {
		return nil, err
	}
	conv, ok := ib.conversations[conversationID]
	if !ok {
		return nil, errprocess.ErrConversationNotFound
	}
	if favourite != nil {
		conv.IsFavourite = *favourite
	}
	if archived != nil {
		conv.IsArchived = *archived
	}
	uc.invalidateLocked(conv, false)

	summary, ok := uc.summaryLocked(ib, *conv)
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

// SetTyping 通知對方 viewer 開始 / 停止輸入
func (uc *InboxUseCase) SetTyping(ctx context.Context, viewerID, conversationID string, typing bool) error {
	conv, err := uc.conversation(ctx, viewerID, conversationID)
	if err != nil {
		return err
	}

	t := domain.EventTypingStop
	if typing {
		t = domain.EventTypingStart
	}
	event, err := domain.NewEvent(t, conversationID, domain.TypingPayload{UserID: viewerID})
	if err != nil {
		return err
	}
	uc.publishToOthers(ctx, viewerID, conv, event)
	return nil
}

// RefreshViews 清除 derived view 快取 (例如切回 inbox tab)
func (uc *InboxUseCase) RefreshViews() {
	uc.views.ClearCaches()
}

func (uc *InboxUseCase) publishToOthers(ctx context.Context, viewerID string, conv domain.Conversation, event domain.Event) {
	for _, u := range []domain.User{conv.Sender, conv.Receiver} {
		if id := u.Identifier(); id != viewerID {
			uc.publish(ctx, id, event)
		}
	}
}

func (uc *InboxUseCase) publish(ctx context.Context, userID string, event domain.Event) {
	if uc.events == nil || userID == "" {
		return
	}
	if err := uc.events.Publish(ctx, repository.UserChannel(userID), event); err != nil {
		logger.Log.Error("publish event failed",
			zap.String("userID", userID),
			zap.String("event", string(event.Type)),
			zap.Error(err),
		)
	}
}

func (uc *InboxUseCase) publishSummary(ctx context.Context, viewerID string, summary domain.ConversationSummary) {
	if err := uc.summaries.PublishSummary(ctx, viewerID, summary); err != nil {
		logger.Log.Warn("publish summary failed",
			zap.String("viewerID", viewerID),
			zap.String("conversationID", summary.ConversationID),
			zap.Error(err),
		)
	}
}
