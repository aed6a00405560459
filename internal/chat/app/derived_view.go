package app

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

const (
	// DefaultCacheTTL derived view 快取時間
	DefaultCacheTTL = 5 * time.Minute
	// DefaultUnreadCacheSize unread count 快取上限
	DefaultUnreadCacheSize = 100
	// DefaultDisplayCacheSize 訊息預覽文字快取上限
	DefaultDisplayCacheSize = 200

	deletedMessageText = "This message was deleted"
	emptyPreviewText   = "No messages yet"
	unknownUserName    = "Unknown User"
)

type userView struct {
	displayName string
	avatarURL   string
}

// ChatDomainService 計算並快取 conversation 的衍生資料
// (對方使用者, 未讀數, 預覽文字, 顯示名稱, 頭像)
type ChatDomainService struct {
	ttl         time.Duration
	unreadSize  int
	displaySize int
	clock       func() time.Time
	share       domain.ShareCodec

	unread  *viewCache[string, int]
	display *viewCache[string, string]
	users   *viewCache[string, userView]
}

// Option ChatDomainService 設定
type Option func(*ChatDomainService)

// WithCacheTTL 所有快取的 TTL
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *ChatDomainService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithUnreadCacheSize unread count 快取上限
func WithUnreadCacheSize(n int) Option {
	return func(s *ChatDomainService) {
		if n > 0 {
			s.unreadSize = n
		}
	}
}

// WithDisplayCacheSize 預覽文字快取上限
func WithDisplayCacheSize(n int) Option {
	return func(s *ChatDomainService) {
		if n > 0 {
			s.displaySize = n
		}
	}
}

// WithClock 測試用時鐘
func WithClock(clock func() time.Time) Option {
	return func(s *ChatDomainService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithShareCodec deep link scheme
func WithShareCodec(codec domain.ShareCodec) Option {
	return func(s *ChatDomainService) {
		s.share = codec
	}
}

// NewChatDomainService create ChatDomainService
func NewChatDomainService(opts ...Option) *ChatDomainService {
	s := &ChatDomainService{
		ttl:         DefaultCacheTTL,
		unreadSize:  DefaultUnreadCacheSize,
		displaySize: DefaultDisplayCacheSize,
		clock:       time.Now,
		share:       domain.DefaultShareCodec,
	}
	for _, opt := range opts {
		opt(s)
	}

	now := func() time.Time { return s.clock() }
	s.unread = newViewCache[string, int]("unread", s.ttl, s.unreadSize, now)
	s.display = newViewCache[string, string]("display", s.ttl, s.displaySize, now)
	s.users = newViewCache[string, userView]("user", s.ttl, 0, now)
	return s
}

// DetermineOtherUser 相對於 viewer 的另一位參與者, 任一方沒有 id 時回傳 nil
func (s *ChatDomainService) DetermineOtherUser(conv domain.Conversation, viewerID string) *domain.User {
	senderID := conv.Sender.Identifier()
	receiverID := conv.Receiver.Identifier()
	if senderID == "" || receiverID == "" {
		return nil
	}
	if senderID == viewerID {
		other := conv.Receiver
		return &other
	}
	other := conv.Sender
	return &other
}

// IsMessageUnread 不是 viewer 送出且尚未 seen
func (s *ChatDomainService) IsMessageUnread(msg domain.Message, viewerID string) bool {
	return !msg.Seen && msg.SenderID() != viewerID
}

// CalculateUnreadCount 對方送出且未 seen 的訊息數
// 未讀訊息不一定連續, 所以整個 list 都要掃過
func (s *ChatDomainService) CalculateUnreadCount(conv domain.Conversation, viewerID string) int {
	key := conv.ID + "|" + conv.LastMessageTimestamp() + "|" + viewerID
	if n, ok := s.unread.get(key); ok {
		return n
	}

	count := 0
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if s.IsMessageUnread(conv.Messages[i], viewerID) {
			count++
		}
	}

	s.unread.set(key, count)
	return count
}

// FormatMessageForDisplay inbox 預覽文字
// 順序: 已刪除 > 影片 > 圖片 > 語音 > 文件 > deep link > 文字 > No messages yet
func (s *ChatDomainService) FormatMessageForDisplay(msg *domain.Message, viewerID string) string {
	if msg == nil {
		return emptyPreviewText
	}

	id := msg.MessageID()
	key := id + "|" + msg.SenderID() + "|" + viewerID + "|" + strconv.FormatBool(msg.Deleted())
	if id != "" {
		if text, ok := s.display.get(key); ok {
			return text
		}
	}

	text := s.formatMessage(*msg, viewerID)
	if id != "" {
		s.display.set(key, text)
	}
	return text
}

func (s *ChatDomainService) formatMessage(msg domain.Message, viewerID string) string {
	if msg.Deleted() {
		return deletedMessageText
	}

	own := msg.SenderID() == viewerID
	sent := func(what string) string {
		if own {
			return "You sent " + what
		}
		return "Sent " + what
	}

	if msg.HasVideo() {
		return sent("a video")
	}
	if n := msg.ImageCount(); n > 0 {
		return sent(plural(n, "a photo", "photos"))
	}
	if msg.AudioURL != "" {
		return sent("a voice message")
	}
	if n := msg.DocumentCount(); n > 0 {
		return sent(plural(n, "a document", "documents"))
	}

	if kind, _, ok := s.share.Detect(msg.Text); ok {
		what := shareLabel(kind)
		if own {
			return "You shared " + what
		}
		return "Shared " + what
	}

	if text := strings.TrimSpace(msg.Text); text != "" {
		return text
	}
	return emptyPreviewText
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return fmt.Sprintf("%d %s", n, many)
}

func shareLabel(kind domain.ShareKind) string {
	switch kind {
	case domain.ShareStream:
		return "a live stream"
	case domain.ShareVideo:
		return "a video"
	case domain.SharePhoto:
		return "a photo"
	default:
		return "a community invite"
	}
}

// GetDisplayName displayName > firstName lastName > firstName > username > Unknown User
func (s *ChatDomainService) GetDisplayName(user domain.User) string {
	return s.userView(user).displayName
}

// GetAvatarURL profilePicture (trim) > avatar > image > ""
func (s *ChatDomainService) GetAvatarURL(user domain.User) string {
	return s.userView(user).avatarURL
}

// userView 顯示名稱與頭像一起計算, 共用同一筆快取
func (s *ChatDomainService) userView(user domain.User) userView {
	id := user.Identifier()
	if id != "" {
		if v, ok := s.users.get(id); ok {
			return v
		}
	}

	v := userView{
		displayName: resolveDisplayName(user),
		avatarURL:   resolveAvatarURL(user),
	}
	if id != "" {
		s.users.set(id, v)
	}
	return v
}

func resolveDisplayName(user domain.User) string {
	first := strings.TrimSpace(user.FirstName)
	last := strings.TrimSpace(user.LastName)
	switch {
	case strings.TrimSpace(user.DisplayName) != "":
		return strings.TrimSpace(user.DisplayName)
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case strings.TrimSpace(user.Username) != "":
		return strings.TrimSpace(user.Username)
	default:
		return unknownUserName
	}
}

func resolveAvatarURL(user domain.User) string {
	if pic := strings.TrimSpace(user.ProfilePicture); pic != "" {
		return pic
	}
	if user.Avatar != "" {
		return user.Avatar
	}
	return user.Image
}

// FilterChatsByTab All / Unread / Favorites / Archived
func (s *ChatDomainService) FilterChatsByTab(convs []domain.Conversation, tab domain.ChatTab, viewerID string) []domain.Conversation {
	var keep func(domain.Conversation) bool
	switch tab {
	case domain.TabUnread:
		keep = func(c domain.Conversation) bool { return s.CalculateUnreadCount(c, viewerID) > 0 }
	case domain.TabFavorites:
		keep = func(c domain.Conversation) bool { return c.IsFavourite }
	case domain.TabArchived:
		keep = func(c domain.Conversation) bool { return c.IsArchived }
	case domain.TabAll, "":
		return slices.Clone(convs)
	default:
		logger.Log.Warn("unknown chat tab, fallback to All", zap.String("tab", string(tab)))
		return slices.Clone(convs)
	}

	out := make([]domain.Conversation, 0, len(convs))
	for _, c := range convs {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// SortChatsByMostRecent 依 updatedAt 由新到舊 (stable), 沒有 updatedAt 的排最後
func (s *ChatDomainService) SortChatsByMostRecent(convs []domain.Conversation) []domain.Conversation {
	out := slices.Clone(convs)
	slices.SortStableFunc(out, func(a, b domain.Conversation) int {
		switch {
		case a.UpdatedAt.IsZero() && b.UpdatedAt.IsZero():
			return 0
		case a.UpdatedAt.IsZero():
			return 1
		case b.UpdatedAt.IsZero():
			return -1
		}
		return cmp.Compare(b.UpdatedAt.UnixNano(), a.UpdatedAt.UnixNano())
	})
	return out
}

// Summarize 組合 inbox 列表需要的衍生資料, 無法判斷對方時回傳 false
func (s *ChatDomainService) Summarize(conv domain.Conversation, viewerID string) (domain.ConversationSummary, bool) {
	other := s.DetermineOtherUser(conv, viewerID)
	if other == nil {
		logger.Log.Debug("skip conversation without participants", zap.String("conversationID", conv.ID))
		return domain.ConversationSummary{}, false
	}

	last := conv.LastMessage()
	summary := domain.ConversationSummary{
		ConversationID:  conv.ID,
		OtherUser:       *other,
		DisplayName:     s.GetDisplayName(*other),
		AvatarURL:       s.GetAvatarURL(*other),
		UnreadCount:     s.CalculateUnreadCount(conv, viewerID),
		LastMessageText: s.FormatMessageForDisplay(last, viewerID),
		IsFavourite:     conv.IsFavourite,
		IsArchived:      conv.IsArchived,
		UpdatedAt:       conv.UpdatedAt,
	}
	if last != nil {
		summary.LastMessageAt = last.Timestamp()
	}
	return summary, true
}

// ClearCaches 清除所有快取 (例如切回 inbox tab)
func (s *ChatDomainService) ClearCaches() {
	s.unread.clear()
	s.display.clear()
	s.users.clear()
}

// ClearConversationCache 清除單一聊天的 unread 快取
func (s *ChatDomainService) ClearConversationCache(conversationID string) {
	prefix := conversationID + "|"
	s.unread.deleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}
