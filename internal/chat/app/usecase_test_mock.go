package app

import (
	"context"
	"sync"

	"chat_sync_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockConversationRepository Mock ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

// FindByParticipant mock find conversations by participant
func (m *MockConversationRepository) FindByParticipant(ctx context.Context, userID string) ([]domain.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByID mock find conversation by id
func (m *MockConversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// Create mock create conversation
func (m *MockConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

// AppendMessage mock append message
func (m *MockConversationRepository) AppendMessage(ctx context.Context, conversationID string, msg domain.Message) error {
	args := m.Called(ctx, conversationID, msg)
	return args.Error(0)
}

// MarkSeen mock mark seen
func (m *MockConversationRepository) MarkSeen(ctx context.Context, conversationID, readerID string, messageIDs []string) error {
	args := m.Called(ctx, conversationID, readerID, messageIDs)
	return args.Error(0)
}

// MarkDeleted mock mark deleted
func (m *MockConversationRepository) MarkDeleted(ctx context.Context, conversationID, messageID string) error {
	args := m.Called(ctx, conversationID, messageID)
	return args.Error(0)
}

// UpdateFlags mock update favourite / archived
func (m *MockConversationRepository) UpdateFlags(ctx context.Context, conversationID string, favourite, archived *bool) error {
	args := m.Called(ctx, conversationID, favourite, archived)
	return args.Error(0)
}

// MockEventPublisher Mock EventPublisher, 會記錄發布過的事件
type MockEventPublisher struct {
	mock.Mock

	mu        sync.Mutex
	published map[string][]domain.Event
}

// Publish mock publish
func (m *MockEventPublisher) Publish(ctx context.Context, channel string, event domain.Event) error {
	m.mu.Lock()
	if m.published == nil {
		m.published = make(map[string][]domain.Event)
	}
	m.published[channel] = append(m.published[channel], event)
	m.mu.Unlock()

	args := m.Called(ctx, channel, event)
	return args.Error(0)
}

// Subscribe mock subscribe
func (m *MockEventPublisher) Subscribe(ctx context.Context, channel string, handler func(domain.Event)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

// Published 取出某 channel 發布過的事件
func (m *MockEventPublisher) Published(channel string) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.published[channel]...)
}

// MockSummaryPublisher Mock SummaryPublisher
type MockSummaryPublisher struct {
	mock.Mock
}

// PublishSummary mock publish summary
func (m *MockSummaryPublisher) PublishSummary(ctx context.Context, viewerID string, summary domain.ConversationSummary) error {
	args := m.Called(ctx, viewerID, summary)
	return args.Error(0)
}

// Close mock close
func (m *MockSummaryPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
