package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	errprocess "chat_sync_service/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type inboxFixture struct {
	uc        *InboxUseCase
	repo      *MockConversationRepository
	events    *MockEventPublisher
	summaries *MockSummaryPublisher
}

// newInboxFixture "me" 已有 websocket 連線 (Attach), inbox 在測試期間保留
func newInboxFixture(t *testing.T, convs []domain.Conversation, opts ...InboxOption) inboxFixture {
	t.Helper()

	f := newDetachedInboxFixture(t, opts...)
	f.repo.On("FindByParticipant", mock.Anything, mock.Anything).Return(convs, nil)
	f.uc.Attach("me")
	t.Cleanup(func() { f.uc.Detach("me") })
	return f
}

// newDetachedInboxFixture 沒有連線, FindByParticipant 由測試自行設定
func newDetachedInboxFixture(t *testing.T, opts ...InboxOption) inboxFixture {
	t.Helper()

	f := inboxFixture{
		repo:      new(MockConversationRepository),
		events:    new(MockEventPublisher),
		summaries: new(MockSummaryPublisher),
	}
	f.events.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.summaries.On("PublishSummary", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	f.uc = NewInboxUseCase(f.repo, f.events, f.summaries, NewChatDomainService(), opts...)
	return f
}

func baseConversation() domain.Conversation {
	return domain.Conversation{
		ID:        "c-1",
		Sender:    domain.User{ID: "me", Username: "me"},
		Receiver:  domain.User{ID: "you", FirstName: "Your", LastName: "Name"},
		Messages:  []domain.Message{stored("m-1", "you", "hello")},
		UpdatedAt: fixedNow.Add(-time.Hour),
	}
}

func mustEvent(t *testing.T, typ domain.EventType, convID string, payload any) domain.Event {
	t.Helper()
	e, err := domain.NewEvent(typ, convID, payload)
	require.NoError(t, err)
	return e
}

func TestInboxUseCase_MissingViewer(t *testing.T) {
	f := newInboxFixture(t, nil)
	ctx := context.Background()

	_, err := f.uc.LoadInbox(ctx, "", nil)
	assert.ErrorIs(t, err, errprocess.ErrMissingViewer)

	_, err = f.uc.ApplyEvent(ctx, "", domain.Event{Type: domain.EventConnect})
	assert.ErrorIs(t, err, errprocess.ErrMissingViewer)

	_, err = f.uc.SendMessage(ctx, "", SendRequest{})
	assert.ErrorIs(t, err, errprocess.ErrMissingViewer)
}

func TestInboxUseCase_LoadInbox_SingleBatch(t *testing.T) {
	older := baseConversation()
	newer := domain.Conversation{
		ID:        "c-2",
		Sender:    domain.User{ID: "other"},
		Receiver:  domain.User{ID: "me"},
		UpdatedAt: fixedNow,
	}
	f := newInboxFixture(t, []domain.Conversation{older, newer})

	var calls []BatchProgress
	summaries, err := f.uc.LoadInbox(context.Background(), "me", func(_ []domain.ConversationSummary, p BatchProgress) {
		calls = append(calls, p)
	})

	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "c-2", summaries[0].ConversationID)
	assert.Equal(t, "No messages yet", summaries[0].LastMessageText)
	assert.Equal(t, "Your Name", summaries[1].DisplayName)
	assert.Equal(t, 1, summaries[1].UnreadCount)
	assert.Equal(t, []BatchProgress{{Processed: 2, Total: 2, Percent: 100}}, calls)
}

func TestInboxUseCase_LoadInbox_Progressive(t *testing.T) {
	convs := make([]domain.Conversation, 12)
	for i := range convs {
		convs[i] = domain.Conversation{
			ID:        fmt.Sprintf("c-%d", i),
			Sender:    domain.User{ID: "me"},
			Receiver:  domain.User{ID: fmt.Sprintf("u-%d", i)},
			UpdatedAt: fixedNow.Add(-time.Duration(i) * time.Minute),
		}
	}
	f := newInboxFixture(t, convs, WithBatchSize(5), WithProgressiveThreshold(10))

	var sizes []int
	summaries, err := f.uc.LoadInbox(context.Background(), "me", func(partial []domain.ConversationSummary, p BatchProgress) {
		sizes = append(sizes, len(partial))
	})

	require.NoError(t, err)
	assert.Len(t, summaries, 12)
	assert.Equal(t, []int{5, 10, 12}, sizes)
	assert.Equal(t, "c-0", summaries[0].ConversationID)
}

func TestInboxUseCase_LoadInbox_RepositoryError(t *testing.T) {
	repo := new(MockConversationRepository)
	repo.On("FindByParticipant", mock.Anything, "me").Return(nil, errors.New("mongo down"))
	uc := NewInboxUseCase(repo, nil, nil, nil)

	_, err := uc.LoadInbox(context.Background(), "me", nil)
	assert.ErrorContains(t, err, "mongo down")
}

func TestInboxUseCase_SendEchoConfirm(t *testing.T) {
	f := newInboxFixture(t, []domain.Conversation{baseConversation()})
	f.repo.On("AppendMessage", mock.Anything, "c-1", mock.Anything).Return(nil)
	ctx := context.Background()

	temp, err := f.uc.SendMessage(ctx, "me", SendRequest{
		ConversationID: "c-1",
		ReplyToID:      "m-1",
		Message:        domain.OutgoingMessage{Text: "hi back"},
	})
	require.NoError(t, err)
	assert.True(t, IsTempMessage(temp))
	assert.Equal(t, "you", temp.ReceiverID)
	assert.Equal(t, "m-1", temp.RepliedTo.ID)

	msgs, err := f.uc.Messages(ctx, "me", "c-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m-1", temp.ID}, ids(msgs))

	mine := f.events.Published(repository.UserChannel("me"))
	theirs := f.events.Published(repository.UserChannel("you"))
	require.Len(t, mine, 1)
	require.Len(t, theirs, 1)
	assert.Equal(t, domain.EventNewMessage, mine[0].Type)

	// 自己 channel 收到 echo, temp 被取代
	summary, err := f.uc.ApplyEvent(ctx, "me", mine[0])
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "hi back", summary.LastMessageText)

	msgs, err = f.uc.Messages(ctx, "me", "c-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.False(t, IsTempMessage(msgs[1]))
	assert.False(t, msgs[1].IsOptimistic)
	// temp 規則取代時不重新解析 repliedTo
	assert.True(t, msgs[1].RepliedTo.IsUnresolved())
	assert.Equal(t, "m-1", msgs[1].RepliedTo.ID)

	// 重送同一事件不會變動
	summary, err = f.uc.ApplyEvent(ctx, "me", mine[0])
	require.NoError(t, err)
	assert.Nil(t, summary)

	f.repo.AssertExpectations(t)
}

func TestInboxUseCase_SendMessage_Invalid(t *testing.T) {
	f := newInboxFixture(t, []domain.Conversation{baseConversation()})

	_, err := f.uc.SendMessage(context.Background(), "me", SendRequest{
		ConversationID: "c-1",
		Message:        domain.OutgoingMessage{Text: "   "},
	})

	assert.ErrorIs(t, err, errprocess.ErrInvalidMessage)
	f.repo.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestInboxUseCase_SendMessage_NotParticipant(t *testing.T) {
	conv := baseConversation()
	conv.Sender = domain.User{ID: "someone"}
	f := newInboxFixture(t, []domain.Conversation{conv})

	_, err := f.uc.SendMessage(context.Background(), "me", SendRequest{
		ConversationID: "c-1",
		Message:        domain.OutgoingMessage{Text: "hi"},
	})
	assert.ErrorIs(t, err, errprocess.ErrNotParticipant)

	_, err = f.uc.SendMessage(context.Background(), "me", SendRequest{
		ConversationID: "missing",
		Message:        domain.OutgoingMessage{Text: "hi"},
	})
	assert.ErrorIs(t, err, errprocess.ErrConversationNotFound)
}

func TestInboxUseCase_SendMessage_CreatesConversation(t *testing.T) {
	f := newInboxFixture(t, nil)
	f.repo.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.Conversation) bool {
		return c.HasParticipant("me") && c.HasParticipant("new") && len(c.Messages) == 0
	})).Return(nil)
	f.repo.On("AppendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	temp, err := f.uc.SendMessage(ctx, "me", SendRequest{
		ReceiverID: "new",
		Message:    domain.OutgoingMessage{Text: "first"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new", temp.ReceiverID)

	list, err := f.uc.ListConversations(ctx, "me", domain.TabAll)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first", list[0].LastMessageText)

	// 第二則訊息使用同一個聊天
	_, err = f.uc.SendMessage(ctx, "me", SendRequest{
		ReceiverID: "new",
		Message:    domain.OutgoingMessage{Text: "second"},
	})
	require.NoError(t, err)
	f.repo.AssertNumberOfCalls(t, "Create", 1)
}

func TestInboxUseCase_SendMessage_AppendError(t *testing.T) {
	f := newInboxFixture(t, []domain.Conversation{baseConversation()})
	f.repo.On("AppendMessage", mock.Anything, "c-1", mock.Anything).Return(errors.New("write failed"))

	temp, err := f.uc.SendMessage(context.Background(), "me", SendRequest{
		ConversationID: "c-1",
		Message:        domain.OutgoingMessage{Text: "hi"},
	})

	assert.ErrorContains(t, err, "write failed")
	assert.True(t, IsTempMessage(temp))
	assert.Empty(t, f.events.Published(repository.UserChannel("you")))

	// 寫入失敗的 temp 不留在 inbox
	msgs, err := f.uc.Messages(context.Background(), "me", "c-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m-1"}, ids(msgs))

	list, err := f.uc.ListConversations(context.Background(), "me", domain.TabAll)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].LastMessageText)
}

func TestInboxUseCase_SendMessage_CreateErrorDropsConversation(t *testing.T) {
	f := newInboxFixture(t, nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("insert failed"))
	ctx := context.Background()

	_, err := f.uc.SendMessage(ctx, "me", SendRequest{
		ReceiverID: "new",
		Message:    domain.OutgoingMessage{Text: "first"},
	})
	assert.ErrorContains(t, err, "insert failed")
	f.repo.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything, mock.Anything)

	list, err := f.uc.ListConversations(ctx, "me", domain.TabAll)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInboxUseCase_ApplyEvent_ProvisionalConversation(t *testing.T) {
	f := newInboxFixture(t, nil)
	ctx := context.Background()

	e := mustEvent(t, domain.EventNewMessage, "c-9", domain.NewMessagePayload{
		Message: wire("m-9", "stranger", "hey there"),
		Participants: []domain.User{
			{ID: "stranger", Username: "stranger_danger"},
			{ID: "me"},
		},
	})

	summary, err := f.uc.ApplyEvent(ctx, "me", e)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "c-9", summary.ConversationID)
	assert.Equal(t, "stranger_danger", summary.DisplayName)
	assert.Equal(t, 1, summary.UnreadCount)
	assert.Equal(t, "hey there", summary.LastMessageText)

	list, err := f.uc.ListConversations(ctx, "me", domain.TabUnread)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInboxUseCase_ApplyEvent_InvalidMessageDoesNotCreateConversation(t *testing.T) {
	f := newInboxFixture(t, nil)

	e := mustEvent(t, domain.EventNewMessage, "c-9", domain.NewMessagePayload{
		Message:      wire("m-9", "stranger", "   "),
		Participants: []domain.User{{ID: "stranger"}, {ID: "me"}},
	})

	summary, err := f.uc.ApplyEvent(context.Background(), "me", e)
	require.NoError(t, err)
	assert.Nil(t, summary)

	list, err := f.uc.ListConversations(context.Background(), "me", domain.TabAll)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInboxUseCase_ApplyEvent_Typing(t *testing.T) {
	conv := baseConversation()
	f := newInboxFixture(t, []domain.Conversation{conv})
	ctx := context.Background()

	summary, err := f.uc.ApplyEvent(ctx, "me", mustEvent(t, domain.EventTypingStart, "c-1", domain.TypingPayload{UserID: "you"}))
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, []string{"you"}, summary.TypingUserIDs)
	assert.True(t, summary.UpdatedAt.Equal(conv.UpdatedAt), "typing 不影響排序")

	summary, err = f.uc.ApplyEvent(ctx, "me", mustEvent(t, domain.EventTypingStart, "c-1", domain.TypingPayload{UserID: "you"}))
	require.NoError(t, err)
	assert.Nil(t, summary)

	summary, err = f.uc.ApplyEvent(ctx, "me", mustEvent(t, domain.EventTypingStop, "c-1", domain.TypingPayload{UserID: "you"}))
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Empty(t, summary.TypingUserIDs)
}

func TestInboxUseCase_ApplyEvent_OnlineUsers(t *testing.T) {
	f := newInboxFixture(t, []domain.Conversation{baseConversation()})
	ctx := context.Background()

	summary, err := f.uc.ApplyEvent(ctx, "me", mustEvent(t, domain.EventOnlineUserList, "", domain.OnlineUsersPayload{UserIDs: []string{"you"}}))
	require.NoError(t, err)
	assert.Nil(t, summary)

	list, err := f.uc.ListConversations(ctx, "me", domain.TabAll)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsOnline)
}

func TestInboxUseCase_ApplyEvent_MarkedReadAndDeleted(t *testing.T) {
	f := newInboxFixture(t, []domain.Conversation{baseConversation()})
	ctx := context.Background()

	summary, err := f.uc.ApplyEvent(ctx, "me", mustEvent(t, domain.EventMessagesMarkedRead, "c-1", domain.MarkedReadPayload{ReaderID: "me"}))
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.UnreadCount)

	summary, err = f.uc.ApplyEvent(ctx, "me", mustEvent(t, domain.EventMessageDeleted, "c-1", domain.MessageDeletedPayload{MessageID: "m-1"}))
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "This message was deleted", summary.LastMessageText)

	msgs, err := f.uc.Messages(ctx, "me", "c-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Deleted())
}

func TestInboxUseCase_ApplyEvent_HistoryKeepsPending(t *testing.T) {
	f := newInboxFixture(t, []domain.Conversation{baseConversation()})
	f.repo.On("AppendMessage", mock.Anything, "c-1", mock.Anything).Return(nil)
	ctx := context.Background()

	temp, err := f.uc.SendMessage(ctx, "me", SendRequest{ConversationID: "c-1", Message: domain.OutgoingMessage{Text: "pending"}})
	require.NoError(t, err)

	_, err = f.uc.ApplyEvent(ctx, "me", mustEvent(t, domain.EventPreviousMessagesBatch, "c-1", domain.PreviousMessagesPayload{
		Messages: []domain.WireMessage{
			wire("m-0", "you", "older"),
			wire("m-1", "you", "hello"),
			{ID: "m-x", Text: "no sender"},
		},
	}))
	require.NoError(t, err)

	msgs, err := f.uc.Messages(ctx, "me", "c-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m-0", "m-1", temp.ID}, ids(msgs))

	_, err = f.uc.ApplyEvent(ctx, "me", mustEvent(t, domain.EventPreviousMessagesBatch, "missing", domain.PreviousMessagesPayload{}))
	assert.ErrorIs(t, err, errprocess.ErrConversationNotFound)
}

func TestInboxUseCase_ApplyEvent_IgnoredEvents(t *testing.T) {
	f := newInboxFixture(t, []domain.Conversation{baseConversation()})
	ctx := context.Background()

	for _, e := range []domain.Event{
		{Type: domain.EventConnect},
		{Type: domain.EventDisconnect},
		{Type: "something-new", ConversationID: "c-1"},
		{Type: domain.EventNewMessage, ConversationID: "c-1", Payload: []byte(`{"message":`)},
	} {
		summary, err := f.uc.ApplyEvent(ctx, "me", e)
		assert.NoError(t, err)
		assert.Nil(t, summary)
	}
}

func TestInboxUseCase_SummaryPublishErrorIsNotReturned(t *testing.T) {
	repo := new(MockConversationRepository)
	repo.On("FindByParticipant", mock.Anything, "me").Return([]domain.Conversation{baseConversation()}, nil)
	summaries := new(MockSummaryPublisher)
	summaries.On("PublishSummary", mock.Anything, "me", mock.Anything).Return(errors.New("kafka down"))
	uc := NewInboxUseCase(repo, nil, summaries, nil)

	summary, err := uc.ApplyEvent(context.Background(), "me", mustEvent(t, domain.EventNewMessage, "c-1", domain.NewMessagePayload{
		Message: wire("m-2", "you", "again"),
	}))

	require.NoError(t, err)
	require.NotNil(t, summary)
	summaries.AssertNumberOfCalls(t, "PublishSummary", 1)
}

func TestInboxUseCase_MarkConversationRead(t *testing.T) {
	f := newInboxFixture(t, []domain.Conversation{baseConversation()})
	f.repo.On("MarkSeen", mock.Anything, "c-1", "me", mock.Anything).Return(nil)

	summary, err := f.uc.MarkConversationRead(context.Background(), "me", "c-1")

	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.UnreadCount)

	sent := f.events.Published(repository.UserChannel("you"))
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventMessagesMarkedRead, sent[0].Type)
	assert.Empty(t, f.events.Published(repository.UserChannel("me")))
}

func TestInboxUseCase_DeleteMessage(t *testing.T) {
	conv := baseConversation()
	conv.Messages = append(conv.Messages, stored("m-2", "me", "mine"))
	f := newInboxFixture(t, []domain.Conversation{conv})
	f.repo.On("MarkDeleted", mock.Anything, "c-1", "m-2").Return(nil)
	ctx := context.Background()

	_, err := f.uc.DeleteMessage(ctx, "me", "c-1", "m-1")
	assert.ErrorIs(t, err, errprocess.ErrNotAuthor)

	_, err = f.uc.DeleteMessage(ctx, "me", "c-1", "nope")
	assert.ErrorIs(t, err, errprocess.ErrMessageNotFound)

	summary, err := f.uc.DeleteMessage(ctx, "me", "c-1", "m-2")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "This message was deleted", summary.LastMessageText)
	assert.Len(t, f.events.Published(repository.UserChannel("you")), 1)
}

func TestInboxUseCase_FlagsAndTabs(t *testing.T) {
	f := newInboxFixture(t, []domain.Conversation{baseConversation()})
	f.repo.On("UpdateFlags", mock.Anything, "c-1", mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	summary, err := f.uc.SetFavourite(ctx, "me", "c-1", true)
	require.NoError(t, err)
	assert.True(t, summary.IsFavourite)

	summary, err = f.uc.SetArchived(ctx, "me", "c-1", true)
	require.NoError(t, err)
	assert.True(t, summary.IsArchived)
	assert.True(t, summary.IsFavourite)

	for _, tab := range []domain.ChatTab{domain.TabFavorites, domain.TabArchived, domain.TabUnread, domain.TabAll} {
		list, err := f.uc.ListConversations(ctx, "me", tab)
		require.NoError(t, err)
		assert.Len(t, list, 1, string(tab))
	}
}

func TestInboxUseCase_SetTyping(t *testing.T) {
	f := newInboxFixture(t, []domain.Conversation{baseConversation()})

	require.NoError(t, f.uc.SetTyping(context.Background(), "me", "c-1", true))
	require.NoError(t, f.uc.SetTyping(context.Background(), "me", "c-1", false))

	sent := f.events.Published(repository.UserChannel("you"))
	require.Len(t, sent, 2)
	assert.Equal(t, domain.EventTypingStart, sent[0].Type)
	assert.Equal(t, domain.EventTypingStop, sent[1].Type)
}

func TestInboxUseCase_DetachReleasesInbox(t *testing.T) {
	f := newDetachedInboxFixture(t)
	f.repo.On("FindByParticipant", mock.Anything, "me").Return([]domain.Conversation{baseConversation()}, nil)
	ctx := context.Background()

	f.uc.Attach("me")
	f.uc.Attach("me")
	_, err := f.uc.LoadInbox(ctx, "me", nil)
	require.NoError(t, err)

	f.uc.Detach("me")
	_, err = f.uc.ListConversations(ctx, "me", domain.TabAll)
	require.NoError(t, err)
	f.repo.AssertNumberOfCalls(t, "FindByParticipant", 1)

	f.uc.Detach("me")
	_, err = f.uc.ListConversations(ctx, "me", domain.TabAll)
	require.NoError(t, err)
	f.repo.AssertNumberOfCalls(t, "FindByParticipant", 2)
}

func TestInboxUseCase_WithoutConnectionReadsRepository(t *testing.T) {
	f := newDetachedInboxFixture(t)
	later := baseConversation()
	later.Messages = append(later.Messages, stored("m-2", "you", "are you there?"))
	f.repo.On("FindByParticipant", mock.Anything, "me").Return([]domain.Conversation{baseConversation()}, nil).Once()
	f.repo.On("FindByParticipant", mock.Anything, "me").Return([]domain.Conversation{later}, nil)
	ctx := context.Background()

	list, err := f.uc.ListConversations(ctx, "me", domain.TabAll)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].UnreadCount)

	// 沒有連線時不會留下 inbox, 下一次讀取看到 repository 的新訊息
	list, err = f.uc.ListConversations(ctx, "me", domain.TabAll)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].UnreadCount)
	assert.Equal(t, "are you there?", list[0].LastMessageText)

	f.uc.mu.Lock()
	assert.Empty(t, f.uc.inboxes)
	f.uc.mu.Unlock()

	f.uc.Attach("me")
	defer f.uc.Detach("me")
	summaries, err := f.uc.LoadInbox(ctx, "me", nil)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].UnreadCount)

	f.repo.AssertNumberOfCalls(t, "FindByParticipant", 3)
}

func TestInboxUseCase_EventAfterDetachDoesNotLeaveInbox(t *testing.T) {
	f := newDetachedInboxFixture(t)
	f.repo.On("FindByParticipant", mock.Anything, "me").Return([]domain.Conversation{baseConversation()}, nil)

	f.uc.Attach("me")
	f.uc.Detach("me")

	summary, err := f.uc.ApplyEvent(context.Background(), "me", mustEvent(t, domain.EventNewMessage, "c-1", domain.NewMessagePayload{
		Message: wire("m-2", "you", "late"),
	}))
	require.NoError(t, err)
	require.NotNil(t, summary)

	f.uc.mu.Lock()
	defer f.uc.mu.Unlock()
	assert.Empty(t, f.uc.inboxes)
}

func TestInboxUseCase_SummaryPublishedOutsideInboxLock(t *testing.T) {
	repo := new(MockConversationRepository)
	repo.On("FindByParticipant", mock.Anything, "me").Return([]domain.Conversation{baseConversation()}, nil)
	summaries := new(MockSummaryPublisher)
	uc := NewInboxUseCase(repo, nil, summaries, nil)
	uc.Attach("me")
	defer uc.Detach("me")

	// publisher 內再讀同一個 inbox, 若仍持有 lock 會 deadlock
	summaries.On("PublishSummary", mock.Anything, "me", mock.Anything).Run(func(mock.Arguments) {
		_, err := uc.Messages(context.Background(), "me", "c-1")
		assert.NoError(t, err)
	}).Return(nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := uc.ApplyEvent(context.Background(), "me", mustEvent(t, domain.EventNewMessage, "c-1", domain.NewMessagePayload{
			Message: wire("m-2", "you", "again"),
		}))
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("summary publish blocked on inbox lock")
	}
	summaries.AssertNumberOfCalls(t, "PublishSummary", 1)
}
