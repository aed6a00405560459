package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const pingInterval = 10 * time.Minute

// ChatWebsocketHandler websocket 入口, 每條連線對應一個 viewer
type ChatWebsocketHandler struct {
	inbox  *InboxUseCase
	events repository.EventPublisher
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(inbox *InboxUseCase) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		inbox:  inbox,
		events: inbox.Events(),
	}
}

// session 同一條連線的寫入需要序列化 (subscriber goroutine 與 read loop 都會寫)
type session struct {
	conn     *websocket.Conn
	memberID string
	mu       sync.Mutex
}

func (s *session) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	logger.Log.Info("websocket handle memberID", zap.String("userID", memberID))
	if memberID == "" {
		closeWebSocketConnection(conn, websocket.ClosePolicyViolation, "missing member")
		return
	}

	s := &session{conn: conn, memberID: memberID}
	ticker := time.NewTicker(pingInterval)
	ctxClose, cancel := context.WithCancel(ctx)

	h.inbox.Attach(memberID)
	defer func() {
		ticker.Stop()
		cancel()
		h.inbox.Detach(memberID)
		logger.Log.Info("websocket close", zap.String("userID", memberID))
		conn.Close()
	}()

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Info("websocket closed by client", zap.String("userID", memberID), zap.Int("code", code))
		return nil
	})

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("received pong", zap.String("userID", memberID))
		return nil
	})

	//client發出ping
	conn.SetPingHandler(func(appData string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	//啟用sub訂閱自己的事件, 套用後推送給前端
	if h.events != nil {
		err := h.events.Subscribe(ctxClose, repository.UserChannel(memberID), func(e domain.Event) {
			h.onEvent(ctxClose, s, e)
		})
		if err != nil {
			logger.Log.Error("subscribe user channel failed", zap.String("userID", memberID), zap.Error(err))
			closeWebSocketConnection(conn, websocket.CloseInternalServerErr, "subscribe failed")
			return
		}
	}

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.write(websocket.PingMessage, []byte("ping")); err != nil {
					logger.Log.Error("ping error", zap.String("userID", memberID), zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	h.loadInbox(ctxClose, s)

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("connection closed", zap.String("userID", memberID))
			} else {
				//直接斷線 1006
				logger.Log.Error("websocket read error", zap.String("userID", memberID), zap.Error(err))
			}
			return
		}
		h.execWebsocketAction(ctxClose, s, mt, message)
	}
}

// onEvent 依序套用 transport event 並推送 notify_event / notify_summary
func (h *ChatWebsocketHandler) onEvent(ctx context.Context, s *session, e domain.Event) {
	summary, err := h.inbox.ApplyEvent(ctx, s.memberID, e)
	if err != nil {
		logger.Log.Warn("apply event failed", zap.String("userID", s.memberID), zap.String("event", string(e.Type)), zap.Error(err))
		return
	}

	h.sendResponse(s, domain.WSResponse{
		Action:  string(domain.NotifyEvent),
		Success: true,
		Payload: map[string]interface{}{"event": e},
	})
	if summary != nil {
		h.sendResponse(s, domain.WSResponse{
			Action:  string(domain.NotifySummary),
			Success: true,
			Payload: map[string]interface{}{"summary": summary},
		})
	}
}

func (h *ChatWebsocketHandler) loadInbox(ctx context.Context, s *session) {
	_, err := h.inbox.LoadInbox(ctx, s.memberID, func(partial []domain.ConversationSummary, progress BatchProgress) {
		h.sendResponse(s, domain.WSResponse{
			Action:  string(domain.InboxProgress),
			Success: true,
			Payload: map[string]interface{}{
				"conversations": partial,
				"processed":     progress.Processed,
				"total":         progress.Total,
				"percent":       progress.Percent,
			},
		})
	})
	if err != nil {
		logger.Log.Errorf("load inbox failed", err, zap.String("userID", s.memberID))
		h.sendError(s, err.Error())
	}
}

func (h *ChatWebsocketHandler) execWebsocketAction(ctx context.Context, s *session, mt int, msg []byte) {
	switch mt {
	case websocket.TextMessage:
		h.textMessageAction(ctx, s, msg)

	//! close ping pong fiber會自動處理，故需使用setHandler處理
	default:
		h.sendError(s, "unsupported message type")
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, s *session, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Warn("json unmarshal error", zap.String("userID", s.memberID), zap.Error(err))
		h.sendError(s, "invalid request")
		return
	}

	memberID := s.memberID
	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	var err error

	switch domain.Action(req.Action) {
	//傳送訊息, 回傳 optimistic temp message
	case domain.SendMessage:
		var temp domain.Message
		temp, err = h.inbox.SendMessage(ctx, memberID, SendRequest{
			ConversationID: req.ConversationID,
			ReceiverID:     req.ReceiverID,
			ReplyToID:      req.ReplyToID,
			Message: domain.OutgoingMessage{
				Text:            req.Text,
				ReceiverID:      req.ReceiverID,
				Images:          req.Images,
				Videos:          req.Videos,
				AudioURL:        req.AudioURL,
				DocumentURLs:    req.DocumentURLs,
				DocumentDetails: req.DocumentInfo,
			},
		})
		resp.Payload["message"] = temp

	case domain.GetConversations:
		var list []domain.ConversationSummary
		list, err = h.inbox.ListConversations(ctx, memberID, domain.ChatTab(req.Tab))
		resp.Payload["conversations"] = list

	case domain.GetMessages:
		var msgs []domain.Message
		msgs, err = h.inbox.Messages(ctx, memberID, req.ConversationID)
		resp.Payload["messages"] = msgs

	//讀取訊息  將未讀訊息改為已讀
	case domain.MarkRead:
		var summary *domain.ConversationSummary
		summary, err = h.inbox.MarkConversationRead(ctx, memberID, req.ConversationID)
		resp.Payload["summary"] = summary

	case domain.DeleteMessage:
		var summary *domain.ConversationSummary
		summary, err = h.inbox.DeleteMessage(ctx, memberID, req.ConversationID, req.MessageID)
		resp.Payload["summary"] = summary

	case domain.TypingStart, domain.TypingStop:
		err = h.inbox.SetTyping(ctx, memberID, req.ConversationID, domain.Action(req.Action) == domain.TypingStart)

	case domain.SetFavourite:
		var summary *domain.ConversationSummary
		summary, err = h.inbox.SetFavourite(ctx, memberID, req.ConversationID, req.Flag)
		resp.Payload["summary"] = summary

	case domain.SetArchived:
		var summary *domain.ConversationSummary
		summary, err = h.inbox.SetArchived(ctx, memberID, req.ConversationID, req.Flag)
		resp.Payload["summary"] = summary

	case domain.Refresh:
		h.inbox.RefreshViews()

	default:
		h.sendError(s, "unknown action")
		return
	}

	if err != nil {
		resp.Error = err.Error()
		logger.Log.Error("websocket err", zap.String("MemberID", memberID), zap.String("Action", req.Action), zap.Error(err))
	} else {
		resp.Success = true
	}
	h.sendResponse(s, resp)
}

// sendResponse - 發送 JSON 給前端
func (h *ChatWebsocketHandler) sendResponse(s *session, resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal response error", zap.String("action", resp.Action), zap.Error(err))
		return
	}
	if err := s.write(websocket.TextMessage, b); err != nil {
		logger.Log.Error("write message error", zap.String("userID", s.memberID), zap.Error(err))
	}
}

func (h *ChatWebsocketHandler) sendError(s *session, errorMsg string) {
	h.sendResponse(s, domain.WSResponse{
		Action:  "error",
		Success: false,
		Error:   errorMsg,
	})
}

func closeWebSocketConnection(conn *websocket.Conn, code int, reason string) {
	if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason)); err != nil {
		logger.Log.Error("failed to send close message", zap.Error(err))
	}
	conn.Close()
}
