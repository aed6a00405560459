package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EventPublisher definition transport event pub/sub
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event domain.Event) error
	Subscribe(ctx context.Context, channel string, handler func(domain.Event)) error
}

// UserChannel 使用者個人 channel
func UserChannel(userID string) string {
	return "chat:user:" + userID
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client *redis.Client
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// Publish 將 event 序列化後，發布到指定 channel
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe 訂閱 channel, 收到事件後依序呼叫 handler; ctx 結束時關閉訂閱
// 回傳前會確認訂閱已建立
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(domain.Event)) error {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()

		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}

				var event domain.Event
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					logger.Log.Warn("skip undecodable event", zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(event)
			case <-ctx.Done():
				logger.Log.Info("sub close", zap.String("channel", channel))
				return
			}
		}
	}()
	return nil
}
