package database

import (
	"context"
	"fmt"
	"time"

	"chat_sync_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaWriterWithRetry 建立 Kafka Writer, 先以 broker metadata 確認可連線
func NewKafkaWriterWithRetry(ctx context.Context, k KafkaConnection) (*kafka.Writer, error) {
	if len(k.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	var err error
	for attempt := 1; attempt <= max(k.RetryCount, 1); attempt++ {
		var conn *kafka.Conn
		conn, err = kafka.DialContext(ctx, "tcp", k.Brokers[0])
		if err == nil {
			_, err = conn.Brokers()
			conn.Close()
		}
		if err == nil {
			logger.Log.Info("kafka writer ready", zap.Strings("brokers", k.Brokers), zap.String("topic", k.Topic), zap.Int("attempt", attempt))
			return &kafka.Writer{
				Addr:                   kafka.TCP(k.Brokers...),
				Topic:                  k.Topic,
				Balancer:               &kafka.Hash{},
				AllowAutoTopicCreation: true,
				BatchTimeout:           50 * time.Millisecond,
			}, nil
		}

		logger.Log.Warn("kafka connect retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(k.RetryInterval):
		}
	}

	return nil, fmt.Errorf("無法建立 Kafka Writer, 經過 %d 次嘗試: %w", k.RetryCount, err)
}
