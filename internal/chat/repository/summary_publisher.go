package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"chat_sync_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
)

// SummaryPublisher conversation summary 對外發布 (下游 push / 搜尋索引)
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, viewerID string, summary domain.ConversationSummary) error
	Close() error
}

// messageWriter *kafka.Writer 的子集合
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSummaryPublisher 以 viewer id 為 key 寫入 kafka, 同一 viewer 保持順序
type KafkaSummaryPublisher struct {
	writer messageWriter
}

// NewKafkaSummaryPublisher create KafkaSummaryPublisher
func NewKafkaSummaryPublisher(writer *kafka.Writer) *KafkaSummaryPublisher {
	return &KafkaSummaryPublisher{writer: writer}
}

type summaryRecord struct {
	ViewerID string                     `json:"viewerId"`
	Summary  domain.ConversationSummary `json:"summary"`
}

// PublishSummary write summary json
func (p *KafkaSummaryPublisher) PublishSummary(ctx context.Context, viewerID string, summary domain.ConversationSummary) error {
	value, err := json.Marshal(summaryRecord{ViewerID: viewerID, Summary: summary})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(viewerID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "conversation_id", Value: []byte(summary.ConversationID)},
		},
	})
}

// Close close writer
func (p *KafkaSummaryPublisher) Close() error {
	return p.writer.Close()
}

// NoopSummaryPublisher kafka 未啟用時使用
type NoopSummaryPublisher struct{}

// PublishSummary do nothing
func (NoopSummaryPublisher) PublishSummary(context.Context, string, domain.ConversationSummary) error {
	return nil
}

// Close do nothing
func (NoopSummaryPublisher) Close() error {
	return nil
}
