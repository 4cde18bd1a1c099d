package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"depot/internal/pkg/mq"
	"depot/internal/service/inventory/domain"
)

// NotificationKafkaAdapter 实现了 port.Notifier，把预占结果事件发往
// 订单流程消费的主题。按 OrderRef 作为 key，同一订单的事件保序。
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
}

func NewNotificationKafkaAdapter(writer *kafka.Writer) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

func (a *NotificationKafkaAdapter) NotifyReservationOutcome(ctx context.Context, event domain.ReservationNotification) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal reservation notification: %w", err)
	}
	// mq.ProduceMessage 负责把追踪上下文注入消息头
	return mq.ProduceMessage(ctx, a.writer, []byte(event.OrderRef), eventBytes)
}

// Close 关闭底层的 Kafka writer。
func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}
