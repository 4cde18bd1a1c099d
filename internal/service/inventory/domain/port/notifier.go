package port

import (
	"context"

	"depot/internal/service/inventory/domain"
)

// Notifier 是向订单流程发送预占结果的出站端口。
// 投递是尽力而为：失败只记录日志，绝不阻塞或回滚本地状态变更，
// 库存事实完全由本引擎持有，不依赖接收方的确认。
type Notifier interface {
	NotifyReservationOutcome(ctx context.Context, event domain.ReservationNotification) error
}
