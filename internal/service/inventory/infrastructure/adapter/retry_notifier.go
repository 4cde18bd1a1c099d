package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"depot/internal/pkg/logger"
	"depot/internal/service/inventory/domain"
	"depot/internal/service/inventory/domain/port"
)

// RetryPolicy 出站通知的重试与熔断参数。
type RetryPolicy struct {
	MaxAttempts      int           // 单次事件的最大投递尝试数
	Backoff          time.Duration // 首次重试间隔，之后指数递增
	BreakerThreshold int           // 连续失败多少个事件后熔断
	BreakerCooldown  time.Duration // 熔断后多久放行探测
}

// RetryingNotifier 包装任意 Notifier，提供带退避的有限重试和熔断快速失败。
// 通知永远是尽力而为：预算耗尽或处于熔断态时返回 ErrNotificationFailure，
// 调用方只记录，绝不因此回滚本地状态。
type RetryingNotifier struct {
	inner  port.Notifier
	policy RetryPolicy

	mu          sync.Mutex
	consecFails int
	openUntil   time.Time
}

func NewRetryingNotifier(inner port.Notifier, policy RetryPolicy) *RetryingNotifier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.Backoff <= 0 {
		policy.Backoff = 200 * time.Millisecond
	}
	if policy.BreakerThreshold <= 0 {
		policy.BreakerThreshold = 5
	}
	if policy.BreakerCooldown <= 0 {
		policy.BreakerCooldown = 30 * time.Second
	}
	return &RetryingNotifier{inner: inner, policy: policy}
}

func (n *RetryingNotifier) NotifyReservationOutcome(ctx context.Context, event domain.ReservationNotification) error {
	if n.isOpen() {
		return fmt.Errorf("%w: circuit open, dropping event for order %s", domain.ErrNotificationFailure, event.OrderRef)
	}

	var lastErr error
	backoff := n.policy.Backoff
	for attempt := 1; attempt <= n.policy.MaxAttempts; attempt++ {
		lastErr = n.inner.NotifyReservationOutcome(ctx, event)
		if lastErr == nil {
			n.recordSuccess()
			return nil
		}
		logger.Ctx(ctx).Warn().Err(lastErr).
			Str("order_ref", event.OrderRef).
			Int("attempt", attempt).
			Msg("notification attempt failed")
		if attempt == n.policy.MaxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			n.recordFailure()
			return fmt.Errorf("%w: %v", domain.ErrNotificationFailure, ctx.Err())
		}
		backoff *= 2
	}

	n.recordFailure()
	return fmt.Errorf("%w: %v", domain.ErrNotificationFailure, lastErr)
}

func (n *RetryingNotifier) isOpen() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return time.Now().Before(n.openUntil)
}

func (n *RetryingNotifier) recordSuccess() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.consecFails = 0
}

func (n *RetryingNotifier) recordFailure() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.consecFails++
	if n.consecFails >= n.policy.BreakerThreshold {
		n.openUntil = time.Now().Add(n.policy.BreakerCooldown)
		n.consecFails = 0
		logger.Logger().Warn().
			Dur("cooldown", n.policy.BreakerCooldown).
			Msg("notification circuit opened")
	}
}
