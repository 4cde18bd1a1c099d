package application

import (
	"context"
	"time"

	"depot/internal/pkg/logger"
	"depot/internal/service/inventory/domain/port"
)

// Sweeper 按固定间隔扫描并释放过期预占。
//
// 单飞保证：循环串行执行，一次清扫结束前不会开始下一次；多实例部署时
// 每轮清扫先抢 guard（分布式锁），抢不到就跳过本轮，下一个 tick 再试。
type Sweeper struct {
	svc      *Service
	interval time.Duration
	guard    port.SweepGuard // 可为 nil，单实例时不需要
	lockWait time.Duration
}

func NewSweeper(svc *Service, interval time.Duration, guard port.SweepGuard) *Sweeper {
	return &Sweeper{
		svc:      svc,
		interval: interval,
		guard:    guard,
		lockWait: 5 * time.Second,
	}
}

// Run 启动清扫循环，阻塞直到 ctx 取消。作为 bootstrap 的后台任务运行。
func (w *Sweeper) Run(ctx context.Context) error {
	log := logger.Logger()
	log.Info().Dur("interval", w.interval).Msg("expiry sweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweepOnce(ctx)
		case <-ctx.Done():
			log.Info().Msg("expiry sweeper shutting down")
			return nil
		}
	}
}

func (w *Sweeper) sweepOnce(ctx context.Context) {
	if w.guard != nil {
		lockCtx, cancel := context.WithTimeout(ctx, w.lockWait)
		err := w.guard.Lock(lockCtx)
		cancel()
		if err != nil {
			// 别的实例正在清扫，本轮跳过
			logger.Ctx(ctx).Debug().Err(err).Msg("sweep lock not acquired, skipping tick")
			return
		}
		defer func() {
			if err := w.guard.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("sweep lock release failed")
			}
		}()
	}

	processed, err := w.svc.SweepExpired(ctx, time.Now())
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if processed > 0 {
		logger.Ctx(ctx).Info().Int("processed", processed).Msg("expired reservations released")
	}
}
