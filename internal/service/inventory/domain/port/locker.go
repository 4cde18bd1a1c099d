package port

import "context"

// SweepGuard 过期清扫的跨实例互斥出站端口。多实例部署时由分布式锁实现，
// 保证同一时刻只有一个实例执行清扫；单实例/测试场景可注入空实现。
type SweepGuard interface {
	// Lock 获取清扫锁，获取不到时在有限时间内等待，超时返回错误。
	Lock(ctx context.Context) error
	Unlock() error
}
