package port

import "context"

// AvailabilityCache 可用库存快照缓存的出站端口。
//
// 快照只服务读路径（可用性查询接口），在成功的库存变更之后尽力刷新；
// reserve / commit / release 的决策只依赖存储层的原子原语，绝不读缓存，
// 因此快照允许短暂落后于持久化事实。
type AvailabilityCache interface {
	// Get 返回快照值。第二个返回值表示缓存是否命中。
	Get(ctx context.Context, itemID, warehouseID string) (int, bool, error)

	// Refresh 写入快照。携带观测时间戳，旧的观测不会覆盖新的。
	Refresh(ctx context.Context, itemID, warehouseID string, available int) error
}
