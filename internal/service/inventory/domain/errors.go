package domain

import "errors"

// 错误分类：调用方通过 errors.Is 判断类别，接口层再映射为 HTTP 状态码。
var (
	// ErrInsufficientInventory 请求数量超过可用库存。纯校验失败，未发生任何状态变更，
	// 库存变化后可安全重试。
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrNotFound 引用的库存分配或预占记录不存在。
	ErrNotFound = errors.New("record not found")

	// ErrInvalidArgument 非正数量/分钟数，或非法标识符。在任何变更之前被拒绝。
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConcurrencyConflict 原子行更新的前置条件失败，说明另一个操作赢得了竞争。
	// 整个逻辑操作可以重试。
	ErrConcurrencyConflict = errors.New("concurrent update conflict")

	// ErrNotificationFailure 对订单流程的出站通知投递失败。只记录日志，
	// 绝不回滚本地状态。
	ErrNotificationFailure = errors.New("notification delivery failed")
)
