package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"depot/internal/pkg/redis"
)

const (
	refreshScriptName = "availability_refresh"
	snapshotTTL       = 5 * time.Minute
)

// 带时间戳的快照刷新：只有更新的观测才允许覆盖，
// 防止两个乱序到达的刷新把旧值写在新值后面。
var refreshScript = `
-- KEYS[1]: 快照 Hash, 例如: inventory:avail:{item-1}:WH-A
-- ARGV[1]: 观测时间戳 (unix 毫秒)
-- ARGV[2]: 可用数量
-- ARGV[3]: 过期毫秒数
local ts = tonumber(redis.call('hget', KEYS[1], 'ts') or '0')
if tonumber(ARGV[1]) >= ts then
    redis.call('hset', KEYS[1], 'ts', ARGV[1], 'avail', ARGV[2])
    redis.call('pexpire', KEYS[1], ARGV[3])
    return 1
end
return 0
`

// AvailabilityRedisAdapter 实现 port.AvailabilityCache：
// 可用库存的尽力而为快照，只服务可用性查询的读路径。
type AvailabilityRedisAdapter struct {
	client *redis.Client
}

// NewAvailabilityRedisAdapter 创建快照适配器并加载刷新脚本。
func NewAvailabilityRedisAdapter(client *redis.Client) (*AvailabilityRedisAdapter, error) {
	if err := client.LoadScriptFromContent(refreshScriptName, refreshScript); err != nil {
		return nil, fmt.Errorf("load availability refresh script: %w", err)
	}
	return &AvailabilityRedisAdapter{client: client}, nil
}

func snapshotKey(itemID, warehouseID string) string {
	return fmt.Sprintf("inventory:avail:{%s}:%s", itemID, warehouseID)
}

func (a *AvailabilityRedisAdapter) Get(ctx context.Context, itemID, warehouseID string) (int, bool, error) {
	val, err := a.client.GetClient().HGet(ctx, snapshotKey(itemID, warehouseID), "avail").Result()
	if err != nil {
		if err == goredis.Nil {
			return 0, false, nil
		}
		return 0, false, err
	}
	available, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt snapshot value %q: %w", val, err)
	}
	return available, true, nil
}

func (a *AvailabilityRedisAdapter) Refresh(ctx context.Context, itemID, warehouseID string, available int) error {
	keys := []string{snapshotKey(itemID, warehouseID)}
	_, err := a.client.RunScript(ctx, refreshScriptName, keys,
		time.Now().UnixMilli(), available, snapshotTTL.Milliseconds())
	return err
}
