// cmd/inventory-service/main.go
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"depot/internal/pkg/bootstrap"
	"depot/internal/pkg/logger"
	"depot/internal/pkg/mq"
	pkgredis "depot/internal/pkg/redis"
	"depot/internal/service/inventory/application"
	"depot/internal/service/inventory/domain/port"
	"depot/internal/service/inventory/infrastructure"
	"depot/internal/service/inventory/infrastructure/adapter"
	"depot/internal/service/inventory/infrastructure/memory"
	"depot/internal/service/inventory/interfaces"
	"depot/internal/zookeeper"
)

func main() {
	configPath := flag.String("config", "", "path to config yaml, defaults apply when empty")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var (
		allocations port.AllocationRepository
		reservation port.ReservationRepository
		ledger      port.LedgerRepository
	)
	switch cfg.App.Store {
	case "memory":
		allocations = memory.NewAllocationStore()
		reservation = memory.NewReservationStore()
		ledger = memory.NewLedgerStore()
	default:
		db, err := infrastructure.OpenMySQL(cfg.Infra.MySQL.DSN)
		if err != nil {
			log.Fatalf("open mysql: %v", err)
		}
		allocations = infrastructure.NewGormAllocationRepository(db)
		reservation = infrastructure.NewGormReservationRepository(db)
		ledger = infrastructure.NewGormLedgerRepository(db)
	}

	// 可用量快照是纯加速层，Redis 不可达时退化为直查存储
	var cache port.AvailabilityCache
	redisClient, err := pkgredis.NewClient(context.Background(), cfg.Infra.Redis.Addr)
	if err != nil {
		log.Printf("redis unavailable, availability snapshot disabled: %v", err)
	} else {
		cache, err = adapter.NewAvailabilityRedisAdapter(redisClient)
		if err != nil {
			log.Fatalf("init availability adapter: %v", err)
		}
	}

	kafkaWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.NotificationTopic)
	notifier := adapter.NewRetryingNotifier(
		adapter.NewNotificationKafkaAdapter(kafkaWriter),
		adapter.RetryPolicy{
			MaxAttempts:      cfg.Notify.MaxAttempts,
			Backoff:          time.Duration(cfg.Notify.BackoffMillis) * time.Millisecond,
			BreakerThreshold: cfg.Notify.BreakerThreshold,
			BreakerCooldown:  time.Duration(cfg.Notify.BreakerCooldownSeconds) * time.Second,
		},
	)

	svc := application.NewService(
		allocations, reservation, ledger,
		notifier, cache,
		time.Duration(cfg.App.MaxTTLMinutes)*time.Minute,
	)

	// 清扫器由 zookeeper 锁保证多实例部署下同一时刻只有一个实例在扫
	var guard port.SweepGuard
	var zkConn *zookeeper.Conn
	zkConn, err = zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
	if err != nil {
		log.Printf("zookeeper unavailable, sweeper runs without cluster lock: %v", err)
	} else {
		guard, err = zookeeper.NewDistributedLock(zkConn, "expiry-sweep")
		if err != nil {
			log.Fatalf("init sweep lock: %v", err)
		}
	}
	sweeper := application.NewSweeper(svc, time.Duration(cfg.App.SweepIntervalSeconds)*time.Second, guard)

	handler := interfaces.NewInventoryHandler(svc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.App.ServiceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Background: []func(ctx context.Context) error{sweeper.Run},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				if err := kafkaWriter.Close(); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("close kafka writer")
				}
				if redisClient != nil {
					redisClient.Close()
				}
				if zkConn != nil {
					zkConn.Close()
				}
			},
		},
	})
}
