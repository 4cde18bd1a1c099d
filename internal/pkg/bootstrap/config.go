// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 服务的全部外部配置。来源是 YAML 文件，个别字段允许环境变量覆盖，
// 便于容器环境下不改文件调整连接地址。
type Config struct {
	App struct {
		ServiceName          string `yaml:"service_name"`
		Port                 int    `yaml:"port"`
		Store                string `yaml:"store"` // mysql | memory
		SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
		DefaultTTLMinutes    int    `yaml:"default_ttl_minutes"`
		MaxTTLMinutes        int    `yaml:"max_ttl_minutes"`
	} `yaml:"app"`

	Infra struct {
		MySQL struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers           []string `yaml:"brokers"`
			NotificationTopic string   `yaml:"notification_topic"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
	} `yaml:"infra"`

	Notify struct {
		MaxAttempts            int `yaml:"max_attempts"`
		BackoffMillis          int `yaml:"backoff_millis"`
		BreakerThreshold       int `yaml:"breaker_threshold"`
		BreakerCooldownSeconds int `yaml:"breaker_cooldown_seconds"`
	} `yaml:"notify"`
}

var currentConfig Config

// GetCurrentConfig 返回进程当前生效的配置。
func GetCurrentConfig() *Config {
	return &currentConfig
}

// LoadConfig 读取 YAML 配置并应用默认值和环境变量覆盖。
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	currentConfig = cfg
	return &currentConfig, nil
}

func defaultConfig() Config {
	var cfg Config
	cfg.App.ServiceName = "inventory-service"
	cfg.App.Port = 8086
	cfg.App.Store = "mysql"
	cfg.App.SweepIntervalSeconds = 60
	cfg.App.DefaultTTLMinutes = 30
	cfg.App.MaxTTLMinutes = 24 * 60
	cfg.Infra.MySQL.DSN = "root:root@tcp(localhost:3306)/depot?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.NotificationTopic = "reservation-outcomes"
	cfg.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Notify.MaxAttempts = 3
	cfg.Notify.BackoffMillis = 200
	cfg.Notify.BreakerThreshold = 5
	cfg.Notify.BreakerCooldownSeconds = 30
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("DEPOT_STORE"); v != "" {
		cfg.App.Store = v
	}
}
