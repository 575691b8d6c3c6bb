package pkg

import (
	"fmt"
	"os"

	"github.com/drone/envsubst"
	"github.com/subosito/gotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	DatabaseCfg  `yaml:"database" json:"database"`
	RabbitMQCfg  `yaml:"rabbitmq" json:"rabbitmq"`
	WebSocketCfg `yaml:"websocket" json:"websocket"`
	ServicesCfg  `yaml:"services" json:"services"`
	TrackingCfg  `yaml:"tracking" json:"tracking"`
}

type DatabaseCfg struct {
	Host     string `yaml:"host" json:"host"`
	Port     uint16 `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
}

type RabbitMQCfg struct {
	Host     string `yaml:"host" json:"host"`
	Port     uint16 `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
}

type WebSocketCfg struct {
	Port uint16 `yaml:"port" json:"port"`
}

type ServicesCfg struct {
	Secret          string
	TrackingService uint16 `yaml:"tracking_service" json:"tracking_service"`
}

// TrackingCfg groups the tunables of the execution/tracking core.
type TrackingCfg struct {
	SyncKey                 string
	HeartbeatTimeoutMinutes uint    `yaml:"heartbeat_timeout_minutes" json:"heartbeat_timeout_minutes"`
	SweepIntervalSeconds    uint    `yaml:"sweep_interval_seconds" json:"sweep_interval_seconds"`
	SyncRetryLimit          int     `yaml:"sync_retry_limit" json:"sync_retry_limit"`
	MaxBatchSize            int     `yaml:"max_batch_size" json:"max_batch_size"`
	MaxSpeedKmh             float64 `yaml:"max_speed_kmh" json:"max_speed_kmh"`
}

func ParseConfig() (*Config, error) {
	err := gotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	data, err := os.ReadFile("config.yml")
	if err != nil {
		return nil, err
	}

	// Environment substitution with ${VAR:-default} support.
	replaced, err := envsubst.EvalEnv(string(data))
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	err = yaml.Unmarshal([]byte(replaced), cfg)
	if err != nil {
		return nil, err
	}
	cfg.ServicesCfg.Secret = os.Getenv("TRACKING_SECRET")
	if cfg.ServicesCfg.Secret == "" {
		return nil, fmt.Errorf("TRACKING_SECRET is not set")
	}
	cfg.TrackingCfg.SyncKey = os.Getenv("SYNC_ENCRYPTION_KEY")
	if cfg.TrackingCfg.SyncKey == "" {
		return nil, fmt.Errorf("SYNC_ENCRYPTION_KEY is not set")
	}
	return cfg, nil
}
