package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Reward   RewardConfig   `envPrefix:"REWARD_"`
	Call     CallConfig     `envPrefix:"CALL_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
}

type ServerConfig struct {
	Addr string `env:"ADDR" envDefault:"0.0.0.0:8080"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"27017"`
	Username string `env:"USERNAME" envDefault:"root"`
	Password string `env:"PASSWORD"`
	Database string `env:"DATABASE" envDefault:"chathub"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"720h"`
}

type RewardConfig struct {
	// ReversalWindow bounds how long after completion a challenge can
	// still be un-completed by deleting contributing messages.
	ReversalWindow time.Duration `env:"REVERSAL_WINDOW" envDefault:"5m"`
	// NearMissThreshold is how close to target a record must be for a
	// deletion to trigger a proximity warning.
	NearMissThreshold int `env:"NEAR_MISS_THRESHOLD" envDefault:"2"`
	// RefreshCron re-seeds daily challenges from templates.
	RefreshCron    string `env:"REFRESH_CRON" envDefault:"0 0 * * *"`
	RefreshEnabled bool   `env:"REFRESH_ENABLED" envDefault:"true"`
}

type CallConfig struct {
	// RetryDelay is how long the relay waits before the second lookup
	// when a callee's connection isn't registered yet.
	RetryDelay time.Duration `env:"RETRY_DELAY" envDefault:"500ms"`
}

type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKERS" envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"chat-activity"`
	GroupID string   `env:"GROUP_ID" envDefault:"chathub"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
