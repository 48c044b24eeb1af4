package config

type QueueConfig struct {
	// Store selects the shared state backend: "redis" for multi-instance
	// deployments, "memory" for a single node or tests.
	Store string `yaml:"Store"`

	Redis *RedisConfig `yaml:"Redis,omitempty"`
}

type RedisConfig struct {
	Address  string `yaml:"Address"`
	Password string `yaml:"Password,omitempty"`
	DB       int    `yaml:"DB"`

	// KeyPrefix namespaces all queue keys so several deployments can share one redis.
	KeyPrefix string `yaml:"KeyPrefix"`
}

const (
	QueueStoreMemory = "memory"
	QueueStoreRedis  = "redis"
)

func fillInQueueConfig(config *QueueConfig) {
	if config.Store == "" {
		config.Store = QueueStoreMemory
	}
	if config.Store == QueueStoreRedis {
		if config.Redis == nil || config.Redis.Address == "" {
			panic("redis queue store requires Redis.Address")
		}
		if config.Redis.KeyPrefix == "" {
			config.Redis.KeyPrefix = "buildhub"
		}
	}
}
