package config

import (
	"time"

	"github.com/spf13/viper"
)

// ChatSync definition chat_sync YAML structure
type ChatSync struct {
	Port      string          `mapstructure:"port"`
	JWTSecret string          `mapstructure:"jwt_secret"`
	Mongo     DatabaseConfig  `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	ViewCache ViewCacheConfig `mapstructure:"view_cache"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Share     ShareConfig     `mapstructure:"share"`
}

// RedisConfig definition redis setting
// Addr 有值時使用單機連線, 否則走 sentinel
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// KafkaConfig definition summary topic setting
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// ViewCacheConfig derived view cache setting
type ViewCacheConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	UnreadSize  int           `mapstructure:"unread_size"`
	DisplaySize int           `mapstructure:"display_size"`
}

// BatchConfig progressive inbox loading setting
type BatchConfig struct {
	Size int `mapstructure:"size"`
	// 小於此數量時直接整批處理
	ProgressiveThreshold int `mapstructure:"progressive_threshold"`
}

// ShareConfig deep link scheme / web host
type ShareConfig struct {
	Scheme string `mapstructure:"scheme"`
	Host   string `mapstructure:"host"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8083")
	v.SetDefault("mongo.database", "chat_sync")
	v.SetDefault("mongo.retry_count", 3)
	v.SetDefault("mongo.retry_interval", 2)
	v.SetDefault("kafka.topic", "chat.conversation.summary")
	v.SetDefault("kafka.retry_count", 3)
	v.SetDefault("kafka.retry_interval", 2)
	v.SetDefault("view_cache.ttl", 5*time.Minute)
	v.SetDefault("view_cache.unread_size", 100)
	v.SetDefault("view_cache.display_size", 200)
	v.SetDefault("batch.size", 8)
	v.SetDefault("batch.progressive_threshold", 20)
	v.SetDefault("share.scheme", "chatapp")
	v.SetDefault("share.host", "chatapp.io")
}
