package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全量配置，由 Load 解析
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
	Timeline  TimelineConfig  `mapstructure:"timeline"`
	Read      ReadConfig      `mapstructure:"read"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
	Trending  TrendingConfig  `mapstructure:"trending"`
	Classify  ClassifyConfig  `mapstructure:"classify"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres, sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Shards 非空时时间线按 owner 路由到多个实例
	Shards []string `mapstructure:"shards"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"` // json, console
}

// FanoutConfig 扇出决策与 worker 参数
type FanoutConfig struct {
	// PushThreshold 以下的作者单分片直推
	PushThreshold int `mapstructure:"push_threshold"`
	// HybridThreshold 及以上的作者只推活跃粉丝，其余读时拉取
	HybridThreshold int           `mapstructure:"hybrid_threshold"`
	ShardSize       int           `mapstructure:"shard_size"`
	Workers         int           `mapstructure:"workers"`
	ClaimLimit      int           `mapstructure:"claim_limit"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
}

type TimelineConfig struct {
	RetentionSize int `mapstructure:"retention_size"`
}

// ReadConfig 读路径（拉取合并）参数
type ReadConfig struct {
	Deadline        time.Duration `mapstructure:"deadline"`
	PerAuthorLimit  int           `mapstructure:"per_author_limit"`
	MaxAuthors      int           `mapstructure:"max_authors"`
	MaxCandidates   int           `mapstructure:"max_candidates"`
	PullWindow      time.Duration `mapstructure:"pull_window"`
	PullParallelism int           `mapstructure:"pull_parallelism"`
	AuthorFetchRate float64       `mapstructure:"author_fetch_rate"`
	AffinityURL     string        `mapstructure:"affinity_url"`
	AffinityTimeout time.Duration `mapstructure:"affinity_timeout"`
}

// RankingConfig 权重为配置而非常量
type RankingConfig struct {
	WeightRecency    float64       `mapstructure:"weight_recency"`
	WeightEngagement float64       `mapstructure:"weight_engagement"`
	WeightAffinity   float64       `mapstructure:"weight_affinity"`
	RecencyHalfLife  time.Duration `mapstructure:"recency_half_life"`
}

type TrendingConfig struct {
	BucketSize      time.Duration `mapstructure:"bucket_size"`
	WindowBuckets   int           `mapstructure:"window_buckets"`
	Decay           float64       `mapstructure:"decay"`
	TrendThreshold  float64       `mapstructure:"trend_threshold"`
	DiversityWeight float64       `mapstructure:"diversity_weight"`
	TopN            int           `mapstructure:"top_n"`
	RollupInterval  time.Duration `mapstructure:"rollup_interval"`
	// Retention 个 bucket 无事件后词条被淘汰
	Retention int      `mapstructure:"retention"`
	Locales   []string `mapstructure:"locales"`
}

type ClassifyConfig struct {
	// CacheTTL 即决策缓存的最大陈旧窗口
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	ActiveWindow time.Duration `mapstructure:"active_window"`
}

// Load 读取 config.yaml 并应用环境变量覆盖（FEEDCORE_ 前缀）
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("FEEDCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 文件缺失时仅用默认值 + 环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=feedcore port=5432 sslmode=disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("kafka.topic", "post-events")
	v.SetDefault("kafka.group_id", "feedcore")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("telemetry.service_name", "feedcore")

	v.SetDefault("fanout.push_threshold", 10000)
	v.SetDefault("fanout.hybrid_threshold", 1000000)
	v.SetDefault("fanout.shard_size", 1000)
	v.SetDefault("fanout.workers", 8)
	v.SetDefault("fanout.claim_limit", 128)
	v.SetDefault("fanout.poll_interval", 50*time.Millisecond)
	v.SetDefault("fanout.max_attempts", 5)

	v.SetDefault("timeline.retention_size", 800)

	v.SetDefault("read.deadline", 2*time.Second)
	v.SetDefault("read.per_author_limit", 5)
	v.SetDefault("read.max_authors", 200)
	v.SetDefault("read.max_candidates", 1000)
	v.SetDefault("read.pull_window", 24*time.Hour)
	v.SetDefault("read.pull_parallelism", 16)
	v.SetDefault("read.author_fetch_rate", 500.0)
	v.SetDefault("read.affinity_timeout", 300*time.Millisecond)

	v.SetDefault("ranking.weight_recency", 0.5)
	v.SetDefault("ranking.weight_engagement", 0.3)
	v.SetDefault("ranking.weight_affinity", 0.2)
	v.SetDefault("ranking.recency_half_life", 6*time.Hour)

	v.SetDefault("trending.bucket_size", 5*time.Minute)
	v.SetDefault("trending.window_buckets", 12)
	v.SetDefault("trending.decay", 0.85)
	v.SetDefault("trending.trend_threshold", 50.0)
	v.SetDefault("trending.diversity_weight", 2.0)
	v.SetDefault("trending.top_n", 20)
	v.SetDefault("trending.rollup_interval", 5*time.Minute)
	v.SetDefault("trending.retention", 24)
	v.SetDefault("trending.locales", []string{"global"})

	v.SetDefault("classify.cache_ttl", 5*time.Minute)
	v.SetDefault("classify.active_window", 72*time.Hour)
}
