package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/database"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/minio"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/redis"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/workerpool"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         logger.Config     `mapstructure:"log"`
	Database    database.Config   `mapstructure:"database"`
	Redis       redis.Config      `mapstructure:"redis"`
	MinIO       minio.Config      `mapstructure:"minio"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Workbench   WorkbenchConfig   `mapstructure:"workbench"`
	WorkerPool  workerpool.Config `mapstructure:"worker_pool"`
	GitHub      GitHubConfig      `mapstructure:"github"`
	WebSearch   WebSearchConfig   `mapstructure:"web_search"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SSEHeartbeat    time.Duration `mapstructure:"sse_heartbeat"`
}

// PersistenceConfig 聊天记录存储后端：sqlite | postgres | redis | memory
type PersistenceConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type LLMConfig struct {
	DefaultProvider     string           `mapstructure:"default_provider"`
	MaxTokens           int              `mapstructure:"max_tokens"`
	MaxResponseSegments int              `mapstructure:"max_response_segments"`
	MaxStreamFrames     int              `mapstructure:"max_stream_frames"` // 单段最多处理的 SSE 帧数，0 不限
	RequestTimeout      time.Duration    `mapstructure:"request_timeout"`
	Providers           []ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 单个模型供应商；Kind 为 openai（兼容协议）或 anthropic
type ProviderConfig struct {
	Name          string        `mapstructure:"name"`
	Kind          string        `mapstructure:"kind"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	APIKeyEnv     string        `mapstructure:"api_key_env"`
	GetAPIKeyLink string        `mapstructure:"get_api_key_link"`
	DynamicModels bool          `mapstructure:"dynamic_models"`
	Models        []ModelConfig `mapstructure:"models"`
}

type ModelConfig struct {
	Name            string `mapstructure:"name"`
	Label           string `mapstructure:"label"`
	MaxTokenAllowed int    `mapstructure:"max_token_allowed"`
}

type WorkbenchConfig struct {
	Workdir        string        `mapstructure:"workdir"` // 每个会话在其下拥有独立子目录
	Sandbox        string        `mapstructure:"sandbox"` // local | memory
	ShellTimeout   time.Duration `mapstructure:"shell_timeout"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	SyncRoot       string        `mapstructure:"sync_root"` // export/sync 只能写到该目录下
}

type GitHubConfig struct {
	Token      string `mapstructure:"token"`
	Owner      string `mapstructure:"owner"`
	APIBaseURL string `mapstructure:"api_base_url"`
}

type WebSearchConfig struct {
	Provider          string        `mapstructure:"provider"` // tavily | searxng | exa
	BaseURL           string        `mapstructure:"base_url"`
	APIKeys           []string      `mapstructure:"api_keys"`
	BasicAuthUsername string        `mapstructure:"basic_auth_username"`
	BasicAuthPassword string        `mapstructure:"basic_auth_password"`
	MaxResults        int           `mapstructure:"max_results"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RateLimit         float64       `mapstructure:"rate_limit"` // 每秒请求数，0 不限
	Timeout           time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxRequests   int  `mapstructure:"max_requests"`
	WindowSeconds int  `mapstructure:"window_seconds"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5173)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.sse_heartbeat", 30*time.Second)

	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.enable_caller", lc.EnableCaller)
	v.SetDefault("log.file.filename", lc.File.Filename)
	v.SetDefault("log.file.max_size", lc.File.MaxSize)
	v.SetDefault("log.file.max_age", lc.File.MaxAge)
	v.SetDefault("log.file.max_backups", lc.File.MaxBackups)

	dc := database.DefaultConfig()
	v.SetDefault("database.host", dc.Host)
	v.SetDefault("database.port", dc.Port)
	v.SetDefault("database.user", dc.User)
	v.SetDefault("database.password", dc.Password)
	v.SetDefault("database.dbname", dc.DBName)
	v.SetDefault("database.sslmode", dc.SSLMode)
	v.SetDefault("database.max_idle_conns", dc.MaxIdleConns)
	v.SetDefault("database.max_open_conns", dc.MaxOpenConns)
	v.SetDefault("database.conn_max_lifetime", dc.ConnMaxLifetime)
	v.SetDefault("database.log_level", dc.LogLevel)
	v.SetDefault("database.slow_threshold", dc.SlowThreshold)
	v.SetDefault("database.auto_migrate", dc.AutoMigrate)

	rc := redis.DefaultConfig()
	v.SetDefault("redis.mode", string(rc.Mode))
	v.SetDefault("redis.addrs", rc.Addrs)
	v.SetDefault("redis.pool_size", rc.PoolSize)
	v.SetDefault("redis.min_idle_conns", rc.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rc.DialTimeout)
	v.SetDefault("redis.read_timeout", rc.ReadTimeout)
	v.SetDefault("redis.write_timeout", rc.WriteTimeout)
	v.SetDefault("redis.key_prefix", rc.KeyPrefix)

	v.SetDefault("minio.bucket", "bolt-exports")
	v.SetDefault("minio.presign_expiry", time.Hour)

	v.SetDefault("persistence.backend", "sqlite")
	v.SetDefault("persistence.sqlite_path", "data/bolt.db")

	v.SetDefault("llm.default_provider", "Anthropic")
	v.SetDefault("llm.max_tokens", 8000)
	v.SetDefault("llm.max_response_segments", 2)
	v.SetDefault("llm.max_stream_frames", 0)
	v.SetDefault("llm.request_timeout", 5*time.Minute)

	v.SetDefault("workbench.workdir", "data/workspaces")
	v.SetDefault("workbench.sandbox", "local")
	v.SetDefault("workbench.shell_timeout", 2*time.Minute)
	v.SetDefault("workbench.sample_interval", 100*time.Millisecond)
	v.SetDefault("workbench.session_ttl", 2*time.Hour)
	v.SetDefault("workbench.sync_root", "data/sync")

	v.SetDefault("worker_pool.workers", 8)

	v.SetDefault("web_search.provider", "tavily")
	v.SetDefault("web_search.max_results", 5)
	v.SetDefault("web_search.max_retries", 2)
	v.SetDefault("web_search.timeout", 15*time.Second)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.max_requests", 60)
	v.SetDefault("rate_limit.window_seconds", 60)
}

// LoadConfig 读取配置文件；path 为空时只使用默认值和 BOLT_* 环境变量
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BOLT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// Addr returns host:port for the HTTP listener
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
