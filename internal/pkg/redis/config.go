package redis

import (
	"errors"
	"time"
)

// DeployMode Redis 部署模式
type DeployMode string

const (
	ModeSingle  DeployMode = "single"
	ModeCluster DeployMode = "cluster"
)

// Config Redis 配置
type Config struct {
	Mode         DeployMode    `mapstructure:"mode"`
	Addrs        []string      `mapstructure:"addrs"` // single 模式只取第一个
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Mode:         ModeSingle,
		Addrs:        []string{"localhost:6379"},
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "bolt:",
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if len(c.Addrs) == 0 || c.Addrs[0] == "" {
		return errors.New("redis: at least one address is required")
	}
	if c.Mode != ModeSingle && c.Mode != ModeCluster {
		return errors.New("redis: mode must be 'single' or 'cluster'")
	}
	if c.Mode == ModeSingle && c.DB < 0 {
		return errors.New("redis: db must be >= 0")
	}
	return nil
}
