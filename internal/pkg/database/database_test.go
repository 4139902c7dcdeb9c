package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Host = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "bad ssl", mutate: func(c *Config) { c.SSLMode = "maybe" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: true},
		{name: "idle over open", mutate: func(c *Config) { c.MaxIdleConns = 50; c.MaxOpenConns = 10 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = ""
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=postgres dbname=bolt sslmode=disable TimeZone=UTC",
		cfg.DSN())
}

func TestGormLoggerLevel(t *testing.T) {
	l := newGormLogger(logger.NewNop(), &Config{LogLevel: "bogus"}).(*gormLogger)
	assert.Equal(t, gormlogger.Warn, l.level)
	quiet := l.LogMode(gormlogger.Silent).(*gormLogger)
	assert.Equal(t, gormlogger.Silent, quiet.level)
	assert.Equal(t, gormlogger.Warn, l.level)
}
