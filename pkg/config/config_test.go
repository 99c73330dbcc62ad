package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "cart", cfg.ServiceName)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "none", cfg.Bus.Driver)
	assert.Equal(t, "cart.exchange", cfg.RabbitMQ.Exchange)
	assert.Equal(t, 16, cfg.Sweeper.Fanout)
	assert.Equal(t, 2*time.Second, cfg.Bus.PublishTimeout())
	assert.Equal(t, time.Duration(0), cfg.Sweeper.SweepInterval())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
service_name = "cart-test"
environment = "prod"

[http]
port = 9090

[bus]
driver = "kafka"

[kafka]
brokers = ["k1:9092", "k2:9092"]
topic = "carts"

[sweeper]
interval = 60
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cart-test", cfg.ServiceName)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "carts", cfg.Kafka.Topic)
	assert.Equal(t, time.Minute, cfg.Sweeper.SweepInterval())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("APP_REDIS_HOST", "redis.internal")
	t.Setenv("APP_HTTP_PORT", "8181")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 8181, cfg.HTTP.Port)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			ServiceName: "cart",
			HTTP:        HTTPConfig{Port: 8080},
			GRPC:        GRPCConfig{Port: 50051},
			Bus:         BusConfig{Driver: "none"},
			Sweeper:     SweeperConfig{Fanout: 4},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad http port", mutate: func(c *Config) { c.HTTP.Port = 70000 }, wantErr: true},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Bus.Driver = "kafka"; c.Kafka.Topic = "t" }, wantErr: true},
		{name: "rabbitmq without url", mutate: func(c *Config) { c.Bus.Driver = "rabbitmq" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Bus.Driver = "nats" }, wantErr: true},
		{name: "zero fanout", mutate: func(c *Config) { c.Sweeper.Fanout = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "dev", c.Environment)
		})
	}
}
