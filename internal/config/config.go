package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration. Values come from an optional YAML
// file named by CONFIG_PATH; environment variables override the file.
type Config struct {
	Port        string `yaml:"port"`
	GRPCPort    string `yaml:"grpc_port"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	DebugRoutes bool   `yaml:"debug_routes"`

	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Redis     RedisConfig     `yaml:"redis"`
	Tracing   TracingConfig   `yaml:"tracing"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// DatabaseConfig selects the store. An empty DSN runs the in-memory store.
type DatabaseConfig struct {
	Driver    string   `yaml:"driver"`
	DSN       string   `yaml:"dsn"`
	SeedUsers []string `yaml:"seed_users"`
}

// AuthConfig holds the JWT verification key.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// AMQPConfig configures event and audit publishing.
type AMQPConfig struct {
	URL           string `yaml:"url"`
	Exchange      string `yaml:"exchange"`
	AuditExchange string `yaml:"audit_exchange"`
	AuditRouting  string `yaml:"audit_routing_key"`
}

// RedisConfig enables the presence mirror when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"online_key"`
	Channel  string `yaml:"channel"`
}

// TracingConfig enables OTLP export when Endpoint is set.
type TracingConfig struct {
	Endpoint string `yaml:"otlp_endpoint"`
}

// WebSocketConfig holds transport timeouts.
type WebSocketConfig struct {
	WriteWait      time.Duration `yaml:"-"`
	PongWait       time.Duration `yaml:"-"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`

	WriteWaitRaw string `yaml:"write_wait"`
	PongWaitRaw  string `yaml:"pong_wait"`
}

// Load reads the optional YAML file and applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	applyEnv(cfg)
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Port:        "8083",
		GRPCPort:    "9083",
		ServiceName: "messaging-service",
		Environment: "local",
		LogLevel:    "info",
		Database:    DatabaseConfig{Driver: "postgres"},
		AMQP: AMQPConfig{
			Exchange:      "messaging.events",
			AuditExchange: "audit.logs",
			AuditRouting:  "audit.messaging",
		},
		Redis: RedisConfig{Key: "presence:online", Channel: "presence"},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			SendBuffer:     64,
			WriteWaitRaw:   "10s",
			PongWaitRaw:    "60s",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.GRPCPort = getEnv("GRPC_PORT", cfg.GRPCPort)
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DebugRoutes = getEnvBool("DEBUG_ROUTES", cfg.DebugRoutes)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("DB_DSN", cfg.Database.DSN)
	if seeds := getEnv("SEED_USERS", ""); seeds != "" {
		cfg.Database.SeedUsers = strings.Split(seeds, ",")
	}

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)

	cfg.AMQP.URL = getEnv("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Exchange = getEnv("AMQP_EXCHANGE", cfg.AMQP.Exchange)
	cfg.AMQP.AuditExchange = getEnv("AUDIT_EXCHANGE", cfg.AMQP.AuditExchange)
	cfg.AMQP.AuditRouting = getEnv("AUDIT_ROUTING_KEY", cfg.AMQP.AuditRouting)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)

	cfg.WebSocket.WriteWaitRaw = getEnv("WS_WRITE_WAIT", cfg.WebSocket.WriteWaitRaw)
	cfg.WebSocket.PongWaitRaw = getEnv("WS_PONG_WAIT", cfg.WebSocket.PongWaitRaw)
}

func (c *Config) parseDurations() error {
	var err error
	if c.WebSocket.WriteWait, err = time.ParseDuration(c.WebSocket.WriteWaitRaw); err != nil {
		return fmt.Errorf("invalid websocket.write_wait: %w", err)
	}
	if c.WebSocket.PongWait, err = time.ParseDuration(c.WebSocket.PongWaitRaw); err != nil {
		return fmt.Errorf("invalid websocket.pong_wait: %w", err)
	}
	return nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.WebSocket.WriteWait <= 0 || c.WebSocket.PongWait <= 0 {
		return fmt.Errorf("websocket timeouts must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket.send_buffer must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
