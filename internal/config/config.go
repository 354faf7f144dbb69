package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"FinMonitorAPI/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	MQTT     MQTTConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	Environment     string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxHeaderBytes  int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type MQTTConfig struct {
	Broker          string
	Port            int
	ClientID        string
	Username        string
	Password        string
	EventsTopic     string
	DeadLetterTopic string
	NotifyTopic     string
	IncidentTopic   string
	StormTopic      string
	EscalationTopic string
	ConsumerName    string
	QoS             byte
	RetainMessages  bool
	KeepAlive       time.Duration
	ConnectTimeout  time.Duration
	AutoReconnect   bool
}

type SecurityConfig struct {
	JWTSecret          string
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	RateLimitPerMinute int
	EnableRateLimit    bool
	EnableAuth         bool
}

type LoggingConfig struct {
	Level      logger.Level
	FilePath   string
	UseColors  bool
	WithCaller bool
}

// EngineConfig tunes the baseline statistics and alert lifecycle engine.
type EngineConfig struct {
	BaselineWindowSize int
	BaselineMinSamples int
	AnomalyZScore      float64

	DedupWindow time.Duration

	StormWindow    time.Duration
	StormThreshold int

	CorrelationWindow     time.Duration
	CorrelationInterval   time.Duration
	CorrelationMinCluster int

	EscalationInterval time.Duration
	EscalateHighAfter  time.Duration
	EscalateMedAfter   time.Duration
	EscalateLowAfter   time.Duration

	DispatchTimeout    time.Duration
	BreakerMinRequests uint32
	BreakerFailureRate float64
	BreakerOpenTimeout time.Duration

	RetentionAge      time.Duration
	RetentionInterval time.Duration
	HealthInterval    time.Duration
	WorkerCount       int
}

var requiredEnvVars = []string{
	"DB_HOST",
	"DB_PORT",
	"DB_USER",
	"DB_PASSWORD",
	"DB_NAME",
	"MQTT_BROKER",
	"MQTT_PORT",
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	if err := validateRequired(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		MQTT:     loadMQTTConfig(),
		Security: loadSecurityConfig(),
		Logging:  loadLoggingConfig(),
		Engine:   loadEngineConfig(),
	}

	return cfg, nil
}

func validateRequired() error {
	var missing []string

	for _, key := range requiredEnvVars {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SERVER_HOST", "0.0.0.0"),
		Port:            getEnvAsInt("SERVER_PORT", 8080),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", "15s"),
		ReadTimeout:     getEnvAsDuration("READ_TIMEOUT", "10s"),
		WriteTimeout:    getEnvAsDuration("WRITE_TIMEOUT", "10s"),
		MaxHeaderBytes:  getEnvAsInt("MAX_HEADER_BYTES", 1048576),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "finmon_admin"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "fin_monitor"),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
		ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", "5m"),
	}
}

func loadMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:          getEnv("MQTT_BROKER", "localhost"),
		Port:            getEnvAsInt("MQTT_PORT", 1883),
		ClientID:        getEnv("MQTT_CLIENT_ID", "finmon-backend"),
		Username:        getEnv("MQTT_USERNAME", ""),
		Password:        getEnv("MQTT_PASSWORD", ""),
		EventsTopic:     getEnv("MQTT_EVENTS_TOPIC", "finmon/events"),
		DeadLetterTopic: getEnv("MQTT_DLQ_TOPIC", "finmon/deadletter"),
		NotifyTopic:     getEnv("MQTT_NOTIFY_TOPIC", "finmon/notifications"),
		IncidentTopic:   getEnv("MQTT_INCIDENT_TOPIC", "finmon/incidents"),
		StormTopic:      getEnv("MQTT_STORM_TOPIC", "finmon/storms"),
		EscalationTopic: getEnv("MQTT_ESCALATION_TOPIC", "finmon/escalations"),
		ConsumerName:    getEnv("MQTT_CONSUMER_NAME", "finmon-monitoring-consumer"),
		QoS:             byte(getEnvAsInt("MQTT_QOS", 1)),
		RetainMessages:  getEnvAsBool("MQTT_RETAIN", false),
		KeepAlive:       getEnvAsDuration("MQTT_KEEP_ALIVE", "60s"),
		ConnectTimeout:  getEnvAsDuration("MQTT_CONNECT_TIMEOUT", "10s"),
		AutoReconnect:   getEnvAsBool("MQTT_AUTO_RECONNECT", true),
	}
}

func loadSecurityConfig() SecurityConfig {
	origins := getEnv("CORS_ALLOWED_ORIGINS", "*")
	methods := getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")

	return SecurityConfig{
		JWTSecret:          getEnv("JWT_SECRET", "fin_monitor_secret_change_in_production"),
		CORSAllowedOrigins: strings.Split(origins, ","),
		CORSAllowedMethods: strings.Split(methods, ","),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
		EnableRateLimit:    getEnvAsBool("ENABLE_RATE_LIMIT", true),
		EnableAuth:         getEnvAsBool("ENABLE_AUTH", true),
	}
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      logger.ParseLevel(getEnv("LOG_LEVEL", "info")),
		FilePath:   getEnv("LOG_FILE_PATH", ""),
		UseColors:  getEnvAsBool("LOG_USE_COLORS", true),
		WithCaller: getEnvAsBool("LOG_WITH_CALLER", false),
	}
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		BaselineWindowSize: getEnvAsInt("BASELINE_WINDOW_SIZE", 100),
		BaselineMinSamples: getEnvAsInt("BASELINE_MIN_SAMPLES", 10),
		AnomalyZScore:      getEnvAsFloat("ANOMALY_ZSCORE_THRESHOLD", 3.0),

		DedupWindow: getEnvAsDuration("DEDUP_WINDOW", "5m"),

		StormWindow:    getEnvAsDuration("STORM_WINDOW", "60s"),
		StormThreshold: getEnvAsInt("STORM_THRESHOLD", 100),

		CorrelationWindow:     getEnvAsDuration("CORRELATION_WINDOW", "10m"),
		CorrelationInterval:   getEnvAsDuration("CORRELATION_INTERVAL", "1m"),
		CorrelationMinCluster: getEnvAsInt("CORRELATION_MIN_CLUSTER", 3),

		EscalationInterval: getEnvAsDuration("ESCALATION_INTERVAL", "30s"),
		EscalateHighAfter:  getEnvAsDuration("ESCALATE_HIGH_AFTER", "5m"),
		EscalateMedAfter:   getEnvAsDuration("ESCALATE_MEDIUM_AFTER", "15m"),
		EscalateLowAfter:   getEnvAsDuration("ESCALATE_LOW_AFTER", "30m"),

		DispatchTimeout:    getEnvAsDuration("DISPATCH_TIMEOUT", "10s"),
		BreakerMinRequests: uint32(getEnvAsInt("BREAKER_MIN_REQUESTS", 3)),
		BreakerFailureRate: getEnvAsFloat("BREAKER_FAILURE_RATE", 0.6),
		BreakerOpenTimeout: getEnvAsDuration("BREAKER_OPEN_TIMEOUT", "30s"),

		RetentionAge:      getEnvAsDuration("RETENTION_AGE", "24h"),
		RetentionInterval: getEnvAsDuration("RETENTION_INTERVAL", "1h"),
		HealthInterval:    getEnvAsDuration("HEALTH_INTERVAL", "1m"),
		WorkerCount:       getEnvAsInt("WORKER_COUNT", 8),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

func (c *Config) GetMQTTBroker() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTT.Broker, c.MQTT.Port)
}

func (c *Config) Validate() error {
	var errors []string

	if c.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD cannot be empty")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}

	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errors = append(errors, "MQTT_PORT must be between 1 and 65535")
	}

	if c.Engine.BaselineWindowSize < c.Engine.BaselineMinSamples {
		errors = append(errors, "BASELINE_WINDOW_SIZE must be >= BASELINE_MIN_SAMPLES")
	}

	if c.Engine.StormThreshold < 1 {
		errors = append(errors, "STORM_THRESHOLD must be positive")
	}

	if c.Engine.BreakerFailureRate <= 0 || c.Engine.BreakerFailureRate > 1 {
		errors = append(errors, "BREAKER_FAILURE_RATE must be in (0, 1]")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func (c *Config) Print() {
	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Println("║            Fin Monitor - Configuration                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
	fmt.Printf("Environment:     %s\n", c.Server.Environment)
	fmt.Printf("Server:          %s:%d\n", c.Server.Host, c.Server.Port)
	fmt.Printf("Database:        %s:%d/%s\n", c.Database.Host, c.Database.Port, c.Database.Database)
	fmt.Printf("MQTT Broker:     %s:%d\n", c.MQTT.Broker, c.MQTT.Port)
	fmt.Printf("Events Topic:    %s\n", c.MQTT.EventsTopic)
	fmt.Println("──────────────────────────────────────────────────────────")
}
