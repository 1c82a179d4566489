package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Convert    ConvertConfig    `yaml:"convert"`
	Storage    StorageConfig    `yaml:"storage"`
	Mail       MailConfig       `yaml:"mail"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Invitation InvitationConfig `yaml:"invitation"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	AutoMigrate      bool          `yaml:"auto_migrate"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	JWTSecret       string        `yaml:"jwt_secret"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Mode            string        `yaml:"mode"`
}

// LLMConfig holds extraction-model configuration
type LLMConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	Temperature  float32       `yaml:"temperature"`
	Timeout      time.Duration `yaml:"timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// ConvertConfig holds Format Normalizer configuration
type ConvertConfig struct {
	OfficeBinary string        `yaml:"office_binary"`
	Timeout      time.Duration `yaml:"timeout"`
	TempDir      string        `yaml:"temp_dir"`
}

// StorageConfig selects and configures the document store
type StorageConfig struct {
	Driver    string `yaml:"driver"` // local | s3 | minio
	LocalDir  string `yaml:"local_dir"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	PathStyle bool   `yaml:"path_style"`
}

// MailConfig holds invitation mail configuration
type MailConfig struct {
	Driver      string `yaml:"driver"` // smtp | log
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	From        string `yaml:"from"`
	FrontendURL string `yaml:"frontend_url"`
}

// PipelineConfig holds agreement processing configuration
type PipelineConfig struct {
	Async          bool          `yaml:"async"`
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
	LenientDates   bool          `yaml:"lenient_dates"`
	StaleAfter     time.Duration `yaml:"stale_after"`
}

// InvitationConfig holds invitation token configuration
type InvitationConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// SchedulerConfig holds cron specs; an empty spec disables the job.
type SchedulerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ReapStaleSpec string `yaml:"reap_stale_spec"`
	ResendInvSpec string `yaml:"resend_invitations_spec"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in defaults before any file or env override.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			HTTPAddr:        ":8000",
			GRPCAddr:        ":8081",
			TokenTTL:        24 * time.Hour,
			MaxUploadBytes:  10 << 20,
			ShutdownTimeout: 15 * time.Second,
			Mode:            "release",
		},
		LLM: LLMConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			Temperature:  0,
			Timeout:      90 * time.Second,
			ProbeTimeout: 10 * time.Second,
		},
		Convert: ConvertConfig{
			OfficeBinary: "soffice",
			Timeout:      60 * time.Second,
		},
		Storage: StorageConfig{
			Driver:   "local",
			LocalDir: "./var/documents",
			Region:   "us-east-1",
		},
		Mail: MailConfig{
			Driver:      "log",
			Port:        587,
			From:        "no-reply@localhost",
			FrontendURL: "http://localhost:3000",
		},
		Pipeline: PipelineConfig{
			Workers:        2,
			QueueSize:      64,
			ProcessTimeout: 3 * time.Minute,
			LenientDates:   true,
			StaleAfter:     15 * time.Minute,
		},
		Invitation: InvitationConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			ReapStaleSpec: "@every 5m",
			ResendInvSpec: "@every 30m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration: defaults, then the YAML file named by
// APP_CONFIG_FILE (if any), then .env and process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path := os.Getenv("APP_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return NewAppError(CodeConfiguration, "read config file", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return NewAppError(CodeConfiguration, "parse config file "+path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)
	c.Database.AutoMigrate = getEnvAsBool("DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.JWTSecret = getEnv("JWT_SECRET", c.Server.JWTSecret)
	c.Server.TokenTTL = getEnvAsDuration("JWT_TTL", c.Server.TokenTTL)
	c.Server.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.Mode = getEnv("GIN_MODE", c.Server.Mode)

	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
	c.LLM.Temperature = getEnvAsFloat32("OPENAI_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("OPENAI_TIMEOUT", c.LLM.Timeout)
	c.LLM.ProbeTimeout = getEnvAsDuration("OPENAI_PROBE_TIMEOUT", c.LLM.ProbeTimeout)

	c.Convert.OfficeBinary = getEnv("OFFICE_BINARY", c.Convert.OfficeBinary)
	c.Convert.Timeout = getEnvAsDuration("CONVERT_TIMEOUT", c.Convert.Timeout)
	c.Convert.TempDir = getEnv("CONVERT_TEMP_DIR", c.Convert.TempDir)

	c.Storage.Driver = strings.ToLower(getEnv("STORAGE_DRIVER", c.Storage.Driver))
	c.Storage.LocalDir = getEnv("STORAGE_LOCAL_DIR", c.Storage.LocalDir)
	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)
	c.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", c.Storage.Endpoint)
	c.Storage.Region = getEnv("STORAGE_REGION", c.Storage.Region)
	c.Storage.AccessKey = getEnv("STORAGE_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("STORAGE_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.UseSSL = getEnvAsBool("STORAGE_USE_SSL", c.Storage.UseSSL)
	c.Storage.PathStyle = getEnvAsBool("STORAGE_PATH_STYLE", c.Storage.PathStyle)

	c.Mail.Driver = strings.ToLower(getEnv("MAIL_DRIVER", c.Mail.Driver))
	c.Mail.Host = getEnv("SMTP_HOST", c.Mail.Host)
	c.Mail.Port = getEnvAsInt("SMTP_PORT", c.Mail.Port)
	c.Mail.Username = getEnv("SMTP_USERNAME", c.Mail.Username)
	c.Mail.Password = getEnv("SMTP_PASSWORD", c.Mail.Password)
	c.Mail.From = getEnv("MAIL_FROM", c.Mail.From)
	c.Mail.FrontendURL = getEnv("FRONTEND_URL", c.Mail.FrontendURL)

	c.Pipeline.Async = getEnvAsBool("PIPELINE_ASYNC", c.Pipeline.Async)
	c.Pipeline.Workers = getEnvAsInt("PIPELINE_WORKERS", c.Pipeline.Workers)
	c.Pipeline.QueueSize = getEnvAsInt("PIPELINE_QUEUE_SIZE", c.Pipeline.QueueSize)
	c.Pipeline.ProcessTimeout = getEnvAsDuration("PIPELINE_PROCESS_TIMEOUT", c.Pipeline.ProcessTimeout)
	c.Pipeline.LenientDates = getEnvAsBool("PIPELINE_LENIENT_DATES", c.Pipeline.LenientDates)
	c.Pipeline.StaleAfter = getEnvAsDuration("PIPELINE_STALE_AFTER", c.Pipeline.StaleAfter)

	c.Invitation.TTL = getEnvAsDuration("INVITATION_TTL", c.Invitation.TTL)

	c.Scheduler.Enabled = getEnvAsBool("SCHEDULER_ENABLED", c.Scheduler.Enabled)
	c.Scheduler.ReapStaleSpec = getEnv("SCHEDULER_REAP_STALE", c.Scheduler.ReapStaleSpec)
	c.Scheduler.ResendInvSpec = getEnv("SCHEDULER_RESEND_INVITATIONS", c.Scheduler.ResendInvSpec)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration. A missing LLM key is allowed:
// the composition root wires a disabled extractor instead.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfiguration, "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return NewAppError(CodeConfiguration, "MAX_UPLOAD_BYTES must be positive", ErrInvalidInput)
	}
	if c.Convert.Timeout <= 0 {
		return NewAppError(CodeConfiguration, "CONVERT_TIMEOUT must be positive", ErrInvalidInput)
	}
	if c.Invitation.TTL <= 0 {
		return NewAppError(CodeConfiguration, "INVITATION_TTL must be positive", ErrInvalidInput)
	}
	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalDir == "" {
			return NewAppError(CodeConfiguration, "STORAGE_LOCAL_DIR is required for the local driver", ErrInvalidInput)
		}
	case "s3", "minio":
		if c.Storage.Bucket == "" {
			return NewAppError(CodeConfiguration, "STORAGE_BUCKET is required for the "+c.Storage.Driver+" driver", ErrInvalidInput)
		}
		if c.Storage.Driver == "minio" && c.Storage.Endpoint == "" {
			return NewAppError(CodeConfiguration, "STORAGE_ENDPOINT is required for the minio driver", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfiguration, fmt.Sprintf("unknown STORAGE_DRIVER %q", c.Storage.Driver), ErrInvalidInput)
	}
	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			return NewAppError(CodeConfiguration, "SMTP_HOST is required for the smtp mail driver", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfiguration, fmt.Sprintf("unknown MAIL_DRIVER %q", c.Mail.Driver), ErrInvalidInput)
	}
	if c.Pipeline.Async && c.Pipeline.Workers <= 0 {
		return NewAppError(CodeConfiguration, "PIPELINE_WORKERS must be positive when async processing is enabled", ErrInvalidInput)
	}
	return nil
}
