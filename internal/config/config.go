package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/xxxsen/common/logger"
)

type Config struct {
	Database      DatabaseConfig   `json:"database" toml:"database"`
	Port          int              `json:"port" toml:"port"`
	LogConfig     logger.LogConfig `json:"log_config" toml:"log_config"`
	FileStore     FileStoreConfig  `json:"file_store" toml:"file_store"`
	AI            AIConfig         `json:"ai" toml:"ai"`
	Task          TaskConfig       `json:"task" toml:"task"`
	Segment       SegmentConfig    `json:"segment" toml:"segment"`
	Schedule      ScheduleConfig   `json:"schedule" toml:"schedule"`
	CORSAllowlist []string         `json:"cors_allowlist" toml:"cors_allowlist"`
	// RateLimitSeconds throttles task-start endpoints per client and path.
	RateLimitSeconds int `json:"rate_limit_seconds" toml:"rate_limit_seconds"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver" toml:"driver"`
	DSN      string `json:"dsn" toml:"dsn"`
	Host     string `json:"host" toml:"host"`
	Port     int    `json:"port" toml:"port"`
	User     string `json:"user" toml:"user"`
	Password string `json:"password" toml:"password"`
	DBName   string `json:"dbname" toml:"dbname"`
	SSLMode  string `json:"sslmode" toml:"sslmode"`
}

type FileStoreConfig struct {
	Type string      `json:"type" toml:"type"`
	Data interface{} `json:"data" toml:"data"`
}

type AIProviderConfig struct {
	Name     string      `json:"name" toml:"name"`
	Provider string      `json:"provider" toml:"provider"`
	Model    string      `json:"model" toml:"model"`
	Data     interface{} `json:"data" toml:"data"`
}

type AIConfig struct {
	Providers         []AIProviderConfig `json:"providers" toml:"providers"`
	Timeout           int                `json:"timeout" toml:"timeout"`
	MaxInputChars     int                `json:"max_input_chars" toml:"max_input_chars"`
	RetryAttempts     int                `json:"retry_attempts" toml:"retry_attempts"`
	RequestsPerSecond float64            `json:"requests_per_second" toml:"requests_per_second"`
	Burst             int                `json:"burst" toml:"burst"`
}

type TaskConfig struct {
	ConcurrencyLimit                int     `json:"concurrency_limit" toml:"concurrency_limit"`
	QuestionGenerationLength        int     `json:"question_generation_length" toml:"question_generation_length"`
	QuestionMaskRemovingProbability float64 `json:"question_mask_removing_probability" toml:"question_mask_removing_probability"`
	BackgroundWorkers               int     `json:"background_workers" toml:"background_workers"`
	BackgroundQueueSize             int     `json:"background_queue_size" toml:"background_queue_size"`
	StaleTaskMinutes                int     `json:"stale_task_minutes" toml:"stale_task_minutes"`
	PendingVerificationMinutes      int     `json:"pending_verification_minutes" toml:"pending_verification_minutes"`
}

type SegmentConfig struct {
	Type         string `json:"type" toml:"type"`
	ChunkSize    int    `json:"chunk_size" toml:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap" toml:"chunk_overlap"`
	MinLength    int    `json:"min_length" toml:"min_length"`
	MaxLength    int    `json:"max_length" toml:"max_length"`
	Separator    string `json:"separator" toml:"separator"`
	Language     string `json:"language" toml:"language"`
}

type ScheduleConfig struct {
	StaleTaskSpec           string `json:"stale_task_spec" toml:"stale_task_spec"`
	PendingVerificationSpec string `json:"pending_verification_spec" toml:"pending_verification_spec"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for sqlite")
		}
	case "postgres":
		if cfg.Database.DSN == "" && cfg.Database.Host == "" {
			return fmt.Errorf("database.dsn or database.host is required for postgres")
		}
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres")
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if len(cfg.AI.Providers) == 0 {
		return fmt.Errorf("ai.providers is required")
	}
	for i, p := range cfg.AI.Providers {
		if strings.TrimSpace(p.Provider) == "" {
			return fmt.Errorf("ai.providers[%d].provider is required", i)
		}
		if strings.TrimSpace(p.Name) == "" {
			cfg.AI.Providers[i].Name = p.Provider
		}
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 120
	}
	if cfg.AI.RetryAttempts <= 0 {
		cfg.AI.RetryAttempts = 3
	}
	cfg.Task.normalize()
	cfg.Segment.Normalize()
	if cfg.Schedule.StaleTaskSpec == "" {
		cfg.Schedule.StaleTaskSpec = "*/10 * * * *"
	}
	if cfg.Schedule.PendingVerificationSpec == "" {
		cfg.Schedule.PendingVerificationSpec = "*/5 * * * *"
	}
	return nil
}

func (t *TaskConfig) normalize() {
	if t.ConcurrencyLimit <= 0 {
		t.ConcurrencyLimit = 2
	}
	if t.QuestionGenerationLength <= 0 {
		t.QuestionGenerationLength = 240
	}
	if t.QuestionMaskRemovingProbability <= 0 || t.QuestionMaskRemovingProbability > 1 {
		t.QuestionMaskRemovingProbability = 0.6
	}
	if t.BackgroundWorkers <= 0 {
		t.BackgroundWorkers = 4
	}
	if t.BackgroundQueueSize <= 0 {
		t.BackgroundQueueSize = 256
	}
	if t.StaleTaskMinutes <= 0 {
		t.StaleTaskMinutes = 60
	}
	if t.PendingVerificationMinutes <= 0 {
		t.PendingVerificationMinutes = 10
	}
}

// Normalize fills unset segmentation fields with their defaults.
func (s *SegmentConfig) Normalize() {
	if s.Type == "" {
		s.Type = "default"
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = 1500
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		s.ChunkOverlap = min(200, s.ChunkSize/5)
	}
	if s.MinLength <= 0 {
		s.MinLength = 1500
	}
	if s.MaxLength <= 0 || s.MaxLength < s.MinLength {
		s.MaxLength = max(2000, s.MinLength)
	}
}
