package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/PabloGalante/gemini-chat/internal/adapters/llm"
)

type LLMBackend string

const (
	LLMGemini LLMBackend = "gemini"
	LLMVertex LLMBackend = "vertex"
	LLMMock   LLMBackend = "mock"
)

type StoreBackend string

const (
	StoreDynamoDB  StoreBackend = "dynamodb"
	StoreFirestore StoreBackend = "firestore"
	StoreRedis     StoreBackend = "redis"
	StoreSQLite    StoreBackend = "sqlite"
	StoreBolt      StoreBackend = "bolt"
	StoreMemory    StoreBackend = "memory"
)

type LockMode string

const (
	LockNone  LockMode = "none"
	LockLocal LockMode = "local"
	LockRedis LockMode = "redis"
)

type Config struct {
	Port string `mapstructure:"port"`

	LLM   LLMConfig   `mapstructure:"llm"`
	Store StoreConfig `mapstructure:"store"`
	Lock  LockConfig  `mapstructure:"lock"`
	Log   LogConfig   `mapstructure:"log"`
	HTTP  HTTPConfig  `mapstructure:"http"`
}

type LLMConfig struct {
	Backend    LLMBackend           `mapstructure:"backend"`
	APIKey     string               `mapstructure:"api_key"`
	Model      string               `mapstructure:"model"`
	Project    string               `mapstructure:"project"`
	Location   string               `mapstructure:"location"`
	BaseURL    string               `mapstructure:"base_url"`
	Generation llm.GenerationConfig `mapstructure:"generation"`
}

type StoreConfig struct {
	Backend          StoreBackend `mapstructure:"backend"`
	Table            string       `mapstructure:"table"`
	Endpoint         string       `mapstructure:"endpoint"`
	Region           string       `mapstructure:"region"`
	AccessKeyID      string       `mapstructure:"access_key_id"`
	SecretAccessKey  string       `mapstructure:"secret_access_key"`
	FirestoreProject string       `mapstructure:"firestore_project"`
	RedisAddr        string       `mapstructure:"redis_addr"`
	RedisPassword    string       `mapstructure:"redis_password"`
	RedisDB          int          `mapstructure:"redis_db"`
	SQLitePath       string       `mapstructure:"sqlite_path"`
	BoltPath         string       `mapstructure:"bolt_path"`
}

type LockConfig struct {
	Mode LockMode      `mapstructure:"mode"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// envBindings maps config keys to the environment variables of the deployment.
var envBindings = map[string][]string{
	"port":                    {"PORT"},
	"llm.backend":             {"LLM_BACKEND"},
	"llm.api_key":             {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"llm.model":               {"GEMINI_MODEL"},
	"llm.project":             {"GCP_PROJECT", "GOOGLE_CLOUD_PROJECT"},
	"llm.location":            {"GCP_LOCATION", "GOOGLE_CLOUD_LOCATION"},
	"llm.base_url":            {"GEMINI_BASE_URL"},
	"store.backend":           {"STORE_BACKEND"},
	"store.table":             {"TABLE_HISTORY"},
	"store.endpoint":          {"DYNAMODB_ENDPOINT"},
	"store.region":            {"AWS_DEFAULT_REGION", "AWS_REGION"},
	"store.access_key_id":     {"AWS_ACCESS_KEY_ID"},
	"store.secret_access_key": {"AWS_SECRET_ACCESS_KEY"},
	"store.firestore_project": {"FIRESTORE_PROJECT"},
	"store.redis_addr":        {"REDIS_ADDR"},
	"store.redis_password":    {"REDIS_PASSWORD"},
	"store.redis_db":          {"REDIS_DB"},
	"store.sqlite_path":       {"SQLITE_PATH"},
	"store.bolt_path":         {"BOLT_PATH"},
	"lock.mode":               {"SESSION_LOCK"},
	"lock.ttl":                {"SESSION_LOCK_TTL"},
	"log.level":               {"LOG_LEVEL"},
	"log.format":              {"LOG_FORMAT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")

	v.SetDefault("llm.backend", string(LLMGemini))
	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.location", "us-central1")

	v.SetDefault("store.backend", string(StoreDynamoDB))
	v.SetDefault("store.table", "ChatHistory")
	v.SetDefault("store.endpoint", "http://localhost:4566")
	v.SetDefault("store.region", "us-west-2")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.sqlite_path", "chat_history.db")
	v.SetDefault("store.bolt_path", "chat_history.bolt")

	v.SetDefault("lock.mode", string(LockNone))
	v.SetDefault("lock.ttl", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 5*time.Minute)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
}

// NewViper returns a viper instance with defaults and env bindings in place.
// If file is not empty it is read as well; env values win over the file.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, errors.Wrapf(err, "bind env for %s", key)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", file)
		}
	}
	return v, nil
}

// Load reads defaults, the optional config file and the environment, and validates the result.
func Load(file string) (*Config, error) {
	v, err := NewViper(file)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	cfg.LLM.Backend = LLMBackend(strings.ToLower(string(cfg.LLM.Backend)))
	cfg.Store.Backend = StoreBackend(strings.ToLower(string(cfg.Store.Backend)))
	cfg.Lock.Mode = LockMode(strings.ToLower(string(cfg.Lock.Mode)))
	if cfg.Store.FirestoreProject == "" {
		cfg.Store.FirestoreProject = cfg.LLM.Project
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("port must be set")
	}

	switch c.LLM.Backend {
	case LLMGemini, LLMMock:
	case LLMVertex:
		if c.LLM.Project == "" {
			return fmt.Errorf("GCP_PROJECT must be set for the vertex backend")
		}
	default:
		return fmt.Errorf("unknown llm backend %q", c.LLM.Backend)
	}
	if err := c.LLM.Generation.Validate(); err != nil {
		return errors.Wrap(err, "llm.generation")
	}

	if strings.TrimSpace(c.Store.Table) == "" {
		return fmt.Errorf("store table must be set")
	}
	switch c.Store.Backend {
	case StoreDynamoDB:
		if c.Store.Region == "" {
			return fmt.Errorf("AWS_DEFAULT_REGION must be set for the dynamodb backend")
		}
	case StoreFirestore:
		if c.Store.FirestoreProject == "" {
			return fmt.Errorf("FIRESTORE_PROJECT or GCP_PROJECT must be set for the firestore backend")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR must be set for the redis backend")
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set for the sqlite backend")
		}
	case StoreBolt:
		if c.Store.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH must be set for the bolt backend")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Lock.Mode {
	case LockNone, LockLocal:
	case LockRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR must be set for redis session locks")
		}
		if c.Lock.TTL <= 0 {
			return fmt.Errorf("lock ttl must be positive, got %s", c.Lock.TTL)
		}
		// a lease must outlive the request holding it
		if c.HTTP.WriteTimeout > 0 && c.Lock.TTL < c.HTTP.WriteTimeout {
			return fmt.Errorf("lock ttl %s is shorter than the http write timeout %s", c.Lock.TTL, c.HTTP.WriteTimeout)
		}
	default:
		return fmt.Errorf("unknown lock mode %q", c.Lock.Mode)
	}

	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("http shutdown timeout must be positive, got %s", c.HTTP.ShutdownTimeout)
	}
	return nil
}

func (c *Config) Addr() string {
	return ":" + c.Port
}
