// Package config 负责应用配置（viper）与配置驱动的 Pipeline 构建。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/rushteam/leadscore/insight"
	"github.com/rushteam/leadscore/model"
)

const (
	// EnvPrefix 是环境变量前缀，例如 LEADSCORE_SERVER_ADDR
	EnvPrefix = "LEADSCORE"
	// DefaultConfigName 是默认配置文件名（不含扩展名），在当前目录查找
	DefaultConfigName = "leadscore"

	SessionMemory = "memory"
	SessionRedis  = "redis"

	// MaxExactLimit 是精确 Shapley 允许的最大特征数（2^20 个联盟）
	MaxExactLimit = 20
)

// AppConfig 是合并默认值、配置文件、环境变量与命令行参数后的最终配置
type AppConfig struct {
	LogLevel     string          `mapstructure:"log_level"`
	Artifacts    ArtifactsConfig `mapstructure:"artifacts"`
	Model        ModelConfig     `mapstructure:"model"`
	Explain      ExplainConfig   `mapstructure:"explain"`
	Server       ServerConfig    `mapstructure:"server"`
	Session      SessionConfig   `mapstructure:"session"`
	History      HistoryConfig   `mapstructure:"history"`
	PipelineFile string          `mapstructure:"pipeline_file"`
	Insights     []insight.Rule  `mapstructure:"insights"`
}

// ArtifactsConfig 为各制品来源，可以是本地路径或 http(s) URL
type ArtifactsConfig struct {
	FeatureMeta string `mapstructure:"feature_meta"`
	Encoders    string `mapstructure:"encoders"`
	Model       string `mapstructure:"model"`
	Background  string `mapstructure:"background"`
}

type ModelConfig struct {
	Type     string        `mapstructure:"type"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ExplainConfig struct {
	TargetClass   int    `mapstructure:"target_class"`
	TopN          int    `mapstructure:"top_n"`
	MaxBackground int    `mapstructure:"max_background"`
	ExactLimit    int    `mapstructure:"exact_limit"`
	Samples       int    `mapstructure:"samples"`
	Seed          uint64 `mapstructure:"seed"`
	MaxDisplay    int    `mapstructure:"max_display"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SessionConfig struct {
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NewViper 创建带默认值与环境变量绑定的 viper 实例
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults 写入全部默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("artifacts.feature_meta", "artifacts/feature_meta.json")
	v.SetDefault("artifacts.encoders", "artifacts/label_encoders.json")
	v.SetDefault("artifacts.model", "artifacts/forest.json")
	v.SetDefault("artifacts.background", "artifacts/background.json")

	v.SetDefault("model.type", model.TypeForest)
	v.SetDefault("model.endpoint", "")
	v.SetDefault("model.timeout", 5*time.Second)

	v.SetDefault("explain.target_class", 1)
	v.SetDefault("explain.top_n", 5)
	v.SetDefault("explain.max_background", 100)
	v.SetDefault("explain.exact_limit", 12)
	v.SetDefault("explain.samples", 256)
	v.SetDefault("explain.seed", 42)
	v.SetDefault("explain.max_display", 10)

	v.SetDefault("server.addr", "127.0.0.1:8501")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("session.backend", SessionMemory)
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_db", 0)
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "leadscore.db")

	v.SetDefault("pipeline_file", "")
}

// Load 读取配置文件（path 为空时在当前目录查找 leadscore.yaml，找不到不报错），
// 解析为 AppConfig 并校验。
func Load(v *viper.Viper, path string) (*AppConfig, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("no config file found, using defaults")
	} else {
		log.Debugf("using config file: %s", v.ConfigFileUsed())
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if !v.IsSet("insights") {
		cfg.Insights = insight.DefaultRules()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值
func (c *AppConfig) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	switch c.Model.Type {
	case model.TypeForest, model.TypeLR:
		if c.Artifacts.Model == "" {
			return fmt.Errorf("artifacts.model is required for model type %s", c.Model.Type)
		}
	case model.TypeRPC:
		if c.Model.Endpoint == "" {
			return fmt.Errorf("model.endpoint is required for model type %s", c.Model.Type)
		}
	default:
		return fmt.Errorf("unsupported model type %q (supported: %v)", c.Model.Type,
			[]string{model.TypeForest, model.TypeLR, model.TypeRPC})
	}
	if c.Artifacts.FeatureMeta == "" || c.Artifacts.Encoders == "" || c.Artifacts.Background == "" {
		return fmt.Errorf("artifacts.feature_meta, artifacts.encoders and artifacts.background are required")
	}
	if c.Explain.TargetClass != 0 && c.Explain.TargetClass != 1 {
		return fmt.Errorf("explain.target_class must be 0 or 1, got %d", c.Explain.TargetClass)
	}
	if c.Explain.TopN <= 0 {
		return fmt.Errorf("explain.top_n must be positive, got %d", c.Explain.TopN)
	}
	if c.Explain.ExactLimit > MaxExactLimit {
		return fmt.Errorf("explain.exact_limit must be <= %d, got %d", MaxExactLimit, c.Explain.ExactLimit)
	}
	if c.Explain.Samples <= 0 {
		return fmt.Errorf("explain.samples must be positive, got %d", c.Explain.Samples)
	}
	switch c.Session.Backend {
	case SessionMemory:
	case SessionRedis:
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required for redis backend")
		}
	default:
		return fmt.Errorf("unsupported session backend %q (supported: %v)", c.Session.Backend,
			[]string{SessionMemory, SessionRedis})
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}
