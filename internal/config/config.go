package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	LINE     LINEConfig     `yaml:"line"`
	Cron     CronConfig     `yaml:"cron"`
	Notify   NotifyConfig   `yaml:"notify"`
	CORS     CORSConfig     `yaml:"cors"`
	Timezone string         `yaml:"timezone"`
}

// ServerConfig 描述 HTTP 监听与会话参数。
type ServerConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	Port          string `yaml:"port"`
	GinMode       string `yaml:"gin_mode"`
	SessionSecret string `yaml:"session_secret"`
}

// DatabaseConfig 选择驱动；sqlite 使用 Path，postgres/mysql 使用 DSN。
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LINEConfig 是推送通知与 LIFF 深链所需的参数。
type LINEConfig struct {
	ChannelAccessToken string `yaml:"channel_access_token"`
	APIBaseURL         string `yaml:"api_base_url"`
	LIFFID             string `yaml:"liff_id"`
}

// CronConfig 保存定时扫描调用方的共享密钥，SecretHash 为 bcrypt 哈希，优先于明文。
type CronConfig struct {
	Secret     string `yaml:"secret"`
	SecretHash string `yaml:"secret_hash"`
}

type NotifyConfig struct {
	TimeoutSeconds         int  `yaml:"timeout_seconds"`
	RenotifyOnPollRecreate bool `yaml:"renotify_on_poll_recreate"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

const defaultConfigPath = "etc/asobot.yaml"

// Load 依次读取 .env、YAML 配置文件与环境变量，并为缺失项提供安全的默认值。
// path 为空时尝试 ASOBOT_CONFIG 与 etc/asobot.yaml，文件不存在不视为错误。
func Load(path string) AppConfig {
	_ = godotenv.Load()

	cfg := AppConfig{
		Server:   ServerConfig{Port: "8080", GinMode: "release", SessionSecret: "asobot-dev-secret"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "asobot.db"},
		Log:      LogConfig{Level: "info", Console: true, MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 30},
		LINE:     LINEConfig{APIBaseURL: "https://api.line.me"},
		Notify:   NotifyConfig{TimeoutSeconds: 10},
		CORS:     CORSConfig{AllowOrigins: []string{"*"}},
		Timezone: "Asia/Tokyo",
	}

	candidates := []string{strings.TrimSpace(path)}
	if candidates[0] == "" {
		candidates = []string{strings.TrimSpace(os.Getenv("ASOBOT_CONFIG")), defaultConfigPath}
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "ignore invalid config file %s: %v\n", candidate, err)
			continue
		}
		break
	}

	envOverride(&cfg.Server.Port, "PORT")
	envOverride(&cfg.Server.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.Server.GinMode, "GIN_MODE")
	envOverride(&cfg.Server.SessionSecret, "SESSION_SECRET")
	envOverride(&cfg.Database.Driver, "DB_DRIVER")
	envOverride(&cfg.Database.Path, "DATABASE_PATH")
	envOverride(&cfg.Database.DSN, "DATABASE_DSN")
	envOverride(&cfg.Log.Level, "LOG_LEVEL")
	envOverride(&cfg.Log.File, "LOG_FILE")
	envOverride(&cfg.LINE.ChannelAccessToken, "LINE_CHANNEL_ACCESS_TOKEN")
	envOverride(&cfg.LINE.APIBaseURL, "LINE_API_BASE_URL")
	envOverride(&cfg.LINE.LIFFID, "LIFF_ID")
	envOverride(&cfg.Cron.Secret, "CRON_SECRET")
	envOverride(&cfg.Cron.SecretHash, "CRON_SECRET_HASH")
	envOverride(&cfg.Timezone, "APP_TIMEZONE")
	envOverrideInt(&cfg.Notify.TimeoutSeconds, "NOTIFY_TIMEOUT_SECONDS")
	envOverrideBool(&cfg.Notify.RenotifyOnPollRecreate, "RENOTIFY_ON_POLL_RECREATE")

	if raw := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS")); raw != "" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		if len(origins) > 0 {
			cfg.CORS.AllowOrigins = origins
		}
	}

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = fmt.Sprintf(":%s", cfg.Server.Port)
	}
	if cfg.Notify.TimeoutSeconds <= 0 {
		cfg.Notify.TimeoutSeconds = 10
	}

	return cfg
}

// Location 解析配置的时区，无法识别时回退到 UTC。
func (c AppConfig) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotifyTimeout 返回单次推送调用的超时时间。
func (c AppConfig) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}

func envOverride(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envOverrideBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
