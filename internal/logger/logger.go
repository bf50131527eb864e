package logger

import (
	"io"
	"os"
	"strings"

	"github.com/asobot/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/lumberjack.v2"
)

// Init 按配置构造根 logger：控制台 JSON 输出，可选按大小滚动的日志文件。
// 返回的 logger 同时写入 zerolog/log 的全局实例，供 main 之外的零散调用使用。
func Init(cfg config.LogConfig) zerolog.Logger {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, os.Stdout)
	}
	if strings.TrimSpace(cfg.File) != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	root := New(io.MultiWriter(writers...), cfg.Level)
	log.Logger = root
	root.Info().Str("level", cfg.Level).Str("file", cfg.File).Msg("logger initialized")
	return root
}

// New 构造写入 w 的 logger，主要用于测试与命令行工具。
func New(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Component 返回带 component 字段的子 logger。
func Component(parent zerolog.Logger, name string) zerolog.Logger {
	return parent.With().Str("component", name).Logger()
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
