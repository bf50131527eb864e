package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asobot/internal/config"
	"github.com/asobot/internal/db"
	"github.com/asobot/internal/line"
	"github.com/asobot/internal/logger"
	"github.com/asobot/internal/service"
)

// scan 执行一次提醒与提案扫描，把报告以 JSON 输出到标准输出。
func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	at := flag.String("now", "", "override scan time (RFC 3339)")
	flag.Parse()

	cfg := config.Load(*configPath)
	root := logger.New(os.Stderr, cfg.Log.Level)

	now := time.Now()
	if *at != "" {
		parsed, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			root.Fatal().Err(err).Str("now", *at).Msg("invalid -now value")
		}
		now = parsed
	}

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		root.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close(gdb)

	client := line.NewClient(cfg.LINE.ChannelAccessToken, cfg.LINE.APIBaseURL, cfg.NotifyTimeout())
	svc := service.NewServices(gdb, client, service.Options{
		LIFFID:                 cfg.LINE.LIFFID,
		NotifyTimeout:          cfg.NotifyTimeout(),
		RenotifyOnPollRecreate: cfg.Notify.RenotifyOnPollRecreate,
		Location:               cfg.Location(),
		Logger:                 root,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := svc.Scanner.Run(ctx, now)
	if err != nil {
		root.Error().Err(err).Msg("scan aborted")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if encErr := encoder.Encode(report); encErr != nil {
		root.Error().Err(encErr).Msg("failed to write report")
	}

	if err != nil || report.Failed() > 0 {
		stop()
		db.Close(gdb)
		os.Exit(1)
	}
}
