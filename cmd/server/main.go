package main

import (
	"flag"

	"github.com/asobot/internal/config"
	"github.com/asobot/internal/db"
	"github.com/asobot/internal/handler"
	"github.com/asobot/internal/line"
	"github.com/asobot/internal/logger"
	"github.com/asobot/internal/router"
	"github.com/asobot/internal/service"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := config.Load(*configPath)
	root := logger.Init(cfg.Log)
	gin.SetMode(cfg.Server.GinMode)

	// 初始化数据库
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		root.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close(gdb)

	if cfg.LINE.ChannelAccessToken == "" {
		root.Warn().Msg("LINE_CHANNEL_ACCESS_TOKEN is empty, notifications will fail")
	}
	if cfg.Cron.Secret == "" && cfg.Cron.SecretHash == "" {
		root.Warn().Msg("CRON_SECRET is empty, /api/cron accepts unauthenticated requests")
	}

	client := line.NewClient(cfg.LINE.ChannelAccessToken, cfg.LINE.APIBaseURL, cfg.NotifyTimeout())
	svc := service.NewServices(gdb, client, service.Options{
		LIFFID:                 cfg.LINE.LIFFID,
		NotifyTimeout:          cfg.NotifyTimeout(),
		RenotifyOnPollRecreate: cfg.Notify.RenotifyOnPollRecreate,
		Location:               cfg.Location(),
		Logger:                 root,
	})
	api := handler.NewAPI(svc, handler.Options{
		Cron:     handler.CronAuth{Secret: cfg.Cron.Secret, SecretHash: cfg.Cron.SecretHash},
		Location: cfg.Location(),
		Logger:   logger.Component(root, "http"),
	})

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api, cfg, logger.Component(root, "access"))
	root.Info().Str("addr", cfg.Server.ListenAddr).Str("timezone", cfg.Location().String()).Msg("server starting")
	if err := r.Run(cfg.Server.ListenAddr); err != nil {
		root.Fatal().Err(err).Msg("failed to run server")
	}
}
