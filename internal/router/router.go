package router

import (
	"time"

	"github.com/asobot/internal/config"
	"github.com/asobot/internal/handler"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const sessionName = "asobot_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, cfg config.AppConfig, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(logger))

	r.Use(cors.New(corsConfig(cfg.CORS.AllowOrigins)))

	// 会话只用于记住当前群组
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	store.Options(sessions.Options{Path: "/", MaxAge: 30 * 24 * 60 * 60, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/register-user", api.RegisterUser)
		apiGroup.GET("/user-groups", api.UserGroups)
		apiGroup.GET("/cron", api.RunCron)

		apiGroup.GET("/session/group", api.GetSessionGroup)
		apiGroup.POST("/session/group", api.SetSessionGroup)

		groups := apiGroup.Group("/groups")
		{
			groups.GET("/by-line-id", api.GroupByLineID)
			groups.GET("/:groupId/members", api.GroupMembers)
			groups.GET("/:groupId/settings", api.GetGroupSettings)
			groups.PATCH("/:groupId/settings", api.UpdateGroupSettings)
			groups.GET("/:groupId/wishes", api.ListWishes)
			groups.POST("/:groupId/wishes", api.CreateWish)
			groups.GET("/:groupId/wishes/popular", api.PopularWishes)
			groups.GET("/:groupId/home", api.Home)
			groups.GET("/:groupId/calendar", api.Calendar)
			groups.GET("/:groupId/events", api.ListEvents)
			groups.POST("/:groupId/events", api.CreateEvent)
		}

		wishes := apiGroup.Group("/wishes/:wishId")
		{
			wishes.GET("", api.GetWish)
			wishes.PATCH("", api.UpdateWish)
			wishes.DELETE("", api.DeleteWish)

			wishes.POST("/interest", api.AddInterest)
			wishes.DELETE("/interest", api.RemoveInterest)

			wishes.GET("/schedule", api.GetSchedule)
			wishes.POST("/schedule", api.CreateSchedulePoll)
			wishes.POST("/schedule/votes", api.CastVotes)
			wishes.GET("/schedule/leading", api.LeadingCandidates)

			wishes.POST("/attendance", api.StartAttendance)
			wishes.GET("/response", api.GetResponses)
			wishes.POST("/response", api.SetResponse)

			wishes.POST("/confirm", api.ConfirmDate)
		}

		events := apiGroup.Group("/events/:eventId")
		{
			events.GET("", api.GetEvent)
			events.GET("/votes", api.ListEventVotes)
			events.POST("/votes", api.ReplaceEventVotes)
			events.POST("/confirm", api.ConfirmEvent)
			events.POST("/cancel", api.CancelEvent)
		}
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
