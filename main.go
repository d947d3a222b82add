package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	apirest "github.com/floradex-app/server/api/rest"
	"github.com/floradex-app/server/api/sse"
	"github.com/floradex-app/server/cache"
	"github.com/floradex-app/server/config"
	dbadapter "github.com/floradex-app/server/db"
	"github.com/floradex-app/server/friendship"
	mw "github.com/floradex-app/server/middleware"
	"github.com/floradex-app/server/model"
	"github.com/floradex-app/server/notify"
	"github.com/floradex-app/server/oplog"
	"github.com/floradex-app/server/reconcile"
	"github.com/floradex-app/server/repository"
	"github.com/floradex-app/server/scheduler"
	"github.com/floradex-app/server/trade"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Operation log ----
	oplogSvc := oplog.New(db, logger)
	defer oplogSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Engine ----
	repo := repository.NewGormUserRepository(db)
	committer := reconcile.NewCommitter(repo, c, oplogSvc, reconcile.Options{
		MaxRetries: cfg.Engine.MaxRetries,
		Backoff:    cfg.Engine.RetryBackoff,
		LockTTL:    cfg.Engine.LockTTL,
	}, logger)
	sweeper := reconcile.NewSweeper(repo, logger)

	notifier := notify.New(pubsub, logger)
	friendSvc := friendship.NewService(committer, logger)
	tradeSvc := trade.NewService(committer, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	if cfg.Engine.SweepInterval > 0 {
		sched.AddTicker("consistency_sweep", cfg.Engine.SweepInterval, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			violations, err := sweeper.Sweep(ctx)
			if err != nil {
				logger.Error("scheduled sweep failed", zap.Error(err))
				return
			}
			for _, v := range violations {
				oplogSvc.Log(oplog.Entry{
					ActorID: v.UserID,
					Action:  "sweep_violation",
					Detail:  v,
				})
			}
		})
	}
	sched.AddTicker("session_cleanup", 5*time.Minute, func() {
		// Sessions expire by cache TTL; the tick only surfaces liveness.
		logger.Debug("session cleanup tick")
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, repo, c, cfg.Security)
	galleryH := apirest.NewGalleryHandler(repo, committer)
	socialH := apirest.NewSocialHandler(repo, friendSvc, notifier, c)
	tradeH := apirest.NewTradeHandler(repo, tradeSvc, notifier)
	adminH := apirest.NewAdminHandler(sweeper, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		galleryG := api.Group("/gallery")
		galleryG.Use(mw.Auth(cfg.Security, c))
		galleryG.GET("/cards", galleryH.ListCards)
		galleryG.POST("/cards", galleryH.MintCard)
		galleryG.PUT("/cards/:id/trade-status", galleryH.SetTradeStatus)

		socialG := api.Group("/social")
		socialG.Use(mw.Auth(cfg.Security, c))
		socialG.GET("/friends", socialH.ListFriends)
		socialG.GET("/requests", socialH.ListRequests)
		socialG.POST("/requests", socialH.SendRequest)
		socialG.POST("/requests/:uid/accept", socialH.AcceptRequest)
		socialG.POST("/requests/:uid/decline", socialH.DeclineRequest)

		tradesG := api.Group("/trades")
		tradesG.Use(mw.Auth(cfg.Security, c))
		tradesG.GET("", tradeH.ListOffers)
		tradesG.POST("", tradeH.CreateOffer)
		tradesG.POST("/:uid/:offer_id/accept", tradeH.AcceptOffer)
		tradesG.POST("/:uid/:offer_id/decline", tradeH.DeclineOffer)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/sweep", adminH.RunSweep)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
