package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/bloops-games/carousing/internal/api"
	"github.com/bloops-games/carousing/internal/auth"
	"github.com/bloops-games/carousing/internal/broadcast"
	"github.com/bloops-games/carousing/internal/broadcast/redisbridge"
	"github.com/bloops-games/carousing/internal/buildinfo"
	"github.com/bloops-games/carousing/internal/cache"
	"github.com/bloops-games/carousing/internal/carousing"
	"github.com/bloops-games/carousing/internal/carousing/tables"
	"github.com/bloops-games/carousing/internal/database"
	actorDb "github.com/bloops-games/carousing/internal/database/actor/database"
	docDb "github.com/bloops-games/carousing/internal/database/document/database"
	userDb "github.com/bloops-games/carousing/internal/database/user/database"
	"github.com/bloops-games/carousing/internal/i18n"
	"github.com/bloops-games/carousing/internal/identity"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/bloops-games/carousing/internal/metrics"
	"github.com/bloops-games/carousing/internal/notify"
	"github.com/bloops-games/carousing/internal/presence"
	"github.com/bloops-games/carousing/internal/server"
	"github.com/bloops-games/carousing/internal/shutdown"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	_, _ = fmt.Fprintln(os.Stdout, buildinfo.String())

	ctx, done := shutdown.New()
	defer done()
	logger := logging.FromContext(ctx)
	if err := realMain(ctx, done); err != nil {
		logger.Fatalf("main.realMain: %v", err)
	}
}

// presenceSet is the local tracker on bolt and the redis cluster view on redis.
type presenceSet interface {
	api.Presence
	identity.Presence
}

func realMain(ctx context.Context, done func()) error {
	config := Config{}
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("processing the config: %w", err)
	}

	logger := logging.NewLogger(config.Debug)
	ctx = logging.WithLogger(ctx, logger)
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewFromEnv(ctx, &config.Db)
	if err != nil {
		return fmt.Errorf("new database from env: %w", err)
	}

	defer db.Close(ctx)

	userCache, err := cache.NewLRU(config.CacheSize)
	if err != nil {
		return fmt.Errorf("can not create lru cache: %w", err)
	}

	hub := broadcast.NewHub()
	defer hub.Close()

	g, gctx := errgroup.WithContext(ctx)

	tracker := presence.NewTracker(hub)

	var (
		store  carousing.Store
		users  *userDb.DB
		actors *actorDb.DB
		online presenceSet = tracker
	)
	switch config.Backend {
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr, DB: config.RedisDB})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping %s: %w", config.RedisAddr, err)
		}

		nodeID := config.NodeID
		if nodeID == "" {
			nodeID = uuid.NewString()
		}

		store = docDb.NewRedis(client, hub)
		users = userDb.NewRedis(client)
		actors = actorDb.NewRedis(client)

		cluster := presence.NewCluster(client, tracker, presence.ClusterConfig{
			NodeID: nodeID,
			TTL:    config.PresenceTTL,
		})
		online = cluster
		g.Go(func() error {
			return cluster.Run(gctx)
		})

		bridge := redisbridge.New(client, hub, redisbridge.Config{NodeID: nodeID})
		g.Go(func() error {
			return bridge.Run(gctx)
		})
	case BackendBolt:
		docCache, err := cache.NewLRU(config.CacheSize)
		if err != nil {
			return fmt.Errorf("can not create lru cache: %w", err)
		}
		store = docDb.New(db, docCache, hub)
		users = userDb.New(db, userCache)
		actors = actorDb.New(db)
	default:
		return fmt.Errorf("unknown backend %q", config.Backend)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	localizer, err := i18n.New(config.I18n.Language)
	if err != nil {
		return fmt.Errorf("i18n.New: %w", err)
	}

	directory := identity.NewDirectory(users, online)
	authenticator, err := auth.New(&config.Auth, users)
	if err != nil {
		return fmt.Errorf("auth.New: %w", err)
	}
	repo := tables.New(store)

	notifier := notify.Multi{notify.NewBroadcast(hub)}
	if config.Telegram.Token != "" {
		tg, err := tgbotapi.NewBotAPI(config.Telegram.Token)
		if err != nil {
			return fmt.Errorf("bot api: %w", err)
		}

		tg.Debug = config.Debug
		logger.Infof("authorization in telegram was successful: %s", tg.Self.UserName)
		notifier = append(notifier, notify.NewTelegram(tg, users, config.Telegram.GMChatID))
	}

	engine := carousing.New(&config.Carousing, carousing.Deps{
		Store:     store,
		Tables:    repo,
		Identity:  directory,
		Actors:    actors,
		Notifier:  notifier,
		Metrics:   m,
		Localizer: localizer,
	})

	router := gin.New()
	router.Use(gin.Recovery(), api.Logger(logger.Desugar()))
	router.GET("/health", gin.WrapH(server.HandleHealth(ctx)))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	api.New(api.Deps{
		Auth:           authenticator,
		AllowedOrigins: config.AllowedOrigins,
		Engine:         engine,
		Tables:         repo,
		Actors:         actors,
		Users:          directory,
		Presence:       online,
		Hub:            hub,
		Metrics:        m,
	}).Register(router)

	srv, err := server.New(config.Port)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	logger.Infof("listening on %s, backend %s", srv.Addr(), config.Backend)
	g.Go(func() error {
		return srv.ServeHTTPHandler(gctx, router)
	})

	if config.ProfPort != "" {
		go func() {
			if err := http.ListenAndServe(":"+config.ProfPort, nil); err != nil {
				logger.Errorf("pprof default server: %v", err)
				done()
			}
		}()
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}
