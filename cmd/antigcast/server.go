package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antigcast/antigcast/automod/cachestore"
	"github.com/antigcast/antigcast/automod/consumer"
	"github.com/antigcast/antigcast/automod/countstore"
	"github.com/antigcast/antigcast/automod/engine"
	"github.com/antigcast/antigcast/automod/modcache"
	"github.com/antigcast/antigcast/automod/recency"
	"github.com/antigcast/antigcast/automod/rulestore"
	"github.com/antigcast/antigcast/automod/setstore"
	"github.com/antigcast/antigcast/util/cliutil"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Server struct {
	Engine   *engine.Engine
	Consumer *consumer.TelegramConsumer

	echo   *echo.Echo
	httpd  *http.Server
	logger *slog.Logger
	// released after the consumer and API have stopped
	closers []func(context.Context) error
}

type Config struct {
	Logger          *slog.Logger
	TelegramToken   string
	TelegramAPIHost string
	BotUsername     string
	DatabaseURL     string
	MaxDBConns      int
	DBTracing       bool
	MongoURI        string
	MongoDB         string
	RedisURL        string
	Freshness       time.Duration
	FetchTimeout    time.Duration
	CacheCapacity   int
	RecencyBound    time.Duration
	BurstWindow     time.Duration
	EmojiLimit      int
	SetsFileJSON    string
	Parallelism     int
	DeleteRateLimit int
	Bind            string
	AdminToken      string
}

func NewServer(ctx context.Context, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{logger: logger}

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}
		srv.closers = append(srv.closers, func(context.Context) error { return rdb.Close() })

		counters = countstore.NewRedisCountStore(rdb)
		cache = cachestore.NewRedisCacheStore(rdb, consumer.AdminCacheTTL)
	} else {
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(50_000, consumer.AdminCacheTTL)
	}

	store, err := srv.openRuleStore(ctx, config, rdb)
	if err != nil {
		return nil, err
	}

	sets := setstore.NewMemSetStore()
	if config.SetsFileJSON != "" {
		if err := sets.LoadFromFileJSON(config.SetsFileJSON); err != nil {
			return nil, fmt.Errorf("initializing in-process setstore: %v", err)
		}
		logger.Info("loaded keyword sets", "path", config.SetsFileJSON)
	}
	keywords := append(append([]string{}, engine.DefaultSuspiciousKeywords...), sets.Values(setstore.SuspiciousKeywords)...)

	eng := &engine.Engine{
		Logger: logger.With("component", "engine"),
		Rules: modcache.NewCache(store, modcache.Config{
			Capacity:     config.CacheCapacity,
			Freshness:    config.Freshness,
			FetchTimeout: config.FetchTimeout,
			Logger:       logger,
		}),
		Recency:  recency.NewTracker(config.BurstWindow, config.RecencyBound),
		Patterns: engine.NewPatterns(keywords, config.EmojiLimit),
		Counters: counters,
	}
	eng.Recency.Logger = logger.With("component", "recency")
	srv.Engine = eng

	bc, err := consumer.NewBotClient(config.TelegramToken, config.TelegramAPIHost)
	if err != nil {
		return nil, err
	}
	deleteRate := config.DeleteRateLimit
	if deleteRate <= 0 {
		deleteRate = consumer.DefaultDeleteRate
	}
	srv.Consumer = &consumer.TelegramConsumer{
		Parallelism: config.Parallelism,
		Logger:      logger.With("component", "consumer"),
		RedisClient: rdb,
		Engine:      eng,
		Commands: &consumer.Commands{
			Logger:      logger.With("component", "commands"),
			Engine:      eng,
			Messenger:   bc,
			Cache:       cache,
			BotUsername: config.BotUsername,
		},
		Updates:       bc,
		Messenger:     bc,
		DeleteLimiter: rate.NewLimiter(rate.Limit(deleteRate), deleteRate),
	}

	srv.setupAPI(config.Bind, config.AdminToken, nil)
	return srv, nil
}

// Picks the ruleset backend: mongodb, then SQL, then redis. With none configured rulesets only live in process memory.
func (srv *Server) openRuleStore(ctx context.Context, config Config, rdb *redis.Client) (rulestore.RuleStore, error) {
	switch {
	case config.MongoURI != "":
		s, err := rulestore.NewMongoRuleStore(ctx, config.MongoURI, config.MongoDB, srv.logger)
		if err != nil {
			return nil, fmt.Errorf("initializing mongodb rulestore: %w", err)
		}
		srv.closers = append(srv.closers, s.Close)
		srv.logger.Info("using mongodb rulestore", "db", config.MongoDB)
		return s, nil
	case config.DatabaseURL != "":
		db, err := cliutil.SetupDatabase(config.DatabaseURL, config.MaxDBConns)
		if err != nil {
			return nil, err
		}
		if config.DBTracing {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, fmt.Errorf("enabling database tracing: %w", err)
			}
		}
		s, err := rulestore.NewSQLRuleStore(db)
		if err != nil {
			return nil, fmt.Errorf("initializing SQL rulestore: %w", err)
		}
		srv.logger.Info("using SQL rulestore")
		return s, nil
	case rdb != nil:
		srv.logger.Info("using redis rulestore")
		return rulestore.NewRedisRuleStore(rdb), nil
	}
	srv.logger.Warn("no durable rulestore configured, chat settings will be lost on restart")
	return rulestore.NewMemRuleStore(), nil
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Runs the update consumer, recency pruning, and the HTTP API until an OS exit signal (or ctx cancellation), then shuts everything down.
func (srv *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.Info("registering OS exit signal handler")
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(exitSignals)
	go func() {
		select {
		case sig := <-exitSignals:
			slog.Info("received OS exit signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var g errgroup.Group
	g.Go(func() error {
		srv.Engine.Recency.Run(ctx, 0)
		return nil
	})
	g.Go(func() error {
		return srv.Consumer.RunPersistCursor(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return srv.Consumer.Run(ctx)
	})
	g.Go(func() error {
		slog.Info("starting server", "bind", srv.httpd.Addr)
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel()
			return fmt.Errorf("HTTP server shutting down unexpectedly: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown()
	})

	err := g.Wait()
	srv.close()
	slog.Info("graceful shutdown complete")
	return err
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (srv *Server) Shutdown() error {
	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}

func (srv *Server) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, c := range srv.closers {
		if err := c(ctx); err != nil {
			srv.logger.Warn("error releasing resources", "err", err)
		}
	}
}
