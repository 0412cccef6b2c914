package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/antigcast/antigcast/automod/consumer"
	"github.com/antigcast/antigcast/automod/engine"
	"github.com/antigcast/antigcast/automod/modcache"
	"github.com/antigcast/antigcast/automod/recency"
	"github.com/antigcast/antigcast/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "antigcast",
		Usage:   "per-chat anti-spam moderation daemon for telegram groups",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"ANTIGCAST_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			EnvVars: []string{"ANTIGCAST_LOG_FMT", "LOG_FMT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "telegram-token",
			Usage:    "bot API token",
			Required: true,
			EnvVars:  []string{"ANTIGCAST_TELEGRAM_TOKEN", "BOT_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "telegram-api-host",
			Usage:   "method, hostname, and port of the bot API server",
			Value:   consumer.DefaultAPIHost,
			EnvVars: []string{"ANTIGCAST_TELEGRAM_API_HOST"},
		},
		&cli.StringFlag{
			Name:    "bot-username",
			Usage:   "bot's own username; commands addressed to other bots are ignored",
			EnvVars: []string{"ANTIGCAST_BOT_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "sqlite or postgres URL for the ruleset store",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"ANTIGCAST_MAX_DB_CONNECTIONS"},
			Value:   20,
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit trace spans for SQL queries",
			EnvVars: []string{"ANTIGCAST_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "mongodb-uri",
			Usage:   "mongodb connection URI for the ruleset store",
			EnvVars: []string{"ANTIGCAST_MONGODB_URI", "MONGO_URI"},
		},
		&cli.StringFlag{
			Name:    "mongodb-db",
			Usage:   "mongodb database name",
			Value:   "antigcast",
			EnvVars: []string{"ANTIGCAST_MONGODB_DB"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for counters, caches, and update offsets (and rulesets, if no other store is configured)",
			EnvVars: []string{"ANTIGCAST_REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "freshness",
			Usage:   "how long a cached chat ruleset is served before refetching",
			Value:   modcache.DefaultFreshness,
			EnvVars: []string{"ANTIGCAST_FRESHNESS"},
		},
		&cli.DurationFlag{
			Name:    "fetch-timeout",
			Usage:   "bound on a single ruleset store fetch",
			Value:   modcache.DefaultFetchTimeout,
			EnvVars: []string{"ANTIGCAST_FETCH_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "cache-capacity",
			Usage:   "max chat rulesets held in memory",
			Value:   100_000,
			EnvVars: []string{"ANTIGCAST_CACHE_CAPACITY"},
		},
		&cli.DurationFlag{
			Name:    "recency-bound",
			Usage:   "per-chat recency state is dropped after this long without messages",
			Value:   recency.DefaultInactiveBound,
			EnvVars: []string{"ANTIGCAST_RECENCY_BOUND"},
		},
		&cli.DurationFlag{
			Name:    "burst-window",
			Usage:   "window over which per-chat message counts accumulate",
			Value:   recency.DefaultBurstWindow,
			EnvVars: []string{"ANTIGCAST_BURST_WINDOW"},
		},
		&cli.IntFlag{
			Name:    "emoji-limit",
			Usage:   "messages with more emoji than this are flagged",
			Value:   engine.DefaultEmojiLimit,
			EnvVars: []string{"ANTIGCAST_EMOJI_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "sets-json",
			Usage:   "JSON file with extra keyword sets",
			EnvVars: []string{"ANTIGCAST_SETS_JSON"},
		},
		&cli.IntFlag{
			Name:    "parallelism",
			Usage:   "max messages processed concurrently",
			Value:   consumer.DefaultParallelism,
			EnvVars: []string{"ANTIGCAST_PARALLELISM"},
		},
		&cli.IntFlag{
			Name:    "delete-rate-limit",
			Usage:   "max message deletions per second, across all chats",
			Value:   consumer.DefaultDeleteRate,
			EnvVars: []string{"ANTIGCAST_DELETE_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"ANTIGCAST_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"ANTIGCAST_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token for the admin HTTP API; admin routes are disabled when empty",
			EnvVars: []string{"ANTIGCAST_ADMIN_TOKEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		shutdownOTEL := configOTEL("antigcast")
		defer shutdownOTEL()

		srv, err := NewServer(ctx, Config{
			Logger:          logger,
			TelegramToken:   cctx.String("telegram-token"),
			TelegramAPIHost: cctx.String("telegram-api-host"),
			BotUsername:     cctx.String("bot-username"),
			DatabaseURL:     cctx.String("database-url"),
			MaxDBConns:      cctx.Int("max-db-connections"),
			DBTracing:       cctx.Bool("db-tracing"),
			MongoURI:        cctx.String("mongodb-uri"),
			MongoDB:         cctx.String("mongodb-db"),
			RedisURL:        cctx.String("redis-url"),
			Freshness:       cctx.Duration("freshness"),
			FetchTimeout:    cctx.Duration("fetch-timeout"),
			CacheCapacity:   cctx.Int("cache-capacity"),
			RecencyBound:    cctx.Duration("recency-bound"),
			BurstWindow:     cctx.Duration("burst-window"),
			EmojiLimit:      cctx.Int("emoji-limit"),
			SetsFileJSON:    cctx.String("sets-json"),
			Parallelism:     cctx.Int("parallelism"),
			DeleteRateLimit: cctx.Int("delete-rate-limit"),
			Bind:            cctx.String("bind"),
			AdminToken:      cctx.String("admin-token"),
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run antigcast service: %w", err)
		}
		return nil
	},
}
