// Command carousing-cli administers carousing storage, a stopped node's bolt file or the shared
// redis: it registers users and characters, hands out login secrets, awards gold, and moves
// tables in and out of the portable JSON format.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bloops-games/carousing/internal/broadcast"
	"github.com/bloops-games/carousing/internal/buildinfo"
	"github.com/bloops-games/carousing/internal/cache"
	"github.com/bloops-games/carousing/internal/carousing/tables"
	"github.com/bloops-games/carousing/internal/database"
	actorDb "github.com/bloops-games/carousing/internal/database/actor/database"
	docDb "github.com/bloops-games/carousing/internal/database/document/database"
	userDb "github.com/bloops-games/carousing/internal/database/user/database"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/bloops-games/carousing/internal/shutdown"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

const usage = `usage: carousing-cli <command> [flags]

commands:
  user add       register a user and print its login secret
  user secret    issue a new login secret
  user list      list users
  actor add      register a character
  actor list     list characters
  actor award    add or remove gold
  table list     list tables
  table export   write a table as portable JSON
  table import   read a portable JSON table
  table parse    build a table from pipe separated text files
`

type Config struct {
	CacheSize int    `envconfig:"CAROUSING_CACHE_SIZE" default:"64"`
	Backend   string `envconfig:"CAROUSING_BACKEND" default:"bolt"`
	RedisAddr string `envconfig:"CAROUSING_REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"CAROUSING_REDIS_DB" default:"0"`
	Db        database.Config
}

type env struct {
	users  *userDb.DB
	actors *actorDb.DB
	tables *tables.Repository
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"user add":     userAdd,
	"user secret":  userSecret,
	"user list":    userList,
	"actor add":    actorAdd,
	"actor list":   actorList,
	"actor award":  actorAward,
	"table list":   tableList,
	"table export": tableExport,
	"table import": tableImport,
	"table parse":  tableParse,
}

func main() {
	flag.Usage = func() {
		_, _ = fmt.Fprintln(os.Stderr, buildinfo.String())
		_, _ = fmt.Fprint(os.Stderr, usage)
	}
	flag.Parse()

	ctx, done := shutdown.New()
	defer done()
	logger := logging.FromContext(ctx)

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(2)
	}

	cmd, ok := commands[flag.Arg(0)+" "+flag.Arg(1)]
	if !ok {
		flag.Usage()
		os.Exit(2)
	}

	if err := realMain(ctx, cmd, flag.Args()[2:]); err != nil {
		logger.Fatalf("main.realMain: %v", err)
	}
}

func realMain(ctx context.Context, cmd command, args []string) error {
	config := Config{}
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("processing the config: %w", err)
	}

	if config.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr, DB: config.RedisDB})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping %s: %w", config.RedisAddr, err)
		}

		// no publisher: running nodes pick the change up on their next read
		return cmd(ctx, &env{
			users:  userDb.NewRedis(client),
			actors: actorDb.NewRedis(client),
			tables: tables.New(docDb.NewRedis(client, nil)),
		}, args)
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

	docCache, err := cache.NewLRU(config.CacheSize)
	if err != nil {
		return fmt.Errorf("can not create lru cache: %w", err)
	}

	hub := broadcast.NewHub()
	defer hub.Close()

	return cmd(ctx, &env{
		users:  userDb.New(db, userCache),
		actors: actorDb.New(db),
		tables: tables.New(docDb.New(db, docCache, hub)),
	}, args)
}
