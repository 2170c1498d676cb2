package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"github.com/solace-ai/orchestrator/internal/config"
	"github.com/solace-ai/orchestrator/internal/critic"
	"github.com/solace-ai/orchestrator/internal/executor"
	"github.com/solace-ai/orchestrator/internal/memory/filestore"
	"github.com/solace-ai/orchestrator/internal/memory/mongostore"
	"github.com/solace-ai/orchestrator/internal/model"
	"github.com/solace-ai/orchestrator/internal/model/anthropic"
	"github.com/solace-ai/orchestrator/internal/model/ratelimit"
	"github.com/solace-ai/orchestrator/internal/orchestrator"
	"github.com/solace-ai/orchestrator/internal/planner"
	"github.com/solace-ai/orchestrator/internal/promptstore"
	"github.com/solace-ai/orchestrator/internal/session"
	"github.com/solace-ai/orchestrator/internal/session/redislock"
	"github.com/solace-ai/orchestrator/internal/telemetry"
	"github.com/solace-ai/orchestrator/internal/tools"
	"github.com/solace-ai/orchestrator/internal/tools/builtin"
	"github.com/solace-ai/orchestrator/internal/transport/ws"
)

func main() {
	var (
		hostF      = flag.String("host", "localhost", "Server host")
		httpPortF  = flag.String("http-port", "8080", "HTTP port")
		configF    = flag.String("config", "orchestrator.yaml", "Path to the orchestrator config file")
		promptsF   = flag.String("prompts", "prompts", "Path to the prompt store directory")
		sessionsF  = flag.String("sessions-dir", "sessions", "Path to the file-backed session store root")
		dbgF       = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("load config: %w", err))
	}

	prompts, err := promptstore.Load(*promptsF)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("load prompts: %w", err))
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		log.Fatal(ctx, fmt.Errorf("ANTHROPIC_API_KEY is required"))
	}
	modelClient, err := anthropic.NewFromAPIKey(apiKey, anthropic.Options{})
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("init model client: %w", err))
	}
	var boundClient model.Client = modelClient
	if cfg.RateLimit.InitialTPM > 0 {
		limiter := ratelimit.New(cfg.RateLimit.InitialTPM, cfg.RateLimit.MaxTPM)
		boundClient = limiter.Middleware(modelClient)
	}

	registry := buildRegistry(cfg)

	plannerTemp, _ := cfg.TemperatureFor("planner", "", 0.2)
	p := planner.New(boundClient, prompts, planner.Options{Temperature: plannerTemp, ModelClass: model.ClassDefault})

	criticTemp, _ := cfg.TemperatureFor("critic", "", 0.0)
	c := critic.New(boundClient, criticTemp)

	exec := executor.New(registry, c, executor.Options{
		PerStepRetries:    cfg.Executor.PerStepRetries,
		DefaultDeadlineMs: cfg.Executor.DefaultDeadlineMs,
		Logger:            telemetry.NewClueLogger(),
	})

	orch := orchestrator.New(p, exec, registry, cfg)

	store, closeStore, err := buildSessionStore(ctx, cfg, *sessionsF)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("init session store: %w", err))
	}
	if closeStore != nil {
		defer closeStore()
	}

	var lock session.Lock
	if cfg.Session.DistributedLock {
		rdb := redis.NewClient(&redis.Options{
			Addr:     envOr("REDIS_URL", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Printf(ctx, "close redis: %v", err)
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal(ctx, fmt.Errorf("connect to redis: %w", err))
		}
		lock = redislock.New(rdb, redislock.Config{})
	}

	manager := session.New(orch, store, lock, cfg.ReasoningTrace.Enabled)

	addr := fmt.Sprintf("%s:%s", *hostF, *httpPortF)
	mux := http.NewServeMux()
	mux.Handle("/ws", ws.New(manager))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 60 * time.Second}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	go func() {
		log.Printf(ctx, "orchestrator listening on %q", addr)
		errc <- srv.ListenAndServe()
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf(ctx, "failed to shutdown: %v", err)
	}
}

// buildSessionStore constructs the Session Memory persistence backend
// selected by cfg.Session.Store. The returned close func (nil for the file
// backend) must be called on shutdown to release the underlying client.
func buildSessionStore(ctx context.Context, cfg *config.Config, sessionsDir string) (session.Store, func(), error) {
	switch cfg.Session.Store {
	case "mongo":
		mongoURL := envOr("MONGO_URL", "mongodb://localhost:27017")
		client, err := mongo.Connect(options.Client().ApplyURI(mongoURL))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongo: %w", err)
		}
		mstore, err := mongostore.New(ctx, mongostore.Options{
			Client:   client,
			Database: envOr("MONGO_DATABASE", "orchestrator"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init mongo session store: %w", err)
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf(ctx, "close mongo: %v", err)
			}
		}
		return session.NewMongoStore(mstore, ""), closeFn, nil
	default:
		return session.NewFileStore(filestore.New(sessionsDir), ""), nil, nil
	}
}

// envOr returns the environment variable value or a default.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func buildRegistry(cfg *config.Config) *tools.Registry {
	r := tools.New()
	r.Register(builtin.ReplyToUserSpec())
	r.Register(builtin.ComposeEmailSpec(nil))
	r.Register(builtin.FolderFindDuplicatesSpec(cfg.Sandbox.Roots))
	r.Register(builtin.GoogleSearchSpec(nil))
	return r
}
