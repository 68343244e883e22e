package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/c360studio/semstreams/payloadregistry"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/c360studio/agentbus/backend"
	"github.com/c360studio/agentbus/config"
	"github.com/c360studio/agentbus/dialogue"
	"github.com/c360studio/agentbus/event"
	"github.com/c360studio/agentbus/llm"
	"github.com/c360studio/agentbus/model"
	"github.com/c360studio/agentbus/prompt"
	brokerapi "github.com/c360studio/agentbus/processor/broker-api"
	intakeapi "github.com/c360studio/agentbus/processor/intake-api"
	"github.com/c360studio/agentbus/processor/matcher"
	registryapi "github.com/c360studio/agentbus/processor/registry-api"
	taskapi "github.com/c360studio/agentbus/processor/task-api"
	"github.com/c360studio/agentbus/storage/blobstore"
	"github.com/c360studio/agentbus/storage/postgres"
	"github.com/c360studio/agentbus/storage/statestore"
)

const shutdownTimeout = 30 * time.Second

// lifecycleComponent is the slice of the component contract the runner
// drives.
type lifecycleComponent interface {
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

type namedComponent struct {
	name string
	lifecycleComponent
}

func run(cfg *config.Config) error {
	printBanner()

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx := context.Background()

	// NATS carries events, broker messages, and blob buckets.
	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	js, err := natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStreams(ctx, cfg, js, logger); err != nil {
		return err
	}

	// Payload registration happens once at boot so wire decoding can
	// recreate typed payloads. Collisions fail the boot, not a request.
	payloadReg := payloadregistry.New()
	if err := event.RegisterPayloads(payloadReg); err != nil {
		return fmt.Errorf("register event payloads: %w", err)
	}
	if err := llm.RegisterPayloads(payloadReg); err != nil {
		return fmt.Errorf("register llm payloads: %w", err)
	}

	// LM call recording is optional; the bus runs without it.
	if err := llm.InitGlobalCallStore(natsClient); err != nil {
		logger.Warn("LLM call recording disabled", "error", err)
	}

	registry := model.NewDefaultRegistry()
	if cfg.ModelRegistry != nil {
		registry.MergeFromConfig(cfg.ModelRegistry)
	}
	llmOpts := []llm.ClientOption{llm.WithLogger(logger)}
	if store := llm.GlobalCallStore(); store != nil {
		llmOpts = append(llmOpts, llm.WithCallStore(store))
	}
	llmClient := llm.NewClient(registry, llmOpts...)

	// Redis holds dialogue state and the status cache.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	states := statestore.New(redisClient, cfg.Redis.TTL, logger)

	// Postgres owns the durable task and processor rows.
	db, err := connectPostgres(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	tasks := postgres.NewTaskStore(db, logger)
	processors := postgres.NewProcessorStore(db, logger)
	vectors := postgres.NewVectorStore(db)

	blobs, err := blobstore.New(ctx, js)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	prompts := prompt.NewStore(cfg.Dialogue.PromptDir, logger)

	publisher, err := event.NewPublisher(natsClient,
		event.WithTaskEventSubject(cfg.Topics.TaskEvents),
		event.WithBrokerSubject(cfg.Topics.Messages),
		event.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("event publisher: %w", err)
	}

	backendClient := backend.New(cfg.Backend.URL, cfg.Backend.APIKey, cfg.Backend.Timeout, logger)

	engine := dialogue.NewEngine(llmClient, states, prompts,
		dialogue.WithMaxTurns(cfg.Dialogue.MaxTurns),
		dialogue.WithLogger(logger),
	)

	intake, err := intakeapi.New(intakeapi.Config{MaxTurns: cfg.Dialogue.MaxTurns}, intakeapi.Deps{
		Engine:  engine,
		States:  states,
		Tasks:   tasks,
		Blobs:   blobs,
		Backend: backendClient,
		Events:  publisher,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("intake-api: %w", err)
	}

	match, err := matcher.New(matcher.Config{
		Subject:              cfg.Topics.TaskEvents,
		MaxCandidates:        cfg.Matching.MaxCandidates,
		DisableFiltering:     cfg.Matching.DisableProcessorFiltering,
		DisableWorkflow:      cfg.Matching.DisableMultiStepWorkflow,
		HealthCheckTimeoutMs: int(cfg.Matching.HealthCheckTimeout.Milliseconds()),
	}, matcher.Deps{
		NATSClient: natsClient,
		Tasks:      tasks,
		Processors: processors,
		Vectors:    vectors,
		Blobs:      blobs,
		States:     states,
		Backend:    backendClient,
		LLM:        llmClient,
		Prompts:    prompts,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("matcher: %w", err)
	}

	broker, err := brokerapi.New(brokerapi.Config{}, brokerapi.Deps{
		Tasks:  tasks,
		Queue:  publisher,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("broker-api: %w", err)
	}

	taskAPI, err := taskapi.New(taskapi.Config{}, taskapi.Deps{
		Tasks:   tasks,
		States:  states,
		Matcher: match,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("task-api: %w", err)
	}

	registryAPI, err := registryapi.New(registryapi.Config{}, registryapi.Deps{
		Processors: processors,
		Vectors:    vectors,
		Embedder:   llmClient,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("registry-api: %w", err)
	}

	mux := http.NewServeMux()
	intake.RegisterHTTPHandlers("api", mux)
	broker.RegisterHTTPHandlers("api", mux)
	taskAPI.RegisterHTTPHandlers("api", mux)
	registryAPI.RegisterHTTPHandlers("api", mux)
	mux.HandleFunc("/api/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	components := []namedComponent{
		{"registry-api", registryAPI},
		{"matcher", match},
		{"intake-api", intake},
		{"broker-api", broker},
		{"task-api", taskAPI},
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	// Reload prompt overrides on disk changes.
	if cfg.Dialogue.PromptDir != "" {
		go func() {
			if err := prompts.Watch(signalCtx); err != nil {
				logger.Warn("Prompt watch stopped", "error", err)
			}
		}()
	}

	for _, c := range components {
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initialize %s: %w", c.name, err)
		}
		if err := c.Start(signalCtx); err != nil {
			return fmt.Errorf("start %s: %w", c.name, err)
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	slog.Info("Agentbus ready", "version", Version)

	select {
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErr:
		slog.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}

	// Stop in reverse start order so consumers drain before their
	// collaborators go away.
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Stop(shutdownTimeout); err != nil {
			slog.Error("Error stopping component", "component", components[i].name, "error", err)
		}
	}

	slog.Info("Agentbus shutdown complete")
	return nil
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func connectToNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	logger.Info("Connecting to NATS", "url", cfg.NATS.URL)

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, cfg.NATS.URL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, cfg.NATS.URL)
	}

	logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// ensureStreams creates the task-event and broker-message streams the
// matcher and delivery consumers read from.
func ensureStreams(ctx context.Context, cfg *config.Config, js jetstream.JetStream, logger *slog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        "AGENTBUS_TASKS",
			Description: "Task lifecycle events",
			Subjects:    []string{cfg.Topics.TaskEvents},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      7 * 24 * time.Hour,
		},
		{
			Name:        "AGENTBUS_MESSAGES",
			Description: "Requester-processor broker messages",
			Subjects:    []string{cfg.Topics.Messages},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      7 * 24 * time.Hour,
		},
	}
	for _, sc := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("ensure stream %s: %w", sc.Name, err)
		}
	}
	logger.Debug("JetStream streams ready")
	return nil
}

func connectPostgres(cfg *config.Config) (*sqlx.DB, error) {
	dsn := cfg.Postgres.DSN
	if dsn == "" {
		return nil, fmt.Errorf("postgres.dsn is required (or set POSTGRES_DSN)")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	return db, nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
