// Command agentrun runs the agent orchestration daemon: an HTTP front end
// over the workflow engine, with Redis or in-process persistence picked by
// configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/quillstone/agentrun/approval"
	"github.com/quillstone/agentrun/auth"
	"github.com/quillstone/agentrun/checkpoint"
	"github.com/quillstone/agentrun/classify"
	"github.com/quillstone/agentrun/config"
	"github.com/quillstone/agentrun/internal/metrics"
	"github.com/quillstone/agentrun/memory"
	"github.com/quillstone/agentrun/orchestrator"
	"github.com/quillstone/agentrun/tool"
	"github.com/quillstone/agentrun/types"
	"github.com/quillstone/agentrun/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.NewLoader().
		WithConfigPath(*configPath).
		WithValidator((*config.Config).Validate).
		Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("daemon failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Memory.Backend == "redis" || cfg.Approval.CheckpointBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr, err)
		}
	}

	memoryStore, err := buildMemoryStore(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	checkpointStore, err := buildCheckpointStore(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	approvalStore, err := buildApprovalStore(cfg, logger)
	if err != nil {
		return err
	}

	coordinator := approval.NewCoordinator(approvalStore, checkpointStore, logger,
		approval.WithTTL(cfg.Approval.TTL),
	)

	contentStore := workflow.NewInMemoryContentStore()
	classifier := classify.WithTimeout(classify.NewKeywordClassifier(logger), cfg.Classifier.Timeout)

	engine, err := workflow.NewContentGraph(workflow.GraphDeps{
		Classifier: classifier,
		Content:    contentStore,
		Search:     contentStore,
		Logger:     logger,
	}, workflow.WithMaxIterations(cfg.Workflow.MaxIterations))
	if err != nil {
		return err
	}

	registry := tool.NewRegistry(logger)
	if err := registerTools(registry, contentStore); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	runtime, err := orchestrator.NewRuntime(orchestrator.Deps{
		Engine:      engine,
		Coordinator: coordinator,
		Memory:      memoryStore,
		Tools:       registry,
		Metrics:     collector,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	// Background sweep of overdue approvals.
	go func() {
		ticker := time.NewTicker(cfg.Approval.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := coordinator.ExpireOverdue(ctx); err != nil {
					logger.Warn("approval sweep failed", zap.Error(err))
				}
			}
		}
	}()

	server := NewServer(ctx, runtime, collector, cfg, promRegistry, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildMemoryStore(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (memory.Store, error) {
	memCfg := memory.Config{MaxEntries: cfg.Memory.MaxEntries, TTL: cfg.Memory.TTL}
	switch cfg.Memory.Backend {
	case "redis":
		return memory.NewRedisStore(redisClient, cfg.Redis.KeyPrefix, memCfg, logger), nil
	case "memory":
		return memory.NewInMemoryStore(memCfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}

func buildCheckpointStore(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (checkpoint.Store, error) {
	switch cfg.Approval.CheckpointBackend {
	case "redis":
		return checkpoint.NewRedisStore(redisClient, cfg.Redis.KeyPrefix, logger), nil
	case "memory":
		return checkpoint.NewMemoryStore(logger), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Approval.CheckpointBackend)
	}
}

func buildApprovalStore(cfg *config.Config, logger *zap.Logger) (approval.Store, error) {
	if cfg.Approval.Backend == "memory" {
		return approval.NewMemoryStore(), nil
	}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.Database.DSN())
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return approval.NewGormStore(db, logger)
}

// registerTools installs the standard tool catalogue over the content
// store.
func registerTools(registry *tool.Registry, content *workflow.InMemoryContentStore) error {
	tools := []tool.Tool{
		{
			Name:         "search_articles",
			Description:  "Search published articles in a topic.",
			RequiredRole: auth.RoleReader,
			TopicScoped:  true,
			Handler: func(ctx context.Context, params map[string]any, user *auth.UserContext) (any, error) {
				topic, _ := params["topic"].(string)
				query, _ := params["query"].(string)
				return content.Search(ctx, topic, query, 10)
			},
		},
		{
			Name:         "draft_article",
			Description:  "Create a draft article in a topic.",
			RequiredRole: auth.RoleAnalyst,
			TopicScoped:  true,
			Handler: func(ctx context.Context, params map[string]any, user *auth.UserContext) (any, error) {
				topic, _ := params["topic"].(string)
				title, _ := params["title"].(string)
				body, _ := params["body"].(string)
				return content.CreateDraft(ctx, workflow.Article{
					Topic:    topic,
					Title:    title,
					Body:     body,
					AuthorID: user.UserID(),
				})
			},
		},
		{
			Name:             "publish_article",
			Description:      "Stage an article for publication review.",
			RequiredRole:     auth.RoleEditor,
			TopicScoped:      true,
			RequiresApproval: true,
			Handler: func(ctx context.Context, params map[string]any, user *auth.UserContext) (any, error) {
				id, _ := params["article_id"].(string)
				if id == "" {
					return nil, types.NewError(types.ErrInvalidRequest, "article_id is required")
				}
				if err := content.SetStatus(ctx, id, workflow.ArticlePendingReview); err != nil {
					return nil, err
				}
				return map[string]string{"article_id": id, "status": workflow.ArticlePendingReview}, nil
			},
		},
		{
			Name:                "manage_entitlements",
			Description:         "Inspect entitlement grants.",
			RequiredRole:        auth.RoleAdmin,
			GlobalAdminOverride: true,
			Handler: func(ctx context.Context, params map[string]any, user *auth.UserContext) (any, error) {
				scopes := user.Scopes()
				out := make([]string, len(scopes))
				for i, s := range scopes {
					out[i] = s.String()
				}
				return map[string]any{"user_id": user.UserID(), "scopes": out}, nil
			},
		},
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	if len(cfg.OutputPaths) > 0 {
		zapCfg.OutputPaths = cfg.OutputPaths
	}
	zapCfg.DisableCaller = !cfg.EnableCaller
	zapCfg.DisableStacktrace = !cfg.EnableStacktrace
	return zapCfg.Build()
}
