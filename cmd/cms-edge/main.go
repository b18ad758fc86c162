package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sitecms/internal/app"
	"sitecms/internal/auth"
	"sitecms/internal/config"
	"sitecms/internal/content"
	"sitecms/internal/docstore"
	"sitecms/internal/publish"
)

type documentStore interface {
	Read(ctx context.Context) (docstore.Snapshot, error)
	Write(ctx context.Context, req docstore.WriteRequest) (docstore.Commit, error)
}

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("cms edge stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(parsed)
	return zapConfig.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	if strings.TrimSpace(cfg.AllowedOrigin) == "" {
		return errors.New("CMS_ALLOWED_ORIGIN is required (the site origin allowed to call the edge)")
	}
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	keys, err := auth.NewAdminKey(cfg.AdminKey, cfg.AdminKeyBcrypt)
	if err != nil {
		if !errors.Is(err, auth.ErrNoAdminKey) {
			return err
		}
		logger.Warn("CMS_ADMIN_KEY is not set, every write will be rejected")
	}
	service := app.NewService(store, keys, logger.Named("service"))

	if strings.TrimSpace(cfg.PublishEndpoint) != "" {
		publisher, err := publish.NewMinIO(publish.MinIOConfig{
			Endpoint:  cfg.PublishEndpoint,
			AccessKey: cfg.PublishAccessKey,
			SecretKey: cfg.PublishSecretKey,
			Bucket:    cfg.PublishBucket,
			UseSSL:    cfg.PublishUseSSL,
		}, logger.Named("publish"))
		if err != nil {
			return err
		}
		service.WithPublisher(publisher, cfg.DocumentPath)
		logger.Info("publish mirror enabled", zap.String("endpoint", cfg.PublishEndpoint), zap.String("bucket", cfg.PublishBucket))
	}

	httpServer := app.NewHTTPServer(service, cfg.AllowedOrigin, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("cms edge listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (documentStore, func(), error) {
	noop := func() {}
	seed, err := content.Encode(content.Default())
	if err != nil {
		return nil, noop, fmt.Errorf("encode seed document: %w", err)
	}

	switch cfg.Store {
	case config.StoreGit:
		repo := docstore.NewGitRepo(cfg.RepoDir, cfg.RepoBranch, cfg.DocumentPath)
		if err := repo.Ensure(seed); err != nil {
			return nil, noop, fmt.Errorf("prepare repository: %w", err)
		}
		return repo, noop, nil
	case config.StoreGitHub:
		if cfg.GitHubToken == "" || cfg.RepoOwner == "" || cfg.RepoName == "" {
			return nil, noop, errors.New("GITHUB_TOKEN, REPO_OWNER and REPO_NAME are required for the github store")
		}
		return docstore.NewGitHub(docstore.GitHubConfig{
			BaseURL: cfg.GitHubAPI,
			Token:   cfg.GitHubToken,
			Owner:   cfg.RepoOwner,
			Repo:    cfg.RepoName,
			Branch:  cfg.RepoBranch,
			Path:    cfg.DocumentPath,
		}, nil, logger.Named("github")), noop, nil
	case config.StorePostgres:
		db, err := docstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("database connection failed: %w", err)
		}
		closeDB := func() { _ = db.Close() }
		if err := prepareDatabase(ctx, db, cfg.DocumentPath, seed); err != nil {
			closeDB()
			return nil, noop, err
		}
		return docstore.NewPostgres(db, cfg.DocumentPath), closeDB, nil
	default:
		return nil, noop, fmt.Errorf("unknown CMS_STORE %q", cfg.Store)
	}
}

func prepareDatabase(ctx context.Context, db *sql.DB, path string, seed []byte) error {
	if err := docstore.ApplyMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if err := docstore.NewPostgres(db, path).Ensure(ctx, seed); err != nil {
		return err
	}
	return nil
}
