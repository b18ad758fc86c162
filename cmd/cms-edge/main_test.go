package main

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"sitecms/internal/config"
)

func TestRunRequiresAllowedOrigin(t *testing.T) {
	cfg := config.Config{Store: config.StoreGit, RepoDir: t.TempDir(), AllowedOrigin: "  "}
	err := run(cfg, zap.NewNop())
	if err == nil || !strings.Contains(err.Error(), "CMS_ALLOWED_ORIGIN") {
		t.Fatalf("run() error = %v, want missing origin error", err)
	}
}

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, closeStore, err := openStore(ctx, config.Config{Store: "s3"}, zap.NewNop())
	defer closeStore()
	if err == nil {
		t.Fatal("expected unknown store to fail")
	}
}
