package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/questlore/questpub/pkg/questpub"
)

const questXML = `<quest title="The Lost Crypt" minplayers="2" maxplayers="4"></quest>`

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ServerConfig)
		wantError bool
	}{
		{"defaults", func(*ServerConfig) {}, false},
		{"missing port", func(c *ServerConfig) { c.Port = "" }, true},
		{"postgres without url", func(c *ServerConfig) { c.DatabaseType = DatabasePostgres }, true},
		{"unknown database", func(c *ServerConfig) { c.DatabaseType = "mysql" }, true},
		{"unknown storage", func(c *ServerConfig) { c.Storage.Type = "gcs" }, true},
		{"unknown policy", func(c *ServerConfig) { c.UploadPolicy = "never" }, true},
		{"unknown layout", func(c *ServerConfig) { c.KeyLayout = "flat" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBuildServiceMemory(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc, cleanup, err := cfg.BuildService(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	id, err := svc.Publish(context.Background(), "u1", "d1", []byte(questXML))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if id != questpub.QuestID("u1", "d1") {
		t.Errorf("unexpected id %q", id)
	}
}

func TestBuildServiceSQLiteAndFilesystem(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(
		WithDatabase(DatabaseSQLite, filepath.Join(dir, "quests.db")),
		WithFilesystemStorage(filepath.Join(dir, "artifacts"), "https://cdn.example.com/quests"),
		WithKeyLayout(KeyLayoutSharded),
		WithEventLogging(false),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	svc, cleanup, err := cfg.BuildService(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	id, err := svc.Publish(ctx, "u1", "d1", []byte(questXML))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	quest, err := svc.GetQuest(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if quest.Title != "The Lost Crypt" {
		t.Errorf("unexpected title %q", quest.Title)
	}
	if want := "https://cdn.example.com/quests/quests/"; len(quest.PublishedURL) < len(want) || quest.PublishedURL[:len(want)] != want {
		t.Errorf("expected sharded public url under %s, got %q", want, quest.PublishedURL)
	}

	if _, err := os.Stat(filepath.Join(dir, "quests.db")); err != nil {
		t.Errorf("expected sqlite database file: %v", err)
	}

	if _, err := svc.Unpublish(ctx, "u1", "d1"); err != nil {
		t.Fatalf("unpublish failed: %v", err)
	}
	if _, err := svc.Publish(ctx, "u1", "d1", []byte(questXML)); !errors.Is(err, questpub.ErrTombstoned) {
		t.Errorf("expected ErrTombstoned, got %v", err)
	}
}

func TestBuildServiceBadStorage(t *testing.T) {
	cfg := defaults()
	cfg.Storage = StorageBackendConfig{Name: "gcs", Type: "gcs"}

	if _, _, err := cfg.BuildService(context.Background()); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestBuildServiceBadUploadPolicy(t *testing.T) {
	cfg := defaults()
	cfg.UploadPolicy = "best-effort"

	_, _, err := cfg.BuildService(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, questpub.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
