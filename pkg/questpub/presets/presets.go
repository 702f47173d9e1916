// Package presets builds ready-to-use services for tests and local
// development.
package presets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/questlore/questpub/pkg/questpub"
	memoryrepo "github.com/questlore/questpub/pkg/questpub/repo/memory"
	reposqlite "github.com/questlore/questpub/pkg/questpub/repo/sqlite"
	fsstorage "github.com/questlore/questpub/pkg/questpub/storage/fs"
	memorystorage "github.com/questlore/questpub/pkg/questpub/storage/memory"
)

// NewDevelopment creates a service configured for local development.
//
// Features:
//   - SQLite database at <dir>/quests.db (persistent across restarts)
//   - Filesystem storage at <dir>/artifacts
//   - Event logging enabled
//
// The cleanup function closes the database and, unless WithDevKeepData is
// given, removes dir.
//
// Example:
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (questpub.Service, func(), error) {
	cfg := &devConfig{
		dir: "./dev-data",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := os.MkdirAll(cfg.dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", cfg.dir, err)
	}

	repo, err := reposqlite.Open(filepath.Join(cfg.dir, "quests.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := repo.EnsureSchema(context.Background()); err != nil {
		repo.Close()
		return nil, nil, err
	}

	fsBackend, err := fsstorage.New(fsstorage.Config{
		BaseDir: filepath.Join(cfg.dir, "artifacts"),
	})
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	svc, err := questpub.New(
		questpub.WithRepository(repo),
		questpub.WithBlobStore("fs", fsBackend),
		questpub.WithEventSink(questpub.NewLogEventSink(nil)),
	)
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		repo.Close()
		if !cfg.keepData {
			os.RemoveAll(cfg.dir)
		}
	}

	return svc, cleanup, nil
}

// TestEnv is a service over in-memory backends, with the backends exposed
// so tests can seed records or inject storage failures.
type TestEnv struct {
	Service    questpub.Service
	Repository *memoryrepo.Repository
	Store      *memorystorage.Backend
}

// NewTesting creates a service configured for unit tests.
//
// Features:
//   - In-memory database and storage (isolated per test)
//   - No event logging (cleaner test output)
//   - Supports parallel test execution
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    env := presets.NewTesting(t)
//	    env.Service.Publish(ctx, "u1", "d1", content)
//	}
func NewTesting(t testing.TB, opts ...TestingOption) *TestEnv {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	env := &TestEnv{
		Repository: memoryrepo.New(),
		Store:      memorystorage.New(),
	}

	options := []questpub.Option{
		questpub.WithRepository(env.Repository),
		questpub.WithBlobStore("memory", env.Store),
		questpub.WithUploadPolicy(cfg.uploadPolicy),
	}
	if cfg.now != nil {
		options = append(options, questpub.WithClock(cfg.now))
	}

	svc, err := questpub.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	env.Service = svc

	if cfg.fixtures {
		for _, f := range Fixtures {
			if _, err := svc.Publish(context.Background(), f.OwnerID, f.DocumentID, []byte(f.Content)); err != nil {
				t.Fatalf("failed to publish fixture %s/%s: %v", f.OwnerID, f.DocumentID, err)
			}
		}
	}

	return env
}

// Fixture is a sample quest document
type Fixture struct {
	OwnerID    string
	DocumentID string
	Content    string
}

// Fixtures are published by WithTestFixtures
var Fixtures = []Fixture{
	{"alice", "crypt", `<quest title="The Lost Crypt" summary="Dusty halls below the chapel" author="Alice" minplayers="2" maxplayers="5" mintimeminutes="30" maxtimeminutes="90"></quest>`},
	{"alice", "market", `<quest title="Goblin Market" summary="Haggle or flee" minplayers="1" maxplayers="3"></quest>`},
	{"bob", "tower", `<quest title="Tower of Echoes" email="bob@example.com" minplayers="3" maxplayers="6"></quest>`},
}

// Option types for customization

type devConfig struct {
	dir      string
	keepData bool
}

type testConfig struct {
	fixtures     bool
	uploadPolicy questpub.UploadPolicy
	now          func() time.Time
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevDir sets the development data directory
func WithDevDir(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.dir = dir
	}
}

// WithDevKeepData keeps the data directory on cleanup
func WithDevKeepData() DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.keepData = true
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures publishes the sample Fixtures
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}

// WithTestUploadPolicy sets the upload policy
func WithTestUploadPolicy(policy questpub.UploadPolicy) TestingOption {
	return func(cfg *testConfig) {
		cfg.uploadPolicy = policy
	}
}

// WithTestClock replaces the service clock
func WithTestClock(now func() time.Time) TestingOption {
	return func(cfg *testConfig) {
		cfg.now = now
	}
}
