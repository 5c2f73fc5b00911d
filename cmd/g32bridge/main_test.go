package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/g32-bridge/internal/bridges/g32"
	"github.com/nerrad567/g32-bridge/internal/cloud"
	"github.com/nerrad567/g32-bridge/internal/device"
	"github.com/nerrad567/g32-bridge/internal/diagnostics"
	"github.com/nerrad567/g32-bridge/internal/infrastructure/config"
	"github.com/nerrad567/g32-bridge/internal/infrastructure/database"
	"github.com/nerrad567/g32-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/g32-bridge/migrations"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("G32_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want a config loading error", err)
	}
}

// TestRun_MissingCredentials verifies run refuses a config without an account.
func TestRun_MissingCredentials(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "`+filepath.Join(t.TempDir(), "g32.db")+`"
`)
	t.Setenv("G32_CONFIG", configPath)
	t.Setenv("G32_ACCOUNT_EMAIL", "")
	t.Setenv("G32_ACCOUNT_PASSWORD", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without account credentials")
	}
	if !strings.Contains(err.Error(), "account.email") {
		t.Errorf("run() error = %v, want account.email in message", err)
	}
}

// TestRun_UnusableDatabasePath verifies run fails before touching the
// network when the database cannot be created.
func TestRun_UnusableDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatalf("failed to write blocker file: %v", err)
	}

	configPath := writeConfig(t, `
account:
  email: "cook@example.com"
  password: "secret"

database:
  path: "`+filepath.Join(blocker, "data", "g32.db")+`"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
  qos: 1

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 8090
`)
	t.Setenv("G32_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with an unusable database path")
	}
	if !strings.Contains(err.Error(), "opening database") {
		t.Errorf("run() error = %v, want a database error", err)
	}
}

// TestGetConfigPath_Default verifies default config path is returned.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("G32_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies env var overrides default.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	customPath := "/custom/path/config.yaml"
	t.Setenv("G32_CONFIG", customPath)

	if path := getConfigPath(); path != customPath {
		t.Errorf("getConfigPath() = %q, want %q", path, customPath)
	}
}

// ─── Startup helpers ──────────────────────────────────────────────────

func TestPresenceBindings(t *testing.T) {
	cfg := &config.Config{Grills: map[string]config.GrillConfig{
		"G32A": {PresenceTopic: "home/alice", HomePayload: "here"},
		"G32B": {AutoConnect: true},
	}}

	bindings := presenceBindings(cfg)
	if len(bindings) != 1 {
		t.Fatalf("presenceBindings() returned %d bindings, want 1", len(bindings))
	}
	b := bindings[0]
	if b.Serial != "G32A" || b.Topic != "home/alice" || b.HomePayload != "here" {
		t.Errorf("binding = %+v", b)
	}
}

func TestRetryPolicy(t *testing.T) {
	p := retryPolicy(config.RetryConfig{
		RapidAttempts: 5,
		RapidDelay:    2,
		InitialDelay:  30,
		MaxDelay:      300,
		GiveUpAfter:   1800,
	})

	want := g32.Policy{
		RapidAttempts: 5,
		RapidDelay:    2 * time.Second,
		InitialDelay:  30 * time.Second,
		MaxDelay:      5 * time.Minute,
		GiveUpAfter:   30 * time.Minute,
	}
	if p != want {
		t.Errorf("retryPolicy() = %+v, want %+v", p, want)
	}
}

func TestCounterSnapshot(t *testing.T) {
	values := []g32.CounterValue{{Serial: "G32A", Counter: g32.CounterLoginCalls, Value: 3}}

	got, err := counterSnapshot(values).LoadCounters(context.Background())
	if err != nil {
		t.Fatalf("LoadCounters() error = %v", err)
	}
	if len(got) != 1 || got[0].Value != 3 {
		t.Errorf("LoadCounters() = %+v", got)
	}
}

func TestAutoConnect_FiltersUnknownGrills(t *testing.T) {
	registry := newTestRegistry(t)
	if err := registry.Replace(context.Background(), []device.Grill{testGrill("G32KNOWN")}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	cfg := &config.Config{Grills: map[string]config.GrillConfig{
		"G32KNOWN":  {AutoConnect: true},
		"G32GONE":   {AutoConnect: true},
		"G32MANUAL": {},
	}}

	got := autoConnect(cfg, registry, logging.Default())
	if len(got) != 1 || got[0] != "G32KNOWN" {
		t.Errorf("autoConnect() = %v, want [G32KNOWN]", got)
	}
}

// ─── Discovery ────────────────────────────────────────────────────────

func TestDiscoverGrills_ReplacesCatalogue(t *testing.T) {
	api := newFakeCloud(t, http.StatusOK)
	registry := newTestRegistry(t)
	client := cloud.NewClient(cloud.Config{BaseURL: api.URL, Email: "cook@example.com", Password: "secret"})

	if err := discoverGrills(context.Background(), client, registry, logging.Default()); err != nil {
		t.Fatalf("discoverGrills() error = %v", err)
	}

	g, err := registry.Get("G32A1B2C3D4")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if g.Nickname != "Patio" {
		t.Errorf("Nickname = %q, want %q", g.Nickname, "Patio")
	}
}

func TestDiscoverGrills_FallsBackToStoredCatalogue(t *testing.T) {
	db := openTestDB(t)

	// Seed the store as a previous run would have.
	seed := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if err := seed.Replace(context.Background(), []device.Grill{testGrill("G32STORED")}); err != nil {
		t.Fatalf("seeding catalogue: %v", err)
	}

	api := newFakeCloud(t, http.StatusUnauthorized)
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	client := cloud.NewClient(cloud.Config{BaseURL: api.URL, Email: "cook@example.com", Password: "wrong"})

	if err := discoverGrills(context.Background(), client, registry, logging.Default()); err != nil {
		t.Fatalf("discoverGrills() error = %v", err)
	}
	if registry.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", registry.Count())
	}
	if _, err := registry.Get("G32STORED"); err != nil {
		t.Errorf("Get(G32STORED) error = %v", err)
	}
}

// ─── Counters ─────────────────────────────────────────────────────────

func TestStartCounters_PersistsDiscoveryCalls(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := diagnostics.NewSQLiteRepository(db.DB)

	// A previous run made ten calls of each kind.
	err := repo.SaveCounters(ctx, []g32.CounterValue{
		{Counter: g32.CounterLoginCalls, Value: 10},
		{Counter: g32.CounterGrillsCalls, Value: 10},
	})
	if err != nil {
		t.Fatalf("SaveCounters() error = %v", err)
	}
	counters, err := repo.LoadCounters(ctx)
	if err != nil {
		t.Fatalf("LoadCounters() error = %v", err)
	}

	api := newFakeCloud(t, http.StatusOK)
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	client := cloud.NewClient(cloud.Config{BaseURL: api.URL, Email: "cook@example.com", Password: "secret"})
	if err := discoverGrills(ctx, client, registry, logging.Default()); err != nil {
		t.Fatalf("discoverGrills() error = %v", err)
	}

	manager, err := g32.NewManager(registry.List(), g32.ManagerConfig{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer manager.Close(ctx) //nolint:errcheck // test cleanup

	persister, err := startCounters(ctx, manager, client, repo, counters, logging.Default())
	if err != nil {
		t.Fatalf("startCounters() error = %v", err)
	}
	persister.Stop()

	stored, err := repo.LoadCounters(ctx)
	if err != nil {
		t.Fatalf("LoadCounters() error = %v", err)
	}
	got := make(map[g32.Counter]uint64)
	for _, v := range stored {
		if v.Serial == g32.GlobalKey {
			got[v.Counter] = v.Value
		}
	}
	if got[g32.CounterLoginCalls] != 11 {
		t.Errorf("stored login calls = %d, want 11", got[g32.CounterLoginCalls])
	}
	if got[g32.CounterGrillsCalls] != 11 {
		t.Errorf("stored grills calls = %d, want 11", got[g32.CounterGrillsCalls])
	}
}

// ─── Helpers ──────────────────────────────────────────────────────────

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "g32.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func newTestRegistry(t *testing.T) *device.Registry {
	t.Helper()
	return device.NewRegistry(device.NewSQLiteRepository(openTestDB(t).DB))
}

func testGrill(serial string) device.Grill {
	return device.Grill{Serial: serial, PopKey: "pop-" + serial}
}

// newFakeCloud serves the account API. loginStatus other than 200
// rejects the login.
func newFakeCloud(t *testing.T, loginStatus int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, _ *http.Request) {
		if loginStatus != http.StatusOK {
			w.WriteHeader(loginStatus)
			return
		}
		_, _ = w.Write([]byte(`{"accessToken": "opaque-token"}`))
	})
	mux.HandleFunc("GET /v2/grills", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"serialNumber": "G32A1B2C3D4", "popKey": "pop-secret", "nickname": "Patio"}]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
