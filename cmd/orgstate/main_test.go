package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/neomorfeo/orgstate/internal/adapter/auth"
	"github.com/neomorfeo/orgstate/internal/adapter/sqlite"
	"github.com/neomorfeo/orgstate/internal/config"
	"github.com/neomorfeo/orgstate/internal/domain"
)

const testSecret = "cmd-test-secret-with-at-least-32-bytes"

func testConfig(t *testing.T, port string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		HTTP: config.HTTPConfig{
			Port:              port,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Database:  config.DatabaseConfig{Path: dir + "/orgstate.db"},
		Redis:     config.RedisConfig{Channel: "orgstate:invalidations"},
		JWT:       config.JWTConfig{Secret: testSecret, Issuer: "orgstate", TTL: time.Hour},
		Log:       config.LogConfig{Level: "debug", Format: "json", Output: dir + "/orgstate.log"},
		Telemetry: config.TelemetryConfig{ServiceName: "orgstate", Environment: "test", Exporter: "none"},
		Invalidation: config.InvalidationConfig{
			Mode:    "direct",
			Timeout: time.Second,
		},
	}
}

func get(t *testing.T, url, token string) int {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0
	}
	resp.Body.Close()
	return resp.StatusCode
}

// TestRun exercises the real run() function end-to-end: config, SQLite,
// auth, HTTP server and graceful shutdown.
func TestRun(t *testing.T) {
	cfg := testConfig(t, "19876")

	repo, err := sqlite.New(cfg.Database.DSN())
	if err != nil {
		t.Fatalf("database: %v", err)
	}
	if err := sqlite.NewMemberships(repo.DB()).Grant(context.Background(), "alice", "org-1", ""); err != nil {
		t.Fatalf("grant: %v", err)
	}
	repo.Close()

	token, err := auth.New(testSecret, "orgstate", time.Hour).Issue(domain.Actor{ID: "alice"})
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cfg) }()

	// Wait for the HTTP server to become ready.
	url := "http://localhost:19876/api/v1/orgs/org-1/client"
	ready := false
	for range 50 {
		if get(t, url, "") != 0 {
			ready = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !ready {
		t.Fatal("server did not start within 5 seconds")
	}

	if got := get(t, url, ""); got != http.StatusUnauthorized {
		t.Errorf("without token: status = %d, want %d", got, http.StatusUnauthorized)
	}
	if got := get(t, url, token); got != http.StatusOK {
		t.Errorf("with token: status = %d, want %d", got, http.StatusOK)
	}
	if got := get(t, "http://localhost:19876/api/v1/orgs/org-2/client", token); got != http.StatusForbidden {
		t.Errorf("other org: status = %d, want %d", got, http.StatusForbidden)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not exit within 10 seconds")
	}
}

// TestRun_InvalidDB verifies run() returns an error for an invalid database path.
func TestRun_InvalidDB(t *testing.T) {
	cfg := testConfig(t, "19877")
	cfg.Database.Path = "/nonexistent/path/db.sqlite"

	if err := run(context.Background(), cfg); err == nil {
		t.Fatal("expected error for invalid database path, got nil")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("ORGSTATE_JWT_SECRET", testSecret)

	out, err := execute(t, "token", "--actor", "alice", "--name", "Alice")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	actor, err := auth.New(testSecret, "orgstate", time.Hour).Parse(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parsing issued token: %v", err)
	}
	if actor.ID != "alice" || actor.Name != "Alice" {
		t.Errorf("actor = %+v, want alice/Alice", actor)
	}
}

func TestTokenCommand_MissingSecret(t *testing.T) {
	t.Setenv("ORGSTATE_JWT_SECRET", "")

	if _, err := execute(t, "token", "--actor", "alice"); err == nil {
		t.Fatal("expected error without a signing secret")
	}
}

func TestGrantAndRevokeCommands(t *testing.T) {
	dbPath := t.TempDir() + "/admin.db"
	t.Setenv("ORGSTATE_JWT_SECRET", testSecret)
	t.Setenv("ORGSTATE_DATABASE_PATH", dbPath)

	if _, err := execute(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	out, err := execute(t, "grant", "--actor", "bob", "--org", "org-9", "--role", "admin")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !strings.Contains(out, "granted bob access to org-9") {
		t.Errorf("grant output = %q", out)
	}

	hasAccess := func() bool {
		t.Helper()
		repo, err := sqlite.New((config.DatabaseConfig{Path: dbPath}).DSN())
		if err != nil {
			t.Fatalf("database: %v", err)
		}
		defer repo.Close()
		ok, err := sqlite.NewMemberships(repo.DB()).HasAccess(context.Background(), domain.Actor{ID: "bob"}, "org-9")
		if err != nil {
			t.Fatalf("has access: %v", err)
		}
		return ok
	}

	if !hasAccess() {
		t.Fatal("bob should have access after grant")
	}

	if _, err := execute(t, "revoke", "--actor", "bob", "--org", "org-9"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if hasAccess() {
		t.Error("bob should not have access after revoke")
	}
}
