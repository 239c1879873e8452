package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// clearEnv unsets variables that would leak from the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"XPECTRUM_API_BASE_URL", "DIFY_API_BASE_URL",
		"XPECTRUM_API_KEY", "DIFY_API_KEY", "PORT",
		"CHATRELAY_SERVER__PORT", "CHATRELAY_UPSTREAM__API_KEY", "CHATRELAY_UPSTREAM__BASE_URL",
		"CHATRELAY_STORAGE__TYPE", "CHATRELAY_SERVER__ALLOWED_ORIGINS", "CHATRELAY_CHAT__TURN_TIMEOUT",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Config{
		Server:    ServerConfig{Port: 3001, RequestTimeout: 90 * time.Second, AllowedOrigins: []string{"*"}},
		Upstream:  UpstreamConfig{BaseURL: "https://api.dify.ai/v1"},
		Chat:      ChatConfig{TurnTimeout: 60 * time.Second, MaxMessageLength: 2000},
		Storage:   StorageConfig{Type: "memory", SQLite: SQLiteConfig{Path: "chatrelay.db"}},
		Telemetry: TelemetryConfig{ServiceName: "chatrelay"},
		Tokens:    TokensConfig{Encoding: "cl100k_base"},
	}
	if diff := cmp.Diff(want, *cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATBOT_SECRET", "from-env")
	t.Setenv("CHATRELAY_SERVER__PORT", "9000")
	t.Setenv("CHATRELAY_SERVER__ALLOWED_ORIGINS", "https://a.example, https://b.example")

	path := writeFile(t, `
server:
  port: 8080
upstream:
  base_url: https://chatbot.example/v1
  api_key: ${CHATBOT_SECRET}
chat:
  turn_timeout: 30s
storage:
  type: sqlite
  sqlite:
    path: /var/lib/chatrelay.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want env override 9000", cfg.Server.Port)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins); diff != "" {
		t.Errorf("AllowedOrigins mismatch (-want +got):\n%s", diff)
	}
	if cfg.Upstream.APIKey != "from-env" {
		t.Errorf("APIKey = %q", cfg.Upstream.APIKey)
	}
	if cfg.Upstream.BaseURL != "https://chatbot.example/v1" {
		t.Errorf("BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Chat.TurnTimeout != 30*time.Second {
		t.Errorf("TurnTimeout = %v", cfg.Chat.TurnTimeout)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/var/lib/chatrelay.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
}

func TestLoad_LegacyEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantURL  string
		wantKey  string
		wantPort int
	}{
		{
			name:     "xpectrum preferred",
			env:      map[string]string{"XPECTRUM_API_BASE_URL": "https://x.example/v1", "DIFY_API_BASE_URL": "https://d.example/v1", "XPECTRUM_API_KEY": "xk", "DIFY_API_KEY": "dk"},
			wantURL:  "https://x.example/v1",
			wantKey:  "xk",
			wantPort: 3001,
		},
		{
			name:     "dify fallback",
			env:      map[string]string{"DIFY_API_BASE_URL": "https://d.example/v1", "DIFY_API_KEY": "dk", "PORT": "4000"},
			wantURL:  "https://d.example/v1",
			wantKey:  "dk",
			wantPort: 4000,
		},
		{
			name:     "prefixed variables win",
			env:      map[string]string{"CHATRELAY_UPSTREAM__API_KEY": "new", "DIFY_API_KEY": "old"},
			wantURL:  "https://api.dify.ai/v1",
			wantKey:  "new",
			wantPort: 3001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Upstream.BaseURL != tt.wantURL {
				t.Errorf("BaseURL = %q, want %q", cfg.Upstream.BaseURL, tt.wantURL)
			}
			if cfg.Upstream.APIKey != tt.wantKey {
				t.Errorf("APIKey = %q, want %q", cfg.Upstream.APIKey, tt.wantKey)
			}
			if cfg.Server.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.Server.Port, tt.wantPort)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown storage", body: "storage:\n  type: redis\n"},
		{name: "bad port", body: "server:\n  port: 70000\n"},
		{name: "bad timeout", body: "chat:\n  turn_timeout: soon\n"},
		{name: "malformed yaml", body: "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := Load(writeFile(t, tt.body)); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple substitution", input: "${TEST_VAR}", want: "test-value"},
		{name: "substitution in string", input: "prefix-${TEST_VAR}-suffix", want: "prefix-test-value-suffix"},
		{name: "no substitution", input: "plain-string", want: "plain-string"},
		{name: "undefined var", input: "${UNDEFINED_VAR_FOR_TEST}", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "upstream:\n  api_key: first\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- NewWatcher(path, nil).Run(ctx, func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// Keep rewriting until the watcher has registered and reported.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var got *Config
	for got == nil {
		select {
		case c := <-changes:
			// A reload can observe the file mid-write.
			if c.Upstream.APIKey == "second" {
				got = c
			}
		case <-tick.C:
			if err := os.WriteFile(path, []byte("upstream:\n  api_key: second\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
