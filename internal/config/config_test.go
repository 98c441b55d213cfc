package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestGetEnvironment(t *testing.T) {
	// Table-driven test cases
	tests := []struct {
		name          string
		inputEnv      string
		expectedName  string
		expectedAddr  string
		expectedOffQ  int
		expectDefault bool // If true, we expect the fallback (local) config
	}{
		{
			name:         "Get local environment",
			inputEnv:     "local",
			expectedName: "LOCAL",
			expectedAddr: "localhost:" + ServerPort,
			expectedOffQ: 100,
		},
		{
			name:         "Get remote environment",
			inputEnv:     "remote",
			expectedName: "REMOTO",
			expectedAddr: "0.0.0.0:" + ServerPort,
			expectedOffQ: 100,
		},
		{
			name:          "Get unknown environment (defaults to local)",
			inputEnv:      "unknown_env",
			expectedName:  "LOCAL",
			expectedAddr:  "localhost:" + ServerPort,
			expectedOffQ:  100,
			expectDefault: true,
		},
		{
			name:          "Get empty environment (defaults to local)",
			inputEnv:      "",
			expectedName:  "LOCAL",
			expectedAddr:  "localhost:" + ServerPort,
			expectedOffQ:  100,
			expectDefault: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetEnvironment(tt.inputEnv)

			if got.Name != tt.expectedName {
				t.Errorf("GetEnvironment(%q).Name = %q; want %q", tt.inputEnv, got.Name, tt.expectedName)
			}
			if got.ListenAddr != tt.expectedAddr {
				t.Errorf("GetEnvironment(%q).ListenAddr = %q; want %q", tt.inputEnv, got.ListenAddr, tt.expectedAddr)
			}
			if got.OfflineQueueCapacity != tt.expectedOffQ {
				t.Errorf("GetEnvironment(%q).OfflineQueueCapacity = %d; want %d", tt.inputEnv, got.OfflineQueueCapacity, tt.expectedOffQ)
			}
			if got.ReadTimeout == 0 || got.WriteTimeout == 0 || got.SendTimeout == 0 {
				t.Errorf("GetEnvironment(%q) has a zero timeout: %+v", tt.inputEnv, got)
			}
			if got.JWTSecret != JWTSecret {
				t.Errorf("GetEnvironment(%q).JWTSecret not taken from build variable", tt.inputEnv)
			}

			if tt.expectDefault {
				localCfg := environments["local"]
				if got.Name != localCfg.Name {
					t.Errorf("GetEnvironment(%q) did not return local config as default", tt.inputEnv)
				}
			}
		})
	}
}

func TestEnvironment_LogPath(t *testing.T) {
	env := Environment{
		ServiceName: "TestService",
	}
	programData := "/var/lib"
	expected := filepath.Join(programData, "TestService", "TestService.log")

	got := env.LogPath(programData)

	if got != expected {
		t.Errorf("LogPath(%q) = %q; want %q", programData, got, expected)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "convo.toml")
	content := `
[server]
listen_addr = "127.0.0.1:9999"
send_timeout = "2s"
offline_queue_capacity = 25
verbose = false

[security]
allowed_origins = ["https://app.example.com"]
jwt_secret = "s3cret"

[database]
url = "postgres://convo@localhost/marketplace"

[redis]
addr = "localhost:6379"
db = 2
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := LoadFile(path, GetEnvironment("local"))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	if got.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q", got.ListenAddr)
	}
	if got.SendTimeout != 2*time.Second {
		t.Errorf("SendTimeout = %v; want 2s", got.SendTimeout)
	}
	if got.OfflineQueueCapacity != 25 {
		t.Errorf("OfflineQueueCapacity = %d; want 25", got.OfflineQueueCapacity)
	}
	if got.Verbose {
		t.Error("Verbose should be overridden to false")
	}
	if !reflect.DeepEqual(got.AllowedOrigins, []string{"https://app.example.com"}) {
		t.Errorf("AllowedOrigins = %v", got.AllowedOrigins)
	}
	if got.JWTSecret != "s3cret" || got.DatabaseURL == "" || got.RedisAddr != "localhost:6379" || got.RedisDB != 2 {
		t.Errorf("security/storage overrides not applied: %+v", got)
	}
	// Untouched fields keep environment defaults
	if got.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v; want environment default", got.ReadTimeout)
	}
}

func TestLoadFileMissingAndInvalid(t *testing.T) {
	base := GetEnvironment("local")

	got, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"), base)
	if err != nil || got.ListenAddr != base.ListenAddr {
		t.Errorf("missing file: got %v, %v", got.ListenAddr, err)
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	_ = os.WriteFile(bad, []byte("[server]\nsend_timeout = \"soon\"\n"), 0600)
	if _, err := LoadFile(bad, base); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestEnvironmentValidate(t *testing.T) {
	remote := GetEnvironment("remote")
	remote.JWTSecret = DevJWTSecret
	remote.AuthToken = ""

	tests := []struct {
		name    string
		mutate  func(e *Environment)
		env     Environment
		wantErr bool
	}{
		{
			name:    "Local accepts development secrets",
			env:     GetEnvironment("local"),
			mutate:  func(e *Environment) { e.JWTSecret = DevJWTSecret; e.AuthToken = "" },
			wantErr: false,
		},
		{
			name:    "Remote rejects default secret",
			env:     remote,
			mutate:  func(e *Environment) { e.AuthToken = "internal" },
			wantErr: true,
		},
		{
			name:    "Remote rejects empty secret",
			env:     remote,
			mutate:  func(e *Environment) { e.JWTSecret = ""; e.AuthToken = "internal" },
			wantErr: true,
		},
		{
			name:    "Remote rejects empty auth token",
			env:     remote,
			mutate:  func(e *Environment) { e.JWTSecret = "prod-secret" },
			wantErr: true,
		},
		{
			name:    "Remote with real secrets",
			env:     remote,
			mutate:  func(e *Environment) { e.JWTSecret = "prod-secret"; e.AuthToken = "internal" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := tt.env
			tt.mutate(&env)
			err := env.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInsecureConfig) {
				t.Errorf("Validate() error = %v; want ErrInsecureConfig", err)
			}
		})
	}
}

func TestRemoteDefaultsAreRejected(t *testing.T) {
	if JWTSecret != DevJWTSecret || AuthToken != "" {
		t.Skip("build variables override the development defaults")
	}
	if err := GetEnvironment("remote").Validate(); !errors.Is(err, ErrInsecureConfig) {
		t.Errorf("remote with build defaults: Validate() = %v; want ErrInsecureConfig", err)
	}
}
