// Package config defines environment-specific settings for the Convo Servicio.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Build variables, injected at compile time
var (
	BuildEnvironment = "local"
	BuildDate        = "unknown"
	BuildTime        = "unknown"
	// ServiceName is used for logging and as part of the log file path.
	ServiceName = "ConvoServicio"
	// PasswordHashB64 is a base64-encoded bcrypt hash injected via ldflags.
	// If empty, admin authentication is disabled (dev mode).
	PasswordHashB64 = ""
	// AuthToken guards the internal broadcast endpoint.
	// If empty, broadcast requests are accepted without token validation.
	AuthToken = ""
	// JWTSecret is the HMAC key used to verify client bearer tokens.
	JWTSecret = DevJWTSecret
	// ServerPort is the default port for the service, can be overridden by environment config.
	ServerPort = "8770"
	// AllowedOrigins is a comma-separated list of allowed origins injected via ldflags.
	// Example: "https://app.example.com,http://localhost:*"
	AllowedOrigins = ""
)

// DevJWTSecret is the publicly known development signing key.
const DevJWTSecret = "dev-secret-change-me"

// ErrInsecureConfig is returned by Validate for secrets unfit for a deployed environment.
var ErrInsecureConfig = errors.New("insecure configuration")

// Environment holds environment-specific settings
type Environment struct {
	// Identificación
	Name        string
	ServiceName string
	// RequireSecrets rejects dev-mode secrets; set for every non-local environment.
	RequireSecrets bool

	// Red
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	SendTimeout  time.Duration

	// Colas
	BroadcastQueueCapacity int
	OfflineQueueCapacity   int
	TypingPerMinute        int

	// Logging
	Verbose bool

	// Security
	AllowedOrigins  []string
	JWTSecret       string
	AuthToken       string
	PasswordHashB64 string

	// Storage
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LogPath returns the full log file path for this environment.
// Uses the convention: <programData>/<ServiceName>/<ServiceName>.log
func (e Environment) LogPath(programData string) string {
	return filepath.Join(programData, e.ServiceName, e.ServiceName+".log")
}

// environments defines available deployment configurations
var environments = map[string]Environment{
	"remote": {
		Name:                   "REMOTO",
		ServiceName:            ServiceName,
		RequireSecrets:         true,
		ListenAddr:             "0.0.0.0:" + ServerPort,
		ReadTimeout:            15 * time.Second,
		WriteTimeout:           15 * time.Second,
		IdleTimeout:            60 * time.Second,
		SendTimeout:            5 * time.Second,
		BroadcastQueueCapacity: 500,
		OfflineQueueCapacity:   100,
		TypingPerMinute:        120,
		Verbose:                false,
		AllowedOrigins:         nil,
	},
	"local": {
		Name:                   "LOCAL",
		ServiceName:            ServiceName,
		ListenAddr:             "localhost:" + ServerPort,
		ReadTimeout:            30 * time.Second,
		WriteTimeout:           30 * time.Second,
		IdleTimeout:            120 * time.Second,
		SendTimeout:            5 * time.Second,
		BroadcastQueueCapacity: 100,
		OfflineQueueCapacity:   100,
		TypingPerMinute:        120,
		Verbose:                true,
		// Allow all in local dev mode for convenience, but can be overridden
		AllowedOrigins: []string{"*"},
	},
}

// GetEnvironment returns config for the specified environment.
func GetEnvironment(env string) Environment {
	cfg, ok := environments[env]
	if !ok {
		log.Printf("[!] Unknown environment '%s', defaulting to 'local'", env)
		cfg = environments["local"]
	}

	// Override from ldflags if provided
	if AllowedOrigins != "" {
		cfg.AllowedOrigins = strings.Split(AllowedOrigins, ",")
	}
	cfg.JWTSecret = JWTSecret
	cfg.AuthToken = AuthToken
	cfg.PasswordHashB64 = PasswordHashB64

	return cfg
}

// Validate rejects the development JWT secret and an empty AuthToken
// when the environment requires real secrets.
func (e Environment) Validate() error {
	if !e.RequireSecrets {
		return nil
	}
	switch {
	case e.JWTSecret == "" || e.JWTSecret == DevJWTSecret:
		return fmt.Errorf("%w: environment %s needs a jwt_secret other than the development default", ErrInsecureConfig, e.Name)
	case e.AuthToken == "":
		return fmt.Errorf("%w: environment %s needs an auth_token for the internal broadcast endpoint", ErrInsecureConfig, e.Name)
	}
	return nil
}

// File is the optional TOML override file.
type File struct {
	Server   FileServer   `toml:"server"`
	Security FileSecurity `toml:"security"`
	Database FileDatabase `toml:"database"`
	Redis    FileRedis    `toml:"redis"`
}

// FileServer holds network and queue overrides
type FileServer struct {
	ListenAddr             string `toml:"listen_addr"`
	ReadTimeout            string `toml:"read_timeout"`
	WriteTimeout           string `toml:"write_timeout"`
	IdleTimeout            string `toml:"idle_timeout"`
	SendTimeout            string `toml:"send_timeout"`
	BroadcastQueueCapacity int    `toml:"broadcast_queue_capacity"`
	OfflineQueueCapacity   int    `toml:"offline_queue_capacity"`
	TypingPerMinute        int    `toml:"typing_per_minute"`
	Verbose                *bool  `toml:"verbose"`
}

// FileSecurity holds credential overrides
type FileSecurity struct {
	AllowedOrigins  []string `toml:"allowed_origins"`
	JWTSecret       string   `toml:"jwt_secret"`
	AuthToken       string   `toml:"auth_token"`
	PasswordHashB64 string   `toml:"password_hash_b64"`
}

// FileDatabase points at the marketplace database
type FileDatabase struct {
	URL string `toml:"url"`
}

// FileRedis points at the token revocation list
type FileRedis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// LoadFile applies the TOML file at path on top of env. A missing file is not an error.
func LoadFile(path string, env Environment) (Environment, error) {
	if path == "" {
		return env, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return env, fmt.Errorf("cannot read config file: %w", err)
	}

	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return env, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return f.Apply(env)
}

// Apply overrides every non-zero field of f onto env.
func (f File) Apply(env Environment) (Environment, error) {
	s := f.Server
	if s.ListenAddr != "" {
		env.ListenAddr = s.ListenAddr
	}
	durations := []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{s.ReadTimeout, &env.ReadTimeout, "read_timeout"},
		{s.WriteTimeout, &env.WriteTimeout, "write_timeout"},
		{s.IdleTimeout, &env.IdleTimeout, "idle_timeout"},
		{s.SendTimeout, &env.SendTimeout, "send_timeout"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return env, fmt.Errorf("server.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if s.BroadcastQueueCapacity > 0 {
		env.BroadcastQueueCapacity = s.BroadcastQueueCapacity
	}
	if s.OfflineQueueCapacity > 0 {
		env.OfflineQueueCapacity = s.OfflineQueueCapacity
	}
	if s.TypingPerMinute > 0 {
		env.TypingPerMinute = s.TypingPerMinute
	}
	if s.Verbose != nil {
		env.Verbose = *s.Verbose
	}

	if len(f.Security.AllowedOrigins) > 0 {
		env.AllowedOrigins = f.Security.AllowedOrigins
	}
	if f.Security.JWTSecret != "" {
		env.JWTSecret = f.Security.JWTSecret
	}
	if f.Security.AuthToken != "" {
		env.AuthToken = f.Security.AuthToken
	}
	if f.Security.PasswordHashB64 != "" {
		env.PasswordHashB64 = f.Security.PasswordHashB64
	}

	if f.Database.URL != "" {
		env.DatabaseURL = f.Database.URL
	}
	if f.Redis.Addr != "" {
		env.RedisAddr = f.Redis.Addr
		env.RedisPassword = f.Redis.Password
		env.RedisDB = f.Redis.DB
	}
	return env, nil
}
