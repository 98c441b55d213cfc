package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/judwhite/go-svc"

	"github.com/adcondev/convo-daemon/internal/auth"
	"github.com/adcondev/convo-daemon/internal/config"
	"github.com/adcondev/convo-daemon/internal/queue"
	"github.com/adcondev/convo-daemon/internal/server"
	"github.com/adcondev/convo-daemon/internal/store"
	"github.com/adcondev/convo-daemon/internal/worker"
)

// Store is what the dispatcher needs from the persistence layer
type Store interface {
	store.ParticipantStore
	store.UserStore
}

// Revoker is a revocation list that can also record new revocations
type Revoker interface {
	auth.RevocationList
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// Program implements svc.Service interface
type Program struct {
	// Environment selects a named environment; empty uses the build default.
	Environment string
	// ConfigPath is an optional TOML file applied over the environment.
	ConfigPath string

	cfg        config.Environment
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	httpServer *http.Server
	wsServer   *server.Server
	bcWorker   *worker.Worker
	operators  *auth.OperatorAuth
	revoked    Revoker
	storage    StorageInfo
	closers    []func()
	startTime  time.Time
}

// Init resolves configuration and initializes logging
func (p *Program) Init(_ svc.Environment) error {
	envName := p.Environment
	if envName == "" {
		envName = config.BuildEnvironment
	}
	cfg, err := config.LoadFile(p.ConfigPath, config.GetEnvironment(envName))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg = cfg

	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║   💬 CONVO DAEMON - Realtime Messaging Service             ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")
	log.Printf("[INIT] 🚀 Starting service - Environment: %s", cfg.Name)
	log.Printf("[INIT] 📅 Build: %s %s", config.BuildDate, config.BuildTime)
	if p.ConfigPath != "" {
		log.Printf("[INIT] 📄 Config file: %s", p.ConfigPath)
	}

	return nil
}

// Start connects the backends and starts serving
func (p *Program) Start() error {
	p.startTime = time.Now()
	p.ctx, p.cancel = context.WithCancel(context.Background())
	cfg := p.cfg

	// Operator sessions (bound to service context for clean shutdown)
	p.operators = auth.NewOperatorAuth(p.ctx, cfg.PasswordHashB64)

	st, err := p.openStore(cfg)
	if err != nil {
		p.cancel()
		return err
	}
	p.revoked, err = p.openRevocationList(cfg)
	if err != nil {
		p.closeBackends()
		p.cancel()
		return err
	}

	registry := server.NewRegistry(st)
	dispatcher := server.NewDispatcher(
		registry,
		queue.NewOfflineQueue(cfg.OfflineQueueCapacity),
		st,
		st,
		server.NewFrameRateLimiter(cfg.TypingPerMinute),
	)
	gate := auth.NewGate(auth.NewJWTVerifier(cfg.JWTSecret), p.revoked)

	p.wsServer = server.NewServer(server.Config{
		QueueSize:      cfg.BroadcastQueueCapacity,
		AllowedOrigins: cfg.AllowedOrigins,
		SendTimeout:    cfg.SendTimeout,
		AuthToken:      cfg.AuthToken,
	}, dispatcher, gate)

	p.bcWorker = worker.NewWorker(p.wsServer.JobQueue(), dispatcher, worker.Config{})
	p.bcWorker.Start()

	p.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      p.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		log.Println("┌─────────────────────────────────────────────────────────────┐")
		log.Printf("│ 💬 CONVO DAEMON READY - Environment: %-23s│", cfg.Name)
		log.Printf("│ 🔌 WebSocket: ws://%s/ws%-25s│", cfg.ListenAddr, "")
		log.Printf("│ 📣 Broadcast: http://%s/internal/broadcast%-6s│", cfg.ListenAddr, "")
		log.Printf("│ 💚 Health:    http://%s/health%-20s│", cfg.ListenAddr, "")
		log.Printf("│ 🗄️  Store:     %-44s│", p.storage.Participants)
		log.Printf("│ 🔐 Admin:     %-44v│", p.operators.Enabled())
		log.Println("└─────────────────────────────────────────────────────────────┘")

		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[HTTP] ❌ Error starting HTTP server: %v", err)
		}
	}()

	return nil
}

// Stop stops the service gracefully
func (p *Program) Stop() error {
	log.Println("[STOP] 🛑 Service shutting down...")

	// 1. Cancel context (stops auth cleanup goroutine)
	if p.cancel != nil {
		p.cancel()
	}

	// 2. Close WebSocket clients with going-away
	if p.wsServer != nil {
		p.wsServer.Shutdown()
	}

	// 3. Graceful HTTP shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if p.httpServer != nil {
		if err := p.httpServer.Shutdown(ctx); err != nil {
			log.Printf("[STOP] ⚠️ HTTP shutdown error: %v", err)
		}
	}

	// 4. Drain the broadcast worker, then release the backends
	if p.bcWorker != nil {
		p.bcWorker.Stop()
	}
	p.closeBackends()

	p.wg.Wait()

	uptime := time.Since(p.startTime)
	log.Printf("[STOP] ✅ Service stopped (uptime: %v)", uptime.Round(time.Second))
	return nil
}

func (p *Program) openStore(cfg config.Environment) (Store, error) {
	if cfg.DatabaseURL == "" {
		log.Println("[INIT] ⚠️ No database configured, using in-memory participant store")
		p.storage.Participants = "memory"
		return store.NewMemory(), nil
	}

	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("participant store: %w", err)
	}
	p.closers = append(p.closers, pg.Close)
	p.storage.Participants = "postgres"
	log.Println("[INIT] 🗄️ Connected to PostgreSQL")
	return pg, nil
}

func (p *Program) openRevocationList(cfg config.Environment) (Revoker, error) {
	if cfg.RedisAddr == "" {
		log.Println("[INIT] ⚠️ No redis configured, using in-memory revocation list")
		p.storage.Revocation = "memory"
		return auth.NewMemoryRevocationList(), nil
	}

	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	rl, err := auth.NewRedisRevocationList(ctx, auth.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("revocation list: %w", err)
	}
	p.closers = append(p.closers, func() { _ = rl.Close() })
	p.storage.Revocation = "redis"
	log.Printf("[INIT] 🔑 Connected to redis at %s", cfg.RedisAddr)
	return rl, nil
}

func (p *Program) closeBackends() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}

func initLogging(envConfig config.Environment) error {
	logPath := envConfig.LogPath(programDataDir())
	logDir := filepath.Dir(logPath)

	if err := os.MkdirAll(logDir, 0750); err != nil {
		return err
	}

	if err := InitLogger(logPath, envConfig.Verbose); err != nil {
		return err
	}

	log.Printf("[INIT] 📁 Log file: %s", logPath)
	return nil
}

// programDataDir is PROGRAMDATA on Windows and the user cache dir elsewhere
func programDataDir() string {
	if dir := os.Getenv("PROGRAMDATA"); dir != "" {
		return dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	return os.TempDir()
}
