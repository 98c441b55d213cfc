package daemon

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/adcondev/convo-daemon/internal/auth"
	"github.com/adcondev/convo-daemon/internal/config"
	"github.com/adcondev/convo-daemon/internal/server"
	"github.com/adcondev/convo-daemon/internal/worker"
)

// degradedUtilization marks the broadcast queue as under pressure
const degradedUtilization = 90.0

// OnlineUser is one entry of the admin stats listing
type OnlineUser struct {
	UserID        string   `json:"userId"`
	Conversations []string `json:"conversationIds"`
	Queued        int      `json:"queued"`
}

// AdminStats is the body of GET /admin/stats
type AdminStats struct {
	Health    HealthResponse         `json:"health"`
	Users     []OnlineUser           `json:"users"`
	Operators []auth.OperatorSession `json:"operators"`
	Verbose   bool                   `json:"verbose"`
}

// routes builds the HTTP mux for the running program
func (p *Program) routes() http.Handler {
	mux := http.NewServeMux()

	// ── PUBLIC ROUTES ─────────────────────────────────────────
	mux.HandleFunc("/ws", p.wsServer.HandleWebSocket) // token validated at handshake
	mux.HandleFunc("/health", p.handleHealth)         // public for monitoring tools

	// ── INTERNAL (bearer AuthToken) ───────────────────────────
	mux.HandleFunc("/internal/broadcast", p.wsServer.HandleBroadcast)

	// ── ADMIN (session required) ──────────────────────────────
	mux.HandleFunc("/admin/login", handleLogin(p.operators))
	mux.HandleFunc("/admin/logout", handleLogout(p.operators))
	mux.HandleFunc("/admin/stats", requireAuth(p.operators, p.handleStats))
	mux.HandleFunc("/admin/revoke", requireAuth(p.operators, p.handleRevoke))
	mux.HandleFunc("/admin/verbose", requireAuth(p.operators, handleVerbose))

	return mux
}

func (p *Program) health() HealthResponse {
	return buildHealth(p.wsServer, p.bcWorker.Stats(), p.storage, p.startTime)
}

func buildHealth(srv *server.Server, stats worker.Statistics, storage StorageInfo, startTime time.Time) HealthResponse {
	current, capacity := srv.QueueStatus()

	var utilization float64
	if capacity > 0 {
		utilization = float64(current) / float64(capacity) * 100
	}

	registry := srv.Dispatcher().Registry()
	response := HealthResponse{
		Status: "ok",
		Connections: ConnectionStatus{
			Online: registry.OnlineCount(),
			Rooms:  registry.RoomCount(),
		},
		OfflineQueue: srv.Dispatcher().Queue().Stats(),
		Jobs: QueueStatus{
			Current:     current,
			Capacity:    capacity,
			Utilization: utilization,
		},
		Worker:  stats,
		Storage: storage,
		Build: BuildInfo{
			Env:  config.BuildEnvironment,
			Date: config.BuildDate,
			Time: config.BuildTime,
		},
		Uptime: int(time.Since(startTime).Seconds()),
	}

	if !stats.IsRunning || utilization >= degradedUtilization {
		response.Status = "degraded"
	}
	return response
}

func (p *Program) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, p.health())
}

func (p *Program) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, AdminStats{
		Health:    p.health(),
		Users:     onlineUsers(p.wsServer.Dispatcher()),
		Operators: p.operators.Sessions(),
		Verbose:   GetVerbose(),
	})
}

// onlineUsers lists connected users sorted by id
func onlineUsers(d *server.Dispatcher) []OnlineUser {
	registry := d.Registry()
	users := make([]OnlineUser, 0, registry.OnlineCount())
	registry.ForEach(func(c *server.ConnectedClient) {
		users = append(users, OnlineUser{
			UserID:        c.UserID,
			Conversations: registry.Conversations(c.UserID),
			Queued:        d.Queue().Len(c.UserID),
		})
	})
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// handleRevoke adds a token to the revocation list: POST token=<jwt>&ttl=<duration>
func (p *Program) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := r.FormValue("token")
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	var ttl time.Duration
	if raw := r.FormValue("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
		ttl = d
	}

	if err := p.revoked.Revoke(r.Context(), token, ttl); err != nil {
		log.Printf("[AUTH] ❌ Revocation failed: %v", err)
		http.Error(w, "revocation failed", http.StatusBadGateway)
		return
	}
	log.Printf("[AUDIT] TOKEN_REVOKED | IP=%s | token=%s", r.RemoteAddr, auth.HashToken(token)[:19])
	w.WriteHeader(http.StatusNoContent)
}

// handleVerbose toggles log verbosity: POST on=true|false
func handleVerbose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	on, err := strconv.ParseBool(r.FormValue("on"))
	if err != nil {
		http.Error(w, "on must be a boolean", http.StatusBadRequest)
		return
	}
	SetVerbose(on)
	writeJSON(w, http.StatusOK, map[string]bool{"verbose": on})
}

// requireAuth wraps a handler with session validation.
// If operator auth is disabled (no hash), all requests pass through.
func requireAuth(operators *auth.OperatorAuth, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !operators.Enabled() {
			next(w, r)
			return
		}
		if _, ok := operators.Session(r); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// handleLogin processes POST /admin/login.
func handleLogin(operators *auth.OperatorAuth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s, err := operators.Login(w, r.RemoteAddr, r.FormValue("password"))
		switch {
		case errors.Is(err, auth.ErrLockedOut):
			log.Printf("[AUDIT] LOGIN_BLOCKED | IP=%s | reason=lockout", auth.RemoteIP(r.RemoteAddr))
			http.Error(w, "Too many attempts", http.StatusTooManyRequests)
		case err != nil:
			log.Printf("[AUDIT] LOGIN_FAILED | IP=%s", auth.RemoteIP(r.RemoteAddr))
			http.Error(w, "Invalid password", http.StatusUnauthorized)
		default:
			log.Printf("[AUDIT] LOGIN_SUCCESS | IP=%s | expires=%s", s.RemoteIP, s.ExpiresAt.Format(time.RFC3339))
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

// handleLogout clears the session.
func handleLogout(operators *auth.OperatorAuth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operators.Logout(w, r)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
