package daemon

import (
	"github.com/adcondev/convo-daemon/internal/queue"
	"github.com/adcondev/convo-daemon/internal/worker"
)

// HealthResponse representa el estado de salud del servicio de mensajería.
type HealthResponse struct {
	Status       string            `json:"status"`
	Connections  ConnectionStatus  `json:"connections"`
	OfflineQueue queue.Stats       `json:"offline_queue"`
	Jobs         QueueStatus       `json:"jobs"`
	Worker       worker.Statistics `json:"worker"`
	Storage      StorageInfo       `json:"storage"`
	Build        BuildInfo         `json:"build"`
	Uptime       int               `json:"uptime_seconds"`
}

// ConnectionStatus resume los clientes conectados y las salas activas.
type ConnectionStatus struct {
	Online int `json:"online"`
	Rooms  int `json:"rooms"`
}

// QueueStatus representa el estado de la cola de difusiones internas.
type QueueStatus struct {
	Current     int     `json:"current"`
	Capacity    int     `json:"capacity"`
	Utilization float64 `json:"utilization"`
}

// StorageInfo indica qué backends están activos.
type StorageInfo struct {
	Participants string `json:"participants"`
	Revocation   string `json:"revocation"`
}

// BuildInfo contiene información sobre la compilación del servicio.
type BuildInfo struct {
	Env  string `json:"env"`
	Date string `json:"date"`
	Time string `json:"time"`
}
