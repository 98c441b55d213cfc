// Package daemon contiene la lógica del servicio: arranque, rutas HTTP y logging.
package daemon

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log rotation limits
const (
	maxLogSizeMB  = 5
	maxLogBackups = 3
	maxLogAgeDays = 28
)

// Logger state
var (
	logConfig    = struct{ Verbose bool }{Verbose: true}
	logConfigMux sync.RWMutex
	logOutput    io.Writer
	logOutputMu  sync.Mutex
)

// Non-critical prefixes (filtered when verbose=false)
var nonCriticalPrefixes = []string{
	"[WS] ➕ Client connected",
	"[WS] ➖ Client disconnected",
	"[WS] Read ended",
	"[QUEUE] 📥 Broadcast queued",
	"[QUEUE] 📤 Flushed",
	"[BROADCAST] 📣",
	"[WORKER] ✅ Job",
}

// FilteredLogger implements io.Writer with filtering
type FilteredLogger struct{}

// Write filters log messages based on verbosity
func (l *FilteredLogger) Write(p []byte) (n int, err error) {
	if !GetVerbose() {
		msg := string(p)
		for _, prefix := range nonCriticalPrefixes {
			if strings.Contains(msg, prefix) {
				return len(p), nil // Discard silently
			}
		}
	}

	logOutputMu.Lock()
	defer logOutputMu.Unlock()

	if logOutput == nil {
		return 0, fmt.Errorf("log output not initialized")
	}
	return logOutput.Write(p)
}

// InitLogger routes the standard logger to a rotating file at path
func InitLogger(path string, verbose bool) error {
	if path == "" {
		return fmt.Errorf("log path is empty")
	}
	setOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
	}, verbose)
	return nil
}

// setOutput swaps the destination behind the FilteredLogger
func setOutput(w io.Writer, verbose bool) {
	logOutputMu.Lock()
	if lj, ok := logOutput.(*lumberjack.Logger); ok {
		_ = lj.Close()
	}
	logOutput = w
	logOutputMu.Unlock()

	logConfigMux.Lock()
	logConfig.Verbose = verbose
	logConfigMux.Unlock()

	log.SetOutput(&FilteredLogger{})
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
}

// SetVerbose changes the verbosity level at runtime
func SetVerbose(v bool) {
	logConfigMux.Lock()
	logConfig.Verbose = v
	logConfigMux.Unlock()
	log.Printf("[OK] Verbosidad de logs: %v", v)
}

// GetVerbose returns current verbosity level
func GetVerbose() bool {
	logConfigMux.RLock()
	defer logConfigMux.RUnlock()
	return logConfig.Verbose
}

// RotateLogFile forces a rotation of the current log file
func RotateLogFile() error {
	logOutputMu.Lock()
	defer logOutputMu.Unlock()

	lj, ok := logOutput.(*lumberjack.Logger)
	if !ok {
		return fmt.Errorf("log output is not a rotating file")
	}
	return lj.Rotate()
}
