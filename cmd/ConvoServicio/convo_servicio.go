// Package main es el punto de entrada del Convo Daemon.
// Convo Daemon es un servicio que mantiene las conexiones WebSocket de los
// participantes de conversaciones y les entrega mensajes, indicadores de
// escritura y confirmaciones de lectura en tiempo real.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/judwhite/go-svc"
	"github.com/spf13/cobra"

	"github.com/adcondev/convo-daemon/internal/daemon"
)

var (
	consoleMode bool
	envName     string
	configPath  string
)

var rootCmd = &cobra.Command{
	Use:   "ConvoServicio",
	Short: "Realtime messaging daemon",
	Long:  "Runs the conversation WebSocket service, as a system service or in console mode.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		prg := &daemon.Program{Environment: envName, ConfigPath: configPath}

		// Check if running interactively (console mode)
		if consoleMode || isInteractive() {
			return runConsole(prg)
		}
		// Run as system service
		return svc.Run(prg, syscall.SIGINT, syscall.SIGTERM)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "Environment name (local, remote); defaults to the build environment")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional TOML file overriding the environment")
	rootCmd.Flags().BoolVar(&consoleMode, "console", false, "Run in console mode (not as service)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runConsole runs the program in console mode
func runConsole(prg *daemon.Program) error {
	if err := prg.Init(nil); err != nil {
		return err
	}
	if err := prg.Start(); err != nil {
		return err
	}

	log.Println("═══════════════════════════════════════════════════════")
	log.Println("  💬 CONVO SERVICIO - Modo Consola")
	log.Println("  Presiona Ctrl+C para detener...")
	log.Println("═══════════════════════════════════════════════════════")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down...")
	return prg.Stop()
}

// isInteractive checks if running from a terminal (not as service)
func isInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	// If stdin is a character device (terminal), we're interactive
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
