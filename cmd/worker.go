/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mindtrack/apiserver/config"
	"github.com/mindtrack/apiserver/internal/logger"
	"github.com/mindtrack/apiserver/internal/worker"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the mood export and activity worker",
	Long: `Consumes mood export requests from the message queue and writes the
rendered CSV files to object storage. Also consumes mood.recorded events and
exposes them as Prometheus metrics on WORKER_METRICS_PORT. Usage:

	mindtrack worker
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		log := logger.New(serviceName, cfg.LogLevel).With("component", "worker")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, err := worker.New(ctx, cfg, log)
		if err != nil {
			log.Error("failed to start worker", "error", err)
			os.Exit(1)
		}

		runErr := w.Run(ctx)
		if err := w.Close(); err != nil {
			log.Warn("worker close", "error", err)
		}
		if runErr != nil {
			log.Error("worker error", "error", runErr)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
