package cmd

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/messagestack/apiserver/config"
	"github.com/messagestack/apiserver/internal/server"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume consent revocations and remove exported reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, err := server.Build(ctx, config.LoadConfig(), logger)
		if err != nil {
			return err
		}
		defer deps.Close()

		if deps.LocalEvents {
			return errors.New("worker requires MQ_DRIVER to be set")
		}
		return deps.RunRevocationWorker(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
