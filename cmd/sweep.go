package cmd

import (
	"github.com/messagestack/apiserver/config"
	"github.com/messagestack/apiserver/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepOpts server.SweepOptions

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete responses, AI records and audit entries past retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := server.Build(cmd.Context(), config.LoadConfig(), logger)
		if err != nil {
			return err
		}
		defer deps.Close()

		result, err := deps.Sweep(cmd.Context(), sweepOpts)
		if err != nil {
			return err
		}
		logger.Info("retention sweep finished",
			zap.Int("responses", result.Responses),
			zap.Int("ai_records", result.AIRecords),
			zap.Int("audit_entries", result.Audit),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().IntVar(&sweepOpts.ResponseDays, "responses-days", 0, "response retention in days (default RESPONSE_RETENTION_DAYS)")
	sweepCmd.Flags().IntVar(&sweepOpts.AuditDays, "audit-days", 0, "audit retention in days (default AUDIT_RETENTION_DAYS)")
}
