package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var drain bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-queue pending and failed work once, optionally running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		n, err := a.manager.TriggerPendingSubmissions(ctx)
		if err != nil {
			log.Warn("sweep incomplete", zap.Error(err))
		}
		a.sweepOnce(ctx)
		log.Info("sweep scheduled submissions", zap.Int("count", n))

		if drain {
			ran, err := a.queue.RunDue(ctx)
			log.Info("due jobs run", zap.Int("count", ran))
			return err
		}
		return nil
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&drain, "drain", false, "run every due job before exiting")
}
