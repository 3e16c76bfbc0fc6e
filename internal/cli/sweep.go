package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/logging"
)

// NewSweepCmd deletes rooms past the retention horizon once and exits.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete rooms older than room.retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Env, cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			d, err := buildDeps(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer d.close()

			n, err := app.NewSweeper(d.service, 0, logger).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("sweep finished", zap.Int("deleted", n))
			cmd.Printf("deleted %d expired rooms\n", n)
			return nil
		},
	}
}
