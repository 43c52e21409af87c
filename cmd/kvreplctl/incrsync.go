package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/kvrepl/commands"
	"go.uber.org/zap"
)

func IncrSync(ctx context.Context, config *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incrsync",
		Short: "Pause or resume incremental sync",
	}
	toggle := func(enabled bool) func(cmd *cobra.Command, _ []string) {
		return func(cmd *cobra.Command, _ []string) {
			client, l := mustDial(ctx, cmd, config)
			defer client.Close()
			_, err := client.Run(ctx, commands.ToggleIncrSync{Enabled: enabled})
			if err != nil {
				l.Fatal("failed to toggle incremental sync", zap.Error(err))
			}
			l.Info("incremental sync toggled", zap.Bool("incrsync_enabled", enabled))
		}
	}
	cmd.AddCommand(&cobra.Command{Use: "pause", Args: cobra.ExactArgs(0), Run: toggle(false)})
	cmd.AddCommand(&cobra.Command{Use: "resume", Args: cobra.ExactArgs(0), Run: toggle(true)})
	return cmd
}
