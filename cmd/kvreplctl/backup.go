package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/kvrepl/commands"
	"go.uber.org/zap"
)

const backupTemplate = `{{ range .Backups -}}
• {{ .StoreID | yellow }}
  Path: {{ .Path }}
  Size: {{ .Size | humanBytes }}
  Version: {{ .Version }}
{{ end }}`

func Backup(ctx context.Context, config *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <directory>",
		Short: "Back every open store up in a server-side directory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client, l := mustDial(ctx, cmd, config)
			defer client.Close()
			out, err := client.Run(ctx, commands.Backup{Dir: args[0]})
			if err != nil {
				l.Fatal("failed to back stores up", zap.Error(err))
			}
			ParseTemplate(backupTemplate).Execute(cmd.OutOrStdout(), out)
		},
	}
}
