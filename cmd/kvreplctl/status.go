package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const statusTemplate = `{{ if .Paused }}{{ "incremental sync paused" | red }}{{ else }}{{ "incremental sync running" | green }}{{ end }}`

func Status(ctx context.Context, config *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the replication state of every store",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, _ []string) {
			client, l := mustDial(ctx, cmd, config)
			defer client.Close()
			paused, stores, err := client.Status(ctx)
			if err != nil {
				l.Fatal("failed to get replication status", zap.Error(err))
			}
			ParseTemplate(statusTemplate).Execute(cmd.OutOrStdout(), map[string]interface{}{"Paused": paused})
			table := getTable([]string{"Store", "Source", "Source Store", "State", "Position", "Applied", "Last Sync", "Last Error"}, cmd.OutOrStdout())
			for _, store := range stores {
				source := "-"
				sourceStore := "-"
				if !store.Source.Detached() {
					source = fmt.Sprintf("%s:%d", store.Source.Host, store.Source.Port)
					sourceStore = fmt.Sprintf("%d", store.Source.SourceStoreID)
				}
				table.Append([]string{
					fmt.Sprintf("%d", store.StoreID),
					source,
					sourceStore,
					store.State.String(),
					fmt.Sprintf("%d", store.BinlogPos),
					fmt.Sprintf("%d", store.AppliedTxns),
					humanTime(store.LastSync),
					store.LastError,
				})
			}
			table.Render()
		},
	}
}
