package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/kvrepl/binlog"
	"go.uber.org/zap"
)

func Binlogs(ctx context.Context, config *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "binlogs",
		Short: "Inspect store binlogs",
	}
	read := &cobra.Command{
		Use:  "read <store-id>",
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client, l := mustDial(ctx, cmd, config)
			defer client.Close()
			storeID, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				l.Fatal("invalid store id", zap.Error(err))
			}
			next, kvs, err := client.PullBinlogs(ctx, uint32(storeID), config.GetUint64("from"))
			if err != nil {
				l.Fatal("failed to pull binlogs", zap.Error(err))
			}
			logs, err := binlog.DecodeAll(kvs)
			if err != nil {
				l.Fatal("failed to decode binlogs", zap.Error(err))
			}
			table := getTable([]string{"Txn", "Local", "Flags", "Op", "Key", "Value"}, cmd.OutOrStdout())
			for _, log := range logs {
				table.Append([]string{
					fmt.Sprintf("%d", log.Key.TxnID),
					fmt.Sprintf("%d", log.Key.LocalID),
					fmt.Sprintf("%02b", log.Key.Flag),
					log.Value.Op.String(),
					string(log.Value.OpKey),
					string(log.Value.OpValue),
				})
			}
			table.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "next binlog id: %d\n", next)
		},
	}
	read.Flags().Uint64("from", 0, "First transaction id to read.")
	cmd.AddCommand(read)
	return cmd
}
