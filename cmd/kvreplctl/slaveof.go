package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/kvrepl/commands"
	"go.uber.org/zap"
)

func confirm(label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}

func Slaveof(ctx context.Context, config *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slaveof",
		Short: "Change replication sources",
	}
	attach := &cobra.Command{
		Use:   "attach <host> <port> [store-id source-store-id]",
		Short: "Replicate stores from a remote server",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 && len(args) != 4 {
				return fmt.Errorf("expected 2 or 4 arguments, got %d", len(args))
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			client, l := mustDial(ctx, cmd, config)
			defer client.Close()
			port, err := strconv.ParseUint(args[1], 10, 16)
			if err != nil {
				l.Fatal("invalid port", zap.Error(err))
			}
			req := commands.Slaveof{Host: args[0], Port: uint16(port), All: true}
			if len(args) == 4 {
				storeID, err := strconv.ParseUint(args[2], 10, 32)
				if err != nil {
					l.Fatal("invalid store id", zap.Error(err))
				}
				sourceStoreID, err := strconv.ParseUint(args[3], 10, 32)
				if err != nil {
					l.Fatal("invalid source store id", zap.Error(err))
				}
				req.All = false
				req.StoreID = uint32(storeID)
				req.SourceStoreID = uint32(sourceStoreID)
			}
			_, err = client.Run(ctx, req)
			if err != nil {
				l.Fatal("failed to attach stores", zap.Error(err))
			}
			l.Info("replication source changed", zap.String("source_host", req.Host), zap.Uint16("source_port", req.Port))
		},
	}
	detach := &cobra.Command{
		Use:   "detach [store-id]",
		Short: "Stop replicating stores",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client, l := mustDial(ctx, cmd, config)
			defer client.Close()
			req := commands.Slaveof{Detach: true, All: true}
			label := "Detach every store"
			if len(args) == 1 {
				storeID, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					l.Fatal("invalid store id", zap.Error(err))
				}
				req.All = false
				req.StoreID = uint32(storeID)
				label = fmt.Sprintf("Detach store %d", storeID)
			}
			if !config.GetBool("yes") && !confirm(label) {
				l.Info("aborted")
				return
			}
			_, err := client.Run(ctx, req)
			if err != nil {
				l.Fatal("failed to detach stores", zap.Error(err))
			}
			l.Info("stores detached")
		},
	}
	detach.Flags().BoolP("yes", "y", false, "Do not ask for confirmation.")
	cmd.AddCommand(attach)
	cmd.AddCommand(detach)
	return cmd
}
