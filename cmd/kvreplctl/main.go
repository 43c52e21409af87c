package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/kvrepl/rpc"
	"go.uber.org/zap"
)

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "kvreplctl")
}

func getLogger(config *viper.Viper) *zap.Logger {
	var logger *zap.Logger
	var err error
	if config.GetBool("debug") {
		logger, err = zap.NewDevelopment()
	} else {
		zapConfig := zap.NewProductionConfig()
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		logger, err = zapConfig.Build()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func mustDial(ctx context.Context, cmd *cobra.Command, config *viper.Viper) (*rpc.Client, *zap.Logger) {
	l := getLogger(config)
	client, err := rpc.Dial(ctx, config.GetString("host"))
	if err != nil {
		l.Fatal("failed to dial kvrepl server", zap.Error(err))
	}
	if session := config.GetString("session"); session != "" {
		client.WithSession(session)
	}
	return client, l
}

func main() {
	config := viper.New()
	config.AddConfigPath(configDir())
	config.SetConfigType("yaml")
	config.SetConfigName("config")
	config.SetEnvPrefix("KVREPLCTL")
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()

	ctx := context.Background()
	rootCmd := &cobra.Command{
		Use: "kvreplctl",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			config.BindPFlags(cmd.Flags())
			config.BindPFlags(cmd.PersistentFlags())
			if err := config.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					log.Fatal(err)
				}
			}
		},
	}
	hostname, _ := os.Hostname()

	rootCmd.AddCommand(Status(ctx, config))
	rootCmd.AddCommand(Slaveof(ctx, config))
	rootCmd.AddCommand(Backup(ctx, config))
	rootCmd.AddCommand(IncrSync(ctx, config))
	rootCmd.AddCommand(Binlogs(ctx, config))
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Increase log verbosity.")
	rootCmd.PersistentFlags().String("host", "127.0.0.1:1899", "remote GRPC endpoint")
	rootCmd.PersistentFlags().String("session", fmt.Sprintf("kvreplctl-%s", hostname), "Session id sent to the server.")
	rootCmd.Execute()
}
