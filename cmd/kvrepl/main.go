package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/kvrepl/commands"
	"github.com/vx-labs/kvrepl/repl"
	"github.com/vx-labs/kvrepl/rpc"
	"github.com/vx-labs/kvrepl/segment"
	"github.com/vx-labs/kvrepl/stats"
	"github.com/vx-labs/kvrepl/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var version = "dev"

// runSyncLoop runs an incremental sync round on every store each interval
// until ctx is cancelled.
func runSyncLoop(ctx context.Context, manager repl.Manager, storeCount uint32, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for storeID := uint32(0); storeID < storeCount; storeID++ {
				err := manager.SyncOnce(ctx, storeID)
				if err != nil {
					repl.L(ctx).Warn("incremental sync failed", zap.Uint32("store_id", storeID), zap.Error(err))
				}
			}
		}
	}
}

func serveHealth(ctx context.Context, healthServer *health.Server, port int) {
	mux := http.NewServeMux()
	addr := net.JoinHostPort("::", fmt.Sprintf("%d", port))
	mux.Handle("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{
			Service: "rpc",
		})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(err)
			return
		}
		switch out.Status {
		case healthpb.HealthCheckResponse_SERVING:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status": "passing", "msg":"service is running"}`))
		case healthpb.HealthCheckResponse_NOT_SERVING:
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"status": "warning", "msg":"service is not serving"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"status": "not_passing", "msg":"unknown failure"}`))
		}
	}))
	err := http.ListenAndServe(addr, mux)
	if err != nil {
		repl.L(ctx).Error("health server crashed", zap.Error(err))
	}
}

func parseClosedStores(in []uint) []uint32 {
	out := make([]uint32, len(in))
	for idx := range in {
		out[idx] = uint32(in[idx])
	}
	return out
}

func main() {
	config := viper.New()
	config.SetEnvPrefix("KVREPL")
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()
	cmd := cobra.Command{
		Use: "kvrepl",
		PreRun: func(cmd *cobra.Command, _ []string) {
			config.BindPFlags(cmd.Flags())
		},
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := context.WithCancel(context.Background())
			logger := getLogger(config)
			ctx = repl.StoreLogger(ctx, logger)
			dataDir := config.GetString("data-dir")
			err := os.MkdirAll(dataDir, 0700)
			if err != nil {
				repl.L(ctx).Fatal("failed to create data directory", zap.Error(err))
			}
			storeCount := uint32(config.GetInt("shard-count"))
			closed, err := cmd.Flags().GetUintSlice("closed-shards")
			if err != nil {
				repl.L(ctx).Fatal("invalid closed shard list", zap.Error(err))
			}
			segments, err := segment.Open(dataDir, storeCount, parseClosedStores(closed), logger,
				storage.WithSyncWrites(config.GetBool("sync-writes")))
			if err != nil {
				repl.L(ctx).Fatal("failed to open stores", zap.Error(err))
			}
			hostname, _ := os.Hostname()
			sessionID := fmt.Sprintf("%s-%d", hostname, os.Getpid())
			replManager := repl.NewManager(segments, rpc.Dialer(sessionID), sessionID, logger)
			handler := commands.NewHandler(segments, replManager, commands.WithMaxPullBatch(config.GetInt("pull-batch-size")))

			healthServer := health.NewServer()
			healthServer.SetServingStatus("rpc", healthpb.HealthCheckResponse_NOT_SERVING)
			server := rpc.NewGRPCServer(logger)
			healthpb.RegisterHealthServer(server, healthServer)
			rpc.NewServer(handler, replManager, logger).Serve(server)

			listener, err := net.Listen("tcp", net.JoinHostPort("::", fmt.Sprintf("%d", config.GetInt("rpc-port"))))
			if err != nil {
				repl.L(ctx).Fatal("rpc listener failed to start", zap.Error(err))
			}
			wg := sync.WaitGroup{}
			wg.Add(2)
			go func() {
				defer wg.Done()
				err := server.Serve(listener)
				if err != nil {
					repl.L(ctx).Fatal("rpc listener crashed", zap.Error(err))
				}
			}()
			go func() {
				defer wg.Done()
				runSyncLoop(ctx, replManager, storeCount, config.GetDuration("sync-interval"))
			}()
			if port := config.GetInt("metrics-port"); port > 0 {
				go func() {
					if err := stats.ListenAndServe(port); err != nil {
						repl.L(ctx).Error("metrics server crashed", zap.Error(err))
					}
				}()
			}
			go serveHealth(ctx, healthServer, config.GetInt("health-port"))
			healthServer.Resume()
			repl.L(ctx).Info("kvrepl started", zap.Uint32("store_count", storeCount), zap.String("data_dir", dataDir))

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc,
				syscall.SIGINT,
				syscall.SIGTERM,
				syscall.SIGQUIT)
			<-sigc
			repl.L(ctx).Info("kvrepl shutdown initiated")
			healthServer.Shutdown()
			go func() {
				<-time.After(1 * time.Second)
				server.Stop()
			}()
			server.GracefulStop()
			repl.L(ctx).Debug("rpc server stopped")
			cancel()
			wg.Wait()
			repl.L(ctx).Debug("asynchronous operations stopped")
			err = segments.Close()
			if err != nil {
				repl.L(ctx).Error("failed to close stores", zap.Error(err))
			} else {
				repl.L(ctx).Debug("stores closed")
			}
			repl.L(ctx).Info("kvrepl successfully stopped")
			logger.Sync()
		},
	}
	cmd.Flags().Bool("debug", false, "Use a fancy logger and increase logging level.")
	cmd.Flags().Int("health-port", 8090, "Start Healthcheck HTTP server on this port.")
	cmd.Flags().Int("metrics-port", 0, "Start Prometheus HTTP metrics server on this port.")
	cmd.Flags().Int("rpc-port", 1899, "Replication (GRPC) port.")
	cmd.Flags().StringP("data-dir", "d", "/tmp/kvrepl", "Persistent data location.")
	cmd.Flags().IntP("shard-count", "n", 10, "Number of local stores.")
	cmd.Flags().UintSlice("closed-shards", nil, "Stores to leave closed at startup.")
	cmd.Flags().Duration("sync-interval", 200*time.Millisecond, "Delay between two incremental sync rounds.")
	cmd.Flags().Int("pull-batch-size", commands.DefaultMaxPullBatch, "Binlog count after which a pull stops at the next transaction boundary.")
	cmd.Flags().Bool("sync-writes", true, "Sync store writes to disk before acknowledging them.")
	cmd.Execute()
}
