package rpc

import (
	"context"
	"io/ioutil"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vx-labs/kvrepl/commands"
	"github.com/vx-labs/kvrepl/repl"
	"github.com/vx-labs/kvrepl/segment"
	"github.com/vx-labs/kvrepl/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type node struct {
	segments segment.Manager
	repl     repl.Manager
}

func openNode(t *testing.T, count uint32, dialer repl.Dialer) (*node, func()) {
	datadir, err := ioutil.TempDir("", "kvrepl-rpc")
	require.NoError(t, err)
	segments, err := segment.Open(datadir, count, nil, zap.NewNop(), storage.WithValueLogFileSize(1<<20), storage.WithSyncWrites(false))
	require.NoError(t, err)
	return &node{
			segments: segments,
			repl:     repl.NewManager(segments, dialer, "node", zap.NewNop()),
		}, func() {
			segments.Close()
			os.RemoveAll(datadir)
		}
}

func serve(t *testing.T, n *node) (grpc.DialOption, func()) {
	lis := bufconn.Listen(1 << 20)
	grpcServer := NewGRPCServer(zap.NewNop())
	NewServer(commands.NewHandler(n.segments, n.repl), n.repl, zap.NewNop()).Serve(grpcServer)
	go grpcServer.Serve(lis)
	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.Dial()
	})
	return dialer, grpcServer.Stop
}

func commit(t *testing.T, segments segment.Manager, storeID uint32, key, value string) {
	store, err := segments.Store(storeID)
	require.NoError(t, err)
	txn, err := store.CreateTransaction()
	require.NoError(t, err)
	require.NoError(t, txn.SetKV([]byte(key), []byte(value), 3))
	_, err = txn.Commit()
	require.NoError(t, err)
}

func TestServer(t *testing.T) {
	primary, cleanup := openNode(t, 2, nil)
	defer cleanup()
	dialOpt, stop := serve(t, primary)
	defer stop()
	ctx := context.Background()

	client, err := Dial(ctx, "primary", dialOpt)
	require.NoError(t, err)
	defer client.Close()
	client.WithSession("test-session")

	t.Run("should run commands", func(t *testing.T) {
		commit(t, primary.segments, 1, "a", "1")
		next, kvs, err := client.PullBinlogs(ctx, 1, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(2), next)
		require.Equal(t, 1, len(kvs))
	})
	t.Run("should map errors to status codes", func(t *testing.T) {
		_, err := client.Exec(ctx, []byte("pullbinlogs"), []byte("9"), []byte("0"))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
		_, err = client.Exec(ctx, []byte("nope"))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
		_, err = client.Run(ctx, commands.FullSync{})
		require.Equal(t, codes.Unimplemented, status.Code(err))
	})
	t.Run("should report replication status", func(t *testing.T) {
		_, err := client.Run(ctx, commands.Slaveof{Host: "upstream", Port: 1, StoreID: 0, SourceStoreID: 1})
		require.NoError(t, err)
		_, err = client.Run(ctx, commands.Slaveof{Host: "upstream", Port: 1, StoreID: 0, SourceStoreID: 1})
		require.Equal(t, codes.Aborted, status.Code(err))
		_, err = client.Run(ctx, commands.ToggleIncrSync{Enabled: false})
		require.NoError(t, err)
		paused, stores, err := client.Status(ctx)
		require.NoError(t, err)
		require.True(t, paused)
		require.Equal(t, 2, len(stores))
		require.Equal(t, repl.Source{Host: "upstream", Port: 1, SourceStoreID: 1}, stores[0].Source)
		require.Equal(t, repl.SyncConnect, stores[0].State)
		require.True(t, stores[1].Source.Detached())
	})
}

func TestDialer(t *testing.T) {
	primary, cleanupPrimary := openNode(t, 1, nil)
	defer cleanupPrimary()
	dialOpt, stop := serve(t, primary)
	defer stop()

	replica, cleanupReplica := openNode(t, 1, Dialer("replica", dialOpt))
	defer cleanupReplica()
	ctx := context.Background()

	commit(t, primary.segments, 0, "a", "1")
	commit(t, primary.segments, 0, "b", "2")
	require.NoError(t, replica.repl.ChangeReplSource(0, "primary", 2000, 0))
	require.NoError(t, replica.repl.SyncOnce(ctx, 0))

	store, err := replica.segments.Store(0)
	require.NoError(t, err)
	txn, err := store.CreateTransaction()
	require.NoError(t, err)
	defer txn.Rollback()
	v, err := txn.GetKV([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)
	st := replica.repl.Status()[0]
	require.Equal(t, uint64(3), st.BinlogPos)
	require.Equal(t, repl.SyncConnected, st.State)
}
