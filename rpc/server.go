package rpc

import (
	"context"
	"math/rand"
	"sync"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/oklog/ulid"
	"github.com/vx-labs/kvrepl/commands"
	"github.com/vx-labs/kvrepl/repl"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// SessionMetadataKey carries the caller session id. A session id is generated
// for calls without one.
const SessionMetadataKey = "x-kvrepl-session"

var (
	entropyMtx sync.Mutex
	entropy    = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newSessionID() string {
	entropyMtx.Lock()
	defer entropyMtx.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func sessionID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if values := md.Get(SessionMetadataKey); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return newSessionID()
}

// NewGRPCServer returns a grpc server logging, recovering and measuring every
// call.
func NewGRPCServer(logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
		grpc_prometheus.UnaryServerInterceptor,
		grpc_zap.UnaryServerInterceptor(logger),
		grpc_recovery.UnaryServerInterceptor(),
	)))
	return grpc.NewServer(opts...)
}

type server struct {
	handler *commands.Handler
	repl    repl.Manager
	logger  *zap.Logger
}

func NewServer(handler *commands.Handler, replManager repl.Manager, logger *zap.Logger) *server {
	return &server{handler: handler, repl: replManager, logger: logger}
}

func (s *server) Serve(grpcServer *grpc.Server) {
	RegisterReplicationServer(grpcServer, s)
	grpc_prometheus.Register(grpcServer)
}

func (s *server) Exec(ctx context.Context, in *ExecRequest) (*Reply, error) {
	ctx = repl.StoreLogger(ctx, s.logger)
	reply, err := s.handler.Exec(ctx, sessionID(ctx), in.Args)
	if err != nil {
		return nil, toStatus(err)
	}
	return toReply(reply), nil
}

func (s *server) Status(ctx context.Context, in *StatusRequest) (*StatusResponse, error) {
	stores := s.repl.Status()
	out := &StatusResponse{
		Paused: s.repl.Paused(),
		Stores: make([]*StoreStatus, len(stores)),
	}
	for idx := range stores {
		out.Stores[idx] = toStoreStatus(stores[idx])
	}
	return out, nil
}
