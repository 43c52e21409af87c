package rpc

import (
	"context"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/vx-labs/kvrepl/binlog"
	"github.com/vx-labs/kvrepl/commands"
	"github.com/vx-labs/kvrepl/repl"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type Client struct {
	conn      *grpc.ClientConn
	sessionID string
}

// Dial connects to a replication server. The connection is established
// lazily.
func Dial(ctx context.Context, address string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithInsecure(),
		grpc.WithUnaryInterceptor(grpc_middleware.ChainUnaryClient(grpc_prometheus.UnaryClientInterceptor)),
	}, opts...)
	conn, err := grpc.DialContext(ctx, address, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// WithSession makes every call of the client carry sessionID.
func (c *Client) WithSession(sessionID string) *Client {
	c.sessionID = sessionID
	return c
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.sessionID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, SessionMetadataKey, c.sessionID)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Exec(ctx context.Context, args ...[]byte) (commands.Reply, error) {
	out := &Reply{}
	err := c.conn.Invoke(c.outgoing(ctx), "/"+serviceName+"/Exec", &ExecRequest{Args: args}, out)
	if err != nil {
		return commands.Reply{}, err
	}
	return fromReply(out), nil
}

func (c *Client) Run(ctx context.Context, cmd commands.Command) (commands.Reply, error) {
	return c.Exec(ctx, commands.Args(cmd)...)
}

// Status returns whether incremental sync is paused, and the replication
// state of every store.
func (c *Client) Status(ctx context.Context) (bool, []repl.StoreStatus, error) {
	out := &StatusResponse{}
	err := c.conn.Invoke(c.outgoing(ctx), "/"+serviceName+"/Status", &StatusRequest{}, out)
	if err != nil {
		return false, nil, err
	}
	stores := make([]repl.StoreStatus, len(out.Stores))
	for idx := range out.Stores {
		stores[idx] = fromStoreStatus(out.Stores[idx])
	}
	return out.Paused, stores, nil
}

func (c *Client) PullBinlogs(ctx context.Context, storeID uint32, from uint64) (uint64, []binlog.KV, error) {
	reply, err := c.Run(ctx, commands.PullBinlogs{StoreID: storeID, From: from})
	if err != nil {
		return 0, nil, err
	}
	return reply.NextBinlogID, reply.Binlogs, nil
}

// Dialer returns a repl.Dialer opening one Client per sync round.
func Dialer(sessionID string, opts ...grpc.DialOption) repl.Dialer {
	return func(ctx context.Context, address string) (repl.SourceClient, error) {
		c, err := Dial(ctx, address, opts...)
		if err != nil {
			return nil, err
		}
		return c.WithSession(sessionID), nil
	}
}
