package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vx-labs/kvrepl/binlog"
	"github.com/vx-labs/kvrepl/repl"
	"github.com/vx-labs/kvrepl/segment"
	"github.com/vx-labs/kvrepl/stats"
	"github.com/vx-labs/kvrepl/storage"
	"go.uber.org/zap"
)

var (
	ErrParam          = errors.New("invalid parameter")
	ErrUnknownCommand = errors.New("unknown command")
	ErrNotInvocable   = errors.New("command is not directly invocable")
)

const DefaultMaxPullBatch = 1000

func paramError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrParam, fmt.Sprintf(format, args...))
}

// IsParamError reports whether err was caused by the caller input. A command
// directed at a closed store is a caller error.
func IsParamError(err error) bool {
	return errors.Is(err, ErrParam) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, segment.ErrInvalidStoreID) ||
		errors.Is(err, segment.ErrStoreNotOpen) ||
		errors.Is(err, binlog.ErrInvalidRecord)
}

// Reply is the result of a successful command.
type Reply struct {
	OK           bool                 `json:"ok"`
	NextBinlogID uint64               `json:"next_binlog_id"`
	Binlogs      []binlog.KV          `json:"binlogs,omitempty"`
	Backups      []storage.BackupInfo `json:"backups,omitempty"`
}

func okReply() Reply { return Reply{OK: true} }

type handlerOpts struct {
	maxPullBatch int
}

type handlerOpt func(*handlerOpts)

// WithMaxPullBatch sets the record count after which a pull stops at the
// next transaction boundary.
func WithMaxPullBatch(v int) handlerOpt {
	return func(o *handlerOpts) {
		if v > 0 {
			o.maxPullBatch = v
		}
	}
}

// Handler runs commands against local stores.
type Handler struct {
	segments segment.Manager
	repl     repl.Manager
	opts     handlerOpts
}

func NewHandler(segments segment.Manager, replManager repl.Manager, opts ...handlerOpt) *Handler {
	config := handlerOpts{maxPullBatch: DefaultMaxPullBatch}
	for _, opt := range opts {
		opt(&config)
	}
	return &Handler{segments: segments, repl: replManager, opts: config}
}

// Exec parses and runs a command line.
func (h *Handler) Exec(ctx context.Context, sessionID string, args [][]byte) (Reply, error) {
	cmd, err := Parse(args)
	if err != nil {
		return Reply{}, err
	}
	return h.Run(ctx, sessionID, cmd)
}

func (h *Handler) Run(ctx context.Context, sessionID string, cmd Command) (Reply, error) {
	start := time.Now()
	ctx = repl.AddFields(ctx, zap.String("session_id", sessionID), zap.Stringer("command", cmd.Kind()))
	var reply Reply
	var err error
	switch c := cmd.(type) {
	case Backup:
		reply, err = h.backup(ctx, sessionID, c)
	case ToggleIncrSync:
		reply, err = h.toggleIncrSync(ctx, c)
	case PullBinlogs:
		reply, err = h.pullBinlogs(ctx, sessionID, c)
	case RestoreBinlog:
		reply, err = h.restoreBinlog(ctx, sessionID, c)
	case ApplyBinlogs:
		reply, err = h.applyBinlogs(ctx, sessionID, c)
	case Slaveof:
		reply, err = h.slaveof(ctx, sessionID, c)
	case FullSync, IncrSync:
		err = fmt.Errorf("%w: %s", ErrNotInvocable, c.Kind())
	default:
		err = fmt.Errorf("%w '%s'", ErrUnknownCommand, cmd.Kind())
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	stats.HistogramVec("commandDuration").WithLabelValues(cmd.Kind().String(), result).Observe(stats.MilisecondsElapsed(start))
	return reply, err
}

func (h *Handler) checkStoreID(storeID uint32) error {
	if storeID >= h.segments.StoreCount() {
		return paramError("invalid storeId")
	}
	return nil
}
