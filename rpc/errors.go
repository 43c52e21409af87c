package rpc

import (
	"errors"

	"github.com/vx-labs/kvrepl/binlog"
	"github.com/vx-labs/kvrepl/commands"
	"github.com/vx-labs/kvrepl/repl"
	"github.com/vx-labs/kvrepl/segment"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, segment.ErrStoreNotOpen):
		return codes.FailedPrecondition
	case commands.IsParamError(err):
		return codes.InvalidArgument
	case errors.Is(err, binlog.ErrCorruptedStream):
		return codes.DataLoss
	case errors.Is(err, commands.ErrNotInvocable):
		return codes.Unimplemented
	case errors.Is(err, repl.ErrSourceBusy):
		return codes.Aborted
	default:
		return codes.Internal
	}
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(statusCode(err), err.Error())
}
