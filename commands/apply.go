package commands

import (
	"context"

	"github.com/vx-labs/kvrepl/binlog"
	"github.com/vx-labs/kvrepl/repl"
	"github.com/vx-labs/kvrepl/segment"
	"go.uber.org/zap"
)

// applybinlogs storeId [k0 v0] [k1 v1] ...
func (h *Handler) applyBinlogs(ctx context.Context, sessionID string, c ApplyBinlogs) (Reply, error) {
	if err := h.checkStoreID(c.StoreID); err != nil {
		return Reply{}, err
	}
	logs, err := binlog.DecodeAll(c.Logs)
	if err != nil {
		return Reply{}, err
	}
	groups := binlog.GroupLogs(logs)
	if err := binlog.ValidateGroups(groups); err != nil {
		repl.L(ctx).Error("corrupted binlog stream", zap.Uint32("store_id", c.StoreID), zap.Error(err))
		return Reply{}, err
	}

	db, err := h.segments.GetDb(sessionID, c.StoreID, segment.LockIX, false)
	if err != nil {
		return Reply{}, err
	}
	defer db.Release()
	err = h.repl.ApplyBinlogs(c.StoreID, sessionID, groups)
	if err != nil {
		return Reply{}, err
	}
	return okReply(), nil
}
