package commands

import (
	"context"

	"github.com/vx-labs/kvrepl/binlog"
	"github.com/vx-labs/kvrepl/repl"
	"github.com/vx-labs/kvrepl/segment"
	"github.com/vx-labs/kvrepl/stats"
	"go.uber.org/zap"
)

// restorebinlog storeId k1 v1 k2 v2 ...
//
// Every pair must belong to the same transaction. Records are replayed with
// a zero timestamp.
func (h *Handler) restoreBinlog(ctx context.Context, sessionID string, c RestoreBinlog) (Reply, error) {
	if len(c.Logs) == 0 {
		return Reply{}, paramError("invalid param len")
	}
	if err := h.checkStoreID(c.StoreID); err != nil {
		return Reply{}, err
	}
	logs, err := binlog.DecodeAll(c.Logs)
	if err != nil {
		return Reply{}, err
	}
	txnID := logs[0].Key.TxnID
	for _, log := range logs {
		if log.Key.TxnID != txnID {
			return Reply{}, paramError("txn id not all the same")
		}
	}

	db, err := h.segments.GetDb(sessionID, c.StoreID, segment.LockIX, false)
	if err != nil {
		return Reply{}, err
	}
	defer db.Release()
	txn, err := db.Store.CreateTransaction()
	if err != nil {
		return Reply{}, err
	}
	for _, log := range logs {
		switch log.Value.Op {
		case binlog.ReplOpSet:
			err = txn.SetKV(log.Value.OpKey, log.Value.OpValue, 0)
		case binlog.ReplOpDel:
			err = txn.DelKV(log.Value.OpKey, 0)
		default:
			err = paramError("invalid replop")
		}
		if err != nil {
			txn.Rollback()
			return Reply{}, err
		}
	}
	commitID, err := txn.Commit()
	if err != nil {
		return Reply{}, err
	}
	stats.Counter("binlogsRestored").Add(float64(len(logs)))
	repl.L(ctx).Info("binlog restored", zap.Uint32("store_id", c.StoreID),
		zap.Uint64("restored_txn_id", txnID), zap.Uint64("local_txn_id", commitID), zap.Int("binlog_count", len(logs)))
	return okReply(), nil
}
