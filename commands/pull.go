package commands

import (
	"context"

	"github.com/vx-labs/kvrepl/binlog"
	"github.com/vx-labs/kvrepl/segment"
	"github.com/vx-labs/kvrepl/stats"
	"github.com/vx-labs/kvrepl/storage"
)

// pullBinlogs returns the binlogs of c.StoreID starting at c.From. A batch
// never splits a transaction: once maxPullBatch records are collected, it
// stops before the next transaction starts.
func (h *Handler) pullBinlogs(ctx context.Context, sessionID string, c PullBinlogs) (Reply, error) {
	if err := h.checkStoreID(c.StoreID); err != nil {
		return Reply{}, err
	}
	db, err := h.segments.GetDb(sessionID, c.StoreID, segment.LockIS, false)
	if err != nil {
		return Reply{}, err
	}
	defer db.Release()

	txn, err := db.Store.CreateTransaction()
	if err != nil {
		return Reply{}, err
	}
	defer txn.Rollback()
	cursor := txn.CreateBinlogCursor(c.From)
	defer cursor.Close()

	logs := []binlog.ReplLog{}
	currID := binlog.TxnIDUninited
	for {
		log, err := cursor.Next()
		if err == storage.ErrExhaust {
			break
		}
		if err != nil {
			return Reply{}, err
		}
		txnID := log.Key.TxnID
		if currID == binlog.TxnIDUninited {
			currID = txnID
		}
		if len(logs) >= h.opts.maxPullBatch && txnID != currID {
			break
		}
		logs = append(logs, log)
		currID = txnID
	}
	if len(logs) == 0 {
		return Reply{OK: true, NextBinlogID: c.From, Binlogs: []binlog.KV{}}, nil
	}
	stats.Counter("binlogsPulled").Add(float64(len(logs)))
	return Reply{
		OK:           true,
		NextBinlogID: logs[len(logs)-1].Key.TxnID + 1,
		Binlogs:      binlog.EncodeAll(logs),
	}, nil
}
