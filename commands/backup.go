package commands

import (
	"context"

	"github.com/vx-labs/kvrepl/repl"
	"github.com/vx-labs/kvrepl/segment"
	"github.com/vx-labs/kvrepl/storage"
	"go.uber.org/zap"
)

func (h *Handler) backup(ctx context.Context, sessionID string, c Backup) (Reply, error) {
	reply := okReply()
	for i := uint32(0); i < h.segments.StoreCount(); i++ {
		info, skipped, err := h.backupStore(sessionID, i, c.Dir)
		if err != nil {
			repl.L(ctx).Error("store backup failed", zap.Uint32("store_id", i), zap.Error(err))
			return Reply{}, err
		}
		if !skipped {
			reply.Backups = append(reply.Backups, info)
		}
	}
	return reply, nil
}

func (h *Handler) backupStore(sessionID string, storeID uint32, dir string) (storage.BackupInfo, bool, error) {
	db, err := h.segments.GetDb(sessionID, storeID, segment.LockIS, true)
	if err != nil {
		return storage.BackupInfo{}, false, err
	}
	defer db.Release()
	if !db.Store.IsOpen() {
		return storage.BackupInfo{}, true, nil
	}
	info, err := db.Store.Backup(dir, storage.BackupCopy)
	return info, false, err
}
