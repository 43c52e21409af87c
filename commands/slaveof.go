package commands

import (
	"context"

	"github.com/vx-labs/kvrepl/segment"
)

func (h *Handler) slaveof(ctx context.Context, sessionID string, c Slaveof) (Reply, error) {
	if c.All {
		return h.slaveofAll(sessionID, c)
	}
	if err := h.checkStoreID(c.StoreID); err != nil {
		return Reply{}, err
	}
	var sourceStoreID uint32
	if !c.Detach {
		if err := h.checkStoreID(c.SourceStoreID); err != nil {
			return Reply{}, err
		}
		sourceStoreID = c.SourceStoreID
	}
	db, err := h.segments.GetDb(sessionID, c.StoreID, segment.LockX, false)
	if err != nil {
		return Reply{}, err
	}
	defer db.Release()
	err = h.repl.ChangeReplSource(c.StoreID, c.Host, c.Port, sourceStoreID)
	if err != nil {
		return Reply{}, err
	}
	return okReply(), nil
}

// slaveofAll changes every open store. It stops on the first error and does
// not revert the stores already changed.
func (h *Handler) slaveofAll(sessionID string, c Slaveof) (Reply, error) {
	for i := uint32(0); i < h.segments.StoreCount(); i++ {
		db, err := h.segments.GetDb(sessionID, i, segment.LockX, true)
		if err != nil {
			return Reply{}, err
		}
		if !db.Store.IsOpen() {
			db.Release()
			continue
		}
		if c.Detach {
			err = h.repl.ChangeReplSource(i, "", 0, 0)
		} else {
			err = h.repl.ChangeReplSource(i, c.Host, c.Port, i)
		}
		db.Release()
		if err != nil {
			return Reply{}, err
		}
	}
	return okReply(), nil
}
