package repl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/vx-labs/kvrepl/binlog"
	"github.com/vx-labs/kvrepl/segment"
	"github.com/vx-labs/kvrepl/stats"
	"go.uber.org/zap"
)

// SourceClient pulls binlogs from a remote store.
type SourceClient interface {
	PullBinlogs(ctx context.Context, storeID uint32, from uint64) (uint64, []binlog.KV, error)
	Close() error
}

type Dialer func(ctx context.Context, address string) (SourceClient, error)

func (m *manager) setSyncResult(storeID uint32, src Source, err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	st := m.stores[storeID]
	if st.Source != src {
		return
	}
	st.LastSync = time.Now()
	if err != nil {
		st.State = SyncError
		st.LastError = err.Error()
		return
	}
	st.State = SyncConnected
	st.LastError = ""
}

// advance moves the store position forward, unless its source changed while
// the round was running.
func (m *manager) advance(storeID uint32, src Source, next uint64) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	st := m.stores[storeID]
	if st.Source != src || next <= st.BinlogPos {
		return
	}
	st.BinlogPos = next
	stats.GaugeVec("binlogPosition").WithLabelValues(fmt.Sprintf("%d", storeID)).Set(float64(next))
}

// SyncOnce runs one incremental sync round for storeID: it pulls a batch from
// the store source, validates it and applies it locally.
func (m *manager) SyncOnce(ctx context.Context, storeID uint32) error {
	m.mtx.Lock()
	st, err := m.status(storeID)
	if err != nil {
		m.mtx.Unlock()
		return err
	}
	src := st.Source
	pos := st.BinlogPos
	paused := m.paused
	m.mtx.Unlock()

	if src.Detached() || paused {
		return nil
	}
	if m.dialer == nil {
		return ErrNoDialer
	}
	ctx = AddFields(ctx, zap.Uint32("store_id", storeID), zap.String("source_host", src.Host),
		zap.Uint16("source_port", src.Port), zap.Uint32("source_store_id", src.SourceStoreID))

	address := net.JoinHostPort(src.Host, strconv.Itoa(int(src.Port)))
	client, err := m.dialer(ctx, address)
	if err != nil {
		m.setSyncResult(storeID, src, err)
		return pkgerrors.Wrap(err, "failed to dial replication source")
	}
	defer client.Close()

	next, kvs, err := client.PullBinlogs(ctx, src.SourceStoreID, pos)
	if err != nil {
		m.setSyncResult(storeID, src, err)
		return pkgerrors.Wrap(err, "failed to pull binlogs")
	}
	if len(kvs) == 0 {
		m.setSyncResult(storeID, src, nil)
		return nil
	}
	logs, err := binlog.DecodeAll(kvs)
	if err != nil {
		m.setSyncResult(storeID, src, err)
		return err
	}
	groups := binlog.GroupLogs(logs)
	err = binlog.ValidateGroups(groups)
	if err != nil {
		L(ctx).Error("replication link reset: corrupted binlog stream", zap.Error(err))
		m.setSyncResult(storeID, src, err)
		return err
	}

	db, err := m.segments.GetDb(m.sessionID, storeID, segment.LockIX, false)
	if err != nil {
		m.setSyncResult(storeID, src, err)
		return err
	}
	defer db.Release()
	if current, _ := m.Source(storeID); current != src {
		L(ctx).Info("replication source changed during sync, dropping batch")
		return nil
	}
	applied, err := m.applyBinlogs(storeID, m.sessionID, groups)
	if applied > 0 {
		m.advance(storeID, src, groups[applied-1].TxnID+1)
	}
	if err != nil {
		m.setSyncResult(storeID, src, err)
		return err
	}
	m.advance(storeID, src, next)
	m.setSyncResult(storeID, src, nil)
	L(ctx).Debug("binlogs applied", zap.Int("txn_count", len(groups)), zap.Int("binlog_count", len(logs)), zap.Uint64("next_binlog_pos", next))
	return nil
}

// IsCorruptedStream reports whether err means the replication link must be
// reset.
func IsCorruptedStream(err error) bool {
	return errors.Is(err, binlog.ErrCorruptedStream)
}
