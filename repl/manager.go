package repl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/vx-labs/kvrepl/binlog"
	"github.com/vx-labs/kvrepl/segment"
	"github.com/vx-labs/kvrepl/stats"
	"github.com/vx-labs/kvrepl/storage"
	"go.uber.org/zap"
)

var (
	ErrSourceBusy = errors.New("explicit set sync source empty before change it")
	ErrNoDialer   = errors.New("no dialer configured")
)

type SyncState int

const (
	SyncNone SyncState = iota
	SyncConnect
	SyncConnected
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncNone:
		return "none"
	case SyncConnect:
		return "connect"
	case SyncConnected:
		return "connected"
	case SyncError:
		return "error"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// Source describes where a store replicates from. The zero value means the
// store is detached.
type Source struct {
	Host          string `json:"host"`
	Port          uint16 `json:"port"`
	SourceStoreID uint32 `json:"source_store_id"`
}

func (s Source) Detached() bool { return s.Host == "" }

type StoreStatus struct {
	StoreID          uint32    `json:"store_id"`
	Source           Source    `json:"source"`
	State            SyncState `json:"state"`
	BinlogPos        uint64    `json:"binlog_pos"`
	LastSession      string    `json:"last_session,omitempty"`
	AppliedTxns      uint64    `json:"applied_txns"`
	LastAppliedTxnID uint64    `json:"last_applied_txn_id"`
	LastSync         time.Time `json:"last_sync,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
}

type Manager interface {
	// ApplyBinlogs replays every group in its own local transaction. The
	// caller must hold the store lock in an exclusive mode.
	ApplyBinlogs(storeID uint32, sessionID string, groups []binlog.Group) error
	ChangeReplSource(storeID uint32, host string, port uint16, sourceStoreID uint32) error
	TogglePauseState(paused bool)
	Paused() bool
	Source(storeID uint32) (Source, error)
	Status() []StoreStatus
	SyncOnce(ctx context.Context, storeID uint32) error
}

type manager struct {
	mtx       sync.Mutex
	segments  segment.Manager
	dialer    Dialer
	sessionID string
	paused    bool
	stores    []*StoreStatus
	logger    *zap.Logger
}

func NewManager(segments segment.Manager, dialer Dialer, sessionID string, logger *zap.Logger) Manager {
	m := &manager{
		segments:  segments,
		dialer:    dialer,
		sessionID: sessionID,
		stores:    make([]*StoreStatus, segments.StoreCount()),
		logger:    logger,
	}
	for idx := range m.stores {
		m.stores[idx] = &StoreStatus{StoreID: uint32(idx)}
	}
	return m
}

func (m *manager) status(storeID uint32) (*StoreStatus, error) {
	if storeID >= uint32(len(m.stores)) {
		return nil, segment.ErrInvalidStoreID
	}
	return m.stores[storeID], nil
}

func (m *manager) TogglePauseState(paused bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.paused = paused
}

func (m *manager) Paused() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.paused
}

func (m *manager) Source(storeID uint32) (Source, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	st, err := m.status(storeID)
	if err != nil {
		return Source{}, err
	}
	return st.Source, nil
}

func (m *manager) Status() []StoreStatus {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]StoreStatus, len(m.stores))
	for idx := range m.stores {
		out[idx] = *m.stores[idx]
	}
	return out
}

func (m *manager) ChangeReplSource(storeID uint32, host string, port uint16, sourceStoreID uint32) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	st, err := m.status(storeID)
	if err != nil {
		return err
	}
	if host != "" && !st.Source.Detached() {
		return ErrSourceBusy
	}
	previous := st.Source
	st.Source = Source{Host: host, Port: port, SourceStoreID: sourceStoreID}
	st.BinlogPos = 0
	st.LastError = ""
	if host == "" {
		st.State = SyncNone
	} else {
		st.State = SyncConnect
	}
	stats.GaugeVec("binlogPosition").WithLabelValues(fmt.Sprintf("%d", storeID)).Set(0)
	m.logger.Info("replication source changed",
		zap.Uint32("store_id", storeID),
		zap.String("previous_source_host", previous.Host), zap.Uint16("previous_source_port", previous.Port),
		zap.String("source_host", host), zap.Uint16("source_port", port),
		zap.Uint32("source_store_id", sourceStoreID))
	return nil
}

func (m *manager) ApplyBinlogs(storeID uint32, sessionID string, groups []binlog.Group) error {
	_, err := m.applyBinlogs(storeID, sessionID, groups)
	return err
}

// applyBinlogs returns the number of groups committed before an error
// stopped it.
func (m *manager) applyBinlogs(storeID uint32, sessionID string, groups []binlog.Group) (int, error) {
	store, err := m.segments.Store(storeID)
	if err != nil {
		return 0, err
	}
	for idx, group := range groups {
		err := applySingleTxn(store, group)
		if err != nil {
			stats.CounterVec("transactionsApplied").WithLabelValues("failure").Inc()
			m.logger.Error("failed to apply binlog group",
				zap.Uint32("store_id", storeID), zap.String("session_id", sessionID),
				zap.Uint64("txn_id", group.TxnID), zap.Error(err))
			return idx, err
		}
		stats.CounterVec("transactionsApplied").WithLabelValues("success").Inc()
		m.mtx.Lock()
		st := m.stores[storeID]
		st.LastSession = sessionID
		st.AppliedTxns++
		st.LastAppliedTxnID = group.TxnID
		m.mtx.Unlock()
	}
	return len(groups), nil
}

func applySingleTxn(store storage.KVStore, group binlog.Group) error {
	txn, err := store.CreateTransaction()
	if err != nil {
		return err
	}
	for _, log := range group.Logs {
		switch log.Value.Op {
		case binlog.ReplOpSet:
			err = txn.SetKV(log.Value.OpKey, log.Value.OpValue, log.Key.Timestamp)
		case binlog.ReplOpDel:
			err = txn.DelKV(log.Value.OpKey, log.Key.Timestamp)
		default:
			err = pkgerrors.Wrapf(binlog.ErrInvalidRecord, "invalid replop %d", log.Value.Op)
		}
		if err != nil {
			txn.Rollback()
			return err
		}
	}
	_, err = txn.Commit()
	return err
}
