package segment

import (
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/vx-labs/kvrepl/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrInvalidStoreID = errors.New("invalid storeId")
	ErrStoreNotOpen   = errors.New("store is not open")
)

type LockMode int

const (
	// LockIS is taken by readers. Readers of a store run concurrently.
	LockIS LockMode = iota
	// LockIX is taken by writers replaying binlogs.
	LockIX
	// LockX is taken by topology changes.
	LockX
)

func (m LockMode) String() string {
	switch m {
	case LockIS:
		return "IS"
	case LockIX:
		return "IX"
	case LockX:
		return "X"
	default:
		return fmt.Sprintf("LockMode(%d)", int(m))
	}
}

func (m LockMode) shared() bool { return m == LockIS }

// DbWithLock gives access to a store while its lock is held.
type DbWithLock struct {
	Store     storage.KVStore
	Mode      LockMode
	Requester string
	release   func()
	once      sync.Once
}

// Release unlocks the store. It is safe to call more than once.
func (d *DbWithLock) Release() {
	d.once.Do(d.release)
}

type Manager interface {
	StoreCount() uint32
	GetDb(requester string, storeID uint32, mode LockMode, tolerateClosed bool) (*DbWithLock, error)
	// Store returns a store without locking it. Callers must already hold
	// the store lock.
	Store(storeID uint32) (storage.KVStore, error)
	Close() error
}

type entry struct {
	mtx   sync.RWMutex
	store storage.KVStore
}

type manager struct {
	stores []*entry
	logger *zap.Logger
}

func NewManager(stores []storage.KVStore, logger *zap.Logger) Manager {
	m := &manager{
		stores: make([]*entry, len(stores)),
		logger: logger,
	}
	for idx := range stores {
		m.stores[idx] = &entry{store: stores[idx]}
	}
	return m
}

// Open creates count stores under datadir and opens all of them except the
// ones listed in closed.
func Open(datadir string, count uint32, closed []uint32, logger *zap.Logger, opts ...storage.StoreOpt) (Manager, error) {
	skip := map[uint32]struct{}{}
	for _, id := range closed {
		skip[id] = struct{}{}
	}
	stores := make([]storage.KVStore, count)
	for idx := range stores {
		id := uint32(idx)
		stores[idx] = storage.New(id, path.Join(datadir, fmt.Sprintf("%d", id)), append([]storage.StoreOpt{storage.WithLogger(logger)}, opts...)...)
		if _, ok := skip[id]; ok {
			logger.Info("store left closed", zap.Uint32("store_id", id))
			continue
		}
		err := stores[idx].Open()
		if err != nil {
			for _, s := range stores[:idx] {
				s.Close()
			}
			return nil, err
		}
	}
	return NewManager(stores, logger), nil
}

func (m *manager) StoreCount() uint32 {
	return uint32(len(m.stores))
}

func (m *manager) Store(storeID uint32) (storage.KVStore, error) {
	if storeID >= m.StoreCount() {
		return nil, ErrInvalidStoreID
	}
	return m.stores[storeID].store, nil
}

func (m *manager) GetDb(requester string, storeID uint32, mode LockMode, tolerateClosed bool) (*DbWithLock, error) {
	if storeID >= m.StoreCount() {
		return nil, ErrInvalidStoreID
	}
	e := m.stores[storeID]
	var release func()
	if mode.shared() {
		e.mtx.RLock()
		release = e.mtx.RUnlock
	} else {
		e.mtx.Lock()
		release = e.mtx.Unlock
	}
	if !tolerateClosed && !e.store.IsOpen() {
		release()
		return nil, ErrStoreNotOpen
	}
	return &DbWithLock{
		Store:     e.store,
		Mode:      mode,
		Requester: requester,
		release:   release,
	}, nil
}

func (m *manager) Close() error {
	var err error
	for idx, e := range m.stores {
		e.mtx.Lock()
		if cerr := e.store.Close(); cerr != nil {
			m.logger.Error("failed to close store", zap.Int("store_id", idx), zap.Error(cerr))
			err = multierr.Append(err, cerr)
		}
		e.mtx.Unlock()
	}
	return err
}
