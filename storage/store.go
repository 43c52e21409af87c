package storage

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrStoreClosed    = errors.New("store is not open")
	ErrKeyNotFound    = errors.New("key not found")
	ErrUnknownBackup  = errors.New("unknown backup mode")
	txnIDSequenceKey  = []byte("!txnid")
	backupFileName    = "backup.badger"
	txnIDLeaseBlock   = uint64(1000)
	defaultVlogSize   = int64(64 << 20)
	dataPrefix        = byte('d')
	binlogPrefixBytes = []byte{'b'}
)

type BackupMode int

const (
	// BackupCopy writes a full, self-contained copy of the store.
	BackupCopy BackupMode = iota
)

type BackupInfo struct {
	StoreID uint32 `json:"store_id"`
	Path    string `json:"path"`
	Size    uint64 `json:"size"`
	Version uint64 `json:"version"`
}

type KVStore interface {
	io.Closer
	ID() uint32
	Open() error
	IsOpen() bool
	Datadir() string
	CreateTransaction() (Transaction, error)
	Backup(dir string, mode BackupMode) (BackupInfo, error)
}

type storeOpts struct {
	logger           *zap.Logger
	valueLogFileSize int64
	syncWrites       bool
}

type StoreOpt func(*storeOpts)

func WithLogger(l *zap.Logger) StoreOpt {
	return func(o *storeOpts) { o.logger = l }
}
func WithValueLogFileSize(v int64) StoreOpt {
	return func(o *storeOpts) { o.valueLogFileSize = v }
}
func WithSyncWrites(v bool) StoreOpt {
	return func(o *storeOpts) { o.syncWrites = v }
}

type kvStore struct {
	id        uint32
	datadir   string
	opts      storeOpts
	mtx       sync.RWMutex
	commitMtx sync.Mutex
	db        *badger.DB
	seq       *badger.Sequence
}

// New returns a store rooted at datadir. The store must be opened before use.
func New(id uint32, datadir string, opts ...StoreOpt) KVStore {
	config := storeOpts{
		logger:           zap.NewNop(),
		valueLogFileSize: defaultVlogSize,
		syncWrites:       true,
	}
	for _, opt := range opts {
		opt(&config)
	}
	config.logger = config.logger.With(zap.Uint32("store_id", id))
	return &kvStore{id: id, datadir: datadir, opts: config}
}

type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

func (s *kvStore) ID() uint32      { return s.id }
func (s *kvStore) Datadir() string { return s.datadir }

func (s *kvStore) IsOpen() bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.db != nil
}

func (s *kvStore) Open() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.db != nil {
		return nil
	}
	err := os.MkdirAll(s.datadir, 0750)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create store directory")
	}
	opts := badger.DefaultOptions(s.datadir)
	opts.Logger = badgerLogger{s.opts.logger.Sugar()}
	opts.ValueLogFileSize = s.opts.valueLogFileSize
	opts.SyncWrites = s.opts.syncWrites
	db, err := badger.Open(opts)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to open badger database")
	}
	seq, err := db.GetSequence(txnIDSequenceKey, txnIDLeaseBlock)
	if err != nil {
		db.Close()
		return pkgerrors.Wrap(err, "failed to lease transaction ids")
	}
	s.db = db
	s.seq = seq
	s.opts.logger.Debug("store opened", zap.String("store_datadir", s.datadir))
	return nil
}

func (s *kvStore) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.seq.Release()
	if err != nil {
		s.opts.logger.Warn("failed to release transaction id lease", zap.Error(err))
	}
	err = s.db.Close()
	s.db = nil
	s.seq = nil
	return err
}

func (s *kvStore) handle() (*badger.DB, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	return s.db, nil
}

func (s *kvStore) nextTxnID() (uint64, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.seq == nil {
		return 0, ErrStoreClosed
	}
	n, err := s.seq.Next()
	if err != nil {
		return 0, err
	}
	// 0 is reserved for binlog.TxnIDUninited.
	return n + 1, nil
}

func (s *kvStore) CreateTransaction() (Transaction, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return &transaction{store: s, txn: db.NewTransaction(true)}, nil
}

func (s *kvStore) Backup(dir string, mode BackupMode) (BackupInfo, error) {
	if mode != BackupCopy {
		return BackupInfo{}, ErrUnknownBackup
	}
	db, err := s.handle()
	if err != nil {
		return BackupInfo{}, err
	}
	target := filepath.Join(dir, fmt.Sprintf("%d", s.id))
	err = os.MkdirAll(target, 0750)
	if err != nil {
		return BackupInfo{}, pkgerrors.Wrap(err, "failed to create backup directory")
	}
	fd, err := ioutil.TempFile(target, "backup.*.tmp")
	if err != nil {
		return BackupInfo{}, pkgerrors.Wrap(err, "failed to create backup file")
	}
	defer os.Remove(fd.Name())
	version, err := db.Backup(fd, 0)
	if err == nil {
		err = fd.Sync()
	}
	if err != nil {
		fd.Close()
		return BackupInfo{}, pkgerrors.Wrap(err, "failed to write backup")
	}
	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return BackupInfo{}, err
	}
	err = fd.Close()
	if err != nil {
		return BackupInfo{}, err
	}
	out := filepath.Join(target, backupFileName)
	err = os.Rename(fd.Name(), out)
	if err != nil {
		return BackupInfo{}, pkgerrors.Wrap(err, "failed to move backup in place")
	}
	s.opts.logger.Info("store backed up", zap.String("backup_path", out), zap.Int64("backup_size", stat.Size()))
	return BackupInfo{
		StoreID: s.id,
		Path:    out,
		Size:    uint64(stat.Size()),
		Version: version,
	}, nil
}

func dataKey(key []byte) []byte {
	out := make([]byte, len(key)+1)
	out[0] = dataPrefix
	copy(out[1:], key)
	return out
}
