package storage

import (
	"errors"
	"math"

	"github.com/dgraph-io/badger"
	pkgerrors "github.com/pkg/errors"
	"github.com/vx-labs/kvrepl/binlog"
)

var (
	ErrTxnDone    = errors.New("transaction already finished")
	ErrTxnTooBig  = errors.New("transaction has too many operations")
	maxTxnRecords = math.MaxUint16
)

// Transaction buffers key mutations and their binlog records. Commit writes
// both atomically; the binlog records are numbered with the transaction id
// assigned at commit time.
type Transaction interface {
	SetKV(key, value []byte, ts uint32) error
	DelKV(key []byte, ts uint32) error
	GetKV(key []byte) ([]byte, error)
	Commit() (uint64, error)
	Rollback()
	CreateBinlogCursor(start uint64) BinlogCursor
}

type pendingLog struct {
	ts    uint32
	value binlog.ReplLogValue
}

type transaction struct {
	store *kvStore
	txn   *badger.Txn
	logs  []pendingLog
	done  bool
}

func (t *transaction) record(ts uint32, v binlog.ReplLogValue) error {
	if len(t.logs) >= maxTxnRecords {
		return ErrTxnTooBig
	}
	t.logs = append(t.logs, pendingLog{ts: ts, value: v})
	return nil
}

func (t *transaction) SetKV(key, value []byte, ts uint32) error {
	if t.done {
		return ErrTxnDone
	}
	v := binlog.ReplLogValue{Op: binlog.ReplOpSet, OpKey: copyBytes(key), OpValue: copyBytes(value)}
	if err := t.record(ts, v); err != nil {
		return err
	}
	return t.txn.Set(dataKey(key), v.OpValue)
}

func (t *transaction) DelKV(key []byte, ts uint32) error {
	if t.done {
		return ErrTxnDone
	}
	v := binlog.ReplLogValue{Op: binlog.ReplOpDel, OpKey: copyBytes(key)}
	if err := t.record(ts, v); err != nil {
		return err
	}
	return t.txn.Delete(dataKey(key))
}

func (t *transaction) GetKV(key []byte) ([]byte, error) {
	if t.done {
		return nil, ErrTxnDone
	}
	item, err := t.txn.Get(dataKey(key))
	if err == badger.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *transaction) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.txn.Discard()
}

func (t *transaction) Commit() (uint64, error) {
	if t.done {
		return 0, ErrTxnDone
	}
	t.done = true
	defer t.txn.Discard()
	if len(t.logs) == 0 {
		return binlog.TxnIDUninited, t.txn.Commit()
	}

	t.store.commitMtx.Lock()
	defer t.store.commitMtx.Unlock()
	id, err := t.store.nextTxnID()
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to assign transaction id")
	}
	last := len(t.logs) - 1
	for idx, pending := range t.logs {
		key := binlog.ReplLogKey{TxnID: id, LocalID: uint16(idx), Timestamp: pending.ts}
		if idx == 0 {
			key.Flag |= binlog.ReplGroupStart
		}
		if idx == last {
			key.Flag |= binlog.ReplGroupEnd
		}
		err = t.txn.Set(binlogKey(key), pending.value.Encode())
		if err != nil {
			return 0, pkgerrors.Wrap(err, "failed to write binlog")
		}
	}
	err = t.txn.Commit()
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to commit txn %d", id)
	}
	return id, nil
}

func (t *transaction) CreateBinlogCursor(start uint64) BinlogCursor {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 256
	return &binlogCursor{
		start: start,
		it:    t.txn.NewIterator(opts),
	}
}

func binlogKey(k binlog.ReplLogKey) []byte {
	return append(append([]byte{}, binlogPrefixBytes...), k.Encode()...)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
