package storage

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/vx-labs/kvrepl/binlog"
)

var (
	// ErrExhaust is returned by BinlogCursor.Next once every record
	// committed at cursor creation time was delivered.
	ErrExhaust = errors.New("binlog cursor exhausted")
)

// BinlogCursor iterates over a store's binlog in transaction id order.
type BinlogCursor interface {
	Next() (binlog.ReplLog, error)
	Close() error
}

type binlogCursor struct {
	mtx     sync.Mutex
	start   uint64
	started bool
	closed  bool
	it      *badger.Iterator
}

func (c *binlogCursor) seekKey() []byte {
	buf := make([]byte, 1+8)
	buf[0] = binlogPrefixBytes[0]
	binary.BigEndian.PutUint64(buf[1:], c.start)
	return buf
}

func (c *binlogCursor) Next() (binlog.ReplLog, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return binlog.ReplLog{}, ErrExhaust
	}
	if !c.started {
		c.it.Seek(c.seekKey())
		c.started = true
	} else {
		c.it.Next()
	}
	if !c.it.ValidForPrefix(binlogPrefixBytes) {
		return binlog.ReplLog{}, ErrExhaust
	}
	item := c.it.Item()
	key := item.KeyCopy(nil)
	value, err := item.ValueCopy(nil)
	if err != nil {
		return binlog.ReplLog{}, err
	}
	return binlog.Decode(key[1:], value)
}

func (c *binlogCursor) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.it.Close()
	return nil
}
