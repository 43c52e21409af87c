package storage

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vx-labs/kvrepl/binlog"
)

func openTestStore(t *testing.T, id uint32) (KVStore, func()) {
	datadir, err := ioutil.TempDir("", "kvrepl-store")
	require.NoError(t, err)
	s := New(id, datadir, WithValueLogFileSize(1<<20), WithSyncWrites(false))
	require.NoError(t, s.Open())
	return s, func() {
		s.Close()
		os.RemoveAll(datadir)
	}
}

func drain(t *testing.T, s KVStore, from uint64) []binlog.ReplLog {
	txn, err := s.CreateTransaction()
	require.NoError(t, err)
	defer txn.Rollback()
	cursor := txn.CreateBinlogCursor(from)
	defer cursor.Close()
	out := []binlog.ReplLog{}
	for {
		log, err := cursor.Next()
		if err == ErrExhaust {
			return out
		}
		require.NoError(t, err)
		out = append(out, log)
	}
}

func TestStore(t *testing.T) {
	s, cleanup := openTestStore(t, 3)
	defer cleanup()

	t.Run("should commit mutations and their binlog", func(t *testing.T) {
		txn, err := s.CreateTransaction()
		require.NoError(t, err)
		require.NoError(t, txn.SetKV([]byte("a"), []byte("1"), 10))
		require.NoError(t, txn.SetKV([]byte("b"), []byte("2"), 10))
		require.NoError(t, txn.DelKV([]byte("a"), 10))
		id, err := txn.Commit()
		require.NoError(t, err)
		require.Equal(t, uint64(1), id)

		logs := drain(t, s, 0)
		require.Equal(t, 3, len(logs))
		require.True(t, logs[0].Key.Flag.Has(binlog.ReplGroupStart))
		require.False(t, logs[1].Key.Flag.Has(binlog.ReplGroupStart))
		require.False(t, logs[1].Key.Flag.Has(binlog.ReplGroupEnd))
		require.True(t, logs[2].Key.Flag.Has(binlog.ReplGroupEnd))
		require.Equal(t, binlog.ReplOpDel, logs[2].Value.Op)
		require.Equal(t, uint32(10), logs[0].Key.Timestamp)
	})
	t.Run("should read committed values", func(t *testing.T) {
		txn, err := s.CreateTransaction()
		require.NoError(t, err)
		defer txn.Rollback()
		_, err = txn.GetKV([]byte("a"))
		require.Equal(t, ErrKeyNotFound, err)
		v, err := txn.GetKV([]byte("b"))
		require.NoError(t, err)
		require.Equal(t, []byte("2"), v)
	})
	t.Run("should not persist rolled back mutations", func(t *testing.T) {
		txn, err := s.CreateTransaction()
		require.NoError(t, err)
		require.NoError(t, txn.SetKV([]byte("c"), []byte("3"), 0))
		txn.Rollback()
		_, err = txn.Commit()
		require.Equal(t, ErrTxnDone, err)
		require.Equal(t, 3, len(drain(t, s, 0)))
	})
	t.Run("should assign increasing transaction ids", func(t *testing.T) {
		txn, err := s.CreateTransaction()
		require.NoError(t, err)
		require.NoError(t, txn.SetKV([]byte("d"), []byte("4"), 0))
		id, err := txn.Commit()
		require.NoError(t, err)
		require.Equal(t, uint64(2), id)
		logs := drain(t, s, 2)
		require.Equal(t, 1, len(logs))
		require.Equal(t, binlog.ReplGroupStart|binlog.ReplGroupEnd, logs[0].Key.Flag)
	})
	t.Run("should return an empty cursor past the last transaction", func(t *testing.T) {
		require.Equal(t, 0, len(drain(t, s, 3)))
	})
}

func TestStore_Closed(t *testing.T) {
	datadir, err := ioutil.TempDir("", "kvrepl-store")
	require.NoError(t, err)
	defer os.RemoveAll(datadir)
	s := New(0, datadir)
	require.False(t, s.IsOpen())
	_, err = s.CreateTransaction()
	require.Equal(t, ErrStoreClosed, err)
	_, err = s.Backup(datadir, BackupCopy)
	require.Equal(t, ErrStoreClosed, err)
}

func TestStore_Backup(t *testing.T) {
	s, cleanup := openTestStore(t, 7)
	defer cleanup()
	txn, err := s.CreateTransaction()
	require.NoError(t, err)
	require.NoError(t, txn.SetKV([]byte("a"), []byte("1"), 0))
	_, err = txn.Commit()
	require.NoError(t, err)

	dir, err := ioutil.TempDir("", "kvrepl-backup")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	t.Run("should write a backup file per store", func(t *testing.T) {
		info, err := s.Backup(dir, BackupCopy)
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, "7", "backup.badger"), info.Path)
		require.True(t, info.Size > 0)
		stat, err := os.Stat(info.Path)
		require.NoError(t, err)
		require.Equal(t, int64(info.Size), stat.Size())
	})
	t.Run("should overwrite a previous backup", func(t *testing.T) {
		_, err := s.Backup(dir, BackupCopy)
		require.NoError(t, err)
		files, err := ioutil.ReadDir(filepath.Join(dir, "7"))
		require.NoError(t, err)
		require.Equal(t, 1, len(files))
	})
	t.Run("should reject unknown modes", func(t *testing.T) {
		_, err := s.Backup(dir, BackupMode(42))
		require.Equal(t, ErrUnknownBackup, err)
	})
}
