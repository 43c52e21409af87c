package segment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vx-labs/kvrepl/storage"
	"go.uber.org/goleak"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	storage.KVStore
	id       uint32
	open     bool
	closeErr error
}

func (f *fakeStore) ID() uint32   { return f.id }
func (f *fakeStore) IsOpen() bool { return f.open }
func (f *fakeStore) Close() error { f.open = false; return f.closeErr }

func testManager(stores ...*fakeStore) Manager {
	in := make([]storage.KVStore, len(stores))
	for idx := range stores {
		in[idx] = stores[idx]
	}
	return NewManager(in, zap.NewNop())
}

func TestManager_GetDb(t *testing.T) {
	m := testManager(&fakeStore{id: 0, open: true}, &fakeStore{id: 1})

	t.Run("should reject out of range store ids", func(t *testing.T) {
		_, err := m.GetDb("test", 2, LockIS, false)
		require.Equal(t, ErrInvalidStoreID, err)
		_, err = m.Store(2)
		require.Equal(t, ErrInvalidStoreID, err)
	})
	t.Run("should reject closed stores unless tolerated", func(t *testing.T) {
		_, err := m.GetDb("test", 1, LockX, false)
		require.Equal(t, ErrStoreNotOpen, err)
		db, err := m.GetDb("test", 1, LockX, true)
		require.NoError(t, err)
		require.False(t, db.Store.IsOpen())
		db.Release()
	})
	t.Run("should release the lock of a rejected store", func(t *testing.T) {
		db, err := m.GetDb("test", 1, LockX, true)
		require.NoError(t, err)
		db.Release()
		db.Release()
	})
	t.Run("should allow concurrent shared locks", func(t *testing.T) {
		a, err := m.GetDb("a", 0, LockIS, false)
		require.NoError(t, err)
		b, err := m.GetDb("b", 0, LockIS, false)
		require.NoError(t, err)
		a.Release()
		b.Release()
	})
	t.Run("should make writers wait for readers", func(t *testing.T) {
		reader, err := m.GetDb("reader", 0, LockIS, false)
		require.NoError(t, err)
		acquired := make(chan struct{})
		go func() {
			writer, err := m.GetDb("writer", 0, LockIX, false)
			if err == nil {
				close(acquired)
				writer.Release()
			}
		}()
		select {
		case <-acquired:
			t.Fatal("writer acquired the lock while a reader held it")
		case <-time.After(50 * time.Millisecond):
		}
		reader.Release()
		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("writer never acquired the lock")
		}
	})
	t.Run("should not share locks between stores", func(t *testing.T) {
		a, err := m.GetDb("a", 0, LockX, false)
		require.NoError(t, err)
		b, err := m.GetDb("b", 1, LockX, true)
		require.NoError(t, err)
		b.Release()
		a.Release()
	})
}

func TestManager_Close(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	m := testManager(&fakeStore{id: 0, open: true, closeErr: errA}, &fakeStore{id: 1, open: true}, &fakeStore{id: 2, open: true, closeErr: errB})
	err := m.Close()
	require.Equal(t, []error{errA, errB}, multierr.Errors(err))
}
