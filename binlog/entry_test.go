package binlog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReplLog(t *testing.T) {
	set := ReplLog{
		Key:   ReplLogKey{TxnID: 10, LocalID: 0, Flag: ReplGroupStart, Timestamp: 1234},
		Value: ReplLogValue{Op: ReplOpSet, OpKey: []byte("a"), OpValue: []byte("b")},
	}
	del := ReplLog{
		Key:   ReplLogKey{TxnID: 10, LocalID: 1, Flag: ReplGroupEnd},
		Value: ReplLogValue{Op: ReplOpDel, OpKey: []byte("a")},
	}
	t.Run("should decode what was encoded", func(t *testing.T) {
		for _, log := range []ReplLog{set, del} {
			kv := log.Encode()
			out, err := Decode(kv.Key, kv.Value)
			require.NoError(t, err)
			require.Equal(t, log, out)
		}
	})
	t.Run("should sort keys by transaction then position", func(t *testing.T) {
		a := ReplLogKey{TxnID: 1, LocalID: 2, Flag: ReplGroupEnd}.Encode()
		b := ReplLogKey{TxnID: 2, LocalID: 0, Flag: ReplGroupStart}.Encode()
		require.Equal(t, -1, compare(a, b))
	})
	t.Run("should reject a corrupted value", func(t *testing.T) {
		kv := set.Encode()
		kv.Value[len(kv.Value)-1] ^= 0xff
		_, err := Decode(kv.Key, kv.Value)
		require.True(t, errors.Is(err, ErrInvalidRecord))
	})
	t.Run("should reject a truncated key", func(t *testing.T) {
		kv := set.Encode()
		_, err := Decode(kv.Key[:KeySize-1], kv.Value)
		require.True(t, errors.Is(err, ErrInvalidRecord))
	})
	t.Run("should reject an unknown operation", func(t *testing.T) {
		kv := ReplLog{Key: set.Key, Value: ReplLogValue{Op: 9, OpKey: []byte("a")}}.Encode()
		_, err := Decode(kv.Key, kv.Value)
		require.True(t, errors.Is(err, ErrInvalidRecord))
	})
	t.Run("should reject an empty op key", func(t *testing.T) {
		kv := ReplLog{Key: set.Key, Value: ReplLogValue{Op: ReplOpDel}}.Encode()
		_, err := Decode(kv.Key, kv.Value)
		require.True(t, errors.Is(err, ErrInvalidRecord))
	})
}

func compare(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
