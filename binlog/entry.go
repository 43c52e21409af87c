package binlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	pkgerrors "github.com/pkg/errors"
)

var (
	ErrInvalidRecord = errors.New("invalid binlog record")
	encoding         = binary.BigEndian
)

const (
	checksumSize int = 4
	// KeySize is the size of an encoded ReplLogKey.
	KeySize int = 8 + 2 + 2 + 4
	// TxnIDUninited is never assigned to a committed transaction.
	TxnIDUninited uint64 = 0
)

type ReplFlag uint16

const (
	ReplGroupStart ReplFlag = 1 << iota
	ReplGroupEnd
)

func (f ReplFlag) Has(o ReplFlag) bool { return f&o == o }

type ReplOp uint8

const (
	ReplOpSet ReplOp = iota + 1
	ReplOpDel
)

func (o ReplOp) String() string {
	switch o {
	case ReplOpSet:
		return "set"
	case ReplOpDel:
		return "del"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// ReplLogKey identifies one record of a committed transaction.
type ReplLogKey struct {
	TxnID     uint64
	LocalID   uint16
	Flag      ReplFlag
	Timestamp uint32
}

// ReplLogValue is the key-level mutation a record carries.
type ReplLogValue struct {
	Op      ReplOp
	OpKey   []byte
	OpValue []byte
}

type ReplLog struct {
	Key   ReplLogKey
	Value ReplLogValue
}

// KV is the opaque wire form of a ReplLog.
type KV struct {
	Key   []byte `json:"k"`
	Value []byte `json:"v"`
}

func (k ReplLogKey) Encode() []byte {
	buf := make([]byte, KeySize)
	encoding.PutUint64(buf[0:8], k.TxnID)
	encoding.PutUint16(buf[8:10], k.LocalID)
	encoding.PutUint16(buf[10:12], uint16(k.Flag))
	encoding.PutUint32(buf[12:16], k.Timestamp)
	return buf
}

func DecodeKey(buf []byte) (ReplLogKey, error) {
	if len(buf) != KeySize {
		return ReplLogKey{}, pkgerrors.Wrapf(ErrInvalidRecord, "key size %d", len(buf))
	}
	return ReplLogKey{
		TxnID:     encoding.Uint64(buf[0:8]),
		LocalID:   encoding.Uint16(buf[8:10]),
		Flag:      ReplFlag(encoding.Uint16(buf[10:12])),
		Timestamp: encoding.Uint32(buf[12:16]),
	}, nil
}

func (v ReplLogValue) Encode() []byte {
	body := make([]byte, 1+binary.MaxVarintLen64, 1+binary.MaxVarintLen64+len(v.OpKey)+len(v.OpValue))
	body[0] = byte(v.Op)
	n := binary.PutUvarint(body[1:], uint64(len(v.OpKey)))
	body = body[:1+n]
	body = append(body, v.OpKey...)
	body = append(body, v.OpValue...)

	buf := make([]byte, checksumSize+len(body))
	encoding.PutUint32(buf[0:checksumSize], crc32.ChecksumIEEE(body))
	copy(buf[checksumSize:], body)
	return buf
}

func DecodeValue(buf []byte) (ReplLogValue, error) {
	if len(buf) < checksumSize+2 {
		return ReplLogValue{}, pkgerrors.Wrap(ErrInvalidRecord, "value too short")
	}
	body := buf[checksumSize:]
	if crc32.ChecksumIEEE(body) != encoding.Uint32(buf[0:checksumSize]) {
		return ReplLogValue{}, pkgerrors.Wrap(ErrInvalidRecord, "checksum mismatch")
	}
	op := ReplOp(body[0])
	if op != ReplOpSet && op != ReplOpDel {
		return ReplLogValue{}, pkgerrors.Wrapf(ErrInvalidRecord, "invalid replop %d", body[0])
	}
	keyLen, n := binary.Uvarint(body[1:])
	if n <= 0 || uint64(len(body)-1-n) < keyLen {
		return ReplLogValue{}, pkgerrors.Wrap(ErrInvalidRecord, "truncated op key")
	}
	if keyLen == 0 {
		return ReplLogValue{}, pkgerrors.Wrap(ErrInvalidRecord, "empty op key")
	}
	start := 1 + n
	v := ReplLogValue{
		Op:    op,
		OpKey: copyBytes(body[start : start+int(keyLen)]),
	}
	if rest := body[start+int(keyLen):]; len(rest) > 0 {
		if op == ReplOpDel {
			return ReplLogValue{}, pkgerrors.Wrap(ErrInvalidRecord, "del record carries a value")
		}
		v.OpValue = copyBytes(rest)
	}
	return v, nil
}

func (r ReplLog) Encode() KV {
	return KV{Key: r.Key.Encode(), Value: r.Value.Encode()}
}

func Decode(key, value []byte) (ReplLog, error) {
	k, err := DecodeKey(key)
	if err != nil {
		return ReplLog{}, err
	}
	v, err := DecodeValue(value)
	if err != nil {
		return ReplLog{}, pkgerrors.Wrapf(err, "txn %d record %d", k.TxnID, k.LocalID)
	}
	return ReplLog{Key: k, Value: v}, nil
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
