package binlog

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptedStream is matched by every FramingError. The stream a
	// FramingError came from cannot be trusted anymore and the replication
	// link carrying it must be reset.
	ErrCorruptedStream = errors.New("corrupted binlog stream")
)

// FramingError reports a transaction whose records are not delimited by
// ReplGroupStart and ReplGroupEnd.
type FramingError struct {
	TxnID  uint64
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("txnId:%d %s", e.TxnID, e.Reason)
}

func (e *FramingError) Is(target error) bool { return target == ErrCorruptedStream }

// Group holds the records of one transaction, in log order.
type Group struct {
	TxnID uint64
	Logs  []ReplLog
}

// Validate checks the group framing flags.
func (g Group) Validate() error {
	if len(g.Logs) == 0 {
		return &FramingError{TxnID: g.TxnID, Reason: "empty transaction"}
	}
	if !g.Logs[0].Key.Flag.Has(ReplGroupStart) {
		return &FramingError{TxnID: g.TxnID, Reason: "first record not marked begin"}
	}
	if !g.Logs[len(g.Logs)-1].Key.Flag.Has(ReplGroupEnd) {
		return &FramingError{TxnID: g.TxnID, Reason: "last record not marked end"}
	}
	return nil
}

// DecodeAll decodes wire pairs into records, failing on the first undecodable
// pair.
func DecodeAll(kvs []KV) ([]ReplLog, error) {
	out := make([]ReplLog, len(kvs))
	for idx := range kvs {
		log, err := Decode(kvs[idx].Key, kvs[idx].Value)
		if err != nil {
			return nil, err
		}
		out[idx] = log
	}
	return out, nil
}

// GroupLogs splits records by transaction id. Groups are returned in the
// order their first record arrived, and records keep their arrival order
// inside a group.
func GroupLogs(logs []ReplLog) []Group {
	index := map[uint64]int{}
	out := []Group{}
	for _, log := range logs {
		idx, ok := index[log.Key.TxnID]
		if !ok {
			idx = len(out)
			index[log.Key.TxnID] = idx
			out = append(out, Group{TxnID: log.Key.TxnID})
		}
		out[idx].Logs = append(out[idx].Logs, log)
	}
	return out
}

// ValidateGroups returns the first framing violation found in groups.
func ValidateGroups(groups []Group) error {
	for _, g := range groups {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// EncodeAll flattens records back to their wire form.
func EncodeAll(logs []ReplLog) []KV {
	out := make([]KV, len(logs))
	for idx := range logs {
		out[idx] = logs[idx].Encode()
	}
	return out
}
