package rpc

import (
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/vx-labs/kvrepl/binlog"
	"github.com/vx-labs/kvrepl/commands"
	"github.com/vx-labs/kvrepl/repl"
	"github.com/vx-labs/kvrepl/storage"
)

type ExecRequest struct {
	Args [][]byte `protobuf:"bytes,1,rep,name=args,proto3" json:"args,omitempty"`
}

func (m *ExecRequest) Reset()         { *m = ExecRequest{} }
func (m *ExecRequest) String() string { return proto.CompactTextString(m) }
func (*ExecRequest) ProtoMessage()    {}

type KV struct {
	Key   []byte `protobuf:"bytes,1,opt,name=key,proto3" json:"key,omitempty"`
	Value []byte `protobuf:"bytes,2,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *KV) Reset()         { *m = KV{} }
func (m *KV) String() string { return proto.CompactTextString(m) }
func (*KV) ProtoMessage()    {}

type BackupInfo struct {
	StoreID uint32 `protobuf:"varint,1,opt,name=store_id,json=storeId,proto3" json:"store_id,omitempty"`
	Path    string `protobuf:"bytes,2,opt,name=path,proto3" json:"path,omitempty"`
	Size    uint64 `protobuf:"varint,3,opt,name=size,proto3" json:"size,omitempty"`
	Version uint64 `protobuf:"varint,4,opt,name=version,proto3" json:"version,omitempty"`
}

func (m *BackupInfo) Reset()         { *m = BackupInfo{} }
func (m *BackupInfo) String() string { return proto.CompactTextString(m) }
func (*BackupInfo) ProtoMessage()    {}

type Reply struct {
	OK           bool          `protobuf:"varint,1,opt,name=ok,proto3" json:"ok,omitempty"`
	NextBinlogID uint64        `protobuf:"varint,2,opt,name=next_binlog_id,json=nextBinlogId,proto3" json:"next_binlog_id,omitempty"`
	Binlogs      []*KV         `protobuf:"bytes,3,rep,name=binlogs,proto3" json:"binlogs,omitempty"`
	Backups      []*BackupInfo `protobuf:"bytes,4,rep,name=backups,proto3" json:"backups,omitempty"`
}

func (m *Reply) Reset()         { *m = Reply{} }
func (m *Reply) String() string { return proto.CompactTextString(m) }
func (*Reply) ProtoMessage()    {}

type StatusRequest struct{}

func (m *StatusRequest) Reset()         { *m = StatusRequest{} }
func (m *StatusRequest) String() string { return proto.CompactTextString(m) }
func (*StatusRequest) ProtoMessage()    {}

type Source struct {
	Host          string `protobuf:"bytes,1,opt,name=host,proto3" json:"host,omitempty"`
	Port          uint32 `protobuf:"varint,2,opt,name=port,proto3" json:"port,omitempty"`
	SourceStoreID uint32 `protobuf:"varint,3,opt,name=source_store_id,json=sourceStoreId,proto3" json:"source_store_id,omitempty"`
}

func (m *Source) Reset()         { *m = Source{} }
func (m *Source) String() string { return proto.CompactTextString(m) }
func (*Source) ProtoMessage()    {}

type StoreStatus struct {
	StoreID          uint32  `protobuf:"varint,1,opt,name=store_id,json=storeId,proto3" json:"store_id,omitempty"`
	Source           *Source `protobuf:"bytes,2,opt,name=source,proto3" json:"source,omitempty"`
	State            int32   `protobuf:"varint,3,opt,name=state,proto3" json:"state,omitempty"`
	BinlogPos        uint64  `protobuf:"varint,4,opt,name=binlog_pos,json=binlogPos,proto3" json:"binlog_pos,omitempty"`
	LastSession      string  `protobuf:"bytes,5,opt,name=last_session,json=lastSession,proto3" json:"last_session,omitempty"`
	AppliedTxns      uint64  `protobuf:"varint,6,opt,name=applied_txns,json=appliedTxns,proto3" json:"applied_txns,omitempty"`
	LastAppliedTxnID uint64  `protobuf:"varint,7,opt,name=last_applied_txn_id,json=lastAppliedTxnId,proto3" json:"last_applied_txn_id,omitempty"`
	LastSync         int64   `protobuf:"varint,8,opt,name=last_sync,json=lastSync,proto3" json:"last_sync,omitempty"`
	LastError        string  `protobuf:"bytes,9,opt,name=last_error,json=lastError,proto3" json:"last_error,omitempty"`
}

func (m *StoreStatus) Reset()         { *m = StoreStatus{} }
func (m *StoreStatus) String() string { return proto.CompactTextString(m) }
func (*StoreStatus) ProtoMessage()    {}

type StatusResponse struct {
	Paused bool           `protobuf:"varint,1,opt,name=paused,proto3" json:"paused,omitempty"`
	Stores []*StoreStatus `protobuf:"bytes,2,rep,name=stores,proto3" json:"stores,omitempty"`
}

func (m *StatusResponse) Reset()         { *m = StatusResponse{} }
func (m *StatusResponse) String() string { return proto.CompactTextString(m) }
func (*StatusResponse) ProtoMessage()    {}

func toReply(r commands.Reply) *Reply {
	out := &Reply{
		OK:           r.OK,
		NextBinlogID: r.NextBinlogID,
		Binlogs:      make([]*KV, len(r.Binlogs)),
		Backups:      make([]*BackupInfo, len(r.Backups)),
	}
	for idx, kv := range r.Binlogs {
		out.Binlogs[idx] = &KV{Key: kv.Key, Value: kv.Value}
	}
	for idx, b := range r.Backups {
		out.Backups[idx] = &BackupInfo{StoreID: b.StoreID, Path: b.Path, Size: b.Size, Version: b.Version}
	}
	return out
}

func fromReply(r *Reply) commands.Reply {
	out := commands.Reply{
		OK:           r.OK,
		NextBinlogID: r.NextBinlogID,
	}
	if len(r.Binlogs) > 0 {
		out.Binlogs = make([]binlog.KV, len(r.Binlogs))
		for idx, kv := range r.Binlogs {
			out.Binlogs[idx] = binlog.KV{Key: kv.Key, Value: kv.Value}
		}
	}
	for _, b := range r.Backups {
		out.Backups = append(out.Backups, storage.BackupInfo{StoreID: b.StoreID, Path: b.Path, Size: b.Size, Version: b.Version})
	}
	return out
}

func toStoreStatus(st repl.StoreStatus) *StoreStatus {
	out := &StoreStatus{
		StoreID: st.StoreID,
		Source: &Source{
			Host:          st.Source.Host,
			Port:          uint32(st.Source.Port),
			SourceStoreID: st.Source.SourceStoreID,
		},
		State:            int32(st.State),
		BinlogPos:        st.BinlogPos,
		LastSession:      st.LastSession,
		AppliedTxns:      st.AppliedTxns,
		LastAppliedTxnID: st.LastAppliedTxnID,
		LastError:        st.LastError,
	}
	if !st.LastSync.IsZero() {
		out.LastSync = st.LastSync.UnixNano()
	}
	return out
}

func fromStoreStatus(st *StoreStatus) repl.StoreStatus {
	out := repl.StoreStatus{
		StoreID:          st.StoreID,
		State:            repl.SyncState(st.State),
		BinlogPos:        st.BinlogPos,
		LastSession:      st.LastSession,
		AppliedTxns:      st.AppliedTxns,
		LastAppliedTxnID: st.LastAppliedTxnID,
		LastError:        st.LastError,
	}
	if st.Source != nil {
		out.Source = repl.Source{
			Host:          st.Source.Host,
			Port:          uint16(st.Source.Port),
			SourceStoreID: st.Source.SourceStoreID,
		}
	}
	if st.LastSync != 0 {
		out.LastSync = time.Unix(0, st.LastSync)
	}
	return out
}
