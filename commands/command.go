package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vx-labs/kvrepl/binlog"
)

type Kind int

const (
	KindBackup Kind = iota
	KindFullSync
	KindToggleIncrSync
	KindIncrSync
	KindPullBinlogs
	KindRestoreBinlog
	KindApplyBinlogs
	KindSlaveof
)

var kindNames = []string{
	KindBackup:         "backup",
	KindFullSync:       "fullsync",
	KindToggleIncrSync: "toggleincrsync",
	KindIncrSync:       "incrsync",
	KindPullBinlogs:    "pullbinlogs",
	KindRestoreBinlog:  "restorebinlog",
	KindApplyBinlogs:   "applybinlogs",
	KindSlaveof:        "slaveof",
}

// arities follow the redis convention: a negative arity -N means at least N
// arguments, command name included.
var arities = []int{
	KindBackup:         2,
	KindFullSync:       2,
	KindToggleIncrSync: 2,
	KindIncrSync:       4,
	KindPullBinlogs:    3,
	KindRestoreBinlog:  -4,
	KindApplyBinlogs:   -2,
	KindSlaveof:        -3,
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func LookupKind(name string) (Kind, bool) {
	name = strings.ToLower(name)
	for idx, n := range kindNames {
		if n == name {
			return Kind(idx), true
		}
	}
	return 0, false
}

// Command is one of Backup, FullSync, ToggleIncrSync, IncrSync, PullBinlogs,
// RestoreBinlog, ApplyBinlogs or Slaveof.
type Command interface {
	Kind() Kind
	isCommand()
}

type Backup struct {
	Dir string
}

// FullSync is only ever driven by the replication manager.
type FullSync struct{}

type ToggleIncrSync struct {
	Enabled bool
}

// IncrSync is only ever driven by the replication manager.
type IncrSync struct{}

type PullBinlogs struct {
	StoreID uint32
	From    uint64
}

type RestoreBinlog struct {
	StoreID uint32
	Logs    []binlog.KV
}

type ApplyBinlogs struct {
	StoreID uint32
	Logs    []binlog.KV
}

// Slaveof attaches stores to a source, or detaches them when Detach is set.
// All selects every store; otherwise StoreID (and SourceStoreID when
// attaching) name the one store to change.
type Slaveof struct {
	Detach        bool
	All           bool
	Host          string
	Port          uint16
	StoreID       uint32
	SourceStoreID uint32
}

func (Backup) Kind() Kind         { return KindBackup }
func (FullSync) Kind() Kind       { return KindFullSync }
func (ToggleIncrSync) Kind() Kind { return KindToggleIncrSync }
func (IncrSync) Kind() Kind       { return KindIncrSync }
func (PullBinlogs) Kind() Kind    { return KindPullBinlogs }
func (RestoreBinlog) Kind() Kind  { return KindRestoreBinlog }
func (ApplyBinlogs) Kind() Kind   { return KindApplyBinlogs }
func (Slaveof) Kind() Kind        { return KindSlaveof }

func (Backup) isCommand()         {}
func (FullSync) isCommand()       {}
func (ToggleIncrSync) isCommand() {}
func (IncrSync) isCommand()       {}
func (PullBinlogs) isCommand()    {}
func (RestoreBinlog) isCommand()  {}
func (ApplyBinlogs) isCommand()   {}
func (Slaveof) isCommand()        {}

func checkArity(kind Kind, argc int) error {
	arity := arities[kind]
	if (arity >= 0 && argc != arity) || (arity < 0 && argc < -arity) {
		return paramError("wrong number of arguments for '%s' command", kind)
	}
	return nil
}

func parseUint(arg []byte, bitSize int) (uint64, error) {
	v, err := strconv.ParseUint(string(arg), 10, bitSize)
	if err != nil {
		return 0, paramError("invalid integer %q", string(arg))
	}
	return v, nil
}

func parseStoreID(arg []byte) (uint32, error) {
	v, err := parseUint(arg, 32)
	return uint32(v), err
}

func parsePairs(args [][]byte) ([]binlog.KV, error) {
	if len(args)%2 != 0 {
		return nil, paramError("invalid param len")
	}
	out := make([]binlog.KV, len(args)/2)
	for idx := range out {
		out[idx] = binlog.KV{Key: args[2*idx], Value: args[2*idx+1]}
	}
	return out, nil
}

// Parse turns a command line into a Command.
func Parse(args [][]byte) (Command, error) {
	if len(args) == 0 {
		return nil, paramError("empty command")
	}
	kind, ok := LookupKind(string(args[0]))
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownCommand, string(args[0]))
	}
	if err := checkArity(kind, len(args)); err != nil {
		return nil, err
	}
	switch kind {
	case KindBackup:
		return Backup{Dir: string(args[1])}, nil
	case KindFullSync:
		return FullSync{}, nil
	case KindIncrSync:
		return IncrSync{}, nil
	case KindToggleIncrSync:
		state, err := parseUint(args[1], 64)
		if err != nil {
			return nil, err
		}
		return ToggleIncrSync{Enabled: state != 0}, nil
	case KindPullBinlogs:
		storeID, err := parseStoreID(args[1])
		if err != nil {
			return nil, err
		}
		from, err := parseUint(args[2], 64)
		if err != nil {
			return nil, err
		}
		return PullBinlogs{StoreID: storeID, From: from}, nil
	case KindRestoreBinlog, KindApplyBinlogs:
		storeID, err := parseStoreID(args[1])
		if err != nil {
			return nil, err
		}
		logs, err := parsePairs(args[2:])
		if err != nil {
			return nil, err
		}
		if kind == KindRestoreBinlog {
			return RestoreBinlog{StoreID: storeID, Logs: logs}, nil
		}
		return ApplyBinlogs{StoreID: storeID, Logs: logs}, nil
	case KindSlaveof:
		return parseSlaveof(args)
	}
	return nil, fmt.Errorf("%w '%s'", ErrUnknownCommand, kind)
}

// slaveof no one
// slaveof no one myStoreId
// slaveof ip port
// slaveof ip port myStoreId sourceStoreId
//
// "slaveof no one" followed by anything but exactly one store id detaches
// every store.
func parseSlaveof(args [][]byte) (Command, error) {
	if strings.ToLower(string(args[1])) == "no" && strings.ToLower(string(args[2])) == "one" {
		if len(args) != 4 {
			return Slaveof{Detach: true, All: true}, nil
		}
		storeID, err := parseStoreID(args[3])
		if err != nil {
			return nil, err
		}
		return Slaveof{Detach: true, StoreID: storeID}, nil
	}
	port, err := parseUint(args[2], 16)
	if err != nil {
		return nil, err
	}
	cmd := Slaveof{Host: string(args[1]), Port: uint16(port)}
	switch len(args) {
	case 3:
		cmd.All = true
		return cmd, nil
	case 5:
		cmd.StoreID, err = parseStoreID(args[3])
		if err != nil {
			return nil, err
		}
		cmd.SourceStoreID, err = parseStoreID(args[4])
		if err != nil {
			return nil, err
		}
		return cmd, nil
	default:
		return nil, paramError("bad argument num")
	}
}

// Args renders cmd back to a command line.
func Args(cmd Command) [][]byte {
	out := [][]byte{[]byte(cmd.Kind().String())}
	u := func(v uint64) []byte { return []byte(strconv.FormatUint(v, 10)) }
	switch c := cmd.(type) {
	case Backup:
		out = append(out, []byte(c.Dir))
	case ToggleIncrSync:
		if c.Enabled {
			out = append(out, u(1))
		} else {
			out = append(out, u(0))
		}
	case PullBinlogs:
		out = append(out, u(uint64(c.StoreID)), u(c.From))
	case RestoreBinlog:
		out = append(out, u(uint64(c.StoreID)))
		for _, kv := range c.Logs {
			out = append(out, kv.Key, kv.Value)
		}
	case ApplyBinlogs:
		out = append(out, u(uint64(c.StoreID)))
		for _, kv := range c.Logs {
			out = append(out, kv.Key, kv.Value)
		}
	case Slaveof:
		if c.Detach {
			out = append(out, []byte("no"), []byte("one"))
			if !c.All {
				out = append(out, u(uint64(c.StoreID)))
			}
		} else {
			out = append(out, []byte(c.Host), u(uint64(c.Port)))
			if !c.All {
				out = append(out, u(uint64(c.StoreID)), u(uint64(c.SourceStoreID)))
			}
		}
	}
	return out
}
