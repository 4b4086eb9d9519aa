// Package store implements the embedded local-table side of the §6
// persistent-store boundary: address→protocol_info, token decimals,
// address metadata, searcher info, and builder info, all backed by a
// single goleveldb database (spec §6 "Persistent state layout: the local
// KV store uses tables listed in §3.3").
//
// Table layout mirrors the teacher's single-writer discipline
// (core/ledger.go): a single RWMutex guards the in-memory
// address→protocol_info snapshot and the pending-decimals set; the other
// tables are read and written straight through goleveldb with no mutex of
// their own. The address→protocol_info table is served from that
// monotonically growing snapshot so Discovery can append rows while
// classifiers are mid-block (spec §5 "reads see a monotonically growing
// view").
package store

import (
	"encoding/json"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"brontes/core/actions"
	"brontes/core/classifier"
	"brontes/core/metadata"
	"brontes/pkg/utils"
)

const (
	tblProtocol = "tbl:protocol:"
	tblToken    = "tbl:token:"
	tblAddrMeta = "tbl:addrmeta:"
	tblSearcher = "tbl:searcher:"
	tblBuilder  = "tbl:builder:"
)

// LocalKV is the embedded ordered key-value store for range-agnostic and
// per-block-appended tables (spec §6). It satisfies classifier.TokenDB and
// classifier.ProtocolRegistrar directly, and supplies the range-agnostic
// joins (TokenInfo/ProtocolInfo/AddressMetadata/SearcherInfo/BuilderInfo)
// that Warehouse folds into a full metadata.Store.
type LocalKV struct {
	db *leveldb.DB

	mu          sync.RWMutex // guards protocolSnapshot, pendingDecimals
	protocolVer uint64
	protocolSnapshot map[actions.Address]classifier.ProtocolInfo

	pendingDecimals map[actions.Address]bool
}

// OpenLocalKV opens (or creates) a goleveldb database at path and loads the
// protocol-info table into the in-memory snapshot that ProtocolOf reads
// under a read lock.
func OpenLocalKV(path string) (*LocalKV, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, utils.Wrap(err, "open local kv")
	}
	kv := &LocalKV{
		db:               db,
		protocolSnapshot: make(map[actions.Address]classifier.ProtocolInfo),
		pendingDecimals:  make(map[actions.Address]bool),
	}
	if err := kv.loadProtocolSnapshot(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return kv, nil
}

// Close releases the underlying database handle.
func (kv *LocalKV) Close() error {
	return kv.db.Close()
}

func (kv *LocalKV) loadProtocolSnapshot() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	iter := kv.db.NewIterator(util.BytesPrefix([]byte(tblProtocol)), nil)
	defer iter.Release()
	for iter.Next() {
		addr := actions.Address{}
		copy(addr[:], iter.Key()[len(tblProtocol):])
		var info classifier.ProtocolInfo
		if err := json.Unmarshal(iter.Value(), &info); err != nil {
			return utils.Wrap(err, "decode protocol_info row")
		}
		kv.protocolSnapshot[addr] = info
	}
	return iter.Error()
}

// RegisterProtocol implements classifier.ProtocolRegistrar: it writes the
// row to disk and appends it to the in-memory snapshot, bumping the
// snapshot version (spec §4.1 Discovery "adds a row to the address→
// protocol_info table").
func (kv *LocalKV) RegisterProtocol(addr actions.Address, info classifier.ProtocolInfo) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.protocolSnapshot[addr] = info
	kv.protocolVer++
	raw, _ := json.Marshal(info)
	_ = kv.db.Put(protocolKey(addr), raw, nil)
}

// ScheduleDecimalsLookup implements classifier.ProtocolRegistrar. A real
// deployment would enqueue an upstream RPC fetch; tests and the default
// pipeline wiring treat a pending entry as "unknown until TokenInfo is
// written via Put" (spec §4.1 "schedules a decimals lookup").
func (kv *LocalKV) ScheduleDecimalsLookup(token actions.Address) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.pendingDecimals[token] = true
}

// ProtocolOf implements classifier.TokenDB, reading from the in-memory
// snapshot under a read lock rather than from the database.
func (kv *LocalKV) ProtocolOf(addr actions.Address) (classifier.ProtocolInfo, bool) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	info, ok := kv.protocolSnapshot[addr]
	return info, ok
}

// Decimals implements classifier.TokenDB.
func (kv *LocalKV) Decimals(token actions.Address) (uint8, bool) {
	info, ok := kv.TokenInfo(token)
	if !ok {
		return 0, false
	}
	return info.Decimals, true
}

// PutTokenInfo writes (or overwrites) a token's decimals/symbol row.
func (kv *LocalKV) PutTokenInfo(info metadata.TokenInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return utils.Wrap(err, "encode token_info")
	}
	if err := kv.db.Put(tokenKey(info.Address), raw, nil); err != nil {
		return utils.Wrap(err, "put token_info")
	}
	kv.mu.Lock()
	delete(kv.pendingDecimals, info.Address)
	kv.mu.Unlock()
	return nil
}

// TokenInfo implements metadata.Store.
func (kv *LocalKV) TokenInfo(addr actions.Address) (metadata.TokenInfo, bool) {
	raw, err := kv.db.Get(tokenKey(addr), nil)
	if err != nil {
		return metadata.TokenInfo{}, false
	}
	var info metadata.TokenInfo
	if json.Unmarshal(raw, &info) != nil {
		return metadata.TokenInfo{}, false
	}
	return info, true
}

// ProtocolInfo implements metadata.Store, returning the §6 ProtocolInfo
// shape (distinct from classifier.ProtocolInfo to keep the two packages
// decoupled).
func (kv *LocalKV) ProtocolInfo(addr actions.Address) (metadata.ProtocolInfo, bool) {
	info, ok := kv.ProtocolOf(addr)
	if !ok {
		return metadata.ProtocolInfo{}, false
	}
	return metadata.ProtocolInfo{Protocol: string(info.Protocol), InitBlock: info.InitBlock}, true
}

// PutAddressMetadata writes a range-agnostic address-metadata row.
func (kv *LocalKV) PutAddressMetadata(m metadata.AddressMetadata) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return utils.Wrap(err, "encode address_metadata")
	}
	return utils.Wrap(kv.db.Put(addrMetaKey(m.Address), raw, nil), "put address_metadata")
}

// AddressMetadata implements metadata.Store.
func (kv *LocalKV) AddressMetadata(addr actions.Address) (metadata.AddressMetadata, bool) {
	raw, err := kv.db.Get(addrMetaKey(addr), nil)
	if err != nil {
		return metadata.AddressMetadata{}, false
	}
	var m metadata.AddressMetadata
	if json.Unmarshal(raw, &m) != nil {
		return metadata.AddressMetadata{}, false
	}
	return m, true
}

// PutSearcherInfo writes a range-agnostic searcher-history row.
func (kv *LocalKV) PutSearcherInfo(info metadata.SearcherInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return utils.Wrap(err, "encode searcher_info")
	}
	return utils.Wrap(kv.db.Put(searcherKey(info.Address), raw, nil), "put searcher_info")
}

// SearcherInfo implements metadata.Store.
func (kv *LocalKV) SearcherInfo(addr actions.Address) (metadata.SearcherInfo, bool) {
	raw, err := kv.db.Get(searcherKey(addr), nil)
	if err != nil {
		return metadata.SearcherInfo{}, false
	}
	var info metadata.SearcherInfo
	if json.Unmarshal(raw, &info) != nil {
		return metadata.SearcherInfo{}, false
	}
	return info, true
}

// AllAddressMetadata scans the full address_metadata table, for joining the
// range-agnostic flags (solver-settlement, DeFi-automation, direct-builder-
// payment) into a block's metadata.Metadata (spec §3.3).
func (kv *LocalKV) AllAddressMetadata() map[actions.Address]metadata.AddressMetadata {
	out := make(map[actions.Address]metadata.AddressMetadata)
	iter := kv.db.NewIterator(util.BytesPrefix([]byte(tblAddrMeta)), nil)
	defer iter.Release()
	for iter.Next() {
		addr := actions.Address{}
		copy(addr[:], iter.Key()[len(tblAddrMeta):])
		var m metadata.AddressMetadata
		if json.Unmarshal(iter.Value(), &m) != nil {
			continue
		}
		out[addr] = m
	}
	return out
}

// AllSearcherInfo scans the full searcher_info table, for joining
// prior-activity counters and labels into a block's metadata.Metadata (spec
// §3.3).
func (kv *LocalKV) AllSearcherInfo() map[actions.Address]metadata.SearcherInfo {
	out := make(map[actions.Address]metadata.SearcherInfo)
	iter := kv.db.NewIterator(util.BytesPrefix([]byte(tblSearcher)), nil)
	defer iter.Release()
	for iter.Next() {
		addr := actions.Address{}
		copy(addr[:], iter.Key()[len(tblSearcher):])
		var info metadata.SearcherInfo
		if json.Unmarshal(iter.Value(), &info) != nil {
			continue
		}
		out[addr] = info
	}
	return out
}

// PutBuilderInfo writes a range-agnostic builder row.
func (kv *LocalKV) PutBuilderInfo(addr actions.Address, info metadata.BuilderInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return utils.Wrap(err, "encode builder_info")
	}
	return utils.Wrap(kv.db.Put(builderKey(addr), raw, nil), "put builder_info")
}

// BuilderInfo reads a single builder row. Warehouse.BlockMetadata does not
// call it: the BuilderInfo map of the metadata it returns stays empty.
func (kv *LocalKV) BuilderInfo(addr actions.Address) (metadata.BuilderInfo, bool) {
	raw, err := kv.db.Get(builderKey(addr), nil)
	if err != nil {
		return metadata.BuilderInfo{}, false
	}
	var info metadata.BuilderInfo
	if json.Unmarshal(raw, &info) != nil {
		return metadata.BuilderInfo{}, false
	}
	return info, true
}

func protocolKey(addr actions.Address) []byte { return append([]byte(tblProtocol), addr[:]...) }
func tokenKey(addr actions.Address) []byte    { return append([]byte(tblToken), addr[:]...) }
func addrMetaKey(addr actions.Address) []byte { return append([]byte(tblAddrMeta), addr[:]...) }
func searcherKey(addr actions.Address) []byte { return append([]byte(tblSearcher), addr[:]...) }
func builderKey(addr actions.Address) []byte  { return append([]byte(tblBuilder), addr[:]...) }
