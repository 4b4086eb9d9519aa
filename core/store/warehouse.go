package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"

	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/pkg/utils"
)

// Warehouse is the analytical columnar boundary of §6: it answers
// BlockMetadata by scanning Arrow record batches for the block-scoped
// tables (block header, cex_quotes, cex_trades, dex_quotes) and joins in
// the range-agnostic searcher and address-metadata rows from a LocalKV.
// Builder rows are not joined, so Metadata.BuilderInfo is returned empty;
// token and protocol info are served per address by delegating to the
// LocalKV. Upstream producers append batches via Ingest; a real
// deployment backs this with a Flight/Parquet reader instead of in-memory
// batches, but the arrow.Record boundary is unchanged either way.
type Warehouse struct {
	local *LocalKV

	mu      sync.RWMutex
	batches map[uint64][]arrow.Record // block number -> batches ingested for it
}

// NewWarehouse returns a Warehouse that joins block-scoped Arrow batches
// with the range-agnostic rows served by local.
func NewWarehouse(local *LocalKV) *Warehouse {
	return &Warehouse{local: local, batches: make(map[uint64][]arrow.Record)}
}

// Ingest appends an Arrow record batch for blockNumber. Batches are
// expected to carry the columns assembleBlock reads; unrecognized columns
// are ignored. The Warehouse takes a reference (Retain) and releases it
// when the block is evicted via Evict.
func (w *Warehouse) Ingest(blockNumber uint64, rec arrow.Record) {
	rec.Retain()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches[blockNumber] = append(w.batches[blockNumber], rec)
}

// Evict releases every batch held for blockNumber. Callers invoke this once
// a block's inspectors have finished (spec §3.4 "released afterward").
func (w *Warehouse) Evict(blockNumber uint64) {
	w.mu.Lock()
	recs := w.batches[blockNumber]
	delete(w.batches, blockNumber)
	w.mu.Unlock()
	for _, r := range recs {
		r.Release()
	}
}

// BlockMetadata implements metadata.Store: it assembles block info,
// cex_quotes, cex_trades, and dex_quotes from ingested Arrow batches, then
// joins in address_metadata and searcher_info via LocalKV (spec §3.3
// "builder_info, searcher_info, address_metadata (range-agnostic, joined
// in)"). Both tables are range-agnostic and small relative to a block's
// trade data, so the join is a full-table scan rather than address-list
// driven. builder_info is not joined: md.BuilderInfo is returned empty.
func (w *Warehouse) BlockMetadata(blockNumber uint64) (metadata.Metadata, error) {
	w.mu.RLock()
	recs := append([]arrow.Record(nil), w.batches[blockNumber]...)
	w.mu.RUnlock()

	if len(recs) == 0 {
		return metadata.Metadata{}, utils.Wrap(fmt.Errorf("no batches ingested for block %d", blockNumber), "block_metadata")
	}

	md := metadata.Metadata{
		Block:        metadata.BlockInfo{Number: blockNumber, PrivateFlow: make(map[actions.Hash]bool)},
		CexQuotes:    make(map[string]map[metadata.Pair][]metadata.Quote),
		CexTrades:    make(map[string]map[metadata.Pair][]metadata.Trade),
		DexQuotes:    make(map[int]map[metadata.Pair]metadata.DexQuote),
		BuilderInfo:  make(map[actions.Address]metadata.BuilderInfo),
		SearcherInfo: w.local.AllSearcherInfo(),
		AddressMeta:  w.local.AllAddressMetadata(),
	}

	for _, rec := range recs {
		schema := rec.Schema()
		switch {
		case hasFields(schema, "exchange", "base", "quote", "ts", "bid", "ask"):
			appendQuotes(rec, md.CexQuotes)
		case hasFields(schema, "exchange", "base", "quote", "ts", "side", "price", "amount"):
			appendTrades(rec, md.CexTrades)
		case hasFields(schema, "tx_index", "base", "quote", "pre_price", "post_price"):
			appendDexQuotes(rec, md.DexQuotes)
		case hasFields(schema, "block_number", "block_hash", "timestamp"):
			readBlockInfo(rec, &md.Block)
		}
	}

	for exch, pairs := range md.CexQuotes {
		for pair := range pairs {
			sort.Slice(md.CexQuotes[exch][pair], func(i, j int) bool {
				return md.CexQuotes[exch][pair][i].Timestamp < md.CexQuotes[exch][pair][j].Timestamp
			})
		}
	}
	for exch, pairs := range md.CexTrades {
		for pair := range pairs {
			sort.Slice(md.CexTrades[exch][pair], func(i, j int) bool {
				return md.CexTrades[exch][pair][i].Timestamp < md.CexTrades[exch][pair][j].Timestamp
			})
		}
	}

	return md, nil
}

func hasFields(schema *arrow.Schema, names ...string) bool {
	for _, n := range names {
		if len(schema.FieldIndices(n)) == 0 {
			return false
		}
	}
	return true
}

func colIdx(schema *arrow.Schema, name string) int {
	idxs := schema.FieldIndices(name)
	if len(idxs) == 0 {
		return -1
	}
	return idxs[0]
}

func appendQuotes(rec arrow.Record, out map[string]map[metadata.Pair][]metadata.Quote) {
	schema := rec.Schema()
	exchCol := rec.Column(colIdx(schema, "exchange")).(*array.String)
	baseCol := rec.Column(colIdx(schema, "base")).(*array.String)
	quoteCol := rec.Column(colIdx(schema, "quote")).(*array.String)
	tsCol := rec.Column(colIdx(schema, "ts")).(*array.Int64)
	bidCol := rec.Column(colIdx(schema, "bid")).(*array.Float64)
	askCol := rec.Column(colIdx(schema, "ask")).(*array.Float64)
	for i := 0; i < int(rec.NumRows()); i++ {
		exch := exchCol.Value(i)
		pair := metadata.Pair{Base: baseCol.Value(i), Quote: quoteCol.Value(i)}
		if out[exch] == nil {
			out[exch] = make(map[metadata.Pair][]metadata.Quote)
		}
		out[exch][pair] = append(out[exch][pair], metadata.Quote{
			Timestamp: tsCol.Value(i),
			Bid:       bidCol.Value(i),
			Ask:       askCol.Value(i),
		})
	}
}

func appendTrades(rec arrow.Record, out map[string]map[metadata.Pair][]metadata.Trade) {
	schema := rec.Schema()
	exchCol := rec.Column(colIdx(schema, "exchange")).(*array.String)
	baseCol := rec.Column(colIdx(schema, "base")).(*array.String)
	quoteCol := rec.Column(colIdx(schema, "quote")).(*array.String)
	tsCol := rec.Column(colIdx(schema, "ts")).(*array.Int64)
	sideCol := rec.Column(colIdx(schema, "side")).(*array.Uint8)
	priceCol := rec.Column(colIdx(schema, "price")).(*array.Float64)
	amtCol := rec.Column(colIdx(schema, "amount")).(*array.Float64)
	for i := 0; i < int(rec.NumRows()); i++ {
		exch := exchCol.Value(i)
		pair := metadata.Pair{Base: baseCol.Value(i), Quote: quoteCol.Value(i)}
		if out[exch] == nil {
			out[exch] = make(map[metadata.Pair][]metadata.Trade)
		}
		out[exch][pair] = append(out[exch][pair], metadata.Trade{
			Timestamp: tsCol.Value(i),
			Side:      metadata.Side(sideCol.Value(i)),
			Price:     priceCol.Value(i),
			Amount:    amtCol.Value(i),
		})
	}
}

func appendDexQuotes(rec arrow.Record, out map[int]map[metadata.Pair]metadata.DexQuote) {
	schema := rec.Schema()
	txCol := rec.Column(colIdx(schema, "tx_index")).(*array.Int32)
	baseCol := rec.Column(colIdx(schema, "base")).(*array.String)
	quoteCol := rec.Column(colIdx(schema, "quote")).(*array.String)
	preCol := rec.Column(colIdx(schema, "pre_price")).(*array.Float64)
	postCol := rec.Column(colIdx(schema, "post_price")).(*array.Float64)
	for i := 0; i < int(rec.NumRows()); i++ {
		txIdx := int(txCol.Value(i))
		pair := metadata.Pair{Base: baseCol.Value(i), Quote: quoteCol.Value(i)}
		if out[txIdx] == nil {
			out[txIdx] = make(map[metadata.Pair]metadata.DexQuote)
		}
		out[txIdx][pair] = metadata.DexQuote{PreStatePrice: preCol.Value(i), PostStatePrice: postCol.Value(i)}
	}
}

func readBlockInfo(rec arrow.Record, out *metadata.BlockInfo) {
	if rec.NumRows() == 0 {
		return
	}
	schema := rec.Schema()
	out.Number = uint64(rec.Column(colIdx(schema, "block_number")).(*array.Uint64).Value(0))
	hashCol := rec.Column(colIdx(schema, "block_hash")).(*array.FixedSizeBinary)
	copy(out.Hash[:], hashCol.Value(0))
	out.Timestamp = rec.Column(colIdx(schema, "timestamp")).(*array.Int64).Value(0)
}

// Pool returns a shared Arrow allocator for constructing batches in tests
// and ingestion adapters.
func Pool() memory.Allocator { return memory.NewGoAllocator() }

// AddressMetadata implements metadata.Store by delegating to LocalKV.
func (w *Warehouse) AddressMetadata(addr actions.Address) (metadata.AddressMetadata, bool) {
	return w.local.AddressMetadata(addr)
}

// SearcherInfo implements metadata.Store by delegating to LocalKV.
func (w *Warehouse) SearcherInfo(addr actions.Address) (metadata.SearcherInfo, bool) {
	return w.local.SearcherInfo(addr)
}

// ProtocolInfo implements metadata.Store by delegating to LocalKV.
func (w *Warehouse) ProtocolInfo(addr actions.Address) (metadata.ProtocolInfo, bool) {
	return w.local.ProtocolInfo(addr)
}

// TokenInfo implements metadata.Store by delegating to LocalKV.
func (w *Warehouse) TokenInfo(addr actions.Address) (metadata.TokenInfo, bool) {
	return w.local.TokenInfo(addr)
}

var _ metadata.Store = (*Warehouse)(nil)
