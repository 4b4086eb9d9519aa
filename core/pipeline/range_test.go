package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"brontes/core/actions"
	"brontes/core/classifier"
	"brontes/core/metadata"
	"brontes/core/mev"
)

type fakeTracer struct {
	failBlocks map[uint64]bool
}

func (f fakeTracer) TracesForBlock(_ context.Context, blockNumber uint64) ([]TxTrace, error) {
	if f.failBlocks[blockNumber] {
		return nil, fmt.Errorf("tracer unavailable for block %d", blockNumber)
	}
	return []TxTrace{{TxHash: actions.Hash{byte(blockNumber)}, TxIndex: 0, GasUsed: 21000, EffectivePrice: 1, IsSuccess: true}}, nil
}

type fakeMetaStore struct{}

func (fakeMetaStore) BlockMetadata(blockNumber uint64) (metadata.Metadata, error) {
	return metadata.Metadata{Block: metadata.BlockInfo{Number: blockNumber}}, nil
}
func (fakeMetaStore) AddressMetadata(actions.Address) (metadata.AddressMetadata, bool) {
	return metadata.AddressMetadata{}, false
}
func (fakeMetaStore) SearcherInfo(actions.Address) (metadata.SearcherInfo, bool) {
	return metadata.SearcherInfo{}, false
}
func (fakeMetaStore) ProtocolInfo(actions.Address) (metadata.ProtocolInfo, bool) {
	return metadata.ProtocolInfo{}, false
}
func (fakeMetaStore) TokenInfo(actions.Address) (metadata.TokenInfo, bool) {
	return metadata.TokenInfo{}, false
}

type fakeTokenDB struct{}

func (fakeTokenDB) ProtocolOf(actions.Address) (classifier.ProtocolInfo, bool) {
	return classifier.ProtocolInfo{}, false
}
func (fakeTokenDB) Decimals(actions.Address) (uint8, bool) { return 0, false }

type collectingSink struct {
	mu     sync.Mutex
	blocks []uint64
}

func (s *collectingSink) WriteMevBlock(_ context.Context, mb mev.MevBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, mb.BlockNumber)
	return nil
}

func testDeps(tracer Tracer) Deps {
	return Deps{
		Tracer:   tracer,
		Store:    fakeMetaStore{},
		TokenDB:  fakeTokenDB{},
		Registry: classifier.NewRegistry(),
		Builder:  ZeroBuilderProposerSource{},
	}
}

func TestRangeExecutorEmitsBlocksInAscendingOrder(t *testing.T) {
	sink := &collectingSink{}
	exec := NewRangeExecutor(testDeps(fakeTracer{}), sink, 10, 15, 3)
	if err := exec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []uint64{10, 11, 12, 13, 14}
	if len(sink.blocks) != len(want) {
		t.Fatalf("expected %d blocks, got %d: %v", len(want), len(sink.blocks), sink.blocks)
	}
	for i, bn := range want {
		if sink.blocks[i] != bn {
			t.Fatalf("expected ascending order %v, got %v", want, sink.blocks)
		}
	}
}

func TestRangeExecutorSkipsFailingBlocksButContinues(t *testing.T) {
	sink := &collectingSink{}
	tracer := fakeTracer{failBlocks: map[uint64]bool{6: true}}
	exec := NewRangeExecutor(testDeps(tracer), sink, 5, 8, 2)
	if err := exec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []uint64{5, 7}
	if len(sink.blocks) != len(want) {
		t.Fatalf("expected the failing block to be skipped, leaving %v, got %v", want, sink.blocks)
	}
	for i, bn := range want {
		if sink.blocks[i] != bn {
			t.Fatalf("expected %v, got %v", want, sink.blocks)
		}
	}
}

func TestRangeExecutorDefaultsMaxTasksToOne(t *testing.T) {
	exec := NewRangeExecutor(testDeps(fakeTracer{}), &collectingSink{}, 0, 0, 0)
	if exec.MaxTasks != 1 {
		t.Fatalf("expected MaxTasks to default to 1, got %d", exec.MaxTasks)
	}
}
