package storage

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryCounterStore 进程内计数器存储
type MemoryCounterStore struct {
	mu      sync.RWMutex
	records map[common.Address]CounterRecord
}

var _ CounterStore = (*MemoryCounterStore)(nil)

// NewMemoryCounterStore 创建内存存储
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{records: make(map[common.Address]CounterRecord)}
}

func (s *MemoryCounterStore) Get(_ context.Context, address common.Address) (*CounterRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[address]
	if !ok {
		return nil, false, nil
	}
	return &record, true, nil
}

func (s *MemoryCounterStore) Put(_ context.Context, record *CounterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Address] = *record
	return nil
}
