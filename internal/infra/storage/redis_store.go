package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	fieldSigCounter       = "sig_counter"
	fieldGlobalSigCounter = "global_sig_counter"
	fieldUpdatedAt        = "updated_at"
)

// RedisCounterStore 基于 Redis 哈希的计数器存储，每个地址一个 key
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

var _ CounterStore = (*RedisCounterStore)(nil)

// NewRedisCounterStore 创建 Redis 存储
func NewRedisCounterStore(client *redis.Client, prefix string) *RedisCounterStore {
	return &RedisCounterStore{client: client, prefix: prefix}
}

func (s *RedisCounterStore) key(address common.Address) string {
	return s.prefix + address.Hex()
}

func (s *RedisCounterStore) Get(ctx context.Context, address common.Address) (*CounterRecord, bool, error) {
	values, err := s.client.HGetAll(ctx, s.key(address)).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to read counter record")
	}
	if len(values) == 0 {
		return nil, false, nil
	}

	record := &CounterRecord{Address: address}
	sig, err := strconv.ParseUint(values[fieldSigCounter], 10, 32)
	if err != nil {
		return nil, false, errors.Wrap(err, "invalid sig_counter")
	}
	global, err := strconv.ParseUint(values[fieldGlobalSigCounter], 10, 32)
	if err != nil {
		return nil, false, errors.Wrap(err, "invalid global_sig_counter")
	}
	record.SigCounter = uint32(sig)
	record.GlobalSigCounter = uint32(global)

	if raw, ok := values[fieldUpdatedAt]; ok {
		updated, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, false, errors.Wrap(err, "invalid updated_at")
		}
		record.UpdatedAt = updated
	}

	return record, true, nil
}

func (s *RedisCounterStore) Put(ctx context.Context, record *CounterRecord) error {
	err := s.client.HSet(ctx, s.key(record.Address),
		fieldSigCounter, record.SigCounter,
		fieldGlobalSigCounter, record.GlobalSigCounter,
		fieldUpdatedAt, record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return errors.Wrap(err, "failed to write counter record")
	}
	return nil
}
