package storage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CounterRecord 某个账户最近一次签名的卡片计数器
type CounterRecord struct {
	Address          common.Address
	SigCounter       uint32
	GlobalSigCounter uint32
	UpdatedAt        time.Time
}

// CounterStore 计数器存储
type CounterStore interface {
	// Get 返回账户的记录，不存在时 ok 为 false
	Get(ctx context.Context, address common.Address) (record *CounterRecord, ok bool, err error)
	Put(ctx context.Context, record *CounterRecord) error
}
