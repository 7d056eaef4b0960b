package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/SafeMPC/card-bridge/internal/chain/ethereum"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NamespaceEIP155 EVM 链的 CAIP-2 命名空间
const NamespaceEIP155 = "eip155"

// 钱包会话支持的方法
const (
	MethodSendTransaction = "eth_sendTransaction"
	MethodSignTransaction = "eth_signTransaction"
	MethodSign            = "eth_sign"
	MethodSignTypedData   = "eth_signTypedData"
	MethodSignTypedDataV4 = "eth_signTypedData_v4"
	MethodPersonalSign    = "personal_sign"
)

// 钱包会话支持的事件
const (
	EventChainChanged    = "chainChanged"
	EventAccountsChanged = "accountsChanged"
)

// SupportedMethods 会话批准时返回的方法列表
func SupportedMethods() []string {
	return []string{
		MethodSendTransaction,
		MethodSignTransaction,
		MethodSign,
		MethodSignTypedData,
		MethodSignTypedDataV4,
		MethodPersonalSign,
	}
}

// SupportedEvents 会话批准时返回的事件列表
func SupportedEvents() []string {
	return []string{EventChainChanged, EventAccountsChanged}
}

// Chain 一条已配置的链
type Chain struct {
	Name        string
	Namespace   string
	Reference   string
	RPCEndpoint string
	Adapter     *EthereumAdapter
}

// ID 返回 CAIP-2 标识，例如 eip155:1
func (c *Chain) ID() string {
	return fmt.Sprintf("%s:%s", c.Namespace, c.Reference)
}

// ChainID 返回 EIP-155 链 ID
func (c *Chain) ChainID() *big.Int {
	return c.Adapter.ChainID()
}

// Registry 已配置链的只读索引
type Registry struct {
	chains map[string]*Chain
}

// NewRegistry 根据配置构建链注册表
func NewRegistry(ctx context.Context, cfgs []config.Chain) (*Registry, error) {
	r := &Registry{chains: make(map[string]*Chain, len(cfgs))}

	for _, cfg := range cfgs {
		if cfg.Namespace != NamespaceEIP155 {
			return nil, errors.Errorf("unsupported chain namespace %q", cfg.Namespace)
		}
		chainID, ok := new(big.Int).SetString(cfg.Reference, 10)
		if !ok || chainID.Sign() <= 0 {
			return nil, errors.Errorf("invalid eip155 chain reference %q", cfg.Reference)
		}

		var rpcClient *ethereum.RPCClient
		if cfg.RPCEndpoint != "" {
			client, err := ethereum.NewRPCClient(ctx, cfg.RPCEndpoint)
			if err != nil {
				return nil, err
			}
			rpcClient = client
		}

		c := &Chain{
			Name:        cfg.Name,
			Namespace:   cfg.Namespace,
			Reference:   cfg.Reference,
			RPCEndpoint: cfg.RPCEndpoint,
			Adapter:     NewEthereumAdapter(chainID, rpcClient),
		}
		if _, exists := r.chains[c.ID()]; exists {
			return nil, errors.Errorf("duplicate chain %s", c.ID())
		}
		r.chains[c.ID()] = c

		log.Debug().Str("chain", c.ID()).Str("name", c.Name).Msg("Registered chain")
	}

	return r, nil
}

// Get 按 CAIP-2 标识查找链
func (r *Registry) Get(id string) (*Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// IDs 返回全部链标识（排序后）
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
