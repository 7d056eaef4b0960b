//go:build wireinject

//go:generate wire

package api

import (
	"testing"

	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/metrics"
	"github.com/SafeMPC/card-bridge/internal/pairing"
	"github.com/google/wire"
)

// INJECTORS - https://github.com/google/wire/blob/main/docs/guide.md#injectors

// serviceSet groups the default set of providers that are required for initing a server
var serviceSet = wire.NewSet(
	newServerWithComponents,
	metrics.New,
	NewClock,
	NewChainRegistry,
	NewKeyService,
	signingSet,
	ledgerSet,
	pairingSet,
)

var signingSet = wire.NewSet(
	NewCardSigner,
	wire.Bind(new(signing.Signer), new(*signing.CardSigner)),
	NewBridge,
	NewRequestFactory,
)

var ledgerSet = wire.NewSet(
	NewRedisClient,
	NewCounterStore,
	NewCounterLedger,
)

var pairingSet = wire.NewSet(
	NewSessionManager,
	pairing.NewDispatcher,
)

// InitNewServer returns a new Server instance.
func InitNewServer(
	_ config.Server,
) (*Server, error) {
	wire.Build(serviceSet, NewWatcher, NoTest)
	return new(Server), nil
}

// InitNewServerWithWatcher returns a new Server instance with the given card watcher.
// All the other components are initialized via go wire according to the configuration.
func InitNewServerWithWatcher(
	_ config.Server,
	_ *card.Watcher,
	t ...*testing.T,
) (*Server, error) {
	wire.Build(serviceSet)
	return new(Server), nil
}
