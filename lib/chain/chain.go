// Package chain defines the interface required for chain event sources and the static lookup table of RPC
// endpoints per network.
package chain

import (
	"context"
	"fmt"

	"github.com/bookmebot/fundwatch/lib/chain/ethereum"
	"github.com/bookmebot/fundwatch/lib/chain/types"
)

// EventSource is a live, restartable producer of TransferEvents for one token contract. Run blocks until the
// context is cancelled; connection loss and scheduled rotations never terminate the sequence, they only pause it.
type EventSource interface {
	Run(ctx context.Context) error
	Events() <-chan types.TransferEvent
}

// Networks is the static lookup of websocket RPC endpoints keyed by network name. An unknown key is a startup
// configuration error, never a runtime one.
var Networks = map[string]string{
	"optimism":     "wss://optimism.blockpi.network/v1/ws/public",
	"arbitrumone":  "wss://arbitrum.blockpi.network/v1/ws/public",
	"polygon":      "wss://polygon.blockpi.network/v1/ws/public",
	"base":         "wss://base.blockpi.network/v1/ws/public",
	"base-sepolia": "wss://base-sepolia-rpc.publicnode.com",
	"ethereum":     "wss://ethereum.blockpi.network/v1/ws/public",
	"sepolia":      "wss://ethereum-sepolia.blockpi.network/v1/ws/public",
	"mantle":       "wss://mantle-mainnet.public.blastapi.io",
	"mode":         "wss://mainnet.mode.network",
	"arthera":      "wss://ws.arthera.net",
}

// Init resolves the network name to its endpoint and returns an EventSource watching the token contract's
// Transfer events on it.
func Init(network, token string) (EventSource, error) {
	node, ok := Networks[network]
	if !ok {
		return nil, fmt.Errorf("chain: %q: %w", network, types.ErrNoEndpoint)
	}

	return ethereum.New(node, token), nil
}
