// Implements the event source for ethereum-type networks
package ethereum

import (
	"context"
	"log"
	"math/big"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/bookmebot/fundwatch/lib/chain/types"
)

// Subscription policy values. The rotation is a scheduled maintenance action: streaming RPC providers are known to
// silently expire filters, so the subscription is torn down and re-established even when healthy.
const (
	RotateEvery = 20 * time.Minute
	DialRetries = 5
	DialDelay   = 5 * time.Second
	EventBuffer = 64
)

// TransferSignature is the keccak-256 hash of the ERC20 Transfer event, topic 0 of every transfer log.
var TransferSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Source keeps a live websocket subscription to the Transfer events of one token contract and delivers them on a
// bounded channel. A severed connection pauses delivery; it never closes the channel.
type Source struct {
	node     string
	contract common.Address
	events   chan types.TransferEvent
}

// New returns a Source for the token contract on the given websocket node.
func New(node, token string) *Source {
	return &Source{
		node:     node,
		contract: common.HexToAddress(token),
		events:   make(chan types.TransferEvent, EventBuffer),
	}
}

// Events returns the channel the source delivers transfers on.
func (s *Source) Events() <-chan types.TransferEvent {
	return s.events
}

// Run connects, subscribes and streams until the context is cancelled. Connection loss and rotation loop back into
// a reconnect; when the node cannot be reached after DialRetries attempts the source logs the outage and stalls
// until the next rotation interval, it does not terminate.
func (s *Source) Run(ctx context.Context) error {
	for {
		client, err := s.dial(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Printf("[%s] %v: stalling until next rotation", s.node, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(RotateEvery):
			}
			continue
		}

		err = s.stream(ctx, client)
		client.Close()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Printf("[%s] subscription severed: %v, reconnecting", s.node, err)
		}
	}
}

// dial attempts the websocket connection up to DialRetries times with a fixed delay in between.
func (s *Source) dial(ctx context.Context) (*ethclient.Client, error) {
	var client *ethclient.Client
	var err error

	for i := 0; i < DialRetries; i++ {
		if client, err = ethclient.DialContext(ctx, s.node); err == nil {
			return client, nil
		}
		log.Printf("[%s] dial attempt %d/%d failed: %v", s.node, i+1, DialRetries, err)
		select {
		case <-ctx.Done():
			return nil, types.ErrSourceDown
		case <-time.After(DialDelay):
		}
	}

	return nil, types.ErrSourceDown
}

// stream subscribes to the contract's Transfer logs and forwards decoded events until the subscription errors, the
// rotation timer fires or the context is cancelled. Malformed logs are dropped and logged, never propagated.
func (s *Source) stream(ctx context.Context, client *ethclient.Client) error {
	logs := make(chan gtypes.Log, EventBuffer)

	q := geth.FilterQuery{
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{{TransferSignature}},
	}

	sub, err := client.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	log.Printf("[%s] subscribed to Transfer logs of %s", s.node, s.contract.Hex())

	rotate := time.NewTimer(RotateEvery)
	defer rotate.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return err
		case <-rotate.C:
			log.Printf("[%s] rotating subscription", s.node)
			return nil
		case l := <-logs:
			eve, err := DecodeLog(l)
			if err != nil {
				log.Printf("[%s] dropping log %s: %v", s.node, l.TxHash.Hex(), err)
				continue
			}
			select {
			case s.events <- eve:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// DecodeLog turns a raw Transfer log into a TransferEvent. The from and to addresses are indexed topics, the value
// is the 32-byte data word.
func DecodeLog(l gtypes.Log) (types.TransferEvent, error) {
	if len(l.Topics) == 0 || l.Topics[0] != TransferSignature {
		return types.TransferEvent{}, types.ErrWrongSignature
	}
	if len(l.Topics) != 3 {
		return types.TransferEvent{}, types.ErrBadTopics
	}
	if len(l.Data) < 32 {
		return types.TransferEvent{}, types.ErrBadData
	}

	return types.TransferEvent{
		From:  common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
		To:    common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
		Value: new(big.Int).SetBytes(l.Data[:32]),
		Block: l.BlockNumber,
		Hash:  l.TxHash.Hex(),
	}, nil
}
