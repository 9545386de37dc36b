// Package types common chain event types.
package types

import (
	"errors"
	"math/big"
)

// TransferEvent is a single observed ERC-20 Transfer. Value is kept in the token's base units. Events are ephemeral:
// the watcher consumes them once and never persists them.
type TransferEvent struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Value *big.Int `json:"value"`
	Block uint64   `json:"block"`
	Hash  string   `json:"hash"`
}

// Error codes.
var (
	ErrNoEndpoint     = errors.New("no RPC endpoint defined for network")
	ErrSourceDown     = errors.New("event source unavailable after retries")
	ErrBadTopics      = errors.New("malformed log, Transfer requires three topics")
	ErrBadData        = errors.New("malformed log, value data missing")
	ErrWrongSignature = errors.New("log does not carry the Transfer signature")
)
