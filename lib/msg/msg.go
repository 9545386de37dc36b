// Package msg defines the interface for different message brokers.
//
package msg

import (
	"sync"

	mtype "github.com/bookmebot/fundwatch/lib/msg/types"
)

// MsgBroker carries funding-round traffic in both directions: the bot backend publishes round requests that the
// watcher consumes, and the watcher publishes round-funded events that backend consumers can subscribe to.
type MsgBroker interface {
	Setup(interface{}) error
	Close() error

	// methods for the bot backend side
	SendRequest(r mtype.RoundReq) error
	GetFunded(mut *sync.Mutex) (<-chan mtype.FundedEvent, <-chan error, error)

	// methods for the watcher service
	GetReqs(mut *sync.Mutex) (<-chan mtype.RoundReq, <-chan error, error)
	SendFunded(e mtype.FundedEvent) error
}
