// Package watcher implements the payment watcher service. The watcher consumes the stream of token transfers
// from the chain event source, matches each one against the table of active funding rounds and, when a round's
// funding goal is met, dispatches a round-funded signal to the bot backend. It also consumes round requests from
// the message broker so the backend can manage rounds without going through the REST API.
package watcher

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bookmebot/fundwatch/lib/chain"
	ctypes "github.com/bookmebot/fundwatch/lib/chain/types"
	"github.com/bookmebot/fundwatch/lib/msg"
	mtype "github.com/bookmebot/fundwatch/lib/msg/types"
	"github.com/bookmebot/fundwatch/lib/store"
	"github.com/bookmebot/fundwatch/watcher/rounds"
)

// Counters exposed via the Prometheus API when monitoring is enabled.
var (
	transfersSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundwatch_transfers_seen_total",
		Help: "Transfer events delivered by the chain event source.",
	})
	paymentsCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundwatch_payments_credited_total",
		Help: "Transfers that matched a round's wallet and exact amount.",
	})
	roundsFunded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundwatch_rounds_funded_total",
		Help: "Funding rounds that reached their goal.",
	})
	dispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundwatch_dispatch_failures_total",
		Help: "Round-funded webhooks the backend did not accept.",
	})
)

// Dispatcher delivers a round-funded signal to the bot backend.
type Dispatcher interface {
	RoundFunded(key, wallet string, members int, amount float64) error
}

// Watcher implements the payment watcher service.
type Watcher struct {
	dbtype string
	db     store.DB
	src    chain.EventSource
	rounds *rounds.Store
	wh     Dispatcher
	mb     msg.MsgBroker
}

// New instantiates a new watcher service.
func New(dbtype string, db store.DB, mb msg.MsgBroker, src chain.EventSource, rs *rounds.Store, wh Dispatcher) *Watcher {
	return &Watcher{
		dbtype: dbtype,
		db:     db,
		src:    src,
		rounds: rs,
		wh:     wh,
		mb:     mb,
	}
}

// Rounds returns the watcher's round table, shared with the configuration API.
func (w *Watcher) Rounds() *rounds.Store {
	return w.rounds
}

// LoadRounds seeds the round table from persisted configuration. Called once at startup, before events flow.
func (w *Watcher) LoadRounds() error {
	if w.db == nil {
		log.Printf("No database configured, starting with an empty round table")
		return nil
	}

	rs, err := w.db.GetRounds()
	if err != nil {
		return err
	}
	n := w.rounds.BulkLoad(rs)
	log.Printf("Loaded %d/%d rounds from DB", n, len(rs))
	return nil
}

// Watch starts the chain event source and the consumption loop. It returns a channel that reports when the loop
// has drained after the context is cancelled; until then every event-path error is contained and logged, one bad
// event or one failed webhook never stops the stream.
func (w *Watcher) Watch(ctx context.Context) chan string {
	ret := make(chan string, 1)

	go func() {
		if err := w.src.Run(ctx); err != nil {
			log.Printf("event source error: %v", err)
		}
	}()

	go func() {
		log.Printf("Watching transfers for %d rounds...", w.rounds.Len())
		for {
			select {
			case <-ctx.Done():
				ret <- "Done!"
				return
			case eve := <-w.src.Events():
				w.process(eve)
			}
		}
	}()

	return ret
}

// process matches one transfer against a snapshot of the round table. The snapshot only selects candidates; the
// credit itself re-reads the live round so superseded configuration is never acted on. Rounds misconfigured with
// a duplicate wallet are all credited independently.
func (w *Watcher) process(eve ctypes.TransferEvent) {
	transfersSeen.Inc()

	if eve.Value == nil || eve.To == "" {
		log.Printf("dropping malformed transfer %+v", eve)
		return
	}

	for _, r := range w.rounds.Snapshot() {
		if !strings.EqualFold(r.Wallet, eve.To) {
			continue
		}

		info, credited, funded := w.rounds.Credit(r.Key, eve.To, eve.Value)
		if credited {
			paymentsCredited.Inc()
			log.Printf("[%s] payment %s from %s (tx %s)", r.Key, eve.Value, eve.From, eve.Hash)
		}
		if funded {
			roundsFunded.Inc()
			log.Printf("[%s] round funded: %d x %v to %s", info.Key, info.Members, info.Amount, info.Wallet)
			// the counter was already reset by Credit; dispatch is offloaded so a slow backend
			// cannot hold up the next event
			go w.dispatch(info)
		}
	}
}

// dispatch delivers the round-funded signal to the webhook and the message broker. Failures are logged and
// swallowed: delivery is best effort and the round's bookkeeping is already done.
func (w *Watcher) dispatch(info rounds.Info) {
	if w.wh != nil {
		if err := w.wh.RoundFunded(info.Key, info.Wallet, info.Members, info.Amount); err != nil {
			dispatchFailures.Inc()
			log.Printf("[%s] webhook error: %v", info.Key, err)
		}
	}

	if w.mb != nil {
		if err := w.mb.SendFunded(mtype.FundedEvent{
			Key:     info.Key,
			Event:   "payments_complete",
			Wallet:  info.Wallet,
			Members: info.Members,
			Amount:  info.Amount,
		}); err != nil {
			log.Printf("[%s] broker error: %v", info.Key, err)
		}
	}
}

// ManageRoundRequests starts a go routine to receive and manage bot backend requests for rounds to be added or
// removed. The durable store is written first; a failed write leaves the in-memory table unchanged so memory and
// store never drift.
func (w *Watcher) ManageRoundRequests() error {
	if w.mb == nil {
		return nil
	}

	var mut *sync.Mutex = new(sync.Mutex)

	mut.Lock()

	reqCh, errCh, err := w.mb.GetReqs(mut)
	if err != nil {
		return errors.New("watcher: cannot get round requests: " + err.Error())
	}

	go func() {
		log.Printf("Start listening to round request channel")

		for {
			select {
			case req, ok := (<-reqCh):
				if !ok {
					log.Printf("Stop listening to round request channel")

					return
				}

				log.Printf("Received request %+v", req)
				switch req.Act {
				case mtype.UPSERT:
					if err := w.UpsertRound(store.Round{Key: req.Key, Wallet: req.Wallet, Members: req.Members, Amount: req.Amount}); err != nil {
						log.Printf("[%s] Error adding round %v", req.Key, err)
					}
				case mtype.REMOVE:
					if err := w.RemoveRound(req.Key); err != nil {
						log.Printf("[%s] Error removing round %v", req.Key, err)
					}
				default:
					log.Printf("[%s] Request has unknown action %d", req.Key, req.Act)
				}

				mut.Unlock()
			case e, ok := (<-errCh):
				if !ok {
					log.Printf("Stop listening to round request channel")

					return
				}

				log.Printf("Received error %+v", e)
			}
		}
	}()

	return nil
}

// UpsertRound persists the round configuration and then applies it to the table. Shared by the broker consumer
// and the REST API.
func (w *Watcher) UpsertRound(r store.Round) error {
	// validate before touching the durable store
	if err := w.rounds.Validate(r.Key, r.Wallet, r.Members, r.Amount); err != nil {
		return err
	}

	if w.db != nil {
		if err := w.db.SaveRound(r); err != nil {
			return err
		}
	}

	return w.rounds.Upsert(r.Key, r.Wallet, r.Members, r.Amount)
}

// RemoveRound deletes the round from the durable store and then from the table. Removing an unknown round is
// reported with store.ErrRoundNotFound.
func (w *Watcher) RemoveRound(key string) error {
	if w.db != nil {
		if err := w.db.RemoveRound(key); err != nil && !errors.Is(err, store.ErrRoundNotFound) {
			return err
		}
	}

	if !w.rounds.Remove(key) {
		return store.ErrRoundNotFound
	}
	return nil
}
