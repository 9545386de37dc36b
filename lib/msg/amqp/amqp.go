// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"

	"github.com/streadway/amqp"

	"github.com/bookmebot/fundwatch/lib/msg"
	mtype "github.com/bookmebot/fundwatch/lib/msg/types"
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string) (msg.MsgBroker, error) {
	r := Amqp{}
	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, err
	}
	r.ch = nil
	log.Printf("Connected to %s", uri)

	return &r, err
}

// Setup obtains an amqp channel and declares the message broker exchanges:
//
// - rr ("round requests"): the bot backend publishes round upsert/remove requests to this exchange
//
// - rf ("round funded"): the watcher publishes round-funded events to this exchange
func (r *Amqp) Setup(x interface{}) error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	// declare exchanges
	if err = channel.ExchangeDeclare("rr", "topic", true, false, false, false, nil); err != nil {
		return err
	}
	err = channel.ExchangeDeclare("rf", "topic", true, false, false, false, nil)
	return err
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Printf("Error closing amqp.Channel:%e", err)
		}
		r.ch = nil
		log.Printf("amqp.Channel closed!")
	}
	return r.conn.Close()
}

// SendFunded publishes a round-funded event to the "rf" exchange
func (r *Amqp) SendFunded(e mtype.FundedEvent) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(e); err != nil {
		return
	}
	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}
	// build body
	m := amqp.Publishing{
		Headers:     amqp.Table{"x-round-key": e.Key},
		Body:        jsonDoc,
		ContentType: "application/json",
	}
	// publish
	if err = r.ch.Publish("rf", "round.funded."+e.Key, false, false, m); err != nil {
		log.Printf("[%s] Error sending funded event to message broker %e", e.Key, err)
	}
	return
}

// SendRequest publishes a new round request to the "rr" exchange
func (r *Amqp) SendRequest(req mtype.RoundReq) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(req); err != nil {
		return
	}
	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}
	// build body
	m := amqp.Publishing{
		Headers:     amqp.Table{"x-round-key": req.Key},
		Body:        jsonDoc,
		ContentType: "application/json",
	}
	// publish
	if err = r.ch.Publish("rr", "round."+strconv.Itoa(req.Act)+"."+req.Key, false, false, m); err != nil {
		log.Printf("[%s] Error sending request to message broker %e", req.Key, err)
	}
	return
}

// GetFunded consumes round-funded events from the "rf" exchange pushing them to the returned channel. The Mutex
// pointer is provided to ensure the consumed message has been fully dealt with by the management function, so the
// message consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetFunded(mut *sync.Mutex) (<-chan mtype.FundedEvent, <-chan error, error) {
	var err error
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, nil, err
		}
	}
	// declare queue
	if _, err = r.ch.QueueDeclare("rf.watcher", true, false, false, false, nil); err != nil {
		return nil, nil, err
	}
	// bind queue to exchange
	if err = r.ch.QueueBind("rf.watcher", "round.funded.*", "rf", false, nil); err != nil {
		return nil, nil, err
	}
	// create channel for receiving events
	msgs, errCons := r.ch.Consume("rf.watcher", "fundwatch", false, false, false, false, nil)
	if errCons != nil {
		return nil, nil, errCons
	}
	// define channels to return
	eves := make(chan mtype.FundedEvent)
	errs := make(chan error)
	// start routine to consume messages from broker
	go func() {
		for m := range msgs {
			var e *mtype.FundedEvent = new(mtype.FundedEvent)
			err := json.Unmarshal(m.Body, e)
			if err != nil {
				errs <- err
				continue
			}
			eves <- *e
			mut.Lock() // wait for the consumer to finish processing the event
			m.Ack(false)
		}
	}()
	return eves, errs, nil
}

// GetReqs consumes round requests from the "rr" exchange pushing them to the returned channel. The Mutex pointer
// is provided to ensure the consumed message has been fully dealt with by the management function, so the message
// consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetReqs(mut *sync.Mutex) (<-chan mtype.RoundReq, <-chan error, error) {
	var err error
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, nil, err
		}
	}
	// declare queue
	if _, err = r.ch.QueueDeclare("rr.watcher", true, false, false, false, nil); err != nil {
		return nil, nil, err
	}
	// bind queue to exchange
	if err = r.ch.QueueBind("rr.watcher", "round.*.*", "rr", false, nil); err != nil {
		return nil, nil, err
	}
	// create channel for receiving requests
	msgs, errCons := r.ch.Consume("rr.watcher", "fundwatch", false, false, false, false, nil)
	if errCons != nil {
		return nil, nil, errCons
	}
	// define channels to return
	reqs := make(chan mtype.RoundReq)
	errs := make(chan error)
	// start routine to consume messages from broker
	go func() {
		for m := range msgs {
			var req *mtype.RoundReq = new(mtype.RoundReq)
			err := json.Unmarshal(m.Body, req)
			if err != nil {
				errs <- err
				continue
			}
			reqs <- *req
			mut.Lock() // wait for the watcher to finish processing the request
			m.Ack(false)
		}
	}()
	return reqs, errs, nil
}
