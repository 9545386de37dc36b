// Package notify delivers round-funded signals to the bot backend over HTTP.
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DispatchTimeout bounds a webhook call so a slow backend cannot block the watcher's event loop.
const DispatchTimeout = 5 * time.Second

// ErrBackend is returned when the backend replies with a non-2xx status.
var ErrBackend = errors.New("backend rejected the round-funded webhook")

// Payload is the JSON body of a round-funded webhook, field names as the bot backend expects them.
type Payload struct {
	ChatID  string  `json:"chat_id"`
	Event   string  `json:"event"`
	Wallet  string  `json:"wallet_address"`
	Members int     `json:"member_count"`
	Amount  float64 `json:"amount_per_wallet"`
}

// Webhook posts round-funded events to a fixed backend URL. Delivery is best effort: the caller logs and swallows
// failures, the round's counter bookkeeping never depends on the webhook outcome.
type Webhook struct {
	url string
	c   *http.Client
}

// New returns a Webhook dispatcher for the backend url.
func New(url string) *Webhook {
	return &Webhook{
		url: url,
		c:   &http.Client{Timeout: DispatchTimeout},
	}
}

// RoundFunded posts a "payments_complete" event for the round. Success is any 2xx reply.
func (w *Webhook) RoundFunded(key, wallet string, members int, amount float64) error {
	body, err := json.Marshal(Payload{
		ChatID:  key,
		Event:   "payments_complete",
		Wallet:  wallet,
		Members: members,
		Amount:  amount,
	})
	if err != nil {
		return fmt.Errorf("notify: cannot marshal payload: %w", err)
	}

	resp, err := w.c.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notify: status %s: %w", resp.Status, ErrBackend)
	}

	return nil
}
