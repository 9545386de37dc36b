// Package fundwatch and its sub-packages implement the backend service that watches stablecoin payments
// into group funding rounds and tells the bot backend when a round is fully funded.
/*
fundwatch runs as a single service (cmd/fundwatch) made of three cooperating activities:

1) a chain event source (package lib/chain and lib/chain/ethereum) that keeps a live websocket
 subscription to the ERC-20 Transfer events of the configured token contract. The subscription
 reconnects on failure and is proactively rotated on a schedule to work around provider-side
 filter expiry.

2) a payment watcher (package watcher) that matches every transfer against the table of active
 funding rounds (package watcher/rounds). A transfer credits a round when its destination equals
 the round's collection wallet and its value equals exactly the per-member amount scaled to the
 token's base units. When the number of credited payments reaches the round's member count, the
 watcher resets the round's counter and dispatches a "payments_complete" webhook to the bot
 backend (package lib/notify). Completion events are also published to the message broker
 (package lib/msg).

3) a RESTful configuration API (package api) through which the bot backend creates and removes
 funding rounds. Round configurations are persisted (package lib/store) so the service reloads
 them at startup. Round requests can alternatively be driven through the message broker queues.

The watcher, the API and the broker consumer mutate or read the round table concurrently; the
table serializes credits per round and never locks unrelated rounds against each other.

The service can be monitored via a Prometheus API by setting the flag "-m" at startup.

*/
package fundwatch
