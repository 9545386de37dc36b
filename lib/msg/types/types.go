// Defines constant values and message types for brokers.
package types

// Actions to be applied to rounds in requests.
const (
	UPSERT = 0
	REMOVE = 1
)

// RoundReq defines the message the bot backend publishes to ask the watcher to add or remove a funding round.
type RoundReq struct {
	Key     string  `json:"chatId"`
	Wallet  string  `json:"walletAddress"`
	Members int     `json:"memberCount"`
	Amount  float64 `json:"amountPerWallet"`
	Act     int     `json:"act"` // action to be applied
}

// FundedEvent defines the message the watcher publishes when a round's funding goal is met.
type FundedEvent struct {
	Key     string  `json:"chatId"`
	Event   string  `json:"event"` // always "payments_complete"
	Wallet  string  `json:"walletAddress"`
	Members int     `json:"memberCount"`
	Amount  float64 `json:"amountPerWallet"`
}
