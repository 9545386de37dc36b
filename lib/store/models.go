package store

// Round contains the persisted configuration of a funding round. Key is the opaque group identifier the bot
// backend uses for the round; payment progress is never persisted, only configuration.
type Round struct {
	Key     string  `json:"chatId" bson:"chatId"`
	Wallet  string  `json:"walletAddress" bson:"walletAddress"`
	Members int     `json:"memberCount" bson:"memberCount"`
	Amount  float64 `json:"amountPerWallet" bson:"amountPerWallet"`
}
