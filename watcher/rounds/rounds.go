// Package rounds implements the concurrency-safe table of active funding rounds. The table owns every round's
// payment counter: credits are serialized per round while unrelated rounds never contend on a common lock.
package rounds

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/bookmebot/fundwatch/lib/store"
	"github.com/bookmebot/fundwatch/lib/util"
)

// Config validation errors.
var (
	ErrNoKey    = errors.New("round requires a key")
	ErrNoWallet = errors.New("round requires a collection wallet")
	ErrMembers  = errors.New("round requires a positive member count")
)

// round is a table entry. Its mutex serializes credits and config swaps for this round only; received stays
// within [0, members) between credits, it touches members only at the instant of completion and is reset there.
type round struct {
	mu       sync.Mutex
	wallet   string
	members  int
	amount   float64
	expected *big.Int // amount scaled to the token's base units
	received int
}

// Info is a read-only copy of a round handed out to callers; it never aliases live table state.
type Info struct {
	Key      string  `json:"chatId"`
	Wallet   string  `json:"walletAddress"`
	Members  int     `json:"memberCount"`
	Amount   float64 `json:"amountPerWallet"`
	Received int     `json:"received"`
}

// Store is the table of round key to funding round.
type Store struct {
	mu       sync.RWMutex
	decimals uint8
	m        map[string]*round
}

// NewStore returns an empty table for a token with the given decimal precision.
func NewStore(decimals uint8) *Store {
	return &Store{
		decimals: decimals,
		m:        make(map[string]*round),
	}
}

// check validates a round configuration and returns the per-member amount in base units.
func (s *Store) check(key, wallet string, members int, amount float64) (*big.Int, error) {
	if key == "" {
		return nil, ErrNoKey
	}
	if wallet == "" {
		return nil, ErrNoWallet
	}
	if members <= 0 {
		return nil, ErrMembers
	}
	return util.ToBaseUnits(amount, s.decimals)
}

// Validate checks a round configuration against the table's token precision without applying it.
func (s *Store) Validate(key, wallet string, members int, amount float64) error {
	_, err := s.check(key, wallet, members, amount)
	return err
}

// Upsert validates and inserts or replaces the round configuration under key. Replacing a round restarts its
// funding cycle: the payment counter goes back to zero.
func (s *Store) Upsert(key, wallet string, members int, amount float64) error {
	expected, err := s.check(key, wallet, members, amount)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.m[key]; ok {
		r.mu.Lock()
		r.wallet, r.members, r.amount, r.expected, r.received = wallet, members, amount, expected, 0
		r.mu.Unlock()
		return nil
	}

	s.m[key] = &round{wallet: wallet, members: members, amount: amount, expected: expected}
	return nil
}

// Remove deletes the round from the table, returning whether it was present. Credits racing with the removal
// land on the unreachable entry and are discarded with it.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.m[key]
	delete(s.m, key)
	return ok
}

// Get returns a copy of the round under key.
func (s *Store) Get(key string) (Info, bool) {
	s.mu.RLock()
	r, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{Key: key, Wallet: r.wallet, Members: r.members, Amount: r.amount, Received: r.received}, true
}

// Snapshot returns a copy of every round. The copies are taken under the table lock so iteration never observes
// a torn update, but they are stale the moment they are returned: matching decisions on a snapshot must be
// re-validated through Credit.
func (s *Store) Snapshot() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Info, 0, len(s.m))
	for key, r := range s.m {
		r.mu.Lock()
		all = append(all, Info{Key: key, Wallet: r.wallet, Members: r.members, Amount: r.amount, Received: r.received})
		r.mu.Unlock()
	}
	return all
}

// Len returns the number of active rounds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// BulkLoad seeds the table from persisted configuration at startup, skipping invalid entries. It returns the
// number of rounds loaded.
func (s *Store) BulkLoad(rs []store.Round) int {
	var n int
	for _, r := range rs {
		if err := s.Upsert(r.Key, r.Wallet, r.Members, r.Amount); err == nil {
			n++
		}
	}
	return n
}

// Credit applies one observed transfer to the round under key. It re-reads the live round, so a snapshot match
// against superseded configuration cannot credit: the transfer counts only if the round still exists, its wallet
// still equals to (case-insensitively) and value equals exactly the expected base-unit amount. On the credit that
// fills the round, Credit resets the counter to zero and returns funded=true together with the completed round's
// configuration; the reset happens here, exactly once per completion, regardless of what the caller does with the
// notification. credited reports whether the transfer counted at all.
func (s *Store) Credit(key, to string, value *big.Int) (info Info, credited, funded bool) {
	s.mu.RLock()
	r, ok := s.m[key]
	s.mu.RUnlock()
	if !ok || value == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !strings.EqualFold(r.wallet, to) || value.Cmp(r.expected) != 0 {
		return
	}

	r.received++
	credited = true
	if r.received == r.members {
		r.received = 0
		return Info{Key: key, Wallet: r.wallet, Members: r.members, Amount: r.amount}, true, true
	}
	return
}
