package watcher

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	ctypes "github.com/bookmebot/fundwatch/lib/chain/types"
	"github.com/bookmebot/fundwatch/lib/store"
	"github.com/bookmebot/fundwatch/watcher/rounds"
)

const wallet = "0xD7D7474BD9099FA7B44C75E95FF635092D4F0d9c"

// fakeSource feeds the watcher hand-made transfers, standing in for the websocket subscription.
type fakeSource struct {
	ch chan ctypes.TransferEvent
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan ctypes.TransferEvent, 16)}
}

func (f *fakeSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakeSource) Events() <-chan ctypes.TransferEvent {
	return f.ch
}

func (f *fakeSource) transfer(to string, value int64) {
	f.ch <- ctypes.TransferEvent{From: "0x1cd434711fbae1f2d9c70001409fd82d71fdccaa", To: to, Value: big.NewInt(value)}
}

// fakeDispatcher records webhook calls and can be told to fail them.
type fakeDispatcher struct {
	calls chan rounds.Info
	fail  bool
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{calls: make(chan rounds.Info, 16)}
}

func (d *fakeDispatcher) RoundFunded(key, w string, members int, amount float64) error {
	d.calls <- rounds.Info{Key: key, Wallet: w, Members: members, Amount: amount}
	if d.fail {
		return errors.New("backend down")
	}
	return nil
}

// fakeDB is an in-memory store.DB with injectable write failures.
type fakeDB struct {
	rounds  map[string]store.Round
	failSet bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{rounds: make(map[string]store.Round)}
}

func (f *fakeDB) SaveRound(r store.Round) error {
	if f.failSet {
		return errors.New("db write failed")
	}
	f.rounds[r.Key] = r
	return nil
}

func (f *fakeDB) RemoveRound(key string) error {
	if f.failSet {
		return errors.New("db write failed")
	}
	if _, ok := f.rounds[key]; !ok {
		return store.ErrRoundNotFound
	}
	delete(f.rounds, key)
	return nil
}

func (f *fakeDB) GetRounds() ([]store.Round, error) {
	all := make([]store.Round, 0, len(f.rounds))
	for _, r := range f.rounds {
		all = append(all, r)
	}
	return all, nil
}

func newTestWatcher(t *testing.T) (*Watcher, *fakeSource, *fakeDispatcher, *fakeDB, context.CancelFunc) {
	t.Helper()
	src := newFakeSource()
	disp := newFakeDispatcher()
	db := newFakeDB()
	w := New("", db, nil, src, rounds.NewStore(6), disp)

	ctx, cancel := context.WithCancel(context.Background())
	w.Watch(ctx)
	return w, src, disp, db, cancel
}

func waitDispatch(t *testing.T, disp *fakeDispatcher) rounds.Info {
	t.Helper()
	select {
	case info := <-disp.calls:
		return info
	case <-time.After(2 * time.Second):
		t.Fatalf("no dispatch arrived")
		return rounds.Info{}
	}
}

// TestFundingCycle feeds exactly memberCount matching transfers and expects exactly one webhook with the round's
// configuration, the counter back at zero, and the next transfers starting a fresh cycle.
func TestFundingCycle(t *testing.T) {
	w, src, disp, _, cancel := newTestWatcher(t)
	defer cancel()

	if err := w.UpsertRound(store.Round{Key: "G1", Wallet: wallet, Members: 3, Amount: 1}); err != nil {
		t.Errorf("UpsertRound err:%e", err)
	}

	// 1 token at 6 decimals is raw value 1000000
	src.transfer(wallet, 1000000)
	src.transfer(wallet, 1000000)
	src.transfer(wallet, 1000000)

	info := waitDispatch(t, disp)
	if info.Key != "G1" || info.Wallet != wallet || info.Members != 3 || info.Amount != 1 {
		t.Errorf("dispatch does not match:%+v", info)
	}

	// the 4th matching transfer starts a fresh cycle
	src.transfer(wallet, 1000000)
	time.Sleep(50 * time.Millisecond)
	if r, _ := w.Rounds().Get("G1"); r.Received != 1 {
		t.Errorf("expected fresh cycle with 1 payment, got %d", r.Received)
	}
	select {
	case info = <-disp.calls:
		t.Errorf("unexpected second dispatch:%+v", info)
	default:
	}
}

// TestMismatchIgnored feeds transfers that are too low, too high or for the wrong wallet and expects neither
// credits nor dispatches; a bad event must never stop the stream.
func TestMismatchIgnored(t *testing.T) {
	w, src, disp, _, cancel := newTestWatcher(t)
	defer cancel()

	_ = w.UpsertRound(store.Round{Key: "G1", Wallet: wallet, Members: 3, Amount: 1})

	src.transfer(wallet, 999999)
	src.transfer(wallet, 1000001)
	src.transfer("0x0000000000000000000000000000000000000bad", 1000000)
	src.ch <- ctypes.TransferEvent{To: wallet} // malformed, no value
	src.transfer(wallet, 1000000)              // the stream keeps going

	time.Sleep(50 * time.Millisecond)
	if r, _ := w.Rounds().Get("G1"); r.Received != 1 {
		t.Errorf("expected only the exact transfer credited, got %d", r.Received)
	}
	select {
	case info := <-disp.calls:
		t.Errorf("unexpected dispatch:%+v", info)
	default:
	}
}

// TestDispatchFailureDoesNotWedge checks that a failed webhook leaves the counter reset so the round keeps
// accepting payments and notifies normally on the next completion.
func TestDispatchFailureDoesNotWedge(t *testing.T) {
	w, src, disp, _, cancel := newTestWatcher(t)
	defer cancel()
	disp.fail = true

	_ = w.UpsertRound(store.Round{Key: "G1", Wallet: wallet, Members: 2, Amount: 1})

	src.transfer(wallet, 1000000)
	src.transfer(wallet, 1000000)
	waitDispatch(t, disp) // delivered but the backend rejected it

	if r, _ := w.Rounds().Get("G1"); r.Received != 0 {
		t.Errorf("failed dispatch left counter at %d", r.Received)
	}

	// the next cycle accumulates and completes normally
	disp.fail = false
	src.transfer(wallet, 1000000)
	src.transfer(wallet, 1000000)
	if info := waitDispatch(t, disp); info.Key != "G1" {
		t.Errorf("second cycle dispatch does not match:%+v", info)
	}
}

// TestDuplicateAfterReconnect documents the accepted behavior: there is no replay protection across
// reconnects, so the same transfer delivered twice credits twice.
func TestDuplicateAfterReconnect(t *testing.T) {
	w, src, _, _, cancel := newTestWatcher(t)
	defer cancel()

	_ = w.UpsertRound(store.Round{Key: "G1", Wallet: wallet, Members: 3, Amount: 1})

	eve := ctypes.TransferEvent{To: wallet, Value: big.NewInt(1000000), Hash: "0xdead"}
	src.ch <- eve
	src.ch <- eve

	time.Sleep(50 * time.Millisecond)
	if r, _ := w.Rounds().Get("G1"); r.Received != 2 {
		t.Errorf("expected the duplicate to credit twice, got %d", r.Received)
	}
}

// TestRoundsIsolated routes transfers to two rounds and checks the counters never cross-contaminate.
func TestRoundsIsolated(t *testing.T) {
	w, src, disp, _, cancel := newTestWatcher(t)
	defer cancel()

	_ = w.UpsertRound(store.Round{Key: "A", Wallet: "0x000000000000000000000000000000000000aaaa", Members: 3, Amount: 1})
	_ = w.UpsertRound(store.Round{Key: "B", Wallet: "0x000000000000000000000000000000000000bbbb", Members: 2, Amount: 1})

	src.transfer("0x000000000000000000000000000000000000AAAA", 1000000)
	src.transfer("0x000000000000000000000000000000000000BBBB", 1000000)
	src.transfer("0x000000000000000000000000000000000000BBBB", 1000000)

	if info := waitDispatch(t, disp); info.Key != "B" {
		t.Errorf("expected round B funded, got %+v", info)
	}
	if a, _ := w.Rounds().Get("A"); a.Received != 1 {
		t.Errorf("round A counter cross-contaminated: %d", a.Received)
	}
	if b, _ := w.Rounds().Get("B"); b.Received != 0 {
		t.Errorf("round B did not reset: %d", b.Received)
	}
}

// TestConfigWriteFailure checks a failed durable write is surfaced and leaves the in-memory table unchanged, so
// memory and store never drift.
func TestConfigWriteFailure(t *testing.T) {
	w, _, _, db, cancel := newTestWatcher(t)
	defer cancel()

	_ = w.UpsertRound(store.Round{Key: "G1", Wallet: wallet, Members: 3, Amount: 1})

	db.failSet = true
	if err := w.UpsertRound(store.Round{Key: "G1", Wallet: wallet, Members: 5, Amount: 2}); err == nil {
		t.Errorf("expected write failure to surface")
	}
	if r, _ := w.Rounds().Get("G1"); r.Members != 3 || r.Amount != 1 {
		t.Errorf("failed write mutated memory:%+v", r)
	}

	if err := w.RemoveRound("G1"); err == nil {
		t.Errorf("expected remove failure to surface")
	}
	if _, ok := w.Rounds().Get("G1"); !ok {
		t.Errorf("failed remove mutated memory")
	}

	db.failSet = false
	if err := w.RemoveRound("G1"); err != nil {
		t.Errorf("RemoveRound err:%e", err)
	}
	if err := w.RemoveRound("G1"); !errors.Is(err, store.ErrRoundNotFound) {
		t.Errorf("expected ErrRoundNotFound, got %e", err)
	}
}

// TestLoadRounds seeds the table from the persisted configuration at startup.
func TestLoadRounds(t *testing.T) {
	src := newFakeSource()
	db := newFakeDB()
	db.rounds["G1"] = store.Round{Key: "G1", Wallet: wallet, Members: 3, Amount: 1}
	db.rounds["G2"] = store.Round{Key: "G2", Wallet: wallet, Members: 2, Amount: 0.5}

	w := New("", db, nil, src, rounds.NewStore(6), newFakeDispatcher())
	if err := w.LoadRounds(); err != nil {
		t.Errorf("LoadRounds err:%e", err)
	}
	if w.Rounds().Len() != 2 {
		t.Errorf("expected 2 rounds loaded, got %d", w.Rounds().Len())
	}
}
