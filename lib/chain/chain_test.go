package chain

import (
	"errors"
	"testing"

	"github.com/bookmebot/fundwatch/lib/chain/types"
)

// TestInit resolves known and unknown network names.
func TestInit(t *testing.T) {
	src, err := Init("base-sepolia", "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	if err != nil {
		t.Errorf("Init err:%e", err)
	}
	if src == nil || src.Events() == nil {
		t.Errorf("Init returned no event source")
	}

	if _, err = Init("unknownNet", "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"); !errors.Is(err, types.ErrNoEndpoint) {
		t.Errorf("expected ErrNoEndpoint, got %e", err)
	}
}
