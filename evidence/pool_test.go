package evidence

import (
	"testing"

	"github.com/blockberries/roundberry/types"
)

func newVote(validator types.AccountName, height int64, round int32, blockHash types.Hash) *types.Vote {
	return &types.Vote{
		Type:      types.VoteTypePrevote,
		Height:    height,
		Round:     round,
		BlockHash: &blockHash,
		Validator: validator,
	}
}

func TestPoolNewIsEmpty(t *testing.T) {
	pool := NewPool()
	if pool.Size() != 0 {
		t.Errorf("new pool should have size 0, got %d", pool.Size())
	}
	if len(pool.Evidence()) != 0 {
		t.Errorf("new pool should have no evidence")
	}
}

func TestPoolAddEquivocation(t *testing.T) {
	pool := NewPool()
	alice := types.NewAccountName("alice")

	blockHash1 := types.HashBytes([]byte("block1"))
	blockHash2 := types.HashBytes([]byte("block2"))

	voteA := newVote(alice, 10, 0, blockHash1)
	voteB := newVote(alice, 10, 0, blockHash2)

	pool.AddEquivocation(10, 0, types.VoteTypePrevote, alice, voteA, voteB)

	if pool.Size() != 1 {
		t.Fatalf("expected 1 equivocation, got %d", pool.Size())
	}

	evs := pool.Evidence()
	if evs[0].Validator.Name != "alice" {
		t.Errorf("expected validator alice, got %s", evs[0].Validator.Name)
	}
	if evs[0].Height != 10 || evs[0].Round != 0 {
		t.Errorf("unexpected height/round: %d/%d", evs[0].Height, evs[0].Round)
	}
	if !types.HashEqual(*evs[0].VoteA.BlockHash, blockHash1) {
		t.Error("VoteA should retain its original block hash")
	}
	if !types.HashEqual(*evs[0].VoteB.BlockHash, blockHash2) {
		t.Error("VoteB should retain its original block hash")
	}
}

func TestPoolAddEquivocationDeduplicates(t *testing.T) {
	pool := NewPool()
	alice := types.NewAccountName("alice")

	blockHash1 := types.HashBytes([]byte("block1"))
	blockHash2 := types.HashBytes([]byte("block2"))

	voteA := newVote(alice, 10, 0, blockHash1)
	voteB := newVote(alice, 10, 0, blockHash2)

	pool.AddEquivocation(10, 0, types.VoteTypePrevote, alice, voteA, voteB)
	pool.AddEquivocation(10, 0, types.VoteTypePrevote, alice, voteA, voteB)

	if pool.Size() != 1 {
		t.Errorf("repeat report of the same equivocation should dedupe, got size %d", pool.Size())
	}
}

func TestPoolAddEquivocationDistinguishesStepAndValidator(t *testing.T) {
	pool := NewPool()
	alice := types.NewAccountName("alice")
	bob := types.NewAccountName("bob")

	blockHash1 := types.HashBytes([]byte("block1"))
	blockHash2 := types.HashBytes([]byte("block2"))

	voteA := newVote(alice, 10, 0, blockHash1)
	voteB := newVote(alice, 10, 0, blockHash2)

	pool.AddEquivocation(10, 0, types.VoteTypePrevote, alice, voteA, voteB)
	pool.AddEquivocation(10, 0, types.VoteTypePrecommit, alice, voteA, voteB)
	pool.AddEquivocation(10, 0, types.VoteTypePrevote, bob, voteA, voteB)

	if pool.Size() != 3 {
		t.Errorf("distinct step/validator triples should each record, got size %d", pool.Size())
	}
}

func TestPoolEvidenceReturnsCopy(t *testing.T) {
	pool := NewPool()
	alice := types.NewAccountName("alice")

	blockHash1 := types.HashBytes([]byte("block1"))
	blockHash2 := types.HashBytes([]byte("block2"))
	voteA := newVote(alice, 1, 0, blockHash1)
	voteB := newVote(alice, 1, 0, blockHash2)

	pool.AddEquivocation(1, 0, types.VoteTypePrevote, alice, voteA, voteB)

	evs := pool.Evidence()
	evs[0].Height = 999

	if pool.Evidence()[0].Height == 999 {
		t.Error("mutating a returned Evidence slice should not affect the pool")
	}
}
