package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeValidator(name string, power int64) *NamedValidator {
	return &NamedValidator{
		Name:        NewAccountName(name),
		PublicKey:   PublicKey{Data: make([]byte, 32)},
		VotingPower: power,
	}
}

func TestNewValidatorSet(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("alice", 100),
		makeValidator("bob", 100),
		makeValidator("carol", 100),
	}

	vs, err := NewValidatorSet(vals)
	require.NoError(t, err)
	require.Equal(t, 3, vs.Size())
	require.Equal(t, int64(300), vs.TotalPower)
	require.NotNil(t, vs.Proposer)
}

func TestNewValidatorSetEmpty(t *testing.T) {
	_, err := NewValidatorSet(nil)
	require.ErrorIs(t, err, ErrEmptyValidatorSet)

	_, err = NewValidatorSet([]*NamedValidator{})
	require.ErrorIs(t, err, ErrEmptyValidatorSet)
}

func TestNewValidatorSetDuplicate(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("alice", 100),
		makeValidator("alice", 100),
	}

	_, err := NewValidatorSet(vals)
	require.ErrorIs(t, err, ErrDuplicateValidator)
}

func TestNewValidatorSetInvalidPower(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("alice", 0),
	}

	_, err := NewValidatorSet(vals)
	require.ErrorIs(t, err, ErrInvalidVotingPower)
}

func TestValidatorSetGetByName(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("alice", 100),
		makeValidator("bob", 100),
	}

	vs, err := NewValidatorSet(vals)
	require.NoError(t, err)

	alice := vs.GetByName("alice")
	require.NotNil(t, alice)
	require.Equal(t, "alice", alice.Name.Name)

	require.Nil(t, vs.GetByName("unknown"))
}

func TestValidatorSetGetByIndex(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("alice", 100),
		makeValidator("bob", 100),
	}

	vs, err := NewValidatorSet(vals)
	require.NoError(t, err)

	require.NotNil(t, vs.GetByIndex(0))
	require.NotNil(t, vs.GetByIndex(1))
	require.Nil(t, vs.GetByIndex(2))
}

func TestValidatorSetTwoThirdsMajority(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("alice", 100),
		makeValidator("bob", 100),
		makeValidator("carol", 100),
	}

	vs, err := NewValidatorSet(vals)
	require.NoError(t, err)

	// 2/3 of 300 = 200, need strictly more: 201.
	require.Equal(t, int64(201), vs.TwoThirdsMajority())
}

func TestValidatorSetOneThirdMajority(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("v0", 1),
		makeValidator("v1", 1),
		makeValidator("v2", 1),
		makeValidator("v3", 1),
	}

	vs, err := NewValidatorSet(vals)
	require.NoError(t, err)

	// F = 1, F+1 = 2.
	require.Equal(t, int64(2), vs.OneThirdMajority())
}

func TestValidatorSetIncrementProposerPriority(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("alice", 100),
		makeValidator("bob", 100),
		makeValidator("carol", 100),
	}

	vs, err := NewValidatorSet(vals)
	require.NoError(t, err)

	vs.IncrementProposerPriority(1)
	require.NotNil(t, vs.Proposer)
}

// TestValidatorSetProposerRotatesDeterministically locks the weighted
// round-robin proposer-selection function behind a fixed vector, resolving
// the proposer-selection open question: with equal powers the schedule is a
// plain round-robin over the centered priorities.
func TestValidatorSetProposerRotatesDeterministically(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("v0", 1),
		makeValidator("v1", 1),
		makeValidator("v2", 1),
		makeValidator("v3", 1),
	}

	vs, err := NewValidatorSet(vals)
	require.NoError(t, err)

	var sequence []string
	for i := 0; i < 8; i++ {
		sequence = append(sequence, vs.Proposer.Name.Name)
		vs.IncrementProposerPriority(1)
	}

	require.Equal(t, []string{"v0", "v1", "v2", "v3", "v0", "v1", "v2", "v3"}, sequence)

	// Every validator must appear, and the 4-round cycle must repeat.
	require.Equal(t, sequence[0:4], sequence[4:8])
	seen := map[string]bool{}
	for _, name := range sequence[0:4] {
		seen[name] = true
	}
	require.Len(t, seen, 4)
}

func TestValidatorSetCopy(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("alice", 100),
		makeValidator("bob", 100),
	}

	vs, err := NewValidatorSet(vals)
	require.NoError(t, err)

	vsCopy := vs.Copy()
	require.Equal(t, vs.Size(), vsCopy.Size())
	require.Equal(t, vs.TotalPower, vsCopy.TotalPower)

	vsCopy.IncrementProposerPriority(1)
	require.NotEqual(t, vs.Validators[0].ProposerPriority, vsCopy.Validators[0].ProposerPriority)
}

func TestValidatorSetHash(t *testing.T) {
	vals := []*NamedValidator{
		makeValidator("alice", 100),
		makeValidator("bob", 100),
	}

	vs, err := NewValidatorSet(vals)
	require.NoError(t, err)
	h1 := vs.Hash()
	require.Len(t, h1.Data, 32)

	vs2, err := NewValidatorSet(vals)
	require.NoError(t, err)
	h2 := vs2.Hash()

	require.True(t, HashEqual(h1, h2))

	vs.IncrementProposerPriority(1)
	h3 := vs.Hash()
	require.True(t, HashEqual(h1, h3), "proposer priority must not affect the hash")
}
