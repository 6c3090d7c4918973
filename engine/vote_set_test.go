package engine

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/roundberry/types"
)

type signingValidator struct {
	name    string
	priv    ed25519.PrivateKey
	val     *types.NamedValidator
}

func makeSigningValidators(t *testing.T, powers ...int64) ([]*signingValidator, *types.ValidatorSet) {
	t.Helper()

	var signers []*signingValidator
	var vals []*types.NamedValidator
	for i, power := range powers {
		pub, priv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		name := string(rune('a' + i))
		val := &types.NamedValidator{
			Name:        types.NewAccountName(name),
			PublicKey:   types.PublicKey{Data: pub},
			VotingPower: power,
		}
		vals = append(vals, val)
		signers = append(signers, &signingValidator{name: name, priv: priv, val: val})
	}

	valSet, err := types.NewValidatorSet(vals)
	require.NoError(t, err)

	for _, s := range signers {
		s.val = valSet.GetByName(s.name)
	}
	return signers, valSet
}

func signVote(chainID string, signer *signingValidator, vote *types.Vote) {
	vote.Validator = signer.val.Name
	vote.ValidatorIndex = signer.val.Index
	signBytes := types.VoteSignBytes(chainID, vote)
	vote.Signature = types.Signature{Data: ed25519.Sign(signer.priv, signBytes)}
}

func newTestVote(signer *signingValidator, chainID string, height int64, round int32, vt types.VoteType, blockHash *types.Hash) *types.Vote {
	v := &types.Vote{
		Type:      vt,
		Height:    height,
		Round:     round,
		BlockHash: blockHash,
		Timestamp: time.Now().UnixNano(),
	}
	signVote(chainID, signer, v)
	return v
}

const testChainID = "test-chain"

func TestVoteSetAddAndDuplicate(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 100, 100, 100)
	blockHash := types.HashBytes([]byte("block-a"))

	vs := NewVoteSet(testChainID, 1, 0, types.VoteTypePrevote, valSet)

	vote := newTestVote(signers[0], testChainID, 1, 0, types.VoteTypePrevote, &blockHash)
	res, err := vs.Add(vote)
	require.NoError(t, err)
	require.Equal(t, VoteAdded, res)

	res, err = vs.Add(vote)
	require.NoError(t, err)
	require.Equal(t, VoteDuplicate, res)
}

func TestVoteSetEquivocation(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 100, 100, 100)
	blockA := types.HashBytes([]byte("block-a"))
	blockB := types.HashBytes([]byte("block-b"))

	vs := NewVoteSet(testChainID, 1, 0, types.VoteTypePrevote, valSet)

	vote1 := newTestVote(signers[0], testChainID, 1, 0, types.VoteTypePrevote, &blockA)
	_, err := vs.Add(vote1)
	require.NoError(t, err)

	vote2 := newTestVote(signers[0], testChainID, 1, 0, types.VoteTypePrevote, &blockB)
	res, err := vs.Add(vote2)
	require.ErrorIs(t, err, ErrConflictingVote)
	require.Equal(t, VoteEquivocation, res)

	equivocators := vs.Equivocators()
	require.Len(t, equivocators, 1)
	require.Contains(t, equivocators, signers[0].val.Index)
}

func TestVoteSetRejectsUnknownValidator(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 100, 100, 100)
	outsider, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_ = outsider

	vs := NewVoteSet(testChainID, 1, 0, types.VoteTypePrevote, valSet)

	blockHash := types.HashBytes([]byte("block-a"))
	vote := newTestVote(signers[0], testChainID, 1, 0, types.VoteTypePrevote, &blockHash)
	vote.ValidatorIndex = 99 // no such index

	_, err = vs.Add(vote)
	require.ErrorIs(t, err, ErrUnknownValidator)
}

func TestVoteSetRejectsBadSignature(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 100, 100, 100)
	blockHash := types.HashBytes([]byte("block-a"))

	vs := NewVoteSet(testChainID, 1, 0, types.VoteTypePrevote, valSet)

	vote := newTestVote(signers[0], testChainID, 1, 0, types.VoteTypePrevote, &blockHash)
	vote.Signature.Data[0] ^= 0xFF // corrupt

	_, err := vs.Add(vote)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVoteSetTwoThirdsMajority(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 100, 100, 100)
	blockHash := types.HashBytes([]byte("block-a"))

	vs := NewVoteSet(testChainID, 1, 0, types.VoteTypePrevote, valSet)

	for i := 0; i < 2; i++ {
		vote := newTestVote(signers[i], testChainID, 1, 0, types.VoteTypePrevote, &blockHash)
		_, err := vs.Add(vote)
		require.NoError(t, err)
	}

	require.False(t, vs.HasTwoThirdsAny())

	vote := newTestVote(signers[2], testChainID, 1, 0, types.VoteTypePrevote, &blockHash)
	_, err := vs.Add(vote)
	require.NoError(t, err)

	require.True(t, vs.HasTwoThirdsAny())
	require.True(t, vs.HasTwoThirdsFor(&blockHash))

	maj, ok := vs.TwoThirdsMajority()
	require.True(t, ok)
	require.True(t, types.HashEqual(*maj, blockHash))
}

func TestVoteSetOneThirdAny(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 1, 1, 1, 1)
	blockHash := types.HashBytes([]byte("block-a"))

	vs := NewVoteSet(testChainID, 1, 0, types.VoteTypePrevote, valSet)
	require.False(t, vs.HasOneThirdAny())

	vote := newTestVote(signers[0], testChainID, 1, 0, types.VoteTypePrevote, &blockHash)
	_, err := vs.Add(vote)
	require.NoError(t, err)

	vote2 := newTestVote(signers[1], testChainID, 1, 0, types.VoteTypePrevote, &blockHash)
	_, err = vs.Add(vote2)
	require.NoError(t, err)

	require.True(t, vs.HasOneThirdAny())
}

func TestVoteSetNilVotesCountSeparately(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 100, 100, 100)

	vs := NewVoteSet(testChainID, 1, 0, types.VoteTypePrevote, valSet)

	vote := newTestVote(signers[0], testChainID, 1, 0, types.VoteTypePrevote, nil)
	_, err := vs.Add(vote)
	require.NoError(t, err)

	require.Equal(t, int64(100), vs.PowerFor(nil))
	require.Equal(t, int64(0), vs.PowerFor(&types.Hash{Data: make([]byte, 32)}))
}

func TestVoteSetMakeCommit(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 100, 100, 100)
	blockHash := types.HashBytes([]byte("block-a"))

	vs := NewVoteSet(testChainID, 5, 2, types.VoteTypePrecommit, valSet)
	for i := 0; i < 3; i++ {
		vote := newTestVote(signers[i], testChainID, 5, 2, types.VoteTypePrecommit, &blockHash)
		_, err := vs.Add(vote)
		require.NoError(t, err)
	}

	commit := vs.MakeCommit()
	require.NotNil(t, commit)
	require.Equal(t, int64(5), commit.Height)
	require.Equal(t, int32(2), commit.Round)
	require.True(t, types.HashEqual(commit.BlockHash, blockHash))
	require.Len(t, commit.Signatures, 3)

	err := types.VerifyCommit(testChainID, valSet, blockHash, 5, commit)
	require.NoError(t, err)
}

func TestVoteSetMakeCommitNilBeforePrecommitType(t *testing.T) {
	_, valSet := makeSigningValidators(t, 100, 100, 100)
	vs := NewVoteSet(testChainID, 5, 2, types.VoteTypePrevote, valSet)
	require.Nil(t, vs.MakeCommit())
}

func TestHeightVoteSetRoutesByRoundAndType(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 100, 100, 100)
	blockHash := types.HashBytes([]byte("block-a"))

	hvs := NewHeightVoteSet(testChainID, 10, valSet)

	vote := newTestVote(signers[0], testChainID, 10, 3, types.VoteTypePrevote, &blockHash)
	res, err := hvs.AddVote(vote)
	require.NoError(t, err)
	require.Equal(t, VoteAdded, res)

	require.NotNil(t, hvs.Prevotes(3))
	require.Nil(t, hvs.Prevotes(4))
	require.Nil(t, hvs.Precommits(3))
}

func TestHeightVoteSetRejectsWrongHeight(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 100, 100, 100)
	blockHash := types.HashBytes([]byte("block-a"))

	hvs := NewHeightVoteSet(testChainID, 10, valSet)
	vote := newTestVote(signers[0], testChainID, 11, 0, types.VoteTypePrevote, &blockHash)

	_, err := hvs.AddVote(vote)
	require.ErrorIs(t, err, ErrInvalidHeight)
}

func TestHeightVoteSetResetInvalidatesStaleVoteSet(t *testing.T) {
	signers, valSet := makeSigningValidators(t, 100, 100, 100)
	blockHash := types.HashBytes([]byte("block-a"))

	hvs := NewHeightVoteSet(testChainID, 10, valSet)
	vote := newTestVote(signers[0], testChainID, 10, 0, types.VoteTypePrevote, &blockHash)
	_, err := hvs.AddVote(vote)
	require.NoError(t, err)

	stale := hvs.Prevotes(0)
	hvs.Reset(11, valSet)

	vote2 := newTestVote(signers[1], testChainID, 10, 0, types.VoteTypePrevote, &blockHash)
	_, err = stale.Add(vote2)
	require.ErrorIs(t, err, ErrStaleVoteSet)
}
