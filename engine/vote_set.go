package engine

import (
	"encoding/hex"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/blockberries/roundberry/types"
)

// MaxTimestampDrift bounds how far a vote's timestamp may diverge from
// this node's clock before it is rejected outright.
const MaxTimestampDrift = 10 * time.Minute

// AddVoteResult reports what add did with a vote, per spec §4.A.
type AddVoteResult int8

const (
	VoteAdded AddVoteResult = iota
	VoteDuplicate
	VoteEquivocation
)

// VoteSet aggregates votes for a single (round, step) bucket and answers
// the quorum predicates component A must provide.
type VoteSet struct {
	mu           sync.RWMutex
	chainID      string
	height       int64
	round        int32
	voteType     types.VoteType
	validatorSet *types.ValidatorSet

	votes        map[uint16]*types.Vote
	equivocators map[uint16]*types.Vote // the validator's second, conflicting vote
	votesByBlock map[string]*blockVotes
	sum          int64
	maj23        *blockVotes

	// parent/generation let a VoteSet reject writes after its owning
	// HeightVoteSet has moved past the height it was created for, instead
	// of silently losing votes delivered to a stale reference.
	parent       *HeightVoteSet
	myGeneration uint64
}

type blockVotes struct {
	blockHash  *types.Hash
	votes      []*types.Vote
	totalPower int64
}

// NewVoteSet creates a standalone VoteSet (no stale-reference guard); used
// directly in tests.
func NewVoteSet(chainID string, height int64, round int32, voteType types.VoteType, valSet *types.ValidatorSet) *VoteSet {
	return &VoteSet{
		chainID:      chainID,
		height:       height,
		round:        round,
		voteType:     voteType,
		validatorSet: valSet,
		votes:        make(map[uint16]*types.Vote),
		votesByBlock: make(map[string]*blockVotes),
	}
}

func newVoteSetWithParent(hvs *HeightVoteSet, round int32, voteType types.VoteType) *VoteSet {
	return &VoteSet{
		chainID:      hvs.chainID,
		height:       hvs.height,
		round:        round,
		voteType:     voteType,
		validatorSet: hvs.validatorSet,
		votes:        make(map[uint16]*types.Vote),
		votesByBlock: make(map[string]*blockVotes),
		parent:       hvs,
		myGeneration: hvs.generation.Load(),
	}
}

// Add inserts vote, verifying its signature first. It returns VoteAdded on
// a fresh insertion, VoteDuplicate if an identical vote from the same
// validator was already recorded, and VoteEquivocation if a *different*
// vote from the same validator in this bucket is already recorded — in
// which case the first vote remains canonical for power purposes and the
// new one is retained only as evidence (spec §3 Vote Set invariant).
func (vs *VoteSet) Add(vote *types.Vote) (AddVoteResult, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.parent != nil && vs.parent.generation.Load() != vs.myGeneration {
		return VoteAdded, ErrStaleVoteSet
	}

	if vote.Height != vs.height || vote.Round != vs.round || vote.Type != vs.voteType {
		return VoteAdded, ErrInvalidVote
	}

	voteTime := time.Unix(0, vote.Timestamp)
	now := time.Now()
	if voteTime.After(now.Add(MaxTimestampDrift)) {
		return VoteAdded, errors.Wrap(ErrInvalidVote, "timestamp too far in future")
	}
	if voteTime.Before(now.Add(-MaxTimestampDrift)) {
		return VoteAdded, errors.Wrap(ErrInvalidVote, "timestamp too far in past")
	}

	val := vs.validatorSet.GetByIndex(vote.ValidatorIndex)
	if val == nil {
		return VoteAdded, ErrUnknownValidator
	}
	if !types.AccountNameEqual(val.Name, vote.Validator) {
		return VoteAdded, ErrUnknownValidator
	}

	if err := types.VerifyVoteSignature(vs.chainID, vote, val.PublicKey); err != nil {
		return VoteAdded, errors.Wrap(ErrInvalidSignature, err.Error())
	}

	existing := vs.votes[vote.ValidatorIndex]
	if existing != nil {
		if types.VotesEqual(existing, vote) {
			return VoteDuplicate, nil
		}
		if vs.equivocators == nil {
			vs.equivocators = make(map[uint16]*types.Vote)
		}
		vs.equivocators[vote.ValidatorIndex] = types.CopyVote(vote)
		return VoteEquivocation, ErrConflictingVote
	}

	voteCopy := types.CopyVote(vote)
	vs.votes[voteCopy.ValidatorIndex] = voteCopy
	vs.sum += val.VotingPower

	key := blockHashKey(voteCopy.BlockHash)
	bv, ok := vs.votesByBlock[key]
	if !ok {
		bv = &blockVotes{blockHash: voteCopy.BlockHash}
		vs.votesByBlock[key] = bv
	}
	bv.votes = append(bv.votes, voteCopy)
	bv.totalPower += val.VotingPower

	if bv.totalPower >= vs.validatorSet.TwoThirdsMajority() && vs.maj23 == nil {
		vs.maj23 = bv
	}

	return VoteAdded, nil
}

// PowerFor returns the summed voting power of votes matching blockHash
// exactly (nil matches only nil).
func (vs *VoteSet) PowerFor(blockHash *types.Hash) int64 {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	bv, ok := vs.votesByBlock[blockHashKey(blockHash)]
	if !ok {
		return 0
	}
	return bv.totalPower
}

// HasTwoThirdsAny reports whether the total voting power across every
// block-hash bucket (including nil) in this (round,step) meets 2F+1.
func (vs *VoteSet) HasTwoThirdsAny() bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.sum >= vs.validatorSet.TwoThirdsMajority()
}

// HasTwoThirdsFor reports whether power for the specific blockHash meets 2F+1.
func (vs *VoteSet) HasTwoThirdsFor(blockHash *types.Hash) bool {
	return vs.PowerFor(blockHash) >= vs.validatorSet.TwoThirdsMajority()
}

// HasOneThirdAny reports whether any single block-hash bucket meets F+1 —
// used for the round-skip rule.
func (vs *VoteSet) HasOneThirdAny() bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	threshold := vs.validatorSet.OneThirdMajority()
	for _, bv := range vs.votesByBlock {
		if bv.totalPower >= threshold {
			return true
		}
	}
	return false
}

// TwoThirdsMajority returns the block hash with a 2/3+ polka, if any.
func (vs *VoteSet) TwoThirdsMajority() (*types.Hash, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	if vs.maj23 != nil {
		return types.CopyHash(vs.maj23.blockHash), true
	}
	return nil, false
}

// VotingPower returns the total voting power recorded in this bucket.
func (vs *VoteSet) VotingPower() int64 {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.sum
}

// Size returns the number of distinct validators with a recorded vote.
func (vs *VoteSet) Size() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.votes)
}

// GetVotes returns all recorded votes, sorted by validator index for
// deterministic ordering, as deep copies.
func (vs *VoteSet) GetVotes() []*types.Vote {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	votes := make([]*types.Vote, 0, len(vs.votes))
	for _, v := range vs.votes {
		votes = append(votes, types.CopyVote(v))
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].ValidatorIndex < votes[j].ValidatorIndex })
	return votes
}

// GetVotesForBlock returns deep copies of all votes for a specific block hash.
func (vs *VoteSet) GetVotesForBlock(blockHash *types.Hash) []*types.Vote {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	bv, ok := vs.votesByBlock[blockHashKey(blockHash)]
	if !ok {
		return nil
	}
	votes := make([]*types.Vote, 0, len(bv.votes))
	for _, v := range bv.votes {
		votes = append(votes, types.CopyVote(v))
	}
	return votes
}

// Get returns the recorded vote for validator index, or nil if that
// validator has no vote in this bucket.
func (vs *VoteSet) Get(index uint16) *types.Vote {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return types.CopyVote(vs.votes[index])
}

// Equivocators returns the set of validator indices caught sending two
// distinct votes into this bucket.
func (vs *VoteSet) Equivocators() map[uint16]*types.Vote {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if len(vs.equivocators) == 0 {
		return nil
	}
	out := make(map[uint16]*types.Vote, len(vs.equivocators))
	for k, v := range vs.equivocators {
		out[k] = types.CopyVote(v)
	}
	return out
}

// MakeCommit builds a Commit from this bucket's 2/3+ precommits for its
// majority block. Returns nil if there is no such majority, or if the
// majority is for nil (a Commit is only meaningful for a real block).
func (vs *VoteSet) MakeCommit() *types.Commit {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if vs.voteType != types.VoteTypePrecommit || vs.maj23 == nil {
		return nil
	}
	if vs.maj23.blockHash == nil || types.IsHashEmpty(vs.maj23.blockHash) {
		return nil
	}

	blockHash := vs.maj23.blockHash
	sigs := make([]types.CommitSig, 0, len(vs.maj23.votes))
	for _, vote := range vs.maj23.votes {
		sig := types.CommitSig{
			ValidatorIndex: vote.ValidatorIndex,
			Timestamp:      vote.Timestamp,
			BlockHash:      types.CopyHash(vote.BlockHash),
		}
		if len(vote.Signature.Data) > 0 {
			sig.Signature.Data = make([]byte, len(vote.Signature.Data))
			copy(sig.Signature.Data, vote.Signature.Data)
		}
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].ValidatorIndex < sigs[j].ValidatorIndex })

	return &types.Commit{
		Height:     vs.height,
		Round:      vs.round,
		BlockHash:  *types.CopyHash(blockHash),
		Signatures: sigs,
	}
}

func blockHashKey(h *types.Hash) string {
	if h == nil {
		return "nil"
	}
	return hex.EncodeToString(h.Data)
}

// HeightVoteSet owns every round's VoteSets for one height, across both
// vote types.
type HeightVoteSet struct {
	mu           sync.RWMutex
	chainID      string
	height       int64
	validatorSet *types.ValidatorSet

	prevotes   map[int32]*VoteSet
	precommits map[int32]*VoteSet

	// generation is bumped on Reset to invalidate any VoteSet handle a
	// caller obtained before the reset, so votes delivered to a stale
	// handle are rejected rather than silently dropped into a bucket
	// nobody reads anymore.
	generation atomic.Uint64
}

// NewHeightVoteSet creates a HeightVoteSet for height.
func NewHeightVoteSet(chainID string, height int64, valSet *types.ValidatorSet) *HeightVoteSet {
	return &HeightVoteSet{
		chainID:      chainID,
		height:       height,
		validatorSet: valSet,
		prevotes:     make(map[int32]*VoteSet),
		precommits:   make(map[int32]*VoteSet),
	}
}

// AddVote routes vote to the correct round/type bucket, creating it if
// necessary, and adds it there.
func (hvs *HeightVoteSet) AddVote(vote *types.Vote) (AddVoteResult, error) {
	hvs.mu.Lock()
	defer hvs.mu.Unlock()

	if vote.Height != hvs.height {
		return VoteAdded, ErrInvalidHeight
	}

	var bucket map[int32]*VoteSet
	switch vote.Type {
	case types.VoteTypePrevote:
		bucket = hvs.prevotes
	case types.VoteTypePrecommit:
		bucket = hvs.precommits
	default:
		return VoteAdded, ErrInvalidVote
	}

	voteSet := bucket[vote.Round]
	if voteSet == nil {
		voteSet = newVoteSetWithParent(hvs, vote.Round, vote.Type)
		bucket[vote.Round] = voteSet
	}

	return voteSet.Add(vote)
}

// Prevotes returns the PreVote bucket for round, or nil if none exists yet.
func (hvs *HeightVoteSet) Prevotes(round int32) *VoteSet {
	hvs.mu.RLock()
	defer hvs.mu.RUnlock()
	return hvs.prevotes[round]
}

// Precommits returns the PreCommit bucket for round, or nil if none exists yet.
func (hvs *HeightVoteSet) Precommits(round int32) *VoteSet {
	hvs.mu.RLock()
	defer hvs.mu.RUnlock()
	return hvs.precommits[round]
}

// Height returns the height this HeightVoteSet tracks.
func (hvs *HeightVoteSet) Height() int64 {
	return hvs.height
}

// Reset clears all votes and invalidates outstanding VoteSet handles,
// used when moving a Context to a new height (which, per spec §3
// Lifecycle, never happens in practice since a Context is single-use —
// kept for symmetry with the teacher and for tests that exercise the
// generation guard directly).
func (hvs *HeightVoteSet) Reset(height int64, valSet *types.ValidatorSet) {
	hvs.mu.Lock()
	defer hvs.mu.Unlock()

	hvs.height = height
	hvs.validatorSet = valSet
	hvs.prevotes = make(map[int32]*VoteSet)
	hvs.precommits = make(map[int32]*VoteSet)
	hvs.generation.Add(1)
}
