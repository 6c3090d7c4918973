package types

import (
	"crypto/ed25519"

	"github.com/pkg/errors"
)

// VoteType distinguishes a PreVote from a PreCommit.
type VoteType uint8

const (
	VoteTypeUnknown   VoteType = 0
	VoteTypePrevote   VoteType = 1
	VoteTypePrecommit VoteType = 2
)

func (t VoteType) String() string {
	switch t {
	case VoteTypePrevote:
		return "PreVote"
	case VoteTypePrecommit:
		return "PreCommit"
	default:
		return "Unknown"
	}
}

// Vote is one validator's PreVote or PreCommit for a given height/round. A
// nil BlockHash means "no acceptable block this round".
type Vote struct {
	Type           VoteType
	Height         int64
	Round          int32
	BlockHash      *Hash
	Timestamp      int64 // unix nanoseconds
	Validator      AccountName
	ValidatorIndex uint16
	Signature      Signature
}

// Vote errors.
var (
	ErrInvalidVote        = errors.New("invalid vote")
	ErrVoteConflict       = errors.New("conflicting vote")
	ErrDuplicateVote      = errors.New("duplicate vote")
	ErrUnexpectedVoteType = errors.New("unexpected vote type")
)

// voteForSign mirrors the subset of Vote fields covered by the signature
// domain. All integer fields are unsigned for RLP.
type voteForSign struct {
	Type           uint8
	Height         uint64
	Round          uint32
	BlockHash      []byte
	Timestamp      uint64
	ValidatorIndex uint32
	ChainID        string
}

// VoteSignBytes returns the canonical bytes a validator signs for a vote.
// The signature domain covers (height, round, step/kind, block_hash), the
// timestamp and the validator index, plus the chain ID, matching the spec's wire-message signing requirement.
func VoteSignBytes(chainID string, v *Vote) []byte {
	fs := voteForSign{
		Type:           uint8(v.Type),
		Height:         uint64(v.Height),
		Round:          uint32(v.Round),
		Timestamp:      uint64(v.Timestamp),
		ValidatorIndex: uint32(v.ValidatorIndex),
		ChainID:        chainID,
	}
	if v.BlockHash != nil && !IsHashEmpty(v.BlockHash) {
		fs.BlockHash = v.BlockHash.Data
	}

	data, err := rlpEncode(fs)
	if err != nil {
		panic(errors.Wrap(err, "CONSENSUS CRITICAL: failed to encode vote for signing"))
	}
	return data
}

// IsNilVote returns true if the vote carries no block hash.
func IsNilVote(v *Vote) bool {
	return v.BlockHash == nil || IsHashEmpty(v.BlockHash)
}

// VerifyVoteSignature checks a vote's signature against a validator's
// public key.
func VerifyVoteSignature(chainID string, vote *Vote, pubKey PublicKey) error {
	if vote == nil {
		return ErrInvalidVote
	}
	if len(vote.Signature.Data) == 0 {
		return errors.New("vote has no signature")
	}
	if len(pubKey.Data) != ed25519.PublicKeySize {
		return errors.New("invalid public key size")
	}

	signBytes := VoteSignBytes(chainID, vote)
	if !ed25519.Verify(pubKey.Data, signBytes, vote.Signature.Data) {
		return errors.New("invalid vote signature")
	}
	return nil
}

// CopyVote returns a deep copy of v, or nil if v is nil.
func CopyVote(v *Vote) *Vote {
	if v == nil {
		return nil
	}
	cp := &Vote{
		Type:           v.Type,
		Height:         v.Height,
		Round:          v.Round,
		Timestamp:      v.Timestamp,
		Validator:      CopyAccountName(v.Validator),
		ValidatorIndex: v.ValidatorIndex,
	}
	cp.BlockHash = CopyHash(v.BlockHash)
	if len(v.Signature.Data) > 0 {
		cp.Signature.Data = make([]byte, len(v.Signature.Data))
		copy(cp.Signature.Data, v.Signature.Data)
	}
	return cp
}

// VotesEqual reports whether two votes from the same validator carry the
// same (type, height, round, block hash) — used to distinguish an
// idempotent re-delivery of the same vote from an equivocation.
func VotesEqual(a, b *Vote) bool {
	if a.Type != b.Type || a.Height != b.Height || a.Round != b.Round {
		return false
	}
	if a.ValidatorIndex != b.ValidatorIndex {
		return false
	}
	if a.BlockHash == nil && b.BlockHash == nil {
		return true
	}
	if a.BlockHash == nil || b.BlockHash == nil {
		return false
	}
	return HashEqual(*a.BlockHash, *b.BlockHash)
}

// Commit is the certificate of 2/3+ PreCommits for a committed block.
type Commit struct {
	Height     int64
	Round      int32
	BlockHash  Hash
	Signatures []CommitSig
}

// CommitSig is one validator's contribution to a Commit.
type CommitSig struct {
	ValidatorIndex uint16
	Timestamp      int64
	BlockHash      *Hash
	Signature      Signature
}

// Commit verification errors.
var (
	ErrInvalidCommit           = errors.New("invalid commit")
	ErrCommitHeightMismatch    = errors.New("commit height mismatch")
	ErrCommitBlockHashMismatch = errors.New("commit block hash mismatch")
	ErrInsufficientVotePower   = errors.New("insufficient voting power in commit")
	ErrInvalidCommitSignature  = errors.New("invalid signature in commit")
	ErrDuplicateCommitSig      = errors.New("duplicate signature in commit")
	ErrUnknownCommitValidator  = errors.New("unknown validator in commit")
)

// VerifyCommit verifies a commit certificate against a validator set,
// re-checking every signature. Used for historical/light verification; the
// state machine itself builds commits from votes it already verified.
func VerifyCommit(chainID string, valSet *ValidatorSet, blockHash Hash, height int64, commit *Commit) error {
	if commit == nil {
		return ErrInvalidCommit
	}
	if commit.Height != height {
		return errors.Wrapf(ErrCommitHeightMismatch, "expected %d, got %d", height, commit.Height)
	}
	if !HashEqual(commit.BlockHash, blockHash) {
		return ErrCommitBlockHashMismatch
	}
	if len(commit.Signatures) == 0 {
		return errors.Wrap(ErrInvalidCommit, "no signatures")
	}

	var votingPower int64
	seen := make(map[uint16]bool)

	for _, sig := range commit.Signatures {
		if sig.BlockHash == nil || IsHashEmpty(sig.BlockHash) {
			continue
		}
		if !HashEqual(*sig.BlockHash, blockHash) {
			continue
		}
		if seen[sig.ValidatorIndex] {
			return errors.Wrapf(ErrDuplicateCommitSig, "validator %d appears twice", sig.ValidatorIndex)
		}
		seen[sig.ValidatorIndex] = true

		val := valSet.GetByIndex(sig.ValidatorIndex)
		if val == nil {
			return errors.Wrapf(ErrUnknownCommitValidator, "index %d", sig.ValidatorIndex)
		}

		vote := &Vote{
			Type:           VoteTypePrecommit,
			Height:         commit.Height,
			Round:          commit.Round,
			BlockHash:      sig.BlockHash,
			Timestamp:      sig.Timestamp,
			Validator:      val.Name,
			ValidatorIndex: sig.ValidatorIndex,
			Signature:      sig.Signature,
		}
		if err := VerifyVoteSignature(chainID, vote, val.PublicKey); err != nil {
			return errors.Wrapf(ErrInvalidCommitSignature, "validator %d: %v", sig.ValidatorIndex, err)
		}

		votingPower += val.VotingPower
	}

	if required := valSet.TwoThirdsMajority(); votingPower < required {
		return errors.Wrapf(ErrInsufficientVotePower, "got %d, need %d", votingPower, required)
	}
	return nil
}

// CopyCommit returns a deep copy of c, or nil if c is nil.
func CopyCommit(c *Commit) *Commit {
	if c == nil {
		return nil
	}
	cp := &Commit{Height: c.Height, Round: c.Round}
	if len(c.BlockHash.Data) > 0 {
		cp.BlockHash.Data = make([]byte, len(c.BlockHash.Data))
		copy(cp.BlockHash.Data, c.BlockHash.Data)
	}
	if len(c.Signatures) > 0 {
		cp.Signatures = make([]CommitSig, len(c.Signatures))
		for i := range c.Signatures {
			cp.Signatures[i] = copyCommitSig(&c.Signatures[i])
		}
	}
	return cp
}

func copyCommitSig(sig *CommitSig) CommitSig {
	cp := CommitSig{ValidatorIndex: sig.ValidatorIndex, Timestamp: sig.Timestamp}
	cp.BlockHash = CopyHash(sig.BlockHash)
	if len(sig.Signature.Data) > 0 {
		cp.Signature.Data = make([]byte, len(sig.Signature.Data))
		copy(cp.Signature.Data, sig.Signature.Data)
	}
	return cp
}
