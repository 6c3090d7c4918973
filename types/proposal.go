package types

import (
	"crypto/ed25519"

	"github.com/pkg/errors"
)

// Proposal is a proposer's candidate block for a given height/round. A
// PolRound of -1 means the block is "fresh" (no prior polka is being
// carried forward); a non-negative PolRound asserts that a 2/3+ prevote
// polka for this block was observed at that earlier round, with PolVotes
// as the evidence.
type Proposal struct {
	Height    int64
	Round     int32
	Timestamp int64
	Block     Block
	PolRound  int32
	PolVotes  []Vote
	Proposer  AccountName
	Signature Signature
}

// proposalForSign mirrors the signed subset of Proposal fields with
// RLP-safe unsigned integers; PolVotes are excluded from the signature
// domain deliberately — they are evidence accompanying the proposal, not
// part of what the proposer is attesting to about its own block choice.
type proposalForSign struct {
	Height    uint64
	Round     uint32
	Timestamp uint64
	BlockHash []byte
	HasPolRound bool
	PolRound  uint32 // meaningful only when HasPolRound is true; RLP has no signed-integer encoding, so -1 ("fresh") is carried via HasPolRound instead
	ChainID   string
}

// ProposalSignBytes returns the canonical bytes a proposer signs.
func ProposalSignBytes(chainID string, p *Proposal) []byte {
	blockHash := BlockHash(&p.Block)
	fs := proposalForSign{
		Height:      uint64(p.Height),
		Round:       uint32(p.Round),
		Timestamp:   uint64(p.Timestamp),
		BlockHash:   blockHash.Data,
		HasPolRound: p.PolRound >= 0,
		ChainID:     chainID,
	}
	if p.PolRound >= 0 {
		fs.PolRound = uint32(p.PolRound)
	}
	data, err := rlpEncode(fs)
	if err != nil {
		panic(errors.Wrap(err, "CONSENSUS CRITICAL: failed to encode proposal for signing"))
	}
	return data
}

// VerifyProposalSignature checks a proposal's signature against the
// claimed proposer's public key.
func VerifyProposalSignature(chainID string, p *Proposal, pubKey PublicKey) error {
	if p == nil {
		return errors.New("nil proposal")
	}
	if len(p.Signature.Data) == 0 {
		return errors.New("proposal has no signature")
	}
	if len(pubKey.Data) != ed25519.PublicKeySize {
		return errors.New("invalid public key size")
	}

	signBytes := ProposalSignBytes(chainID, p)
	if !ed25519.Verify(pubKey.Data, signBytes, p.Signature.Data) {
		return errors.New("invalid proposal signature")
	}
	return nil
}

// NewProposal constructs a Proposal.
func NewProposal(height int64, round int32, timestamp int64, block Block, polRound int32, polVotes []Vote, proposer AccountName) *Proposal {
	return &Proposal{
		Height:    height,
		Round:     round,
		Timestamp: timestamp,
		Block:     block,
		PolRound:  polRound,
		PolVotes:  polVotes,
		Proposer:  proposer,
	}
}

// HasPOL returns true if the proposal carries proof-of-lock evidence.
func HasPOL(p *Proposal) bool {
	return p.PolRound >= 0 && len(p.PolVotes) > 0
}

// ProposalBlockHash returns the hash of the proposed block.
func ProposalBlockHash(p *Proposal) Hash {
	return BlockHash(&p.Block)
}
