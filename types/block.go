package types

import (
	"github.com/pkg/errors"
)

// BlockHeader carries everything needed to hash and chain a block. The
// consensus layer never inspects block content beyond this header and the
// opaque Data payload; application-specific payload interpretation is the
// block-store collaborator's job.
type BlockHeader struct {
	ChainID        string
	Height         int64
	Time           int64 // unix nanoseconds
	LastBlockHash  *Hash
	LastCommitHash *Hash
	ValidatorsHash *Hash
	AppHash        *Hash
	Proposer       AccountName
}

// Block pairs a header with an opaque content payload and the commit that
// finalized the previous block.
type Block struct {
	Header     BlockHeader
	Data       []byte
	LastCommit *Commit
}

// blockHeaderForSign mirrors BlockHeader with RLP-safe unsigned integers
// and nil-hash pointers flattened to empty byte slices.
type blockHeaderForSign struct {
	ChainID        string
	Height         uint64
	Time           uint64
	LastBlockHash  []byte
	LastCommitHash []byte
	ValidatorsHash []byte
	AppHash        []byte
	Proposer       string
}

func hashBytesOrNil(h *Hash) []byte {
	if h == nil || IsHashEmpty(h) {
		return nil
	}
	return h.Data
}

// BlockHeaderHash computes the canonical hash of a block header.
func BlockHeaderHash(h *BlockHeader) Hash {
	if h == nil {
		return HashEmpty()
	}
	fs := blockHeaderForSign{
		ChainID:        h.ChainID,
		Height:         uint64(h.Height),
		Time:           uint64(h.Time),
		LastBlockHash:  hashBytesOrNil(h.LastBlockHash),
		LastCommitHash: hashBytesOrNil(h.LastCommitHash),
		ValidatorsHash: hashBytesOrNil(h.ValidatorsHash),
		AppHash:        hashBytesOrNil(h.AppHash),
		Proposer:       h.Proposer.Name,
	}
	data, err := rlpEncode(fs)
	if err != nil {
		panic(errors.Wrap(err, "CONSENSUS CRITICAL: failed to encode block header for hashing"))
	}
	return HashBytes(data)
}

// BlockHash computes the hash of a block, which is defined as the hash of
// its header — the state machine identifies and locks on blocks purely by
// this value.
func BlockHash(b *Block) Hash {
	if b == nil {
		return HashEmpty()
	}
	return BlockHeaderHash(&b.Header)
}

// NewBlockHeader constructs a BlockHeader.
func NewBlockHeader(
	chainID string,
	height int64,
	timestamp int64,
	lastBlockHash *Hash,
	lastCommitHash *Hash,
	validatorsHash *Hash,
	appHash *Hash,
	proposer AccountName,
) *BlockHeader {
	return &BlockHeader{
		ChainID:        chainID,
		Height:         height,
		Time:           timestamp,
		LastBlockHash:  lastBlockHash,
		LastCommitHash: lastCommitHash,
		ValidatorsHash: validatorsHash,
		AppHash:        appHash,
		Proposer:       proposer,
	}
}

// NewBlock constructs a Block.
func NewBlock(header *BlockHeader, data []byte, lastCommit *Commit) *Block {
	return &Block{Header: *header, Data: data, LastCommit: lastCommit}
}

// CommitHash computes the hash of a commit certificate.
func CommitHash(c *Commit) Hash {
	if c == nil {
		return HashEmpty()
	}
	sigs := make([]commitSigForSign, len(c.Signatures))
	for i, sig := range c.Signatures {
		sigs[i] = commitSigForSign{
			ValidatorIndex: uint32(sig.ValidatorIndex),
			Timestamp:      uint64(sig.Timestamp),
			BlockHash:      hashBytesOrNil(sig.BlockHash),
			Signature:      sig.Signature.Data,
		}
	}
	fs := commitForSign{
		Height:     uint64(c.Height),
		Round:      uint32(c.Round),
		BlockHash:  c.BlockHash.Data,
		Signatures: sigs,
	}
	data, err := rlpEncode(fs)
	if err != nil {
		panic(errors.Wrap(err, "CONSENSUS CRITICAL: failed to encode commit for hashing"))
	}
	return HashBytes(data)
}

type commitSigForSign struct {
	ValidatorIndex uint32
	Timestamp      uint64
	BlockHash      []byte
	Signature      []byte
}

type commitForSign struct {
	Height     uint64
	Round      uint32
	BlockHash  []byte
	Signatures []commitSigForSign
}

// CopyBlockHeader returns a deep copy of a BlockHeader.
func CopyBlockHeader(h *BlockHeader) BlockHeader {
	return BlockHeader{
		ChainID:        h.ChainID,
		Height:         h.Height,
		Time:           h.Time,
		LastBlockHash:  CopyHash(h.LastBlockHash),
		LastCommitHash: CopyHash(h.LastCommitHash),
		ValidatorsHash: CopyHash(h.ValidatorsHash),
		AppHash:        CopyHash(h.AppHash),
		Proposer:       CopyAccountName(h.Proposer),
	}
}

// CopyBlock returns a deep copy of a Block, or nil if b is nil. The copy
// shares no hashes, payload bytes or commit with the original, so changes
// made through it cannot reach the original's state.
func CopyBlock(b *Block) *Block {
	if b == nil {
		return nil
	}
	cp := &Block{Header: CopyBlockHeader(&b.Header)}
	if len(b.Data) > 0 {
		cp.Data = make([]byte, len(b.Data))
		copy(cp.Data, b.Data)
	}
	cp.LastCommit = CopyCommit(b.LastCommit)
	return cp
}
