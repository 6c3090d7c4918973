package types

import (
	"bytes"
	"testing"
)

// Every struct encoded through rlpEncode must survive a decode-then-encode
// round trip byte for byte; the consensus-critical hashes and sign-bytes
// this package produces are only as trustworthy as that property holds.
// Comparing re-encoded bytes rather than decoded struct values sidesteps
// RLP's nil-vs-empty-slice ambiguity on absent byte fields while still
// catching any field decode gets wrong.

func roundTrip(t *testing.T, original interface{}, decoded interface{}) []byte {
	t.Helper()

	want, err := rlpEncode(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := rlpDecode(want, decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := rlpEncode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(want, got) {
		t.Errorf("round trip changed bytes: want %x, got %x", want, got)
	}
	return want
}

func TestVoteForSignRoundTrips(t *testing.T) {
	fs := voteForSign{
		Type:           uint8(VoteTypePrecommit),
		Height:         42,
		Round:          3,
		BlockHash:      HashBytes([]byte("block")).Data,
		Timestamp:      1234567890,
		ValidatorIndex: 7,
		ChainID:        "test-chain",
	}

	var got voteForSign
	roundTrip(t, fs, &got)

	if got.Type != fs.Type || got.Height != fs.Height || got.Round != fs.Round ||
		got.Timestamp != fs.Timestamp || got.ValidatorIndex != fs.ValidatorIndex || got.ChainID != fs.ChainID {
		t.Errorf("decoded scalar fields mismatch: want %+v, got %+v", fs, got)
	}
	if !bytes.Equal(got.BlockHash, fs.BlockHash) {
		t.Errorf("decoded BlockHash mismatch: want %x, got %x", fs.BlockHash, got.BlockHash)
	}
}

func TestVoteForSignRoundTripsWithNilBlockHash(t *testing.T) {
	fs := voteForSign{Type: uint8(VoteTypePrevote), Height: 1, Round: 0, ChainID: "c"}

	var got voteForSign
	roundTrip(t, fs, &got)

	if got.Type != fs.Type || got.Height != fs.Height || got.ChainID != fs.ChainID {
		t.Errorf("decoded scalar fields mismatch: want %+v, got %+v", fs, got)
	}
	if len(got.BlockHash) != 0 {
		t.Errorf("expected empty BlockHash, got %x", got.BlockHash)
	}
}

func TestProposalForSignRoundTrips(t *testing.T) {
	fs := proposalForSign{
		Height:      9,
		Round:       1,
		Timestamp:   555,
		BlockHash:   HashBytes([]byte("candidate")).Data,
		HasPolRound: true,
		PolRound:    0,
		ChainID:     "test-chain",
	}

	var got proposalForSign
	roundTrip(t, fs, &got)

	if got.Height != fs.Height || got.Round != fs.Round || got.Timestamp != fs.Timestamp ||
		got.HasPolRound != fs.HasPolRound || got.PolRound != fs.PolRound || got.ChainID != fs.ChainID {
		t.Errorf("decoded scalar fields mismatch: want %+v, got %+v", fs, got)
	}
	if !bytes.Equal(got.BlockHash, fs.BlockHash) {
		t.Errorf("decoded BlockHash mismatch: want %x, got %x", fs.BlockHash, got.BlockHash)
	}
}

func TestBlockHeaderForSignRoundTrips(t *testing.T) {
	fs := blockHeaderForSign{
		ChainID:        "test-chain",
		Height:         10,
		Time:           999,
		LastBlockHash:  HashBytes([]byte("last-block")).Data,
		LastCommitHash: nil,
		ValidatorsHash: HashBytes([]byte("vals")).Data,
		AppHash:        nil,
		Proposer:       "alice",
	}

	var got blockHeaderForSign
	roundTrip(t, fs, &got)

	if got.ChainID != fs.ChainID || got.Height != fs.Height || got.Time != fs.Time || got.Proposer != fs.Proposer {
		t.Errorf("decoded scalar fields mismatch: want %+v, got %+v", fs, got)
	}
	if !bytes.Equal(got.LastBlockHash, fs.LastBlockHash) {
		t.Errorf("decoded LastBlockHash mismatch: want %x, got %x", fs.LastBlockHash, got.LastBlockHash)
	}
	if !bytes.Equal(got.ValidatorsHash, fs.ValidatorsHash) {
		t.Errorf("decoded ValidatorsHash mismatch: want %x, got %x", fs.ValidatorsHash, got.ValidatorsHash)
	}
	if len(got.LastCommitHash) != 0 || len(got.AppHash) != 0 {
		t.Errorf("expected empty omitted hashes, got LastCommitHash=%x AppHash=%x", got.LastCommitHash, got.AppHash)
	}
}

func TestCommitForSignRoundTrips(t *testing.T) {
	blockHash := HashBytes([]byte("committed-block")).Data
	fs := commitForSign{
		Height:    5,
		Round:     2,
		BlockHash: blockHash,
		Signatures: []commitSigForSign{
			{ValidatorIndex: 0, Timestamp: 111, BlockHash: blockHash, Signature: []byte("sig-a")},
			{ValidatorIndex: 1, Timestamp: 112, BlockHash: nil, Signature: []byte("sig-b")},
		},
	}

	var got commitForSign
	roundTrip(t, fs, &got)

	if got.Height != fs.Height || got.Round != fs.Round {
		t.Errorf("decoded scalar fields mismatch: want %+v, got %+v", fs, got)
	}
	if !bytes.Equal(got.BlockHash, fs.BlockHash) {
		t.Errorf("decoded BlockHash mismatch: want %x, got %x", fs.BlockHash, got.BlockHash)
	}
	if len(got.Signatures) != len(fs.Signatures) {
		t.Fatalf("expected %d signatures, got %d", len(fs.Signatures), len(got.Signatures))
	}
	for i, sig := range got.Signatures {
		want := fs.Signatures[i]
		if sig.ValidatorIndex != want.ValidatorIndex || sig.Timestamp != want.Timestamp {
			t.Errorf("signature %d scalar mismatch: want %+v, got %+v", i, want, sig)
		}
		if !bytes.Equal(sig.Signature, want.Signature) {
			t.Errorf("signature %d Signature mismatch: want %x, got %x", i, want.Signature, sig.Signature)
		}
	}
}

func TestValidatorSetForSignRoundTrips(t *testing.T) {
	fs := validatorSetForSign{
		Validators: []validatorForSign{
			{Name: "alice", PublicKey: make([]byte, 32), VotingPower: 100},
			{Name: "bob", PublicKey: make([]byte, 32), VotingPower: 200},
		},
		TotalPower: 300,
	}

	var got validatorSetForSign
	roundTrip(t, fs, &got)

	if got.TotalPower != fs.TotalPower {
		t.Errorf("decoded TotalPower mismatch: want %d, got %d", fs.TotalPower, got.TotalPower)
	}
	if len(got.Validators) != len(fs.Validators) {
		t.Fatalf("expected %d validators, got %d", len(fs.Validators), len(got.Validators))
	}
	for i, v := range got.Validators {
		want := fs.Validators[i]
		if v.Name != want.Name || v.VotingPower != want.VotingPower {
			t.Errorf("validator %d scalar mismatch: want %+v, got %+v", i, want, v)
		}
		if !bytes.Equal(v.PublicKey, want.PublicKey) {
			t.Errorf("validator %d PublicKey mismatch: want %x, got %x", i, want.PublicKey, v.PublicKey)
		}
	}
}
