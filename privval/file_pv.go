package privval

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/blockberries/roundberry/types"
)

const (
	keyFilePerm   = 0600
	stateFilePerm = 0600
)

// FilePV is a file-based private validator.
type FilePV struct {
	mu sync.Mutex

	keyFilePath   string
	stateFilePath string

	pubKey  types.PublicKey
	privKey ed25519.PrivateKey

	lastSignState LastSignState
}

// FilePVKey is the on-disk key file shape.
type FilePVKey struct {
	PubKey  []byte `json:"pub_key"`
	PrivKey []byte `json:"priv_key"`
}

// FilePVState is the on-disk last-sign-state file shape.
type FilePVState struct {
	Height        int64  `json:"height"`
	Round         int32  `json:"round"`
	Step          int8   `json:"step"`
	Signature     []byte `json:"signature,omitempty"`
	BlockHash     []byte `json:"block_hash,omitempty"`
	SignBytesHash []byte `json:"sign_bytes_hash,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}

// NewFilePV loads an existing key/state pair, generating either if absent.
func NewFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	pv := &FilePV{
		keyFilePath:   keyFilePath,
		stateFilePath: stateFilePath,
	}

	if err := pv.loadKey(); err != nil {
		return nil, err
	}
	if err := pv.loadState(); err != nil {
		return nil, err
	}

	return pv, nil
}

// GenerateFilePV generates a fresh key pair and writes both files.
func GenerateFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "generate key")
	}

	pv := &FilePV{
		keyFilePath:   keyFilePath,
		stateFilePath: stateFilePath,
		pubKey:        types.MustNewPublicKey(pubKey),
		privKey:       privKey,
	}

	if err := pv.saveKey(); err != nil {
		return nil, err
	}
	if err := pv.saveState(); err != nil {
		return nil, err
	}

	return pv, nil
}

func (pv *FilePV) loadKey() error {
	data, err := os.ReadFile(pv.keyFilePath)
	if os.IsNotExist(err) {
		pubKey, privKey, err := ed25519.GenerateKey(nil)
		if err != nil {
			return errors.Wrap(err, "generate key")
		}
		pv.pubKey = types.MustNewPublicKey(pubKey)
		pv.privKey = privKey
		return pv.saveKey()
	}
	if err != nil {
		return errors.Wrap(err, "read key file")
	}

	var key FilePVKey
	if err := json.Unmarshal(data, &key); err != nil {
		return errors.Wrap(err, "parse key file")
	}

	pubKey, err := types.NewPublicKey(key.PubKey)
	if err != nil {
		return errors.Wrap(err, "invalid public key in key file")
	}
	if len(key.PrivKey) != ed25519.PrivateKeySize {
		return errors.New("invalid private key size")
	}

	pv.pubKey = pubKey
	pv.privKey = key.PrivKey

	return nil
}

func (pv *FilePV) saveKey() error {
	dir := filepath.Dir(pv.keyFilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "create key directory")
	}

	key := FilePVKey{
		PubKey:  pv.pubKey.Data,
		PrivKey: pv.privKey,
	}

	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal key")
	}

	if err := os.WriteFile(pv.keyFilePath, data, keyFilePerm); err != nil {
		return errors.Wrap(err, "write key file")
	}

	return nil
}

func (pv *FilePV) loadState() error {
	data, err := os.ReadFile(pv.stateFilePath)
	if os.IsNotExist(err) {
		pv.lastSignState = LastSignState{}
		return pv.saveState()
	}
	if err != nil {
		return errors.Wrap(err, "read state file")
	}

	var state FilePVState
	if err := json.Unmarshal(data, &state); err != nil {
		return errors.Wrap(err, "parse state file")
	}

	pv.lastSignState = LastSignState{
		Height:    state.Height,
		Round:     state.Round,
		Step:      state.Step,
		Timestamp: state.Timestamp,
	}

	if len(state.Signature) > 0 {
		sig, err := types.NewSignature(state.Signature)
		if err != nil {
			return errors.Wrap(err, "invalid signature in state file")
		}
		pv.lastSignState.Signature = sig
	}

	if len(state.BlockHash) > 0 {
		hash, err := types.NewHash(state.BlockHash)
		if err != nil {
			return errors.Wrap(err, "invalid block hash in state file")
		}
		pv.lastSignState.BlockHash = &hash
	}

	if len(state.SignBytesHash) > 0 {
		hash, err := types.NewHash(state.SignBytesHash)
		if err != nil {
			return errors.Wrap(err, "invalid sign bytes hash in state file")
		}
		pv.lastSignState.SignBytesHash = &hash
	}

	return nil
}

func (pv *FilePV) saveState() error {
	dir := filepath.Dir(pv.stateFilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "create state directory")
	}

	state := FilePVState{
		Height:    pv.lastSignState.Height,
		Round:     pv.lastSignState.Round,
		Step:      pv.lastSignState.Step,
		Timestamp: pv.lastSignState.Timestamp,
	}

	if len(pv.lastSignState.Signature.Data) > 0 {
		state.Signature = pv.lastSignState.Signature.Data
	}
	if pv.lastSignState.BlockHash != nil {
		state.BlockHash = pv.lastSignState.BlockHash.Data
	}
	if pv.lastSignState.SignBytesHash != nil {
		state.SignBytesHash = pv.lastSignState.SignBytesHash.Data
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}

	if err := os.WriteFile(pv.stateFilePath, data, stateFilePerm); err != nil {
		return errors.Wrap(err, "write state file")
	}

	return nil
}

// GetPubKey returns the public key.
func (pv *FilePV) GetPubKey() types.PublicKey {
	return pv.pubKey
}

// GetAddress returns the validator address: the first 20 bytes of the
// public key.
func (pv *FilePV) GetAddress() []byte {
	if len(pv.pubKey.Data) >= 20 {
		return pv.pubKey.Data[:20]
	}
	return pv.pubKey.Data
}

// SignVote signs vote, refusing to double-sign within the same
// (height, round, step) except to idempotently re-deliver a signature
// already produced for the identical vote.
func (pv *FilePV) SignVote(chainID string, vote *types.Vote) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	step := VoteStep(vote.Type)
	signBytes := types.VoteSignBytes(chainID, vote)
	signBytesHash := types.HashBytes(signBytes)

	if err := pv.lastSignState.CheckHRS(vote.Height, vote.Round, step); err != nil {
		if err == ErrDoubleSign && pv.lastSignState.SignBytesHash != nil && types.HashEqual(*pv.lastSignState.SignBytesHash, signBytesHash) {
			vote.Signature = pv.lastSignState.Signature
			return nil
		}
		return err
	}

	sig := ed25519.Sign(pv.privKey, signBytes)
	vote.Signature = types.MustNewSignature(sig)

	pv.lastSignState.Height = vote.Height
	pv.lastSignState.Round = vote.Round
	pv.lastSignState.Step = step
	pv.lastSignState.Signature = vote.Signature
	pv.lastSignState.BlockHash = types.CopyHash(vote.BlockHash)
	pv.lastSignState.SignBytesHash = &signBytesHash
	pv.lastSignState.Timestamp = vote.Timestamp

	return pv.saveState()
}

// SignProposal signs proposal. Proposals are not subject to the same
// double-sign guard as votes: a proposer may legitimately re-propose the
// same block across calls (e.g. re-broadcasting valid_value).
func (pv *FilePV) SignProposal(chainID string, proposal *types.Proposal) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	signBytes := types.ProposalSignBytes(chainID, proposal)
	sig := ed25519.Sign(pv.privKey, signBytes)
	proposal.Signature = types.MustNewSignature(sig)

	return nil
}

// Reset clears the last sign state. Use with caution: it defeats the
// double-sign guard for the height/round it discards.
func (pv *FilePV) Reset() error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	pv.lastSignState = LastSignState{}
	return pv.saveState()
}

// Ensure FilePV implements PrivValidator.
var _ PrivValidator = (*FilePV)(nil)
