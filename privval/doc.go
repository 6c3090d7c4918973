// Package privval implements private validator functionality with double-sign prevention.
//
// A private validator holds the Ed25519 private key used for signing consensus messages
// (proposals, prevotes, precommits). The key responsibility is preventing double-signing,
// which would constitute Byzantine behavior and violate consensus safety.
//
// # Core Interface
//
// PrivValidator defines the interface for signing consensus messages:
//
//	type PrivValidator interface {
//	    GetPubKey() types.PublicKey
//	    SignVote(chainID string, vote *types.Vote) error
//	    SignProposal(chainID string, proposal *types.Proposal) error
//	    GetAddress() []byte
//	}
//
// # Double-Sign Prevention
//
// LastSignState tracks the last height/round/step/sign-bytes-hash signed by this
// validator. Before signing a vote, SignVote enforces, with CheckHRS:
//
//	1. never sign at a lower height/round/step than the last signature;
//	2. re-signing the exact same vote at the exact same (height, round, step)
//	   returns the cached signature instead of erroring;
//	3. anything else at an already-signed (height, round, step) is ErrDoubleSign.
//
// Proposals are not subject to this guard: a proposer legitimately re-signs the
// same proposal when re-broadcasting a carried-forward valid_value.
//
// # Implementation
//
// FilePV is a file-based private validator with two files:
//
//	- the key file: the Ed25519 key pair, generated on first use if absent
//	- the state file: LastSignState, rewritten after every vote signature
//
// # File Format
//
// key file:
//
//	{"pub_key": "...", "priv_key": "..."}
//
// state file:
//
//	{"height": 100, "round": 2, "step": 1, "signature": "...", "block_hash": "...", "sign_bytes_hash": "...", "timestamp": 123}
//
// # Thread Safety
//
// FilePV serializes signing through an internal mutex. Running two FilePV
// instances against the same key/state files concurrently is not supported.
package privval
