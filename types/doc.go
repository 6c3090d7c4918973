// Package types defines the core data structures of the consensus protocol:
// Block, Vote, Proposal, Commit, and the validator roster they are checked
// against.
//
// # Core Types
//
// Block: an opaque payload identified by the hash of its header. The
// consensus layer never inspects block content beyond this header.
//
// Vote: a signed PreVote or PreCommit from a validator, carrying height,
// round, and an optional block hash (absent means "nil vote").
//
// Proposal: a block proposal, optionally carrying proof-of-lock (POL)
// evidence — prevotes from an earlier round demonstrating why the proposer
// is re-proposing a previously-valid block.
//
// NamedValidator / ValidatorSet: a fixed roster with integer voting powers
// and a deterministic, weighted round-robin proposer schedule.
//
// # Serialization
//
// Sign-bytes and hash preimages use github.com/ethereum/go-ethereum/rlp
// encoding of unexported "for-sign" structs with a fixed field order, so
// that honest validators always agree bit-exactly on what was signed.
//
// # Hashing
//
// Blocks, votes, and the validator set use SHA-256 hashing. Hash wraps a
// 32-byte slice with hex-string helpers for debugging.
//
// # Immutability
//
// Accessor methods return deep copies rather than internal pointers, so
// that a caller holding a returned Vote, Block, or Hash cannot corrupt the
// originating VoteSet or Context state by mutating it.
package types
