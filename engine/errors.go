package engine

import "github.com/pkg/errors"

// Consensus errors.
var (
	ErrInvalidVote        = errors.New("invalid vote")
	ErrUnknownValidator    = errors.New("unknown validator")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrConflictingVote    = errors.New("conflicting vote (equivocation)")
	ErrInvalidProposal    = errors.New("invalid proposal")
	ErrInvalidBlock       = errors.New("invalid block")
	ErrInvalidHeight      = errors.New("invalid height")
	ErrInvalidRound       = errors.New("invalid round")
	ErrNotProposer        = errors.New("not the proposer for this round")
	ErrNoPrivValidator    = errors.New("no private validator configured")
	ErrAlreadyStarted     = errors.New("consensus already started")
	ErrNotStarted         = errors.New("consensus not started")
	ErrStaleVoteSet       = errors.New("stale vote set reference")
	ErrAppendFailed       = errors.New("append failed")
	ErrCancelled          = errors.New("context cancelled")
)
