// Package evidence detects Byzantine equivocation: a validator signing two
// different votes for the same height, round, and vote type.
//
// Detection is local and in-memory only. There is no cross-height
// persistence and no slashing submission path — a Context that observes an
// equivocating vote pair reports it to the Pool and moves on; what a node
// does with collected Equivocation records (gossip it, submit it on-chain,
// slash the validator) is outside this package's scope.
package evidence

import (
	"fmt"
	"sync"

	"github.com/blockberries/roundberry/types"
)

// Equivocation records a validator signing two conflicting votes for the
// same (height, round, step).
type Equivocation struct {
	Height    int64
	Round     int32
	Step      types.VoteType
	Validator types.AccountName
	VoteA     *types.Vote
	VoteB     *types.Vote
}

// Pool collects Equivocation records observed during consensus. It is safe
// for concurrent use; a single Pool is normally shared across heights.
type Pool struct {
	mu    sync.RWMutex
	seen  map[string]struct{}
	items []Equivocation
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{
		seen: make(map[string]struct{}),
	}
}

// AddEquivocation records a newly observed equivocation, ignoring a repeat
// report of the same validator/height/round/step triple.
func (p *Pool) AddEquivocation(height int64, round int32, step types.VoteType, validator types.AccountName, voteA, voteB *types.Vote) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := equivocationKey(height, round, step, validator)
	if _, ok := p.seen[key]; ok {
		return
	}
	p.seen[key] = struct{}{}

	p.items = append(p.items, Equivocation{
		Height:    height,
		Round:     round,
		Step:      step,
		Validator: validator,
		VoteA:     types.CopyVote(voteA),
		VoteB:     types.CopyVote(voteB),
	})
}

// Evidence returns every equivocation collected so far, oldest first.
func (p *Pool) Evidence() []Equivocation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Equivocation, len(p.items))
	copy(out, p.items)
	return out
}

// Size returns the number of distinct equivocations collected.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

func equivocationKey(height int64, round int32, step types.VoteType, validator types.AccountName) string {
	return fmt.Sprintf("%s/%d/%d/%d", validator.Name, height, round, step)
}
