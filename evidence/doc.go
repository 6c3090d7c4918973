// Package evidence detects duplicate voting (equivocation): a validator
// signing two conflicting votes at the same height/round/step.
//
// # Core Interface
//
// Pool collects Equivocation records as they are observed:
//
//	type Pool struct { ... }
//
//	func NewPool() *Pool
//	func (p *Pool) AddEquivocation(height int64, round int32, step types.VoteType, validator types.AccountName, voteA, voteB *types.Vote)
//	func (p *Pool) Evidence() []Equivocation
//	func (p *Pool) Size() int
//
// # Scope
//
// This is local detection only: a Pool records what a single node has
// observed in memory. There is no cross-height persistence, no gossip, and
// no on-chain slashing submission — a node wiring a Pool decides for itself
// what to do with the Equivocation records it accumulates.
//
// # Usage Example
//
//	pool := evidence.NewPool()
//
//	// within the state machine, on detecting conflicting votes from the
//	// same validator at the same height/round/step:
//	pool.AddEquivocation(height, round, types.VoteTypePrevote, validator, voteA, voteB)
//
//	for _, eq := range pool.Evidence() {
//	    log.Printf("equivocation: %s at %d/%d", eq.Validator.Name, eq.Height, eq.Round)
//	}
//
// # Thread Safety
//
// Pool is safe for concurrent use.
package evidence
