// Package engine implements the Tendermint-style BFT consensus state machine.
//
// A Context coordinates one height's agreement on a single block through the
// round/step cycle:
//
//	Propose → PreVote → PreCommit → EndCommit
//
// # Core Components
//
// Context: the full state machine — round/step transitions, locking and
// proof-of-lock mechanics, proposer selection, and the single-consumer event
// loop that drives all of the below.
//
// VoteSet / HeightVoteSet: aggregate PreVotes and PreCommits per (round, step),
// detect 2/3+ and 1/3+ quorums, and distinguish a duplicate re-delivery from
// an equivocation. A Context reports every equivocation it detects to an
// evidence.Pool.
//
// TimeoutScheduler: arms and fires per-(kind, round) timers so a stalled
// round always eventually advances.
//
// Mailbox: the single ordered inbound queue (proposals, votes, timeouts) a
// Context drains from one goroutine, so no two event handlers ever run
// concurrently.
//
// Observer: the fan-out sink a Context reports every state transition,
// broadcast, timeout, commit, and exception to.
//
// # Usage Example
//
//	vals := []*types.NamedValidator{
//	    {Name: types.NewAccountName("alice"), VotingPower: 100, PublicKey: alicePubKey},
//	    {Name: types.NewAccountName("bob"), VotingPower: 100, PublicKey: bobPubKey},
//	}
//	valSet, _ := types.NewValidatorSet(vals)
//
//	cfg := engine.DefaultConfig()
//	ctx := engine.NewContext(cfg, 1, valSet, privVal, blockChain, nil, nil, nil)
//	ctx.SetBroadcasters(broadcastProposal, broadcastVote)
//	ctx.Start()
//
//	ctx.ProduceProposal(proposal, "peer-1")
//	ctx.ProduceVote(vote, "peer-2")
//
// # Thread Safety
//
// Public methods are safe for concurrent use. Start enters round 0 before
// it launches the goroutine fed by the Mailbox, and that goroutine runs
// every later transition, so the state machine's transitions never run
// concurrently.
//
// # Consensus Properties
//
// Safety: a Context commits at most one block per height; PreCommit
// requires a 2/3+ polka, and the locking rule prevents voting for a
// conflicting block once locked without sufficient proof-of-lock evidence.
//
// Liveness: rounds advance on timeout or on observing a 1/3+ vote for a
// higher round, so a stalled round never blocks forever.
//
// Byzantine fault tolerance: tolerates up to 1/3 Byzantine voting power;
// VoteSet detects and surfaces equivocation as it is observed.
package engine
