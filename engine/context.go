package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/blockberries/roundberry/evidence"
	"github.com/blockberries/roundberry/types"
)

// PrivValidator signs consensus messages on behalf of the local validator.
// Implementations are expected to guard against double-signing internally
// (see privval.FilePV); the Context never signs the same (height, round,
// step) twice regardless, via its own at-most-once broadcast bookkeeping.
type PrivValidator interface {
	GetPubKey() types.PublicKey
	SignVote(chainID string, vote *types.Vote) error
	SignProposal(chainID string, proposal *types.Proposal) error
	GetAddress() []byte
}

// BlockChain is the external collaborator that owns block content,
// validation, and persistence. The Context never inspects a block beyond
// hashing it and calling these three methods.
type BlockChain interface {
	// ProposeBlock asks for a fresh candidate block when this validator is
	// the proposer and has no valid_value to re-propose.
	ProposeBlock(proposer types.AccountName, lastCommit *types.Commit) (*types.Block, error)
	// ValidateNextBlock checks a received block's content and header
	// against chain tip before it may be prevoted for.
	ValidateNextBlock(block *types.Block) error
	// Append commits block with its certificate. An error here is fatal to
	// the Context.
	Append(block *types.Block, commit *types.Commit) error
}

type selfVoteKey struct {
	round int32
	step  types.VoteType
}

// Context drives one validator's participation in agreeing on a single
// block at a fixed height, across as many rounds as it takes. It is
// single-use: once it reaches RoundStepEndCommit it stops itself.
type Context struct {
	mu sync.RWMutex

	config *Config
	height int64

	validatorSet *types.ValidatorSet
	privVal      PrivValidator
	blockChain   BlockChain

	round int32
	step  RoundStep

	proposal      *types.Proposal
	proposalBlock *types.Block

	lockedRound int32
	lockedBlock *types.Block

	validRound int32
	validBlock *types.Block

	votes      *HeightVoteSet
	lastCommit *types.Commit

	timeouts  *TimeoutScheduler
	mailbox   *Mailbox
	observers *observerSet
	metrics   *Metrics
	evidence  *evidence.Pool
	log       zerolog.Logger

	broadcastProposal func(*types.Proposal)
	broadcastVote     func(*types.Vote)

	selfVotesSent   map[selfVoteKey]bool
	selfPrevoteHash map[int32]*types.Hash // what this validator itself prevoted, by round; nil entry means nil-vote

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started bool
}

// NewContext builds a Context for height, not yet started. metrics may be
// nil, in which case NopMetrics() is used. evidencePool may be nil, in which
// case a fresh, height-local evidence.Pool is created; pass a Pool shared
// across heights to accumulate equivocation records beyond this Context's
// own lifetime.
func NewContext(config *Config, height int64, valSet *types.ValidatorSet, privVal PrivValidator, blockChain BlockChain, lastCommit *types.Commit, metrics *Metrics, evidencePool *evidence.Pool) *Context {
	if metrics == nil {
		metrics = NopMetrics()
	}
	if evidencePool == nil {
		evidencePool = evidence.NewPool()
	}
	return &Context{
		config:          config,
		height:          height,
		validatorSet:    valSet,
		privVal:         privVal,
		blockChain:      blockChain,
		lockedRound:     -1,
		validRound:      -1,
		votes:           NewHeightVoteSet(config.ChainID, height, valSet),
		lastCommit:      lastCommit,
		observers:       newObserverSet(),
		metrics:         metrics,
		evidence:        evidencePool,
		selfVotesSent:   make(map[selfVoteKey]bool),
		selfPrevoteHash: make(map[int32]*types.Hash),
		log:             log.With().Str("chain_id", config.ChainID).Int64("height", height).Logger(),
	}
}

// Evidence returns every equivocation this Context's evidence pool has
// collected so far (including, if the pool is shared, equivocations
// observed by other heights/Contexts using the same pool).
func (c *Context) Evidence() []evidence.Equivocation {
	return c.evidence.Evidence()
}

// SetBroadcasters wires the functions used to publish outbound messages to
// the transport. Must be called before Start.
func (c *Context) SetBroadcasters(proposalFn func(*types.Proposal), voteFn func(*types.Vote)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastProposal = proposalFn
	c.broadcastVote = voteFn
}

// Subscribe registers o to receive every Event from this point on. Returns
// an unsubscribe function.
func (c *Context) Subscribe(o Observer) func() {
	return c.observers.Subscribe(o)
}

// Start begins round 0. Idempotent: calling it again after the Context has
// already started has no effect.
func (c *Context) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.timeouts = NewTimeoutScheduler(c.config.Timeouts)
	c.mailbox = NewMailbox(c.timeouts.Chan())
	c.started = true
	c.metrics.Height.Set(float64(c.height))
	c.mu.Unlock()

	c.startRound(0)

	c.wg.Add(1)
	go c.receiveRoutine()
	return nil
}

// Stop cancels the receive loop and every outstanding timer, reporting
// ErrCancelled to observers. Safe to call more than once; a Context that
// was never started returns ErrNotStarted.
func (c *Context) Stop() error {
	if !c.haltLoop() {
		return ErrNotStarted
	}
	c.notify(Event{Kind: EventExceptionOccurred, Err: ErrCancelled})
	return nil
}

// haltLoop tears down the receive loop and timer scheduler without
// reporting a Cancelled exception — used internally when the Context
// stops itself after a normal commit or a fatal AppendFailed, both of
// which already report their own terminal event.
func (c *Context) haltLoop() (wasRunning bool) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return false
	}
	c.started = false
	c.mu.Unlock()

	c.cancel()
	c.timeouts.Stop()
	c.mailbox.Close()
	c.wg.Wait()
	if dropped := c.mailbox.DroppedMessages(); dropped > 0 {
		c.log.Warn().Uint64("dropped_messages", dropped).Msg("mailbox dropped messages over context lifetime")
	}
	if dropped := c.timeouts.DroppedTimeouts(); dropped > 0 {
		c.metrics.TimeoutsDropped.Add(float64(dropped))
	}
	return true
}

// ProduceProposal enqueues a proposal received from from. Non-blocking;
// drops the proposal if the mailbox's proposal buffer is full, and such a
// drop is not counted in DroppedMessages.
func (c *Context) ProduceProposal(p *types.Proposal, from string) {
	c.mailbox.SubmitProposal(&ProposalMessage{Proposal: p, From: from})
}

// ProduceVote enqueues a vote received from from. Non-blocking.
func (c *Context) ProduceVote(v *types.Vote, from string) {
	c.mailbox.SubmitVote(&VoteMessage{Vote: v, From: from})
}

// debugSnapshot is the wire shape for ToDebugString.
type debugSnapshot struct {
	Height      int64  `json:"height"`
	Round       int32  `json:"round"`
	Step        string `json:"step"`
	LockedRound int32  `json:"locked_round"`
	LockedValue string `json:"locked_value"`
	ValidRound  int32  `json:"valid_round"`
	ValidValue  string `json:"valid_value"`
}

// ToDebugString returns a JSON snapshot of the Context's externally
// observable state.
func (c *Context) ToDebugString() (string, error) {
	c.mu.RLock()
	snap := debugSnapshot{
		Height:      c.height,
		Round:       c.round,
		Step:        c.step.String(),
		LockedRound: c.lockedRound,
		ValidRound:  c.validRound,
		LockedValue: "nil",
		ValidValue:  "nil",
	}
	if c.lockedBlock != nil {
		h := types.BlockHash(c.lockedBlock)
		snap.LockedValue = types.HashString(h)
	}
	if c.validBlock != nil {
		h := types.BlockHash(c.validBlock)
		snap.ValidValue = types.HashString(h)
	}
	c.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return "", errors.Wrap(err, "marshal debug snapshot")
	}
	return string(data), nil
}

// receiveRoutine is the single-threaded cooperative consumer: exactly one
// event is processed to completion before the next.
func (c *Context) receiveRoutine() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.mailbox.Out():
			if !ok {
				return
			}
			switch msg.Kind {
			case MessageProposal:
				c.handleProposal(msg.Proposal.Proposal, msg.Proposal.From)
			case MessageVote:
				c.handleVote(msg.Vote.Vote, msg.Vote.From)
			case MessageTimeout:
				c.handleTimeout(msg.Timeout)
			}
		}
	}
}

// startRound implements the round-entry rule: advance the proposer
// schedule by however many rounds were skipped, reset per-round state,
// arm the Propose timer, emit a proposal if we are the proposer, then
// rescan any votes already buffered for this round.
func (c *Context) startRound(r int32) {
	c.mu.Lock()
	if r < c.round || c.step == RoundStepEndCommit {
		c.mu.Unlock()
		return
	}
	delta := r - c.round
	if delta > 0 {
		c.validatorSet.IncrementProposerPriority(delta)
	}
	c.round = r
	c.step = RoundStepPropose
	c.proposal = nil
	c.proposalBlock = nil
	proposer := c.validatorSet.Proposer
	isSelf := c.isSelf(proposer)
	c.mu.Unlock()

	c.timeouts.CancelBelow(r)
	c.timeouts.Schedule(TimeoutPropose, r)
	c.metrics.Round.Set(float64(r))
	c.metrics.RoundsAdvanced.Add(1)
	c.log.Info().Int32("round", r).Bool("is_proposer", isSelf).Msg("entering round")
	c.notify(Event{Kind: EventStateChanged, Height: c.height, Round: r, Step: RoundStepPropose})

	if isSelf {
		c.createAndBroadcastProposal(r)
	}

	c.rescanBufferedVotes(r)
}

// rescanBufferedVotes re-checks round r's vote buckets for thresholds that
// were already satisfied before this Context officially entered the
// round (messages may have arrived and been buffered ahead of a
// round-skip).
func (c *Context) rescanBufferedVotes(r int32) {
	if c.votes.Prevotes(r) != nil {
		c.onPrevoteAdded(r)
	}
	if c.votes.Precommits(r) != nil {
		c.onPrecommitAdded(r)
	}
}

func (c *Context) isSelf(val *types.NamedValidator) bool {
	if val == nil || c.privVal == nil {
		return false
	}
	return types.PublicKeyEqual(val.PublicKey, c.privVal.GetPubKey())
}

// ourValidator finds the NamedValidator entry matching this node's own
// public key. Callers must already hold c.mu.
func (c *Context) ourValidator() *types.NamedValidator {
	if c.privVal == nil {
		return nil
	}
	pubKey := c.privVal.GetPubKey()
	for _, v := range c.validatorSet.Validators {
		if types.PublicKeyEqual(v.PublicKey, pubKey) {
			return v
		}
	}
	return nil
}

// proposerForRound returns the proposer round r would have, without
// mutating the live validator set: for the current round it's just
// Proposer; for a future round it fast-forwards a throwaway copy.
func (c *Context) proposerForRound(r int32) *types.NamedValidator {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if r == c.round {
		return c.validatorSet.Proposer
	}
	if r < c.round {
		return nil
	}
	clone := c.validatorSet.Copy()
	clone.IncrementProposerPriority(r - c.round)
	return clone.Proposer
}

// createAndBroadcastProposal builds (or re-proposes valid_value), signs,
// and broadcasts a proposal for round r, then feeds it back through the
// mailbox so the same code path that processes a peer's proposal also
// processes our own.
func (c *Context) createAndBroadcastProposal(r int32) {
	c.mu.Lock()
	var block *types.Block
	polRound := int32(-1)
	if c.validBlock != nil {
		block = c.validBlock
		polRound = c.validRound
	}
	proposerName := c.validatorSet.Proposer.Name
	lastCommit := c.lastCommit
	c.mu.Unlock()

	if block == nil {
		var err error
		block, err = c.blockChain.ProposeBlock(proposerName, lastCommit)
		if err != nil {
			c.notify(Event{Kind: EventExceptionOccurred, Err: errors.Wrap(err, "propose block")})
			return
		}
	}

	var polVotes []types.Vote
	if polRound >= 0 {
		if pv := c.votes.Prevotes(polRound); pv != nil {
			for _, v := range pv.GetVotes() {
				polVotes = append(polVotes, *v)
			}
		}
	}

	proposal := types.NewProposal(c.height, r, time.Now().UnixNano(), *block, polRound, polVotes, proposerName)
	if err := c.privVal.SignProposal(c.config.ChainID, proposal); err != nil {
		c.notify(Event{Kind: EventExceptionOccurred, Err: errors.Wrap(err, "sign proposal")})
		return
	}

	c.metrics.ProposalsMade.Add(1)
	if c.broadcastProposal != nil {
		c.broadcastProposal(proposal)
	}
	c.notify(Event{Kind: EventMessageBroadcast, Message: Message{Kind: MessageProposal, Proposal: &ProposalMessage{Proposal: proposal}}})

	c.ProduceProposal(proposal, "self")
}

// handleProposal implements event handler 1 from the round/step design:
// accept a proposal for the current round, or for a future round (which
// triggers a round-skip to it), verify proposer identity and signature,
// then decide a prevote.
func (c *Context) handleProposal(p *types.Proposal, from string) {
	c.mu.RLock()
	height := c.height
	round := c.round
	c.mu.RUnlock()

	if p.Height != height {
		c.notify(Event{Kind: EventExceptionOccurred, Err: ErrInvalidHeight})
		return
	}
	if p.Round < round {
		return
	}

	expectedProposer := c.proposerForRound(p.Round)
	if expectedProposer == nil || !types.AccountNameEqual(p.Proposer, expectedProposer.Name) {
		c.notify(Event{Kind: EventExceptionOccurred, Err: ErrNotProposer})
		return
	}
	if err := types.VerifyProposalSignature(c.config.ChainID, p, expectedProposer.PublicKey); err != nil {
		c.notify(Event{Kind: EventExceptionOccurred, Err: errors.Wrap(ErrInvalidSignature, err.Error())})
		return
	}

	if p.Round > round {
		c.startRound(p.Round)
	}

	c.mu.Lock()
	if c.round != p.Round || c.step != RoundStepPropose || c.proposal != nil {
		c.mu.Unlock()
		return
	}
	c.proposal = p
	c.proposalBlock = &p.Block
	c.mu.Unlock()

	c.decidePrevote(p)
}

// decidePrevote runs validate_block and the locking rule, then broadcasts
// the resulting PreVote and advances to RoundStepPrevote.
func (c *Context) decidePrevote(p *types.Proposal) {
	blockHash := types.BlockHash(&p.Block)

	c.mu.RLock()
	lockedRound := c.lockedRound
	lockedBlock := c.lockedBlock
	c.mu.RUnlock()

	valid := true
	if err := c.blockChain.ValidateNextBlock(&p.Block); err != nil {
		c.notify(Event{Kind: EventExceptionOccurred, Err: errors.Wrap(err, "validate block")})
		valid = false
	}

	var prevoteHash *types.Hash
	if valid {
		canAccept := lockedRound == -1
		if !canAccept && lockedBlock != nil {
			lockedHash := types.BlockHash(lockedBlock)
			canAccept = types.HashEqual(lockedHash, blockHash)
		}
		if !canAccept {
			canAccept = c.canOverrideLock(p)
		}
		if canAccept {
			prevoteHash = &blockHash
		}
	}

	c.timeouts.Cancel(TimeoutPropose, p.Round)
	c.enterStep(RoundStepPrevote, p.Round)
	c.emitVote(types.VoteTypePrevote, p.Round, prevoteHash)
}

// canOverrideLock reports whether a proposal carries sufficient
// proof-of-lock evidence to permit a PreVote for a block other than the
// one this validator is currently locked on.
func (c *Context) canOverrideLock(p *types.Proposal) bool {
	if p == nil {
		return false
	}

	c.mu.RLock()
	lockedRound := c.lockedRound
	c.mu.RUnlock()

	if lockedRound < 0 {
		return false
	}
	if p.PolRound < 0 || p.PolRound <= lockedRound {
		return false
	}
	if len(p.PolVotes) == 0 {
		return false
	}

	blockHash := types.BlockHash(&p.Block)
	seen := make(map[uint16]bool, len(p.PolVotes))
	var power int64

	for i := range p.PolVotes {
		vote := &p.PolVotes[i]
		if vote.Type != types.VoteTypePrevote {
			return false
		}
		if vote.Height != p.Height || vote.Round != p.PolRound {
			return false
		}
		if vote.BlockHash == nil || types.IsHashEmpty(vote.BlockHash) {
			return false
		}
		if !types.HashEqual(*vote.BlockHash, blockHash) {
			return false
		}
		if seen[vote.ValidatorIndex] {
			return false
		}
		seen[vote.ValidatorIndex] = true

		val := c.validatorSet.GetByIndex(vote.ValidatorIndex)
		if val == nil {
			return false
		}
		if err := types.VerifyVoteSignature(c.config.ChainID, vote, val.PublicKey); err != nil {
			return false
		}
		power += val.VotingPower
	}

	return power >= c.validatorSet.TwoThirdsMajority()
}

// handleVote implements the vote-set insertion plus the upon-rule rescan
// that follows it (event handlers 2 and 3).
func (c *Context) handleVote(vote *types.Vote, from string) {
	res, err := c.votes.AddVote(vote)
	switch res {
	case VoteEquivocation:
		c.metrics.EquivocationsCaught.Add(1)
		c.log.Warn().Str("from", from).Uint16("validator_index", vote.ValidatorIndex).Int32("round", vote.Round).Str("vote_type", vote.Type.String()).Msg("equivocation detected")
		c.recordEquivocation(vote)
		c.notify(Event{Kind: EventExceptionOccurred, Err: err})
		return
	case VoteDuplicate:
		c.metrics.DuplicateVotes.Add(1)
		return
	}
	if err != nil {
		c.notify(Event{Kind: EventExceptionOccurred, Err: err})
		return
	}
	c.metrics.VotesReceived.Add(1)

	c.checkRoundSkip(vote.Round, vote.Type)

	switch vote.Type {
	case types.VoteTypePrevote:
		c.onPrevoteAdded(vote.Round)
	case types.VoteTypePrecommit:
		c.onPrecommitAdded(vote.Round)
	}
}

// recordEquivocation looks up the (round, type) bucket vote just conflicted
// in and hands both the originally-recorded vote and the conflicting one to
// the evidence pool. AddVote has already established that a conflict exists
// by the time this is called, so both votes are expected to be present; a
// missing bucket or vote would mean the VoteSet's own bookkeeping is
// inconsistent with itself.
func (c *Context) recordEquivocation(vote *types.Vote) {
	var bucket *VoteSet
	switch vote.Type {
	case types.VoteTypePrevote:
		bucket = c.votes.Prevotes(vote.Round)
	case types.VoteTypePrecommit:
		bucket = c.votes.Precommits(vote.Round)
	}
	if bucket == nil {
		return
	}

	original := bucket.Get(vote.ValidatorIndex)
	conflicting := bucket.Equivocators()[vote.ValidatorIndex]
	if original == nil || conflicting == nil {
		return
	}

	c.evidence.AddEquivocation(c.height, vote.Round, vote.Type, vote.Validator, original, conflicting)
}

// checkRoundSkip implements has_one_third_any(r, step) && r > Round ⇒
// skip to round r.
func (c *Context) checkRoundSkip(round int32, voteType types.VoteType) {
	c.mu.RLock()
	current := c.round
	c.mu.RUnlock()

	if round <= current {
		return
	}

	var vs *VoteSet
	if voteType == types.VoteTypePrevote {
		vs = c.votes.Prevotes(round)
	} else {
		vs = c.votes.Precommits(round)
	}
	if vs == nil || !vs.HasOneThirdAny() {
		return
	}

	c.startRound(round)
}

// onPrevoteAdded implements event handler 2.
func (c *Context) onPrevoteAdded(round int32) {
	vs := c.votes.Prevotes(round)
	if vs == nil {
		return
	}

	c.mu.RLock()
	current := c.round
	step := c.step
	c.mu.RUnlock()

	if vs.HasTwoThirdsAny() && round == current && step == RoundStepPrevote {
		c.timeouts.Schedule(TimeoutPrevote, round)
		c.metrics.TimeoutsScheduled.Add(1)
	}

	maj, ok := vs.TwoThirdsMajority()
	if !ok {
		return
	}

	if maj == nil || types.IsHashEmpty(maj) {
		if round == current && step == RoundStepPrevote {
			c.emitVote(types.VoteTypePrecommit, round, nil)
			c.enterStep(RoundStepPrecommit, round)
		}
		return
	}

	c.onPolkaForBlock(round, maj)
}

// onPolkaForBlock implements the locking half of event handler 2: a 2/3+
// prevote polka for a non-nil block we hold updates valid_value
// (monotonically) and, if we are still deciding this round's PreVote,
// locks onto it and precommits.
func (c *Context) onPolkaForBlock(round int32, hash *types.Hash) {
	c.mu.RLock()
	current := c.round
	step := c.step
	proposalBlock := c.proposalBlock
	ownPrevote := c.selfPrevoteHash[round]
	c.mu.RUnlock()

	if round < current || step < RoundStepPrevote {
		return
	}

	var matched *types.Block
	if proposalBlock != nil {
		blockHash := types.BlockHash(proposalBlock)
		if types.HashEqual(blockHash, *hash) {
			matched = proposalBlock
		}
	}
	if matched == nil {
		return
	}

	c.mu.Lock()
	if round >= c.validRound {
		c.validRound = round
		c.validBlock = matched
	}
	c.mu.Unlock()

	// Locking and precommitting requires not just a polka for the block we
	// hold, but that this validator's own PreVote this round was for that
	// same block — proposalBlock is set as soon as a proposal arrives,
	// before decidePrevote validates it, so a polka matching proposalBlock
	// alone could otherwise lock us onto a block we ourselves prevoted nil.
	if ownPrevote == nil || !types.HashEqual(*ownPrevote, *hash) {
		return
	}

	if round == current && step == RoundStepPrevote {
		c.mu.Lock()
		c.lockedRound = round
		c.lockedBlock = matched
		c.mu.Unlock()
		c.metrics.LockChanges.Add(1)

		c.emitVote(types.VoteTypePrecommit, round, hash)
		c.enterStep(RoundStepPrecommit, round)
	}
}

// onPrecommitAdded implements event handler 3.
func (c *Context) onPrecommitAdded(round int32) {
	vs := c.votes.Precommits(round)
	if vs == nil {
		return
	}

	c.mu.RLock()
	current := c.round
	c.mu.RUnlock()

	if vs.HasTwoThirdsAny() && round == current {
		c.timeouts.Schedule(TimeoutPrecommit, round)
		c.metrics.TimeoutsScheduled.Add(1)
	}

	maj, ok := vs.TwoThirdsMajority()
	if !ok || maj == nil || types.IsHashEmpty(maj) {
		return
	}

	c.tryCommit(round, maj, vs)
}

// tryCommit appends the committed block via the external chain collaborator
// and moves the Context into its terminal EndCommit step. AppendFailed is
// fatal: the Context stops itself rather than attempting recovery.
func (c *Context) tryCommit(round int32, hash *types.Hash, vs *VoteSet) {
	c.mu.Lock()
	if c.step == RoundStepEndCommit {
		c.mu.Unlock()
		return
	}
	var block *types.Block
	if c.lockedBlock != nil {
		lockedHash := types.BlockHash(c.lockedBlock)
		if types.HashEqual(lockedHash, *hash) {
			block = c.lockedBlock
		}
	}
	if block == nil && c.proposalBlock != nil {
		proposalHash := types.BlockHash(c.proposalBlock)
		if types.HashEqual(proposalHash, *hash) {
			block = c.proposalBlock
		}
	}
	c.mu.Unlock()

	if block == nil {
		return
	}

	commit := vs.MakeCommit()
	if commit == nil {
		return
	}

	if err := c.blockChain.Append(block, commit); err != nil {
		c.log.Error().Err(err).Int32("round", round).Msg("append failed, stopping context")
		c.notify(Event{Kind: EventExceptionOccurred, Err: errors.Wrap(ErrAppendFailed, err.Error())})
		go c.haltLoop()
		return
	}

	c.mu.Lock()
	c.step = RoundStepEndCommit
	c.lastCommit = commit
	c.mu.Unlock()

	c.metrics.BlocksCommitted.Add(1)
	c.log.Info().Int32("round", round).Str("block_hash", types.HashString(*hash)).Msg("block committed")
	c.notify(Event{Kind: EventBlockCommitted, Height: c.height, Commit: commit, BlockHash: hash})
	c.notify(Event{Kind: EventStateChanged, Height: c.height, Round: round, Step: RoundStepEndCommit})

	go c.haltLoop()
}

// handleTimeout implements event handlers 4, 5, and 6. Timeouts whose
// round has already been superseded are ignored.
func (c *Context) handleTimeout(ti TimeoutInfo) {
	c.mu.RLock()
	current := c.round
	step := c.step
	c.mu.RUnlock()

	if ti.Round < current {
		return
	}

	c.metrics.TimeoutsFired.Add(1)
	c.log.Debug().Str("kind", ti.Kind.String()).Int32("round", ti.Round).Msg("timeout fired")
	c.notify(Event{Kind: EventTimeoutProcessed, Timeout: ti})

	switch ti.Kind {
	case TimeoutPropose:
		if ti.Round == current && step == RoundStepPropose {
			c.enterStep(RoundStepPrevote, current)
			c.emitVote(types.VoteTypePrevote, current, nil)
		}
	case TimeoutPrevote:
		if ti.Round == current && step == RoundStepPrevote {
			c.emitVote(types.VoteTypePrecommit, current, nil)
			c.enterStep(RoundStepPrecommit, current)
		}
	case TimeoutPrecommit:
		if ti.Round == current {
			c.startRound(current + 1)
		}
	}
}

// enterStep advances Step, refusing to go backwards or to re-enter the
// same round at an earlier step than already reached.
func (c *Context) enterStep(step RoundStep, round int32) {
	c.mu.Lock()
	if c.round != round || c.step >= step {
		c.mu.Unlock()
		return
	}
	c.step = step
	c.mu.Unlock()

	c.notify(Event{Kind: EventStateChanged, Height: c.height, Round: round, Step: step})
}

// emitVote signs and broadcasts this validator's own vote for
// (round, voteType), enforcing at-most-once delivery per (round, step).
func (c *Context) emitVote(voteType types.VoteType, round int32, blockHash *types.Hash) {
	if c.privVal == nil {
		return
	}

	key := selfVoteKey{round: round, step: voteType}

	c.mu.Lock()
	if c.selfVotesSent[key] {
		c.mu.Unlock()
		return
	}
	val := c.ourValidator()
	if val == nil {
		c.mu.Unlock()
		return
	}
	vote := &types.Vote{
		Type:           voteType,
		Height:         c.height,
		Round:          round,
		BlockHash:      types.CopyHash(blockHash),
		Timestamp:      time.Now().UnixNano(),
		Validator:      val.Name,
		ValidatorIndex: val.Index,
	}
	c.mu.Unlock()

	if err := c.privVal.SignVote(c.config.ChainID, vote); err != nil {
		c.notify(Event{Kind: EventExceptionOccurred, Err: errors.Wrap(err, "sign vote")})
		return
	}

	c.mu.Lock()
	c.selfVotesSent[key] = true
	if voteType == types.VoteTypePrevote {
		c.selfPrevoteHash[round] = types.CopyHash(blockHash)
	}
	c.mu.Unlock()

	res, err := c.votes.AddVote(vote)
	if err != nil {
		c.notify(Event{Kind: EventExceptionOccurred, Err: errors.Wrap(err, "add own vote")})
	}
	if res == VoteAdded {
		c.checkRoundSkip(round, voteType)
		switch voteType {
		case types.VoteTypePrevote:
			c.onPrevoteAdded(round)
		case types.VoteTypePrecommit:
			c.onPrecommitAdded(round)
		}
	}

	if c.broadcastVote != nil {
		c.broadcastVote(vote)
	}
	c.notify(Event{Kind: EventMessageBroadcast, Message: Message{Kind: MessageVote, Vote: &VoteMessage{Vote: vote}}})
}

// notify fills in Height if the caller left it zero and fans the event out
// to every subscribed Observer.
func (c *Context) notify(e Event) {
	if e.Height == 0 {
		e.Height = c.height
	}
	c.observers.notify(e)
}

// GetState returns the current (round, step) for monitoring.
func (c *Context) GetState() (height int64, round int32, step RoundStep) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height, c.round, c.step
}
