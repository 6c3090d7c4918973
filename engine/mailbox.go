package engine

import (
	"context"
	"sync/atomic"

	"github.com/blockberries/roundberry/types"
)

// mailboxQueueSize bounds each inbound channel; a Context that falls this
// far behind its own event loop has bigger problems than a full channel.
const mailboxQueueSize = 1000

// MessageKind tags the polymorphic wire/internal messages a Mailbox carries.
type MessageKind int8

const (
	MessageProposal MessageKind = iota
	MessageVote
	MessageTimeout
)

// Message is the tagged-variant envelope the receive loop consumes: exactly
// one of Proposal/Vote/Timeout is set, selected by Kind.
type Message struct {
	Kind     MessageKind
	Proposal *ProposalMessage
	Vote     *VoteMessage
	Timeout  TimeoutInfo
}

// ProposalMessage carries a received proposal plus its source, so a Context
// can attribute misbehavior without the mailbox itself knowing about peers.
type ProposalMessage struct {
	Proposal *types.Proposal
	From     string
}

// VoteMessage carries a received vote plus its source.
type VoteMessage struct {
	Vote *types.Vote
	From string
}

// Mailbox is the single inbound funnel for everything that can move a
// Context's state machine forward: proposals and votes arriving from the
// network, and timeouts firing locally. It generalizes the teacher's
// peerInMsgQueue/internalMsgQueue/TimeoutTicker trio into one typed queue
// a Context drains from a single goroutine, so no two event handlers ever
// run concurrently.
type Mailbox struct {
	proposalCh chan *ProposalMessage
	voteCh     chan *VoteMessage
	timeoutCh  <-chan TimeoutInfo

	out chan Message
	ctx    context.Context
	cancel context.CancelFunc

	droppedMessages atomic.Uint64
}

// NewMailbox creates a Mailbox that multiplexes proposalCh/voteCh (both
// owned by the Mailbox) with an externally-owned timeout channel (normally
// a TimeoutScheduler's Chan()) into a single ordered Message stream.
func NewMailbox(timeoutCh <-chan TimeoutInfo) *Mailbox {
	ctx, cancel := context.WithCancel(context.Background())
	mb := &Mailbox{
		proposalCh: make(chan *ProposalMessage, mailboxQueueSize),
		voteCh:     make(chan *VoteMessage, mailboxQueueSize),
		timeoutCh:  timeoutCh,
		out:        make(chan Message, mailboxQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	go mb.pump()
	return mb
}

// pump fans proposalCh/voteCh/timeoutCh into the single ordered Out()
// stream. It never blocks a producer indefinitely: if Out() is full the
// message is dropped rather than stalling the pump (a Context that can't
// keep up with its own mailbox cannot make progress either way).
func (mb *Mailbox) pump() {
	for {
		select {
		case <-mb.ctx.Done():
			return
		case p := <-mb.proposalCh:
			mb.deliver(Message{Kind: MessageProposal, Proposal: p})
		case v := <-mb.voteCh:
			mb.deliver(Message{Kind: MessageVote, Vote: v})
		case t := <-mb.timeoutCh:
			mb.deliver(Message{Kind: MessageTimeout, Timeout: t})
		}
	}
}

func (mb *Mailbox) deliver(msg Message) {
	select {
	case mb.out <- msg:
	case <-mb.ctx.Done():
	default:
		mb.droppedMessages.Add(1)
	}
}

// Out returns the channel a Context's receive loop drains.
func (mb *Mailbox) Out() <-chan Message {
	return mb.out
}

// SubmitProposal enqueues a received proposal. Non-blocking: if the queue
// is full the proposal is dropped and ok is false.
func (mb *Mailbox) SubmitProposal(p *ProposalMessage) (ok bool) {
	select {
	case mb.proposalCh <- p:
		return true
	default:
		return false
	}
}

// SubmitVote enqueues a received vote. Non-blocking: if the queue is full
// the vote is dropped and ok is false.
func (mb *Mailbox) SubmitVote(v *VoteMessage) (ok bool) {
	select {
	case mb.voteCh <- v:
		return true
	default:
		return false
	}
}

// DroppedMessages returns the count of messages dropped because Out() was
// full when pump tried to deliver.
func (mb *Mailbox) DroppedMessages() uint64 {
	return mb.droppedMessages.Load()
}

// Close stops the pump goroutine. Safe to call more than once.
func (mb *Mailbox) Close() {
	mb.cancel()
}
