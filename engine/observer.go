package engine

import (
	"sync"

	"github.com/blockberries/roundberry/types"
)

// EventKind tags the variants an Observer receives.
type EventKind int8

const (
	EventStateChanged EventKind = iota
	EventMessageBroadcast
	EventTimeoutProcessed
	EventBlockCommitted
	EventExceptionOccurred
)

// Event is the tagged-variant notification a Context emits on every
// externally-visible transition, grounded on the eventBus.PublishEvent*
// calls threaded through the teacher's upon-rule handlers: every rule that
// changes height/round/step, broadcasts a message, processes a timeout,
// commits a block, or hits an error (including one it recovers from, such
// as a dropped invalid message) reports it here
// rather than the caller having to poll to_debug_string().
type Event struct {
	Kind EventKind

	// StateChanged
	Height int64
	Round  int32
	Step   RoundStep

	// MessageBroadcast
	Message Message

	// TimeoutProcessed
	Timeout TimeoutInfo

	// BlockCommitted
	Commit    *types.Commit
	BlockHash *types.Hash

	// ExceptionOccurred
	Err error
}

// Observer receives Context lifecycle events. Implementations must not
// block: Notify is called synchronously from the Context's single receive
// loop, so a slow or blocking Observer stalls consensus.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

// observerSet fans one Event out to every registered Observer, in
// registration order. It is not itself an Observer; a Context owns one and
// calls notify directly from its receive loop.
type observerSet struct {
	mu        sync.RWMutex
	observers []Observer
}

func newObserverSet() *observerSet {
	return &observerSet{}
}

// Subscribe registers o to receive every future event. Returns an
// unsubscribe function.
func (os *observerSet) Subscribe(o Observer) (unsubscribe func()) {
	os.mu.Lock()
	defer os.mu.Unlock()
	os.observers = append(os.observers, o)
	idx := len(os.observers) - 1
	return func() {
		os.mu.Lock()
		defer os.mu.Unlock()
		if idx < len(os.observers) && os.observers[idx] == o {
			os.observers[idx] = nil
		}
	}
}

func (os *observerSet) notify(e Event) {
	os.mu.RLock()
	defer os.mu.RUnlock()
	for _, o := range os.observers {
		if o != nil {
			o.Notify(e)
		}
	}
}
