// Command roundberry-demo wires four in-memory validators together and
// runs them through a handful of heights, relaying each Context's
// broadcasts directly to its peers instead of over a real network. It
// exists to exercise the state machine end to end without a networking
// stack, the same role the teacher's own integration test harness plays
// one level down.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blockberries/roundberry/engine"
	"github.com/blockberries/roundberry/evidence"
	"github.com/blockberries/roundberry/privval"
	"github.com/blockberries/roundberry/types"
)

// demoChain is a toy BlockChain collaborator: ProposeBlock chains an
// empty-payload block off whatever it last appended, and Append just
// records it.
type demoChain struct {
	mu         sync.Mutex
	chainID    string
	height     int64
	lastBlock  *types.Block
	lastCommit *types.Commit
}

func (c *demoChain) ProposeBlock(proposer types.AccountName, lastCommit *types.Commit) (*types.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastHash *types.Hash
	if c.lastBlock != nil {
		h := types.BlockHash(c.lastBlock)
		lastHash = &h
	}
	header := types.NewBlockHeader(c.chainID, c.height, time.Now().UnixNano(), lastHash, nil, nil, nil, proposer)
	return types.NewBlock(header, nil, lastCommit), nil
}

func (c *demoChain) ValidateNextBlock(block *types.Block) error {
	return nil
}

func (c *demoChain) Append(block *types.Block, commit *types.Commit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastBlock = block
	c.lastCommit = commit
	return nil
}

type node struct {
	name  string
	pv    *privval.FilePV
	chain *demoChain
	ctx   *engine.Context
}

func main() {
	heights := flag.Int("heights", 3, "number of heights to run before exiting")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := run(*heights); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(heights int) error {
	dir, err := os.MkdirTemp("", "roundberry-demo")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	names := []string{"alice", "bob", "carol", "dave"}
	pvs := make(map[string]*privval.FilePV, len(names))
	vals := make([]*types.NamedValidator, len(names))
	for i, name := range names {
		pv, err := privval.GenerateFilePV(filepath.Join(dir, name+"_key.json"), filepath.Join(dir, name+"_state.json"))
		if err != nil {
			return fmt.Errorf("generate validator %s: %w", name, err)
		}
		pvs[name] = pv
		vals[i] = &types.NamedValidator{Name: types.NewAccountName(name), PublicKey: pv.GetPubKey(), VotingPower: 100}
	}

	valSet, err := types.NewValidatorSet(vals)
	if err != nil {
		return fmt.Errorf("build validator set: %w", err)
	}

	cfg := engine.DefaultConfig()
	cfg.ChainID = "roundberry-demo"
	cfg.Timeouts = engine.TimeoutConfig{
		ProposeBase:    500 * time.Millisecond,
		ProposeDelta:   100 * time.Millisecond,
		PrevoteBase:    500 * time.Millisecond,
		PrevoteDelta:   100 * time.Millisecond,
		PrecommitBase:  500 * time.Millisecond,
		PrecommitDelta: 100 * time.Millisecond,
	}

	nodes := make(map[string]*node, len(names))
	for _, name := range names {
		nodes[name] = &node{name: name, pv: pvs[name], chain: &demoChain{chainID: cfg.ChainID}}
	}

	evidencePool := evidence.NewPool()

	var lastCommit *types.Commit
	for h := int64(1); h <= int64(heights); h++ {
		lastCommit = runHeight(cfg, valSet, nodes, h, lastCommit, evidencePool)
		fmt.Printf("height %d committed\n", h)
	}
	if n := evidencePool.Size(); n > 0 {
		fmt.Printf("%d equivocation(s) recorded across the run\n", n)
	}
	return nil
}

// runHeight starts one Context per node for height, relays every
// broadcast to the other three, and returns the commit reported by the
// first node to commit, after stopping every node's Context.
// Every node's Context reports into the same evidencePool, so equivocation
// observed by any one of them accumulates across the whole run.
func runHeight(cfg *engine.Config, valSet *types.ValidatorSet, nodes map[string]*node, height int64, lastCommit *types.Commit, evidencePool *evidence.Pool) *types.Commit {
	committed := make(chan *types.Commit, len(nodes))

	for _, n := range nodes {
		n.chain.height = height
		n.ctx = engine.NewContext(cfg, height, valSet.Copy(), n.pv, n.chain, lastCommit, nil, evidencePool)
	}

	for name, n := range nodes {
		from := name
		n.ctx.SetBroadcasters(
			func(p *types.Proposal) {
				for peerName, peer := range nodes {
					if peerName != from {
						peer.ctx.ProduceProposal(p, from)
					}
				}
			},
			func(v *types.Vote) {
				for peerName, peer := range nodes {
					if peerName != from {
						peer.ctx.ProduceVote(v, from)
					}
				}
			},
		)
		n.ctx.Subscribe(engine.ObserverFunc(func(e engine.Event) {
			if e.Kind == engine.EventBlockCommitted {
				committed <- e.Commit
			}
		}))
	}

	for _, n := range nodes {
		n.ctx.Start()
	}

	commit := <-committed

	for _, n := range nodes {
		_ = n.ctx.Stop()
	}
	return commit
}
