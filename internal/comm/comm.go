// Package comm provides the collective communication primitive used to fold
// metric sums across evaluation workers: an element-wise all-reduce sum over
// small float64 vectors.
//
// The reduction contract is deliberately strict. Every worker must call
// AllReduceSum the same number of times with the same vector length, calls
// pair up by arrival round, and the combined result is summed in rank order
// so that every worker receives bitwise identical output. Mismatched call
// counts or lengths are protocol errors, fatal to the group rather than
// recoverable in place.
package comm

import (
	"context"
	"fmt"
	"sync"
)

// AllReducer folds per-worker vectors into a shared sum.
type AllReducer interface {
	// AllReduceSum blocks until every worker in the group has contributed
	// this round's vector, then returns the element-wise sum. The returned
	// slice is owned by the caller.
	AllReduceSum(ctx context.Context, vals []float64) ([]float64, error)
	// Rank identifies this worker, in [0, Size).
	Rank() int
	// Size reports the number of workers in the group.
	Size() int
}

// Single is the degenerate one-worker group. Reduction is the identity.
type Single struct{}

// AllReduceSum implements AllReducer.
func (Single) AllReduceSum(_ context.Context, vals []float64) ([]float64, error) {
	out := make([]float64, len(vals))
	copy(out, vals)
	return out, nil
}

// Rank implements AllReducer.
func (Single) Rank() int { return 0 }

// Size implements AllReducer.
func (Single) Size() int { return 1 }

// localGroup coordinates rounds between in-process peers. Shared state for
// the round in flight lives in a roundState; once the last rank arrives the
// state is sealed and detached, so the next call on any peer opens a fresh
// round.
type localGroup struct {
	size int

	mu      sync.Mutex
	current *roundState
	round   int64
}

type roundState struct {
	round    int64
	width    int
	contribs [][]float64
	arrived  int
	result   []float64
	err      error
	done     chan struct{}
}

// LocalPeer is one rank's handle on an in-process group. A peer is not safe
// for concurrent use; each worker goroutine owns exactly one.
type LocalPeer struct {
	g    *localGroup
	rank int
}

// NewLocalGroup creates an in-process group of n workers and returns their
// peers, indexed by rank. Intended for tests and for multi-goroutine
// evaluation inside one process.
func NewLocalGroup(n int) ([]*LocalPeer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("comm: group size %d, want >= 1", n)
	}
	g := &localGroup{size: n}
	peers := make([]*LocalPeer, n)
	for i := range peers {
		peers[i] = &LocalPeer{g: g, rank: i}
	}
	return peers, nil
}

// Rank implements AllReducer.
func (p *LocalPeer) Rank() int { return p.rank }

// Size implements AllReducer.
func (p *LocalPeer) Size() int { return p.g.size }

// AllReduceSum implements AllReducer.
func (p *LocalPeer) AllReduceSum(ctx context.Context, vals []float64) ([]float64, error) {
	g := p.g
	g.mu.Lock()
	st := g.current
	if st == nil {
		st = &roundState{
			round:    g.round,
			width:    len(vals),
			contribs: make([][]float64, g.size),
			done:     make(chan struct{}),
		}
		g.current = st
		g.round++
	}
	if len(vals) != st.width {
		st.fail(fmt.Errorf("comm: rank %d sent %d values in round %d, others sent %d", p.rank, len(vals), st.round, st.width))
		g.current = nil
		g.mu.Unlock()
		return nil, st.err
	}
	if st.contribs[p.rank] != nil {
		st.fail(fmt.Errorf("comm: rank %d contributed twice in round %d", p.rank, st.round))
		g.current = nil
		g.mu.Unlock()
		return nil, st.err
	}
	c := make([]float64, len(vals))
	copy(c, vals)
	st.contribs[p.rank] = c
	st.arrived++
	if st.arrived == g.size {
		st.combine()
		g.current = nil
	}
	g.mu.Unlock()

	select {
	case <-st.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if st.err != nil {
		return nil, st.err
	}
	out := make([]float64, st.width)
	copy(out, st.result)
	return out, nil
}

// combine seals the round: contributions are summed rank by rank, each
// rank's vector added left to right, so every peer observes one fixed
// association order. Callers hold the group lock.
func (st *roundState) combine() {
	sum := make([]float64, st.width)
	for _, contrib := range st.contribs {
		for i, v := range contrib {
			sum[i] += v
		}
	}
	st.result = sum
	close(st.done)
}

// fail poisons the round. Peers already blocked on it wake with the error;
// the round is detached so later calls cannot join it. Callers hold the
// group lock.
func (st *roundState) fail(err error) {
	st.err = err
	close(st.done)
}
