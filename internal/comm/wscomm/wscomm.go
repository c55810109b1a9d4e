// Package wscomm runs the comm.AllReducer contract between processes over
// WebSocket. A coordinator owns the round state; workers dial in with a
// fixed rank, push one JSON frame per round, and block until the combined
// sums come back. Every worker receives vectors summed in rank order, so
// distributed evaluation stays bitwise reproducible run to run.
package wscomm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/survival.report/internal/comm"
	"github.com/banshee-data/survival.report/internal/monitoring"
)

// frame is the only message type on the wire: a worker's contribution
// upstream, the coordinator's combined sums or a fatal protocol error
// downstream.
type frame struct {
	Round int64     `json:"round"`
	Vals  []float64 `json:"vals,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Coordinator accepts worker connections and drives the reduction rounds.
// It serves a single WebSocket endpoint; mount it on any mux and hand
// workers the resulting URL.
type Coordinator struct {
	size     int
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[int]*websocket.Conn
	current *pendingRound
	failed  error
}

type pendingRound struct {
	round    int64
	width    int
	contribs [][]float64
	arrived  int
}

// NewCoordinator creates a coordinator expecting exactly size workers.
func NewCoordinator(size int) *Coordinator {
	return &Coordinator{
		size:  size,
		conns: make(map[int]*websocket.Conn, size),
		upgrader: websocket.Upgrader{
			// Workers are trusted peers addressed by URL, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Size reports the expected worker count.
func (c *Coordinator) Size() int { return c.size }

// ServeHTTP upgrades a worker connection. Workers identify themselves with
// rank and size query parameters; a rank outside [0, size), a size that
// disagrees with the coordinator, or a rank already connected is rejected
// before the upgrade.
func (c *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rank, err := strconv.Atoi(r.URL.Query().Get("rank"))
	if err != nil || rank < 0 || rank >= c.size {
		http.Error(w, fmt.Sprintf("rank must be in [0, %d)", c.size), http.StatusBadRequest)
		return
	}
	if s := r.URL.Query().Get("size"); s != "" {
		if n, err := strconv.Atoi(s); err != nil || n != c.size {
			http.Error(w, fmt.Sprintf("group size mismatch: coordinator has %d", c.size), http.StatusBadRequest)
			return
		}
	}

	c.mu.Lock()
	if c.failed != nil {
		c.mu.Unlock()
		http.Error(w, c.failed.Error(), http.StatusConflict)
		return
	}
	if _, dup := c.conns[rank]; dup {
		c.mu.Unlock()
		http.Error(w, fmt.Sprintf("rank %d already connected", rank), http.StatusConflict)
		return
	}
	c.mu.Unlock()

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("wscomm: upgrade for rank %d failed: %v", rank, err)
		return
	}

	c.mu.Lock()
	if _, dup := c.conns[rank]; dup {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.conns[rank] = ws
	c.mu.Unlock()
	monitoring.Logf("wscomm: rank %d connected (%d/%d)", rank, c.connected(), c.size)

	go c.readLoop(rank, ws)
}

func (c *Coordinator) connected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// readLoop consumes one worker's contributions until its connection drops.
// A read error while a round is open strands the group, so it poisons the
// coordinator rather than waiting for a timeout elsewhere. A drop between
// rounds is a normal departure.
func (c *Coordinator) readLoop(rank int, ws *websocket.Conn) {
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			c.mu.Lock()
			_, active := c.conns[rank]
			delete(c.conns, rank)
			pending := c.current != nil
			c.mu.Unlock()
			if active && pending {
				c.fail(fmt.Errorf("rank %d dropped mid-round: %v", rank, err))
			}
			ws.Close()
			return
		}
		if err := c.deliver(rank, f); err != nil {
			c.fail(err)
			return
		}
	}
}

// deliver records one contribution, and on the round's last arrival combines
// and broadcasts. Combination order is fixed: rank 0 first, each vector
// added left to right.
func (c *Coordinator) deliver(rank int, f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed != nil {
		return c.failed
	}
	st := c.current
	if st == nil {
		st = &pendingRound{
			round:    f.Round,
			width:    len(f.Vals),
			contribs: make([][]float64, c.size),
		}
		c.current = st
	}
	if f.Round != st.round {
		return fmt.Errorf("rank %d is on round %d, group is on round %d", rank, f.Round, st.round)
	}
	if len(f.Vals) != st.width {
		return fmt.Errorf("rank %d sent %d values in round %d, others sent %d", rank, len(f.Vals), st.round, st.width)
	}
	if st.contribs[rank] != nil {
		return fmt.Errorf("rank %d contributed twice in round %d", rank, st.round)
	}
	st.contribs[rank] = f.Vals
	st.arrived++
	monitoring.Debugf("wscomm: round %d: rank %d contributed (%d/%d)", st.round, rank, st.arrived, c.size)
	if st.arrived < c.size {
		return nil
	}

	sum := make([]float64, st.width)
	for _, contrib := range st.contribs {
		for i, v := range contrib {
			sum[i] += v
		}
	}
	c.current = nil
	monitoring.Debugf("wscomm: round %d: broadcasting %d reduced values", st.round, st.width)
	out := frame{Round: st.round, Vals: sum}
	for rk, conn := range c.conns {
		if err := conn.WriteJSON(out); err != nil {
			return fmt.Errorf("send round %d result to rank %d: %v", st.round, rk, err)
		}
	}
	return nil
}

// fail broadcasts a fatal protocol error and tears the group down. Workers
// blocked on a read wake with the error frame or a closed connection.
func (c *Coordinator) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed != nil {
		return
	}
	c.failed = err
	monitoring.Logf("wscomm: group failed: %v", err)
	msg := frame{Error: err.Error()}
	for _, conn := range c.conns {
		conn.WriteJSON(msg)
		conn.Close()
	}
	c.conns = make(map[int]*websocket.Conn)
}

// Close tears down every worker connection. Safe to call more than once.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	c.conns = make(map[int]*websocket.Conn)
	return nil
}

// Worker is one rank's connection to a Coordinator. It implements
// comm.AllReducer. A worker is not safe for concurrent use; each evaluation
// goroutine owns exactly one.
type Worker struct {
	ws    *websocket.Conn
	rank  int
	size  int
	round int64
}

var _ comm.AllReducer = (*Worker)(nil)

// Dial connects a worker to a coordinator. The URL may use http or https
// scheme (as returned by httptest or service discovery); it is rewritten to
// the WebSocket equivalent.
func Dial(ctx context.Context, coordinatorURL string, rank, size int) (*Worker, error) {
	if size <= 0 || rank < 0 || rank >= size {
		return nil, fmt.Errorf("wscomm: rank %d out of range for group size %d", rank, size)
	}
	u, err := url.Parse(coordinatorURL)
	if err != nil {
		return nil, fmt.Errorf("wscomm: parse coordinator url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("rank", strconv.Itoa(rank))
	q.Set("size", strconv.Itoa(size))
	u.RawQuery = q.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wscomm: dial rank %d: %v (http %d)", rank, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("wscomm: dial rank %d: %w", rank, err)
	}
	return &Worker{ws: ws, rank: rank, size: size}, nil
}

// Rank implements comm.AllReducer.
func (w *Worker) Rank() int { return w.rank }

// Size implements comm.AllReducer.
func (w *Worker) Size() int { return w.size }

// AllReduceSum implements comm.AllReducer. The call blocks until the
// coordinator has heard from every rank. Cancellation is deadline based: a
// context deadline bounds both the send and the wait, and expiry is fatal
// to the connection, matching the contract that a stuck collective cannot
// be retried in place.
func (w *Worker) AllReduceSum(ctx context.Context, vals []float64) ([]float64, error) {
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := w.ws.SetWriteDeadline(deadline); err != nil {
		return nil, fmt.Errorf("wscomm: rank %d: %w", w.rank, err)
	}
	if err := w.ws.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("wscomm: rank %d: %w", w.rank, err)
	}
	if err := w.ws.WriteJSON(frame{Round: w.round, Vals: vals}); err != nil {
		return nil, fmt.Errorf("wscomm: rank %d send round %d: %w", w.rank, w.round, err)
	}
	var resp frame
	if err := w.ws.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("wscomm: rank %d wait round %d: %w", w.rank, w.round, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("wscomm: rank %d: group failed: %s", w.rank, resp.Error)
	}
	if resp.Round != w.round {
		return nil, fmt.Errorf("wscomm: rank %d expected round %d, coordinator answered round %d", w.rank, w.round, resp.Round)
	}
	w.round++
	return resp.Vals, nil
}

// Close says goodbye to the coordinator and releases the connection.
func (w *Worker) Close() error {
	w.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return w.ws.Close()
}
