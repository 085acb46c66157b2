// Package node implements the network task: the accept loop, the
// neighbor table, the outbound dialer, and the gossip helpers built on
// top of them. Grounded on the teacher's network/network.go accept loop
// and github.com/vrecan/death wiring, generalized to the spec's
// neighbor-table/discovery semantics (§4.10).
package node

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pbcoin/pbcoin/internal/address"
	"github.com/pbcoin/pbcoin/internal/block"
	"github.com/pbcoin/pbcoin/internal/p2p"
	"github.com/pbcoin/pbcoin/internal/trx"
	"go.uber.org/zap"
)

const defaultMaxNeighbors = 2

// Handler is implemented by internal/handler; Node dispatches each
// accepted message to it. Defined on the consumer side (here) so node
// never imports handler.
type Handler interface {
	Handle(ctx context.Context, env p2p.Envelope, peer p2p.Addr) p2p.Envelope
}

// Node owns the peer address, neighbor table, listener, and dialer.
type Node struct {
	Self        p2p.Addr
	DialTimeout time.Duration

	mu           sync.RWMutex
	neighbors    map[string]p2p.Addr // keyed by pub_key
	maxNeighbors int

	listener net.Listener
	handler  Handler
	logger   *zap.SugaredLogger

	// OnBadBlockValidation/OnObsoleteBlock let the composition root react
	// to gossip failures (§4.12) without node owning chain state directly.
	OnBadBlockValidation func(neighbor p2p.Addr, b *block.Block, details json.RawMessage)
	OnObsoleteBlock      func(ctx context.Context, neighbor p2p.Addr)
}

// New constructs a Node bound to self, with room for maxNeighbors peers
// (0 uses the default of 2).
func New(self p2p.Addr, maxNeighbors int, dialTimeout time.Duration, logger *zap.SugaredLogger) *Node {
	if maxNeighbors <= 0 {
		maxNeighbors = defaultMaxNeighbors
	}
	return &Node{
		Self:         self,
		DialTimeout:  dialTimeout,
		neighbors:    make(map[string]p2p.Addr),
		maxNeighbors: maxNeighbors,
		logger:       logger,
	}
}

// SetHandler wires the processing handler; must be called before Listen.
func (n *Node) SetHandler(h Handler) { n.handler = h }

// IsMyNeighbor reports whether pubKey currently holds a neighbor slot.
func (n *Node) IsMyNeighbor(pubKey string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.neighbors[pubKey]
	return ok
}

// MaxNeighbors returns the configured neighbor-table capacity.
func (n *Node) MaxNeighbors() int {
	return n.maxNeighbors
}

// HasCapacity reports whether another neighbor can be added.
func (n *Node) HasCapacity() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.neighbors) < n.maxNeighbors
}

// AddNeighbor adds a to the neighbor table if there's room and it isn't
// already present. Returns whether it was added.
func (n *Node) AddNeighbor(a p2p.Addr) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.neighbors[a.PubKey]; ok {
		return false
	}
	if len(n.neighbors) >= n.maxNeighbors {
		return false
	}
	n.neighbors[a.PubKey] = a
	n.logf("neighbor %s (%s) added", a, address.ShortID(a.PubKey))
	return true
}

// DeleteNeighbor removes the neighbor with the given public key.
func (n *Node) DeleteNeighbor(pubKey string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.neighbors[pubKey]; !ok {
		return false
	}
	delete(n.neighbors, pubKey)
	n.logf("neighbor %s dropped", address.ShortID(pubKey))
	return true
}

// IterNeighbors returns a shuffled snapshot of the neighbor table,
// excluding any public key present in exclude, to avoid biasing gossip
// fan-out.
func (n *Node) IterNeighbors(exclude map[string]bool) []p2p.Addr {
	n.mu.RLock()
	out := make([]p2p.Addr, 0, len(n.neighbors))
	for pk, a := range n.neighbors {
		if exclude == nil || !exclude[pk] {
			out = append(out, a)
		}
	}
	n.mu.RUnlock()

	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// ConnectAndSend dials dst, writes env as a single frame, and — if
// waitForReply — reads one frame back. Any dial/IO failure is logged and
// reported via the error return; callers treat a non-nil error as
// "neighbor unreachable" and move on, never propagating it as fatal.
func (n *Node) ConnectAndSend(ctx context.Context, dst p2p.Addr, env p2p.Envelope, waitForReply bool) (p2p.Envelope, error) {
	dialer := net.Dialer{Timeout: n.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", dst.String())
	if err != nil {
		n.logf("dial %s failed: %v", dst, err)
		return p2p.Envelope{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if n.DialTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(n.DialTimeout))
	}

	if err := p2p.WriteEnvelope(conn, env); err != nil {
		n.logf("write to %s failed: %v", dst, err)
		return p2p.Envelope{}, err
	}
	if !waitForReply {
		return p2p.Envelope{}, nil
	}
	reply, err := p2p.ReadEnvelope(conn)
	if err != nil {
		n.logf("read from %s failed: %v", dst, err)
		return p2p.Envelope{}, err
	}
	return reply, nil
}

// Listen runs the accept loop until ctx is cancelled. Each accepted
// connection is handled on its own goroutine: one framed read, dispatch,
// one framed reply, close.
func (n *Node) Listen(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", n.Self.String())
	if err != nil {
		return err
	}
	n.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			n.logf("accept failed: %v", err)
			continue
		}
		go n.handleConnection(ctx, conn)
	}
}

func (n *Node) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	env, err := p2p.ReadEnvelope(conn)
	if err != nil {
		n.logf("bad frame from %s: %v", conn.RemoteAddr(), err)
		_ = p2p.WriteEnvelope(conn, p2p.Fail(p2p.BadMessage, n.Self.String(), "", n.Self.PubKey, nil))
		return
	}

	peer := p2p.Addr{PubKey: env.PubKey}
	if host, _, splitErr := net.SplitHostPort(env.SrcAddr); splitErr == nil {
		peer.IP = host
	}

	var reply p2p.Envelope
	if n.handler != nil {
		reply = n.handler.Handle(ctx, env, peer)
	} else {
		reply = p2p.Fail(p2p.BadMessage, n.Self.String(), env.SrcAddr, n.Self.PubKey, nil)
	}
	if err := p2p.WriteEnvelope(conn, reply); err != nil {
		n.logf("write reply to %s failed: %v", conn.RemoteAddr(), err)
	}
}

// StartUp runs the discovery protocol against a seed list: for each seed,
// exchange NEW_NEIGHBOR messages and, on acceptance, add it as a
// neighbor. An empty seed list leaves the node standalone.
func (n *Node) StartUp(ctx context.Context, seeds []string) {
	for _, seed := range seeds {
		host, port, err := net.SplitHostPort(seed)
		if err != nil {
			n.logf("bad seed address %q: %v", seed, err)
			continue
		}
		portNum, err := strconv.Atoi(port)
		if err != nil {
			n.logf("bad seed port %q: %v", seed, err)
			continue
		}
		dst := p2p.Addr{IP: host, Port: portNum}

		data, _ := json.Marshal(map[string]any{"new_node": n.Self, "new_pub_key": n.Self.PubKey})
		env := p2p.Ok(p2p.NewNeighbor, n.Self.String(), dst.String(), n.Self.PubKey, json.RawMessage(data))
		reply, err := n.ConnectAndSend(ctx, dst, env, true)
		if err != nil || !reply.Status {
			continue
		}
		dst.PubKey = reply.PubKey
		n.AddNeighbor(dst)
	}
}

// SendMinedBlock gossips a freshly mined block to every neighbor and
// reacts to BAD_BLOCK_VALIDATION/OBSOLETE_BLOCK per §4.12.
func (n *Node) SendMinedBlock(ctx context.Context, b *block.Block) {
	data, _ := json.Marshal(map[string]any{"block": b})
	for _, peer := range n.IterNeighbors(nil) {
		env := p2p.Ok(p2p.MinedBlock, n.Self.String(), peer.String(), n.Self.PubKey, json.RawMessage(data))
		reply, err := n.ConnectAndSend(ctx, peer, env, true)
		if err != nil {
			continue
		}
		if !reply.Status {
			switch p2p.Errno(reply.Type) {
			case p2p.BadBlockValidation:
				if n.OnBadBlockValidation != nil {
					n.OnBadBlockValidation(peer, b, reply.Data)
				}
			case p2p.ObsoleteBlock:
				if n.OnObsoleteBlock != nil {
					n.OnObsoleteBlock(ctx, peer)
				}
			default:
				n.logf("neighbor %s rejected mined block: errno %d", peer, reply.Type)
			}
		}
	}
}

// SendNewTrx gossips a newly built transaction to every neighbor.
// BAD_TRANSACTION replies are logged but never roll back the local
// mempool entry — the sender trusts its own validation.
func (n *Node) SendNewTrx(ctx context.Context, t *trx.Trx, r, s *big.Int, senderPublicKey string) {
	data, _ := json.Marshal(map[string]any{
		"trx": t, "signature": [2]string{r.String(), s.String()}, "public_key": senderPublicKey,
	})
	for _, peer := range n.IterNeighbors(nil) {
		env := p2p.Ok(p2p.AddTrx, n.Self.String(), peer.String(), n.Self.PubKey, json.RawMessage(data))
		reply, err := n.ConnectAndSend(ctx, peer, env, true)
		if err != nil {
			continue
		}
		if !reply.Status && p2p.Errno(reply.Type) == p2p.BadTransaction {
			n.logf("neighbor %s rejected transaction %s", peer, t.Hash())
		}
	}
}

// SendPingTo pings dst and returns whether it replied.
func (n *Node) SendPingTo(ctx context.Context, dst p2p.Addr) bool {
	env := p2p.Ok(p2p.PingPong, n.Self.String(), dst.String(), n.Self.PubKey, nil)
	reply, err := n.ConnectAndSend(ctx, dst, env, true)
	return err == nil && reply.Status
}

func (n *Node) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Debugf(format, args...)
	}
}
