// Package handler implements the processing handler: per-message
// semantics dispatched on the incoming envelope's type, calling into the
// ledger (chain, unspent, mempool) and the node (neighbor table, gossip).
// Grounded on original_source/pbcoin/process_handler.py's dispatch
// semantics — the teacher never built an equivalent component.
package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net"
	"strconv"

	"github.com/pbcoin/pbcoin/internal/block"
	"github.com/pbcoin/pbcoin/internal/chain"
	"github.com/pbcoin/pbcoin/internal/mempool"
	"github.com/pbcoin/pbcoin/internal/miner"
	"github.com/pbcoin/pbcoin/internal/node"
	"github.com/pbcoin/pbcoin/internal/p2p"
	"github.com/pbcoin/pbcoin/internal/trx"
	"github.com/pbcoin/pbcoin/internal/unspent"
	"go.uber.org/zap"
)

// Handler wires the ledger and the node together and implements
// node.Handler.
type Handler struct {
	Chain      *chain.Blockchain
	Unspent    *unspent.Set
	Pool       *mempool.Pool
	Node       *node.Node
	MinerToken *miner.Token
	Difficulty *big.Int
	Logger     *zap.SugaredLogger
}

func (h *Handler) self() string { return h.Node.Self.String() }
func (h *Handler) pub() string  { return h.Node.Self.PubKey }

// Handle dispatches env by its type and returns the reply envelope. It
// never panics on a malformed payload — parse failures become
// BAD_MESSAGE.
func (h *Handler) Handle(ctx context.Context, env p2p.Envelope, peer p2p.Addr) p2p.Envelope {
	switch p2p.ConnectionCode(env.Type) {
	case p2p.NewNeighbor:
		return h.handleNewNeighbor(env)
	case p2p.NewNeighborsRequest:
		return h.handleNewNeighborsRequest(ctx, env)
	case p2p.NotNeighbor:
		return h.handleNotNeighbor(env)
	case p2p.MinedBlock:
		return h.handleMinedBlock(ctx, env)
	case p2p.ResolveBlockchain:
		return h.handleResolveBlockchain(env)
	case p2p.GetBlocks:
		return h.handleGetBlocks(env)
	case p2p.AddTrx:
		return h.handleAddTrx(ctx, env)
	case p2p.PingPong:
		return h.handlePingPong(env)
	default:
		return p2p.Fail(p2p.BadTypeMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Debugf(format, args...)
	}
}

// --- NEW_NEIGHBOR ---

type newNeighborData struct {
	NewNode   p2p.Addr `json:"new_node"`
	NewPubKey string   `json:"new_pub_key"`
}

func (h *Handler) handleNewNeighbor(env p2p.Envelope) p2p.Envelope {
	var data newNeighborData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return p2p.Fail(p2p.BadMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}
	if !h.Node.HasCapacity() {
		return p2p.Fail(p2p.BadMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}
	data.NewNode.PubKey = data.NewPubKey
	h.Node.AddNeighbor(data.NewNode)
	return p2p.Ok(p2p.OKMessage, h.self(), env.SrcAddr, h.pub(), map[string]any{"node": h.Node.Self})
}

// --- NEW_NEIGHBORS_REQUEST ---

type neighborsRequestData struct {
	NConnections int        `json:"n_connections"`
	P2PNodes     []p2p.Addr `json:"p2p_nodes"`
	PassedNodes  []string   `json:"passed_nodes"`
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (h *Handler) handleNewNeighborsRequest(ctx context.Context, env p2p.Envelope) p2p.Envelope {
	var data neighborsRequestData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return p2p.Fail(p2p.BadMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}
	data.PassedNodes = append(data.PassedNodes, h.pub())

	if h.Node.HasCapacity() {
		data.NConnections--
		data.P2PNodes = append(data.P2PNodes, h.Node.Self)
	}

	if data.NConnections > 0 {
		exclude := make(map[string]bool, len(data.PassedNodes))
		for _, pk := range data.PassedNodes {
			exclude[pk] = true
		}
		forwardData, _ := json.Marshal(data)
		for _, peer := range h.Node.IterNeighbors(exclude) {
			env := p2p.Ok(p2p.NewNeighborsRequest, h.self(), peer.String(), h.pub(), json.RawMessage(forwardData))
			reply, err := h.Node.ConnectAndSend(ctx, peer, env, true)
			if err != nil || !reply.Status {
				continue
			}
			var forwarded neighborsRequestData
			if json.Unmarshal(reply.Data, &forwarded) == nil {
				data.NConnections = forwarded.NConnections
				data.P2PNodes = forwarded.P2PNodes
			}
			if data.NConnections <= 0 {
				break
			}
		}
	}

	if data.NConnections == h.Node.MaxNeighbors() && !h.Node.HasCapacity() {
		for _, peer := range h.Node.IterNeighbors(nil) {
			notEnv := p2p.Ok(p2p.NotNeighbor, h.self(), peer.String(), h.pub(), nil)
			reply, err := h.Node.ConnectAndSend(ctx, peer, notEnv, true)
			if err == nil && reply.Status {
				h.Node.DeleteNeighbor(peer.PubKey)
				data.P2PNodes = append(data.P2PNodes, h.Node.Self, peer)
				data.NConnections -= 2
				break
			}
		}
	}

	out, _ := json.Marshal(data)
	return p2p.Ok(p2p.NewNeighborsFind, h.self(), env.SrcAddr, h.pub(), json.RawMessage(out))
}

// --- NOT_NEIGHBOR ---

func (h *Handler) handleNotNeighbor(env p2p.Envelope) p2p.Envelope {
	if h.Node.DeleteNeighbor(env.PubKey) {
		return p2p.Ok(p2p.OKMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}
	return p2p.Fail(p2p.BadMessage, h.self(), env.SrcAddr, h.pub(), nil)
}

// --- MINED_BLOCK ---

type minedBlockData struct {
	Block *block.Block `json:"block"`
}

func (h *Handler) handleMinedBlock(ctx context.Context, env p2p.Envelope) p2p.Envelope {
	var data minedBlockData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Block == nil {
		return p2p.Fail(p2p.BadMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}
	b := data.Block
	localHeight := h.Chain.Height()

	switch {
	case b.Height == localHeight+1:
		h.MinerToken.Pause()
		validation := h.Chain.AddNewBlock(b, h.Unspent, false, h.Difficulty)
		h.MinerToken.Resume()
		h.MinerToken.Reset()
		if !validation.IsFull() {
			details, _ := json.Marshal(map[string]any{
				"block_hash": b.BlockHash, "block_index": b.Height, "validation": validation,
			})
			return p2p.Fail(p2p.BadBlockValidation, h.self(), env.SrcAddr, h.pub(), json.RawMessage(details))
		}
		h.Pool.RemoveMany(hashesOf(b))
		return p2p.Ok(p2p.OKMessage, h.self(), env.SrcAddr, h.pub(), nil)

	case b.Height > localHeight+1:
		reqData, _ := json.Marshal(map[string]any{"first_index": localHeight})
		reqEnv := p2p.Ok(p2p.GetBlocks, h.self(), env.SrcAddr, h.pub(), json.RawMessage(reqData))
		reply, err := h.Node.ConnectAndSend(ctx, p2p.Addr{IP: addrHost(env.SrcAddr), Port: addrPort(env.SrcAddr), PubKey: env.PubKey}, reqEnv, true)
		if err != nil || !reply.Status {
			return p2p.Fail(p2p.BadBlockValidation, h.self(), env.SrcAddr, h.pub(), nil)
		}
		var sendData sendBlocksData
		if json.Unmarshal(reply.Data, &sendData) != nil {
			return p2p.Fail(p2p.BadBlockValidation, h.self(), env.SrcAddr, h.pub(), nil)
		}
		h.MinerToken.Pause()
		ok, _, validation := h.Chain.Resolve(sendData.Blocks, h.Unspent, h.Difficulty)
		h.MinerToken.Resume()
		h.MinerToken.Reset()
		if !ok {
			details, _ := json.Marshal(map[string]any{"validation": validation})
			return p2p.Fail(p2p.BadBlockValidation, h.self(), env.SrcAddr, h.pub(), json.RawMessage(details))
		}
		return p2p.Ok(p2p.OKMessage, h.self(), env.SrcAddr, h.pub(), nil)

	default:
		return p2p.Fail(p2p.ObsoleteBlock, h.self(), env.SrcAddr, h.pub(), nil)
	}
}

// addrHost and addrPort split a "host:port" string, tolerating a bad
// address by returning zero values (the subsequent dial then fails
// cleanly and is treated as neighbor-unreachable).
func addrHost(hostport string) string {
	host, _, _ := net.SplitHostPort(hostport)
	return host
}

func addrPort(hostport string) int {
	_, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

func hashesOf(b *block.Block) []string {
	out := make([]string, len(b.Transactions))
	for i, t := range b.Transactions {
		out[i] = t.Hash()
	}
	return out
}

// --- RESOLVE_BLOCKCHAIN ---

type resolveData struct {
	Blocks []*block.Block `json:"blocks"`
}

func (h *Handler) handleResolveBlockchain(env p2p.Envelope) p2p.Envelope {
	var data resolveData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return p2p.Fail(p2p.BadMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}
	h.MinerToken.Pause()
	ok, _, validation := h.Chain.Resolve(data.Blocks, h.Unspent, h.Difficulty)
	h.MinerToken.Resume()
	h.MinerToken.Reset()
	if !ok {
		details, _ := json.Marshal(map[string]any{"validation": validation})
		return p2p.Fail(p2p.BadBlockValidation, h.self(), env.SrcAddr, h.pub(), json.RawMessage(details))
	}
	return p2p.Ok(p2p.OKMessage, h.self(), env.SrcAddr, h.pub(), nil)
}

// --- GET_BLOCKS / SEND_BLOCKS ---

type getBlocksData struct {
	HashBlock  string `json:"hash_block,omitempty"`
	FirstIndex *int   `json:"first_index,omitempty"`
}

type sendBlocksData struct {
	Blocks []*block.Block `json:"blocks"`
}

func (h *Handler) handleGetBlocks(env p2p.Envelope) p2p.Envelope {
	var data getBlocksData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return p2p.Fail(p2p.BadMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}

	var firstIndex int
	switch {
	case data.HashBlock != "":
		idx, ok := h.Chain.Search(data.HashBlock)
		if !ok {
			return p2p.Fail(p2p.BadBlockValidation, h.self(), env.SrcAddr, h.pub(), nil)
		}
		firstIndex = idx
	case data.FirstIndex != nil:
		firstIndex = *data.FirstIndex
	default:
		return p2p.Fail(p2p.BadMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}

	if firstIndex < 0 || firstIndex > h.Chain.Height() {
		return p2p.Fail(p2p.BadBlockValidation, h.self(), env.SrcAddr, h.pub(), nil)
	}

	blocks := h.Chain.GetData(firstIndex, h.Chain.Height())
	out, _ := json.Marshal(sendBlocksData{Blocks: blocks})
	return p2p.Ok(p2p.SendBlocks, h.self(), env.SrcAddr, h.pub(), json.RawMessage(out))
}

// --- ADD_TRX ---

type addTrxData struct {
	Trx         *trx.Trx `json:"trx"`
	Signature   [2]string `json:"signature"`
	PublicKey   string    `json:"public_key"`
	PassedNodes []string  `json:"passed_nodes"`
}

func (h *Handler) handleAddTrx(ctx context.Context, env p2p.Envelope) p2p.Envelope {
	var data addTrxData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Trx == nil {
		return p2p.Fail(p2p.BadMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}
	r, ok1 := new(big.Int).SetString(data.Signature[0], 10)
	s, ok2 := new(big.Int).SetString(data.Signature[1], 10)
	if !ok1 || !ok2 {
		return p2p.Fail(p2p.BadMessage, h.self(), env.SrcAddr, h.pub(), nil)
	}

	if !h.Pool.Add(data.Trx, r, s, data.PublicKey, h.Unspent) {
		return p2p.Fail(p2p.BadTransaction, h.self(), env.SrcAddr, h.pub(), nil)
	}

	passed := append(append([]string{}, data.PassedNodes...), h.pub())
	exclude := make(map[string]bool, len(passed))
	for _, pk := range passed {
		exclude[pk] = true
	}
	forwardData, _ := json.Marshal(addTrxData{Trx: data.Trx, Signature: data.Signature, PublicKey: data.PublicKey, PassedNodes: passed})
	for _, peer := range h.Node.IterNeighbors(exclude) {
		fwdEnv := p2p.Ok(p2p.AddTrx, h.self(), peer.String(), h.pub(), json.RawMessage(forwardData))
		_, _ = h.Node.ConnectAndSend(ctx, peer, fwdEnv, true)
	}

	return p2p.Ok(p2p.OKMessage, h.self(), env.SrcAddr, h.pub(), nil)
}

// --- PING_PONG ---

func (h *Handler) handlePingPong(env p2p.Envelope) p2p.Envelope {
	return p2p.Ok(p2p.PingPong, h.self(), env.SrcAddr, h.pub(), env.Data)
}
