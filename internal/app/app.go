// Package app is the composition root (§9): a single explicit value
// owning the chain, unspent set, mempool, wallet, p2p node, and miner,
// replacing the global singletons (node, wallet, blockchain, unspent set)
// the source keeps at module scope.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pbcoin/pbcoin/internal/address"
	"github.com/pbcoin/pbcoin/internal/block"
	"github.com/pbcoin/pbcoin/internal/chain"
	"github.com/pbcoin/pbcoin/internal/config"
	"github.com/pbcoin/pbcoin/internal/controlsocket"
	"github.com/pbcoin/pbcoin/internal/handler"
	"github.com/pbcoin/pbcoin/internal/keystore"
	"github.com/pbcoin/pbcoin/internal/mempool"
	"github.com/pbcoin/pbcoin/internal/miner"
	"github.com/pbcoin/pbcoin/internal/node"
	"github.com/pbcoin/pbcoin/internal/p2p"
	sqlstore "github.com/pbcoin/pbcoin/internal/store/sql"
	"github.com/pbcoin/pbcoin/internal/store"
	"github.com/pbcoin/pbcoin/internal/unspent"
	"github.com/pbcoin/pbcoin/internal/wallet"
	"go.uber.org/zap"
)

// App is the fully wired node: every subsystem bound together, with no
// package-level globals anywhere in the tree.
type App struct {
	Config *config.Config
	Logger *zap.SugaredLogger

	Keys       *address.KeyPair
	Chain      *chain.Blockchain
	Unspent    *unspent.Set
	Pool       *mempool.Pool
	Wallet     *wallet.Wallet
	Node       *node.Node
	Handler    *handler.Handler
	Miner      *miner.Miner
	MinerToken *miner.Token

	badgerStore *store.Store
	sqlStore    *sqlstore.Store
	control     *controlsocket.Server
}

// New wires every subsystem (keys, stores, chain, ledger, node, miner,
// control socket), without starting the network, mining, or control
// socket goroutines (that's Run's job).
func New(cfg *config.Config, logger *zap.SugaredLogger) (*App, error) {
	keys, err := keystore.LoadOrGenerate(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("app: keystore: %w", err)
	}

	badgerStore, err := store.Open(filepath.Join(cfg.DataDir, "badger"))
	if err != nil {
		return nil, fmt.Errorf("app: badger store: %w", err)
	}
	sqlStore, err := sqlstore.Open(filepath.Join(cfg.DataDir, "pbcoin.sqlite"))
	if err != nil {
		badgerStore.Close()
		return nil, fmt.Errorf("app: sql store: %w", err)
	}

	persist := &dualPersister{primary: badgerStore, secondary: sqlStore}

	bc := chain.New(cfg.FullNode, cfg.CacheKB*1024, persist)
	unspentSet := unspent.New()
	if saved, err := badgerStore.LoadAll(); err == nil {
		for _, b := range saved {
			bc.AddNewBlock(b, unspentSet, true, cfg.Difficulty)
		}
	}

	pool := mempool.New(cfg.MaxMiningTrx)
	w := wallet.New(keys)

	self := p2p.Addr{IP: cfg.Host, Port: cfg.Port, PubKey: address.EncodePublic(keys.Public)}
	n := node.New(self, 0, time.Duration(cfg.DialTimeoutSec)*time.Second, logger)

	token := miner.NewToken()
	h := &handler.Handler{
		Chain: bc, Unspent: unspentSet, Pool: pool, Node: n,
		MinerToken: token, Difficulty: cfg.Difficulty, Logger: logger,
	}
	n.SetHandler(h)
	n.OnBadBlockValidation = func(neighbor p2p.Addr, b *block.Block, details json.RawMessage) {
		logger.Warnw("neighbor rejected mined block", "neighbor", neighbor.String(), "details", string(details))

		// Mining commits with ignoreValidation set, so the block was never
		// actually checked against our own chain before it was broadcast.
		// Re-check it now and roll it back locally if it's indeed invalid.
		validation, rolledBack := bc.RevalidateTip(unspentSet, cfg.Difficulty)
		if rolledBack {
			logger.Warnw("rolled back invalid self-mined block",
				"block_hash", b.BlockHash, "validation", validation)
		}
	}
	n.OnObsoleteBlock = func(ctx context.Context, neighbor p2p.Addr) {
		firstIndex := bc.Height()
		data, _ := json.Marshal(map[string]any{"first_index": firstIndex})
		env := p2p.Ok(p2p.GetBlocks, self.String(), neighbor.String(), self.PubKey, json.RawMessage(data))
		reply, err := n.ConnectAndSend(ctx, neighbor, env, true)
		if err != nil || !reply.Status {
			return
		}
		var sendData struct {
			Blocks []*block.Block `json:"blocks"`
		}
		if json.Unmarshal(reply.Data, &sendData) == nil {
			bc.Resolve(sendData.Blocks, unspentSet, cfg.Difficulty)
		}
	}

	m := miner.New(bc, pool, unspentSet, w.PublicKey(), cfg.Difficulty, n, token)

	a := &App{
		Config: cfg, Logger: logger,
		Keys: keys, Chain: bc, Unspent: unspentSet, Pool: pool, Wallet: w,
		Node: n, Handler: h, Miner: m, MinerToken: token,
		badgerStore: badgerStore, sqlStore: sqlStore,
	}
	a.control = &controlsocket.Server{SocketPath: cfg.SocketPath, Backend: a, Logger: logger}
	return a, nil
}

// dualPersister fans a block out to both the fast badger log and the
// relational projection.
type dualPersister struct {
	primary   *store.Store
	secondary *sqlstore.Store
}

func (d *dualPersister) SaveBlock(b *block.Block) error {
	if err := d.primary.SaveBlock(b); err != nil {
		return err
	}
	return d.secondary.SaveBlock(b)
}

// Run starts the network task, the discovery protocol, the mining task,
// and the control socket, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	listenErr := make(chan error, 1)
	go func() { listenErr <- a.Node.Listen(ctx) }()

	go a.Node.StartUp(ctx, a.Config.Seeds)
	go a.Miner.Run(ctx)
	go func() {
		if err := a.control.Listen(ctx); err != nil {
			a.Logger.Errorw("control socket stopped", "error", err)
		}
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Close releases the on-disk stores.
func (a *App) Close() error {
	err1 := a.badgerStore.Close()
	err2 := a.sqlStore.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// --- controlsocket.Backend ---

func (a *App) SendCoin(ctx context.Context, recipient string, amount uint64) error {
	ok, err := a.Wallet.SendCoin(ctx, recipient, amount, a.Pool, a.Unspent, a.Node)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("app: send rejected")
	}
	return nil
}

func (a *App) Balance() uint64 {
	return a.Wallet.Balance(a.Unspent)
}

func (a *App) BlockByHash(hash string) (string, bool) {
	idx, ok := a.Chain.Search(hash)
	if !ok {
		return "", false
	}
	blocks := a.Chain.GetData(idx, idx+1)
	if len(blocks) == 0 {
		return "", false
	}
	raw, _ := json.Marshal(blocks[0])
	return string(raw), true
}

func (a *App) LastBlock() (string, bool) {
	b := a.Chain.LastBlock()
	if b == nil {
		return "", false
	}
	raw, _ := json.Marshal(b)
	return string(raw), true
}

func (a *App) MempoolSummary() string {
	raw, _ := json.Marshal(a.Pool.InMining())
	return string(raw)
}

func (a *App) NeighborsSummary() string {
	neighbors := a.Node.IterNeighbors(nil)
	type neighborView struct {
		p2p.Addr
		ShortID string `json:"short_id"`
	}
	views := make([]neighborView, 0, len(neighbors))
	for _, n := range neighbors {
		views = append(views, neighborView{Addr: n, ShortID: address.ShortID(n.PubKey)})
	}
	raw, _ := json.Marshal(views)
	return string(raw)
}

func (a *App) SetMining(on bool) {
	a.Miner.SetEnabled(on)
}

func (a *App) MiningOn() bool {
	return a.Miner.Enabled()
}
