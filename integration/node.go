package integration

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/poechain/go-poechain/api"
	"github.com/poechain/go-poechain/consensus"
	"github.com/poechain/go-poechain/emitter"
	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/inter/validatorpk"
	"github.com/poechain/go-poechain/ledger"
	"github.com/poechain/go-poechain/notary"
	"github.com/poechain/go-poechain/poe"
	"github.com/poechain/go-poechain/poechain"
	"github.com/poechain/go-poechain/validators"
)

// initialDifficulty seeds the retargeting controller; it converges to the
// network's real block rate within a few adjust windows.
const initialDifficulty = 1000

// Config carries everything needed to assemble a node.
type Config struct {
	Rules  poechain.Rules
	Preset PresetConfig

	// EmitterKey signs step receipts at their origin.
	EmitterKey *ecdsa.PrivateKey
	// NotaryKey signs sealed log blocks.
	NotaryKey *mode3.PrivateKey
	// ProposerKey signs computed bundles.
	ProposerKey *mode3.PrivateKey

	// ValidatorID and ValidatorKey identify this node in the validator
	// set. The key also signs this node's own consensus votes.
	ValidatorID    idx.ValidatorID
	ValidatorKey   *ecdsa.PrivateKey
	ValidatorStake *big.Int

	OwnerAddr    common.Address
	TreasuryAddr common.Address

	// APIAddr is the HTTP listen address; empty disables the API.
	APIAddr string
}

// Node is a fully assembled pipeline: emitter, notary, calculator,
// validator registry, consensus and ledger, joined by channels and run
// under one errgroup.
type Node struct {
	cfg Config
	log *logrus.Logger

	Emitter    *emitter.Emitter
	Notary     *notary.Notary
	Calculator *poe.Calculator
	Registry   *validators.Registry
	State      *ledger.State
	Store      ledger.Store
	Pool       *ledger.TxPool
	Consumed   *poe.ConsumedSet
	Finalizer  *consensus.Finalizer
	Difficulty *validators.DifficultyTracker
	API        *api.Server

	logBlocks chan *inter.LogBlock

	// receipts indexes emitted receipts by hash until a sealed log block
	// cites them, so the calculator can verify membership against full
	// receipt bodies.
	mu       sync.Mutex
	receipts map[hash.Hash]*inter.StepReceipt
}

// NewNode wires a node from the given config. The validator set initially
// contains only this node; further validators join via Registry.Register.
func NewNode(cfg Config, log *logrus.Logger) (*Node, error) {
	if cfg.EmitterKey == nil || cfg.NotaryKey == nil || cfg.ProposerKey == nil {
		return nil, errors.New("emitter, notary and proposer keys are required")
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:       cfg,
		log:       log,
		logBlocks: make(chan *inter.LogBlock, cfg.Preset.LogBlockBuffer),
		receipts:  make(map[hash.Hash]*inter.StepReceipt),
	}

	var store ledger.Store = ledger.NewMemStore()
	if cfg.Preset.StoreRetries > 0 {
		store = ledger.NewRetryStore(store, cfg.Preset.StoreRetries)
	}
	n.Store = store

	n.Emitter = emitter.NewEmitter(cfg.Rules, cfg.EmitterKey, log)
	n.Notary = notary.NewNotary(cfg.Rules, cfg.NotaryKey, n.logBlocks, log)
	n.Consumed = poe.NewConsumedSet()
	n.Calculator = poe.NewCalculator(cfg.Rules, cfg.ProposerKey, n.Consumed, log)
	n.Registry = validators.NewRegistry(log)
	n.State = ledger.NewState(cfg.Rules, cfg.OwnerAddr, cfg.TreasuryAddr, log)
	n.Pool = ledger.NewTxPool(cfg.Preset.TxPoolSize)
	n.Finalizer = consensus.NewFinalizer(cfg.Rules, n.Registry, n.State, store, n.Consumed, n.Pool, log)
	n.Difficulty = validators.NewDifficultyTracker(cfg.Rules.Difficulty, initialDifficulty)
	n.API = api.NewServer(cfg.Rules, n.Notary, n.State, n.Registry, n.Difficulty, store, prometheus.NewRegistry(), log)

	if cfg.ValidatorKey != nil {
		stake := cfg.ValidatorStake
		if stake == nil {
			stake = big.NewInt(1)
		}
		pub := validatorpk.PubKey{
			Type: validatorpk.Types.Secp256k1,
			Raw:  crypto.FromECDSAPub(&cfg.ValidatorKey.PublicKey),
		}
		if err := n.Registry.Register(cfg.ValidatorID, pub, stake); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Execute records one unit of work: it emits a signed receipt, persists it
// and queues it for notarization. A full batch seals immediately instead of
// waiting for the notary's timer.
func (n *Node) Execute(ctx context.Context, ec emitter.ExecutionContext) (*inter.StepReceipt, error) {
	r, err := n.Emitter.EmitReceipt(ec)
	if err != nil {
		return nil, err
	}
	if err := n.Store.AppendReceipt(r); err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.receipts[r.Hash] = r
	n.mu.Unlock()

	if err := n.Notary.SubmitAndSeal(ctx, r); err != nil {
		n.mu.Lock()
		delete(n.receipts, r.Hash)
		n.mu.Unlock()
		return nil, err
	}
	return r, nil
}

// SubmitTx queues a signed transaction for inclusion in the next block.
func (n *Node) SubmitTx(tx *inter.Transaction) error {
	return n.Pool.Add(tx)
}

// Run starts the pipeline stages and blocks until ctx is cancelled or a
// stage fails. The notary seals on its timer; the miner turns every sealed
// log block into a bundle and drives it through consensus.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.Notary.Run(ctx)
	})
	g.Go(func() error {
		return n.runMiner(ctx)
	})
	if n.cfg.APIAddr != "" {
		g.Go(func() error {
			return n.serveAPI(ctx)
		})
	}
	return g.Wait()
}

// runMiner consumes sealed log blocks, computes one bundle per block and
// finalizes it. One bundle per block keeps windows small on fake networks;
// batching multiple blocks per window is a pool-layout decision above this
// loop.
func (n *Node) runMiner(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case lb := <-n.logBlocks:
			if err := n.mineLogBlock(ctx, lb); err != nil {
				n.log.WithError(err).Error("mining failed")
				if errors.Is(err, ledger.ErrStorage) {
					return err
				}
			}
		}
	}
}

func (n *Node) mineLogBlock(ctx context.Context, lb *inter.LogBlock) error {
	if err := n.Store.PutLogBlock(lb); err != nil {
		return err
	}
	cited, err := n.takeCited(lb)
	if err != nil {
		return err
	}

	window := inter.BillingWindow{From: lb.Range.From, To: lb.Range.To + 1}
	bundle, err := n.Calculator.Compute(window, []poe.CitedBlock{cited})
	if err != nil {
		return err
	}

	txs := n.Pool.Take(n.cfg.Preset.MaxBlockTxs)
	_, err = n.mine(ctx, []*inter.PoEBundle{bundle}, txs)
	return err
}

// takeCited resolves a log block's receipt hashes to the full receipts
// recorded by Execute, removing them from the index.
func (n *Node) takeCited(lb *inter.LogBlock) (poe.CitedBlock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	receipts := make([]*inter.StepReceipt, len(lb.Receipts))
	for i, h := range lb.Receipts {
		r, ok := n.receipts[h]
		if !ok {
			return poe.CitedBlock{}, fmt.Errorf("log block %d cites unknown receipt %d", lb.Height, i)
		}
		receipts[i] = r
	}
	for _, h := range lb.Receipts {
		delete(n.receipts, h)
	}
	return poe.CitedBlock{Block: lb, Receipts: receipts}, nil
}

// mine drives one height through consensus. The node signs its own vote
// each round; votes from peers would arrive on the same channel in a
// networked deployment.
func (n *Node) mine(ctx context.Context, bundles []*inter.PoEBundle, txs []*inter.Transaction) (*inter.MinedBlock, error) {
	now := inter.FromTime(time.Now())
	votes := make(chan consensus.Vote, n.Registry.Snapshot().Active.Len())

	for round := uint32(0); round < n.cfg.Rules.Consensus.MaxRounds; round++ {
		p, err := n.Finalizer.Propose(round, bundles, txs, now)
		if err != nil {
			return nil, err
		}
		if n.cfg.ValidatorKey != nil {
			v, err := consensus.SignVote(n.cfg.ValidatorKey, n.cfg.ValidatorID,
				p.Block.Height, p.Round, p.Block.SigningHash())
			if err != nil {
				return nil, err
			}
			votes <- v
		}
		sealed, err := n.Finalizer.CollectVotes(ctx, p, votes)
		if err != nil {
			if errors.Is(err, consensus.ErrQuorumNotReached) {
				continue
			}
			return nil, err
		}
		if err := n.Finalizer.Finalize(sealed); err != nil {
			return nil, err
		}
		difficulty := n.Difficulty.OnBlockSealed(sealed.Time)
		n.log.WithFields(logrus.Fields{
			"height":     uint64(sealed.Height),
			"mintMicro":  sealed.MintMicro,
			"signers":    len(sealed.Sigs),
			"difficulty": difficulty,
		}).Info("block finalized")
		return sealed, nil
	}
	// Round budget exhausted: the height is abandoned with no partial
	// effect. Cited log blocks go back to the eligible set and the drained
	// transactions to the pool, same as Finalizer.RunHeight.
	for _, b := range bundles {
		n.Consumed.Release(b.LogBlocks)
	}
	n.Pool.Requeue(txs)
	return nil, consensus.ErrTooManyRounds
}

// serveAPI runs the HTTP server until ctx is cancelled.
func (n *Node) serveAPI(ctx context.Context) error {
	srv := &http.Server{
		Addr:    n.cfg.APIAddr,
		Handler: n.API.Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
