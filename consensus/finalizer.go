package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/ledger"
	"github.com/poechain/go-poechain/poe"
	"github.com/poechain/go-poechain/poechain"
	"github.com/poechain/go-poechain/validators"
)

var (
	// ErrQuorumNotReached is returned when a round's timeout elapses before
	// the signed stake reaches quorum. The round is abandoned without
	// partial effect and the same bundles are eligible for re-proposal.
	ErrQuorumNotReached = errors.New("quorum not reached within round timeout")

	// ErrTooManyRounds is returned when a height exhausts the configured
	// re-proposal budget.
	ErrTooManyRounds = errors.New("height exceeded round limit")
)

// Finalizer drives the consensus state machine for one height at a time and
// applies finalized blocks to the ledger, the store and the consumed set as
// one all-or-nothing transition.
type Finalizer struct {
	rules    poechain.Rules
	registry *validators.Registry
	state    *ledger.State
	store    ledger.Store
	consumed *poe.ConsumedSet
	pool     *ledger.TxPool

	log *logrus.Entry
}

// NewFinalizer wires the finalizer to its collaborators.
func NewFinalizer(
	rules poechain.Rules,
	registry *validators.Registry,
	state *ledger.State,
	store ledger.Store,
	consumed *poe.ConsumedSet,
	pool *ledger.TxPool,
	log *logrus.Logger,
) *Finalizer {
	return &Finalizer{
		rules:    rules,
		registry: registry,
		state:    state,
		store:    store,
		consumed: consumed,
		pool:     pool,
		log:      log.WithField("module", "consensus"),
	}
}

// Propose assembles the round's unsigned block over the given bundles and
// pending transactions: parent and height come from the ledger head, the
// mint is the sum of the bundles' mints, and the fee split is derived from
// it under the rules in effect.
func (f *Finalizer) Propose(round uint32, bundles []*inter.PoEBundle, txs []*inter.Transaction, now inter.Timestamp) (*Proposal, error) {
	snap := f.registry.Snapshot()
	leader, err := validators.SelectProposer(snap, f.state.Height()+1, round)
	if err != nil {
		return nil, err
	}

	var mint uint64
	for _, b := range bundles {
		mint += b.MintMicro
	}
	block := &inter.MinedBlock{
		Version:   inter.BlockVersion,
		Height:    f.state.Height() + 1,
		Parent:    f.state.Head(),
		Time:      now,
		Proposer:  leader,
		Bundles:   bundles,
		Txs:       txs,
		MintMicro: mint,
		Fees:      ledger.FeeSplitFor(mint, f.rules.Economy.Fees),
	}
	return &Proposal{Block: block, Round: round}, nil
}

// CollectVotes runs the signing phase of one round: it consumes votes until
// quorum is reached or the round timeout elapses. Equivocation evidence is
// escalated to the registry for slashing; other invalid votes are dropped
// without aborting the round. On timeout the round ends in TimedOut with no
// partial effect.
func (f *Finalizer) CollectVotes(ctx context.Context, p *Proposal, votes <-chan Vote) (*inter.MinedBlock, error) {
	r := newRound(p, f.registry.Snapshot())
	timer := time.NewTimer(time.Duration(f.rules.Consensus.RoundTimeout))
	defer timer.Stop()

	for {
		if r.quorumReached() {
			r.state = QuorumReached
			return r.sealedBlock(), nil
		}
		select {
		case <-ctx.Done():
			r.state = TimedOut
			return nil, ctx.Err()
		case <-timer.C:
			r.state = TimedOut
			return nil, fmt.Errorf("%w: height %d round %d, weight %d of %d",
				ErrQuorumNotReached, p.Block.Height, p.Round, r.weight, r.snap.Active.TotalWeight())
		case v := <-votes:
			proof, err := r.addVote(v)
			if proof != nil {
				if slashErr := f.registry.Slash(v.Validator, proof); slashErr != nil {
					f.log.WithError(slashErr).Error("failed to slash equivocator")
				} else if f.rules.Upgrades.Slashing {
					f.log.WithField("validator", uint32(v.Validator)).Warn("equivocation slashed")
				}
				continue
			}
			if err != nil {
				f.log.WithError(err).Debug("vote rejected")
			}
		}
	}
}

// Finalize commits a quorum-sealed block: ledger application first (its
// checks make the transition all-or-nothing), then the bundle citations are
// consumed for good, then the block is persisted. A ledger rejection
// releases the citations so the window can be recomputed.
func (f *Finalizer) Finalize(b *inter.MinedBlock) error {
	proposerAddr, err := f.proposerAddress(b)
	if err != nil {
		return err
	}
	if err := f.state.ApplyFinalizedBlock(b, proposerAddr); err != nil {
		f.releaseBundles(b)
		return err
	}
	for _, bundle := range b.Bundles {
		f.consumed.Commit(bundle.LogBlocks)
	}
	if err := f.store.PutBlock(b); err != nil {
		// Ledger and citations are already committed; a storage failure
		// halts the stage rather than un-finalizing the block.
		return err
	}
	f.log.WithFields(logrus.Fields{
		"height":  uint64(b.Height),
		"stake":   b.StakeWeight,
		"bundles": len(b.Bundles),
	}).Info("finalized block")
	return nil
}

// RunHeight drives one height to finality: propose, collect, finalize, and
// on timeout rotate the leader and re-propose the same bundles and
// transactions, up to the configured round budget.
func (f *Finalizer) RunHeight(ctx context.Context, bundles []*inter.PoEBundle, txs []*inter.Transaction, votes <-chan Vote, now inter.Timestamp) (*inter.MinedBlock, error) {
	for round := uint32(0); round < f.rules.Consensus.MaxRounds; round++ {
		p, err := f.Propose(round, bundles, txs, now)
		if err != nil {
			return nil, err
		}
		sealed, err := f.CollectVotes(ctx, p, votes)
		if err != nil {
			if errors.Is(err, ErrQuorumNotReached) {
				f.log.WithFields(logrus.Fields{
					"height": uint64(p.Block.Height),
					"round":  round,
				}).Warn("round timed out, rotating leader")
				continue
			}
			return nil, err
		}
		if err := f.Finalize(sealed); err != nil {
			return nil, err
		}
		return sealed, nil
	}
	f.releaseAll(bundles)
	f.pool.Requeue(txs)
	return nil, fmt.Errorf("%w: %d rounds", ErrTooManyRounds, f.rules.Consensus.MaxRounds)
}

// proposerAddress resolves the proposer's reward address from its
// registered secp256k1 key.
func (f *Finalizer) proposerAddress(b *inter.MinedBlock) (common.Address, error) {
	profile, ok := f.registry.Snapshot().Profile(b.Proposer)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: proposer %d", ErrNotActiveValidator, b.Proposer)
	}
	pub, err := crypto.UnmarshalPubkey(profile.PubKey.Raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("proposer %d: corrupt registered key", b.Proposer)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func (f *Finalizer) releaseBundles(b *inter.MinedBlock) {
	for _, bundle := range b.Bundles {
		f.consumed.Release(bundle.LogBlocks)
	}
}

func (f *Finalizer) releaseAll(bundles []*inter.PoEBundle) {
	ids := make([]hash.Hash, 0)
	for _, bundle := range bundles {
		ids = append(ids, bundle.LogBlocks...)
	}
	f.consumed.Release(ids)
}
