// Package ledger implements the token ledger: account balances in
// micro-tokens, exactly-once mint and fee distribution for finalized blocks,
// a bounded pending-transaction pool and a retrying storage layer.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/poechain"
)

var (
	// ErrWrongHeight is returned when a block does not extend the ledger's
	// current height by exactly one.
	ErrWrongHeight = errors.New("block height does not extend the chain")

	// ErrWrongParent is returned when a block's parent hash does not match
	// the last applied block.
	ErrWrongParent = errors.New("block parent does not match chain head")

	// ErrInsufficientFunds is returned when a transaction spends more than
	// its sender's spendable balance.
	ErrInsufficientFunds = errors.New("insufficient spendable balance")

	// ErrBadNonce is returned when a transaction's nonce is not the
	// sender's next nonce.
	ErrBadNonce = errors.New("transaction nonce out of order")

	// ErrFeeSumMismatch is returned when a block's recorded fee split does
	// not reproduce from its mint under the rules in effect.
	ErrFeeSumMismatch = errors.New("fee split does not match mint")

	// ErrBalanceOverflow is returned when a credit would push a balance
	// past the uint64 ceiling.
	ErrBalanceOverflow = errors.New("balance overflow")
)

// Account is one address's balance buckets in micro-tokens. The locked
// bucket accumulates the proposer's locked fee reserve and is not spendable.
type Account struct {
	SpendableMicro uint64
	LockedMicro    uint64
	Nonce          uint64
}

// FeeSplitFor divides a block's protocol fee, charged against the mint, into
// the four fixed parts. Locked, spendable and owner are floored ppm
// fractions of the mint; the treasury part absorbs the rounding remainder of
// the total fee, so the four parts sum to the total fee exactly for every
// mint amount.
func FeeSplitFor(mintMicro uint64, fees poechain.FeeRules) inter.FeeSplit {
	total := mulPpm(mintMicro, fees.TotalPpm())
	locked := mulPpm(mintMicro, fees.LockedPpm)
	spendable := mulPpm(mintMicro, fees.SpendablePpm)
	owner := mulPpm(mintMicro, fees.OwnerPpm)
	return inter.FeeSplit{
		Locked:    locked,
		Spendable: spendable,
		Owner:     owner,
		Treasury:  total - locked - spendable - owner,
	}
}

// mulPpm computes amount·ppm/1e6 without overflowing for any amount that
// fits the first 44 bits, which covers all realistic window mints; larger
// amounts fall back to the order-swapped form at a small precision cost
// bounded by ppm.
func mulPpm(amount, ppm uint64) uint64 {
	const safe = uint64(1) << 44
	if amount < safe {
		return amount * ppm / poechain.PpmDenominator
	}
	return amount / poechain.PpmDenominator * ppm
}

// State is the account ledger. All mutations go through ApplyFinalizedBlock
// and are all-or-nothing: a rejected block leaves no trace.
type State struct {
	mu       sync.RWMutex
	accounts map[common.Address]Account

	owner    common.Address
	treasury common.Address

	height     idx.Block
	head       hash.Hash
	mintedAcc  uint64
	feesAcc    uint64
	rules      poechain.Rules

	log *logrus.Entry
}

// NewState creates an empty ledger crediting protocol fee shares to the
// given owner and treasury addresses.
func NewState(rules poechain.Rules, owner, treasury common.Address, log *logrus.Logger) *State {
	return &State{
		accounts: make(map[common.Address]Account),
		owner:    owner,
		treasury: treasury,
		rules:    rules,
		log:      log.WithField("module", "ledger"),
	}
}

// Account returns the current balances of an address.
func (s *State) Account(addr common.Address) Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[addr]
}

// Height returns the last applied block height.
func (s *State) Height() idx.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// Head returns the ID of the last applied block, the required parent of the
// next one.
func (s *State) Head() hash.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// CumulativeMint returns the total minted micro-tokens across all applied
// blocks, for the query surface.
func (s *State) CumulativeMint() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mintedAcc
}

// Credit adds spendable balance out of band (genesis allocations, faucets in
// fake networks).
func (s *State) Credit(addr common.Address, amountMicro uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[addr]
	acc.SpendableMicro += amountMicro
	s.accounts[addr] = acc
}

// ApplyFinalizedBlock applies a finalized block's mint, fee distribution and
// transactions as one atomic transition. Every check runs before the first
// write, so a rejected block has no partial effect. The proposer address
// receives the mint net of fees plus transaction fees; the locked and
// spendable fee parts also go to the proposer's buckets per the protocol's
// reward design.
func (s *State) ApplyFinalizedBlock(b *inter.MinedBlock, proposer common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Height != s.height+1 {
		return fmt.Errorf("%w: got %d, head %d", ErrWrongHeight, b.Height, s.height)
	}
	if b.Parent != s.head {
		return fmt.Errorf("%w: height %d", ErrWrongParent, b.Height)
	}

	// The fee split must reproduce from the mint; a mismatch means the
	// proposer and this node disagree on the rules in effect.
	split := FeeSplitFor(b.MintMicro, s.rules.Economy.Fees)
	if split != b.Fees {
		return fmt.Errorf("%w: height %d", ErrFeeSumMismatch, b.Height)
	}

	// Validate all transactions against a scratch view before writing.
	scratch := make(map[common.Address]Account)
	view := func(addr common.Address) Account {
		if acc, ok := scratch[addr]; ok {
			return acc
		}
		return s.accounts[addr]
	}
	var txFees uint64
	for i, tx := range b.Txs {
		if err := tx.CheckSig(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
		from := view(tx.From)
		if tx.Nonce != from.Nonce+1 {
			return fmt.Errorf("%w: tx %d, got %d, want %d", ErrBadNonce, i, tx.Nonce, from.Nonce+1)
		}
		// Cost is checked as a big integer: amount+fee near the uint64
		// ceiling must fail the balance check, not wrap around it.
		cost := tx.Cost()
		if !cost.IsUint64() || from.SpendableMicro < cost.Uint64() {
			return fmt.Errorf("%w: tx %d", ErrInsufficientFunds, i)
		}
		from.SpendableMicro -= cost.Uint64()
		from.Nonce = tx.Nonce
		scratch[tx.From] = from

		to := view(tx.To)
		if to.SpendableMicro+tx.AmountMicro < to.SpendableMicro {
			return fmt.Errorf("%w: tx %d", ErrBalanceOverflow, i)
		}
		to.SpendableMicro += tx.AmountMicro
		scratch[tx.To] = to
		txFees += tx.FeeMicro
	}

	// All checks passed: apply.
	for addr, acc := range scratch {
		s.accounts[addr] = acc
	}

	prop := s.accounts[proposer]
	prop.SpendableMicro += b.MintMicro - split.Total() + split.Spendable + txFees
	prop.LockedMicro += split.Locked
	s.accounts[proposer] = prop

	ownerAcc := s.accounts[s.owner]
	ownerAcc.SpendableMicro += split.Owner
	s.accounts[s.owner] = ownerAcc

	treasuryAcc := s.accounts[s.treasury]
	treasuryAcc.SpendableMicro += split.Treasury
	s.accounts[s.treasury] = treasuryAcc

	s.height = b.Height
	s.head = b.ID()
	s.mintedAcc += b.MintMicro
	s.feesAcc += split.Total()

	s.log.WithFields(logrus.Fields{
		"height":    uint64(b.Height),
		"mintMicro": b.MintMicro,
		"txs":       len(b.Txs),
	}).Info("applied finalized block")
	return nil
}
