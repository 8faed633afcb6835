package consensus

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/validators"
)

// RoundState is the per-height finite-state machine:
//
//	Proposed → Signing → QuorumReached → Finalized
//	Proposed → Signing → TimedOut (re-propose, next leader)
type RoundState uint8

const (
	Proposed RoundState = iota
	Signing
	QuorumReached
	Finalized
	TimedOut
)

// String returns the state's canonical name.
func (s RoundState) String() string {
	switch s {
	case Proposed:
		return "proposed"
	case Signing:
		return "signing"
	case QuorumReached:
		return "quorum-reached"
	case Finalized:
		return "finalized"
	case TimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Proposal is a leader's unsigned block offered for voting.
type Proposal struct {
	Block *inter.MinedBlock
	Round uint32
}

// round accumulates votes for one proposal against one registry snapshot,
// so quorum is always evaluated against a single consistent validator set.
type round struct {
	proposal *Proposal
	snap     *validators.Snapshot
	state    RoundState

	byID   map[uint32]Vote
	weight pos.Weight
}

func newRound(p *Proposal, snap *validators.Snapshot) *round {
	return &round{
		proposal: p,
		snap:     snap,
		state:    Proposed,
		byID:     make(map[uint32]Vote),
	}
}

// addVote verifies and counts one vote. An equivocating vote returns
// ErrEquivocation together with the self-contained misbehaviour proof.
func (r *round) addVote(v Vote) (*inter.MisbehaviourProof, error) {
	target := r.proposal.Block.SigningHash()
	if v.Height != r.proposal.Block.Height || v.Round != r.proposal.Round {
		return nil, fmt.Errorf("%w: vote for height %d round %d", ErrVoteMismatch, v.Height, v.Round)
	}
	if !r.snap.IsActive(v.Validator) {
		return nil, fmt.Errorf("%w: %d", ErrNotActiveValidator, v.Validator)
	}
	profile, _ := r.snap.Profile(v.Validator)
	if err := verifyVoteSig(v, profile.PubKey); err != nil {
		return nil, err
	}

	if prev, ok := r.byID[uint32(v.Validator)]; ok {
		if prev.Hash == v.Hash {
			return nil, fmt.Errorf("%w: validator %d", ErrDuplicateVote, v.Validator)
		}
		// Two signed hashes for one slot: equivocation.
		proof := &inter.MisbehaviourProof{
			VoteDoublesign: &inter.VoteDoublesign{
				Pair: [2]inter.SignedVoteRef{voteRef(prev), voteRef(v)},
			},
		}
		return proof, fmt.Errorf("%w: validator %d", ErrEquivocation, v.Validator)
	}

	if v.Hash != target {
		// A well-signed vote for a different proposal hash does not count
		// toward this round's quorum, but it is remembered so a later
		// contradictory vote from the same validator proves equivocation.
		r.byID[uint32(v.Validator)] = v
		return nil, fmt.Errorf("%w: vote for foreign hash", ErrVoteMismatch)
	}

	r.byID[uint32(v.Validator)] = v
	r.weight += r.snap.Active.Get(v.Validator)
	r.state = Signing
	return nil, nil
}

// quorumReached reports whether the accumulated signed stake reached the
// snapshot's quorum (2/3 of total active weight plus one weight unit, so one
// unit below the threshold never finalizes).
func (r *round) quorumReached() bool {
	return r.weight >= r.snap.Active.Quorum()
}

// sealedBlock attaches the counted votes to the proposal's block and stamps
// the stake weight behind them.
func (r *round) sealedBlock() *inter.MinedBlock {
	b := r.proposal.Block
	target := b.SigningHash()
	for _, id := range r.snap.Active.SortedIDs() {
		v, ok := r.byID[uint32(id)]
		if !ok || v.Hash != target {
			continue
		}
		b.Sigs = append(b.Sigs, inter.ValidatorSig{Validator: id, Sig: v.Sig})
	}
	b.StakeWeight = uint64(r.weight)
	return b
}
