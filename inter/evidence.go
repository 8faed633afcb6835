package inter

import (
	"errors"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// Misbehaviour evidence.
//
// A validator cannot be slashed on accusation alone: every penalty requires a
// self-contained cryptographic proof, i.e. two signed messages from the same
// validator that contradict each other for the same height and round. Proofs
// are verified against the registry snapshot at the height of the offence.

var (
	// ErrNotEvidence is returned when the two halves of a proof do not
	// actually contradict each other.
	ErrNotEvidence = errors.New("messages do not constitute doublesign evidence")
)

// SignedProposalRef is a compact reference to a signed block proposal: the
// coordinates of the proposal, the hash the proposer committed to, and the
// proposer's signature over that hash.
type SignedProposalRef struct {
	Height   idx.Block
	Round    uint32
	Proposer idx.ValidatorID
	Hash     hash.Hash
	Sig      Signature
}

// ProposalDoublesign proves that a proposer issued two different proposals
// for the same height and round. Both halves must carry the same coordinates
// and proposer but different hashes.
type ProposalDoublesign struct {
	Pair [2]SignedProposalRef
}

// Validate checks the structural contradiction: same slot, same proposer,
// different content. Signature recovery is the caller's job since it needs
// the registry.
func (p *ProposalDoublesign) Validate() error {
	a, b := p.Pair[0], p.Pair[1]
	if a.Height != b.Height || a.Round != b.Round || a.Proposer != b.Proposer {
		return ErrNotEvidence
	}
	if a.Hash == b.Hash {
		return ErrNotEvidence
	}
	return nil
}

// SignedVoteRef is a compact reference to a signed block vote.
type SignedVoteRef struct {
	Height    idx.Block
	Round     uint32
	Validator idx.ValidatorID
	Hash      hash.Hash
	Sig       Signature
}

// VoteDoublesign proves that a validator voted for two different block
// hashes at the same height and round.
type VoteDoublesign struct {
	Pair [2]SignedVoteRef
}

// Validate checks the structural contradiction of the two votes.
func (p *VoteDoublesign) Validate() error {
	a, b := p.Pair[0], p.Pair[1]
	if a.Height != b.Height || a.Round != b.Round || a.Validator != b.Validator {
		return ErrNotEvidence
	}
	if a.Hash == b.Hash {
		return ErrNotEvidence
	}
	return nil
}

// MisbehaviourProof is a union container holding exactly one proof kind.
// Pointers with the rlp:"nil" tag make the fields optional on the wire;
// exactly one must be non-nil.
type MisbehaviourProof struct {
	ProposalDoublesign *ProposalDoublesign `rlp:"nil"`

	VoteDoublesign *VoteDoublesign `rlp:"nil"`
}

// Offender returns the validator the proof accuses.
func (m *MisbehaviourProof) Offender() idx.ValidatorID {
	switch {
	case m.ProposalDoublesign != nil:
		return m.ProposalDoublesign.Pair[0].Proposer
	case m.VoteDoublesign != nil:
		return m.VoteDoublesign.Pair[0].Validator
	}
	return 0
}

// Validate checks that exactly one proof is present and that it is
// internally contradictory.
func (m *MisbehaviourProof) Validate() error {
	set := 0
	if m.ProposalDoublesign != nil {
		set++
	}
	if m.VoteDoublesign != nil {
		set++
	}
	if set != 1 {
		return ErrNotEvidence
	}
	if m.ProposalDoublesign != nil {
		return m.ProposalDoublesign.Validate()
	}
	return m.VoteDoublesign.Validate()
}
