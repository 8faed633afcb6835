// Package consensus implements the block finalizer: the per-height state
// machine that proposes a block, collects validator votes against a
// stake-weighted quorum, and finalizes the block atomically — or times out
// and re-proposes under the next leader.
package consensus

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/inter/validatorpk"
)

var (
	// ErrNotActiveValidator is returned for votes from validators outside
	// the round's active snapshot (unregistered, offline or slashed).
	ErrNotActiveValidator = errors.New("vote from non-active validator")

	// ErrDuplicateVote is returned when a validator votes twice identically
	// in the same round. The repeat does not add weight.
	ErrDuplicateVote = errors.New("duplicate vote")

	// ErrEquivocation is returned when a validator signs two different
	// hashes at the same height and round. The caller escalates the
	// accompanying evidence to the registry.
	ErrEquivocation = errors.New("equivocating vote")

	// ErrVoteMismatch is returned when a vote targets another height, round
	// or proposal hash than the one being collected.
	ErrVoteMismatch = errors.New("vote does not match the round")

	// ErrBadVoteSig is returned when a vote's signature does not recover to
	// the validator's registered key.
	ErrBadVoteSig = errors.New("invalid vote signature")
)

// Vote is one validator's signed approval of a proposal at (height, round).
type Vote struct {
	Height    idx.Block
	Round     uint32
	Validator idx.ValidatorID
	Hash      hash.Hash
	Sig       inter.Signature
}

// VoteDigest is the digest validators sign: the proposal hash bound to its
// height and round, domain-separated from all other signing contexts.
func VoteDigest(height idx.Block, round uint32, proposal hash.Hash) hash.Hash {
	return inter.DomainHash(inter.VoteDomain,
		height.Bytes(),
		bigendian.Uint32ToBytes(round),
		proposal.Bytes(),
	)
}

// SignVote produces a validator's vote for a proposal hash.
func SignVote(key *ecdsa.PrivateKey, id idx.ValidatorID, height idx.Block, round uint32, proposal hash.Hash) (Vote, error) {
	digest := VoteDigest(height, round, proposal)
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return Vote{}, err
	}
	return Vote{
		Height:    height,
		Round:     round,
		Validator: id,
		Hash:      proposal,
		Sig:       inter.BytesToSignature(sig),
	}, nil
}

// verifyVoteSig checks that the vote's signature recovers to the claimed
// validator's registered secp256k1 key.
func verifyVoteSig(v Vote, pub validatorpk.PubKey) error {
	if pub.Type != validatorpk.Types.Secp256k1 {
		return fmt.Errorf("%w: validator %d key is not secp256k1", ErrBadVoteSig, v.Validator)
	}
	recovered, err := crypto.SigToPub(VoteDigest(v.Height, v.Round, v.Hash).Bytes(), v.Sig.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadVoteSig, err)
	}
	expected, err := crypto.UnmarshalPubkey(pub.Raw)
	if err != nil {
		return fmt.Errorf("%w: corrupt registered key", ErrBadVoteSig)
	}
	if crypto.PubkeyToAddress(*recovered) != crypto.PubkeyToAddress(*expected) {
		return ErrBadVoteSig
	}
	return nil
}

// voteRef converts a vote into its compact evidence form.
func voteRef(v Vote) inter.SignedVoteRef {
	return inter.SignedVoteRef{
		Height:    v.Height,
		Round:     v.Round,
		Validator: v.Validator,
		Hash:      v.Hash,
		Sig:       v.Sig,
	}
}
