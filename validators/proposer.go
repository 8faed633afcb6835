package validators

import (
	"errors"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/poechain/go-poechain/inter"
)

// proposerDomain separates proposer-selection digests from every other
// hashing context.
const proposerDomain = "poe/proposer"

// ErrNoActiveValidators is returned when proposer selection is attempted
// against an empty active set.
var ErrNoActiveValidators = errors.New("no active validators")

// SelectProposer deterministically picks the round leader for a height from
// the snapshot's active set, weighted by stake: a validator holding a third
// of the active stake leads about a third of the rounds. The choice is a
// pure function of (height, round, snapshot version) over public state, so
// every node derives the same leader, and a timed-out round moves to the
// next leader simply by incrementing the round number.
func SelectProposer(snap *Snapshot, height idx.Block, round uint32) (idx.ValidatorID, error) {
	active := snap.Active
	if active.Len() == 0 {
		return 0, ErrNoActiveValidators
	}

	seed := inter.DomainHash(proposerDomain,
		height.Bytes(),
		bigendian.Uint32ToBytes(round),
		bigendian.Uint64ToBytes(snap.Version),
	)
	// Fold the digest into a weighted index over the sorted active set.
	// Sorted order makes the walk independent of map iteration.
	point := bigendian.BytesToUint64(seed.Bytes()[:8]) % uint64(active.TotalWeight())

	var acc uint64
	for _, id := range active.SortedIDs() {
		acc += uint64(active.Get(id))
		if point < acc {
			return id, nil
		}
	}
	// Unreachable: total weight covers every point.
	ids := active.SortedIDs()
	return ids[len(ids)-1], nil
}
