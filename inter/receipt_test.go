package inter

import (
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/stretchr/testify/require"
)

// makeChain builds n sealed receipts chained from the zero hash for one origin.
func makeChain(t *testing.T, origin Origin, n int) []*StepReceipt {
	t.Helper()
	receipts := make([]*StepReceipt, 0, n)
	prev := hash.Hash{}
	base := FromTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	for i := 0; i < n; i++ {
		r := &StepReceipt{
			Version:   ReceiptVersion,
			ReceiptID: string(rune('a' + i)),
			Origin:    origin,
			Op:        "deploy",
			Time:      base + Timestamp(i)*Timestamp(time.Second),
			Usage: ResourceUsage{
				CPUMillis: uint64(100 + i),
				MemMBSec:  uint64(50 * i),
			},
			Attested: true,
			PrevHash: prev,
		}
		r.Hash = r.ContentHash()
		prev = r.Hash
		receipts = append(receipts, r)
	}
	return receipts
}

// TestVerifyChain verifies that an untampered receipt chain passes and that
// any content mutation breaks verification from the mutated receipt onward.
func TestVerifyChain(t *testing.T) {
	require := require.New(t)
	origin := Origin{Kind: OriginContainer, ID: "web-1"}

	// Case 1: A valid chain verifies.
	chain := makeChain(t, origin, 5)
	require.NoError(VerifyChain(hash.Hash{}, chain))

	// Case 2: An empty chain verifies trivially.
	require.NoError(VerifyChain(hash.Hash{}, nil))

	// Case 3: Mutating a middle receipt's usage invalidates its hash.
	chain = makeChain(t, origin, 5)
	chain[2].Usage.CPUMillis += 1
	err := VerifyChain(hash.Hash{}, chain)
	require.ErrorIs(err, ErrHashMismatch)

	// Case 4: Re-sealing the mutated receipt without fixing successors
	// breaks the chain link instead.
	chain[2].Hash = chain[2].ContentHash()
	err = VerifyChain(hash.Hash{}, chain)
	require.ErrorIs(err, ErrBrokenChain)

	// Case 5: A wrong genesis prev-hash is detected at the first receipt.
	chain = makeChain(t, origin, 2)
	err = VerifyChain(hash.Of([]byte("bogus")), chain)
	require.ErrorIs(err, ErrBrokenChain)
}

// TestContentHashExcludesSig checks that the signature is not part of the
// hashed content, so signing does not invalidate the seal.
func TestContentHashExcludesSig(t *testing.T) {
	require := require.New(t)
	chain := makeChain(t, Origin{Kind: OriginNode, ID: "node-7"}, 1)
	r := chain[0]

	before := r.ContentHash()
	r.Sig = BytesToSignature([]byte{0xff, 0xee, 0xdd})
	require.Equal(before, r.ContentHash())
	require.NoError(r.CheckIntegrity())
}

// TestContentHashDomains checks that receipts with identical payloads but
// different origins or ops hash differently.
func TestContentHashDomains(t *testing.T) {
	require := require.New(t)

	a := makeChain(t, Origin{Kind: OriginContainer, ID: "x"}, 1)[0]
	b := makeChain(t, Origin{Kind: OriginCluster, ID: "x"}, 1)[0]
	require.NotEqual(a.Hash, b.Hash)

	c := makeChain(t, Origin{Kind: OriginContainer, ID: "x"}, 1)[0]
	c.Op = "scale"
	require.NotEqual(a.Hash, c.ContentHash())
}

// TestOriginValidate covers the closed origin-kind enum.
func TestOriginValidate(t *testing.T) {
	require := require.New(t)

	require.NoError(Origin{Kind: OriginContainer, ID: "c1"}.Validate())
	require.NoError(Origin{Kind: OriginServer, ID: "s1"}.Validate())

	// Unknown kind is rejected.
	require.Error(Origin{Kind: OriginKind(99), ID: "c1"}.Validate())
	// Empty ID is rejected.
	require.Error(Origin{Kind: OriginContainer, ID: ""}.Validate())
}
